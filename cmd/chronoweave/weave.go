package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudcmds/chronoweave"
)

func newWeaveCmd() *cobra.Command {
	var (
		encodingFlag string
		outPath      string
		concurrency  int
		stateField   string
		showResults  bool
	)

	cmd := &cobra.Command{
		Use:   "weave <module-file>",
		Short: "Weave timing instrumentation into a serialized module",
		Long: "Weave reads a serialized module, rewrites every method selected for\n" +
			"timing instrumentation, and writes the woven module back out.\n" +
			"Use \"-\" to read from stdin or write to stdout.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			encoding, err := parseEncoding(encodingFlag, path)
			if err != nil {
				return err
			}
			data, err := readInput(path)
			if err != nil {
				return err
			}

			opts := []chronoweave.Option{chronoweave.WithLogger(newLogger())}
			if concurrency > 0 {
				opts = append(opts, chronoweave.WithConcurrency(concurrency))
			}
			if stateField != "" {
				opts = append(opts, chronoweave.WithStateFieldName(stateField))
			}

			woven, report, err := chronoweave.WeaveData(cmd.Context(), data, encoding, opts...)
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = path
			}
			if err := writeOutput(outPath, woven); err != nil {
				return err
			}

			if !showResults {
				report.Results = nil
			}
			summary, err := formatJSON(report)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, string(summary))
			if report.Failed > 0 {
				return fmt.Errorf("%d method(s) failed to weave", report.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&encodingFlag, "encoding", "e", "", "Module encoding: json or binary (default: by file extension)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output path (default: rewrite in place)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Methods to weave in parallel")
	cmd.Flags().StringVar(&stateField, "state-field", "", "Override the dispatch-state field name")
	cmd.Flags().BoolVar(&showResults, "results", false, "Include per-method results in the summary")
	return cmd
}
