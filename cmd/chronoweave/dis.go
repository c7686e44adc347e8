package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudcmds/chronoweave/dis"
	"github.com/cloudcmds/chronoweave/il"
)

func newDisCmd() *cobra.Command {
	var (
		encodingFlag string
		methodName   string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "dis <module-file>",
		Short: "Disassemble a method body from a serialized module",
		Args:  cobra.ExactArgs(1),
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
			module, err := il.Unmarshal(data, encoding)
			if err != nil {
				return err
			}

			method := module.MethodNamed(methodName)
			if method == nil {
				return fmt.Errorf("method %q not found in %s", methodName, module.Name)
			}
			if method.Body == nil {
				return fmt.Errorf("method %q has no body", methodName)
			}

			listing, err := dis.Disassemble(method.Body)
			if err != nil {
				return err
			}
			if asJSON {
				out, err := formatJSON(listing)
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}
			fmt.Printf("%s  (code size %d)\n", method.FullName(), listing.CodeSize)
			dis.Print(listing, os.Stdout)
			return nil
		},
	}

	cmd.Flags().StringVarP(&encodingFlag, "encoding", "e", "", "Module encoding: json or binary (default: by file extension)")
	cmd.Flags().StringVarP(&methodName, "method", "m", "", "Full method name, e.g. App.Calc.Compute")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the listing as JSON")
	cmd.MarkFlagRequired("method")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chronoweave %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
