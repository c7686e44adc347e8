package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:   "chronoweave",
		Short: "Inject method timing instrumentation into compiled modules",
		Long: "Chronoweave rewrites compiled method bodies so that each selected\n" +
			"method measures and logs its own wall-clock duration at run time.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			processGlobalFlags()
		},
	}

	pf := root.PersistentFlags()
	pf.Bool("no-color", false, "Disable colored output")
	pf.BoolP("verbose", "v", false, "Enable progress logging")
	viper.BindPFlag("no-color", pf.Lookup("no-color"))
	viper.BindPFlag("verbose", pf.Lookup("verbose"))
	viper.BindEnv("no-color", "NO_COLOR")

	root.AddCommand(newWeaveCmd())
	root.AddCommand(newDisCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fatal(err)
	}
	os.Exit(0)
}
