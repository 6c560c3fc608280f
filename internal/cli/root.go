package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "fieldz",
	Short:        "Structured JSON documents for span-scoped events",
	Long:         "Runs instrumented code through the JSON layer and inspects the documents it writes: one pretty JSON object per event, carrying the fields of every enclosing span from outermost to innermost.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (FIELDZ_* env vars override it)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
