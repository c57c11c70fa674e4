package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kalambet/ragdesk/internal/transport"
)

var version = "dev"

var (
	noColor         bool
	baseURLOverride string
)

var rootCmd = &cobra.Command{
	Use:           "ragdesk",
	Short:         "Ask questions against documents ingested into a RAG backend",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&baseURLOverride, "base-url", "", "backend API base URL (overrides api.base_url)")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(testServicesCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(devserverCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Backend failures were already shown as notices.
		if _, ok := transport.AsError(err); !ok {
			printError("%v", err)
		}
		os.Exit(1)
	}
}
