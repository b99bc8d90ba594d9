package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	processorrun "github.com/nayuki/MamIRC-sub000/internal/cmd/processor"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mamirc-processor <config>",
		Short:         "Track IRC sessions from the connector's event stream",
		Long:          "The MamIRC processor attaches to a connector, rebuilds session state from archived and live events, registers, joins channels and reconnects dropped networks.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			return processorrun.Run(cmd.Context(), processorrun.Options{
				ConfigPath: args[0],
				DataDir:    dataDir,
				LogLevel:   logLevel,
				LogFormat:  logFormat,
			})
		},
	}
	rootCmd.Flags().String("data-dir", "", "Processor state directory (overrides the configuration)")
	rootCmd.Flags().String("log-level", os.Getenv("MAMIRC_LOG_LEVEL"), "Log level: debug|info|warn|error")
	rootCmd.Flags().String("log-format", os.Getenv("MAMIRC_LOG_FORMAT"), "Log format: text|json")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "mamirc-processor:", err)
		os.Exit(1)
	}
}
