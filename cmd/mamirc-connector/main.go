package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	connectorrun "github.com/nayuki/MamIRC-sub000/internal/cmd/connector"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mamirc-connector <config>",
		Short:         "Keep IRC connections open and archive every line",
		Long:          "The MamIRC connector owns the IRC sockets, records every event in the archive and serves them to one attached processor.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			return connectorrun.Run(cmd.Context(), connectorrun.Options{
				ConfigPath: args[0],
				LogLevel:   logLevel,
				LogFormat:  logFormat,
			})
		},
	}
	rootCmd.Flags().String("log-level", os.Getenv("MAMIRC_LOG_LEVEL"), "Log level: debug|info|warn|error")
	rootCmd.Flags().String("log-format", os.Getenv("MAMIRC_LOG_FORMAT"), "Log format: text|json")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "mamirc-connector:", err)
		os.Exit(1)
	}
}
