package archivecmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nayuki/MamIRC-sub000/internal/archive"
	"github.com/nayuki/MamIRC-sub000/internal/config"
	"github.com/nayuki/MamIRC-sub000/internal/runtime"
)

// NewRoot constructs the mamirc-archive root command.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "mamirc-archive",
		Short:         "Inspect the MamIRC event archive and message windows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Connector or Processor configuration file to take archive settings from")
	root.PersistentFlags().String("driver", "", "Archive driver: sqlite|postgres (overrides --config)")
	root.PersistentFlags().String("path", "", "SQLite archive file (overrides --config)")
	root.PersistentFlags().String("dsn", "", "Postgres connection string (overrides --config)")
	root.PersistentFlags().String("data-dir", "", "Processor state directory (overrides --config)")

	root.AddCommand(
		newDumpCommand(),
		newCheckCommand(),
		newStatsCommand(),
		newWindowsCommand(),
		newMessagesCommand(),
	)
	return root
}

// settings resolves the archive and Processor state locations from the
// flags, an optional configuration file and the defaults, in that order.
func settings(cmd *cobra.Command) (config.ArchiveConfig, string, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	driver, _ := cmd.Flags().GetString("driver")
	path, _ := cmd.Flags().GetString("path")
	dsn, _ := cmd.Flags().GetString("dsn")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	pc, err := config.ReadProcessorFile(cfgPath)
	if err != nil {
		return config.ArchiveConfig{}, "", err
	}
	arch := pc.Archive
	procDir := pc.DataDir
	if driver != "" {
		arch.Driver = driver
	}
	if path != "" {
		arch.Path = path
	}
	if dsn != "" {
		arch.DSN = dsn
	}
	if arch.Driver == "sqlite" && arch.Path == "" {
		arch.Path = filepath.Join(config.DefaultDataDir(), "archive.sqlite")
	}
	if dataDir != "" {
		procDir = dataDir
	}
	if procDir == "" {
		procDir = filepath.Join(config.DefaultDataDir(), "processor")
	}
	return arch, procDir, nil
}

func openStore(ctx context.Context, cmd *cobra.Command) (archive.Store, error) {
	arch, _, err := settings(cmd)
	if err != nil {
		return nil, err
	}
	return archive.Open(ctx, archive.Options{
		Driver:   arch.Driver,
		Path:     arch.Path,
		DSN:      arch.DSN,
		ReadOnly: true,
	})
}

func openRuntime(cmd *cobra.Command) (*runtime.Runtime, error) {
	_, dir, err := settings(cmd)
	if err != nil {
		return nil, err
	}
	return runtime.Open(runtime.Options{DataDir: dir, ReadOnly: true})
}
