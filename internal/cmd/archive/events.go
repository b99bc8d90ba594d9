package archivecmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nayuki/MamIRC-sub000/internal/archive"
	"github.com/nayuki/MamIRC-sub000/internal/event"
	"github.com/nayuki/MamIRC-sub000/internal/inspect"
)

// ErrProblemsFound makes check exit non-zero.
var ErrProblemsFound = errors.New("archive has integrity problems")

var errLimitReached = errors.New("limit reached")

// newDumpCommand constructs the `dump` subcommand.
func newDumpCommand() *cobra.Command {
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Print archived events in wire format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			connID, _ := cmd.Flags().GetInt64("connection")
			from, _ := cmd.Flags().GetInt64("from")
			expr, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")

			var filter *inspect.Filter
			if expr != "" {
				f, err := inspect.Compile(expr)
				if err != nil {
					return fmt.Errorf("invalid --filter: %w", err)
				}
				filter = &f
			}

			store, err := openStore(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			printed := 0
			err = store.Scan(cmd.Context(), archive.ScanOptions{ConnectionID: connID, FromConnection: from}, func(ev event.Event) error {
				if filter != nil && !filter.Match(ev) {
					return nil
				}
				if _, err := fmt.Fprintf(out, "%s\n", event.Format(ev)); err != nil {
					return err
				}
				printed++
				if limit > 0 && printed >= limit {
					return errLimitReached
				}
				return nil
			})
			if errors.Is(err, errLimitReached) {
				return nil
			}
			return err
		},
	}
	dumpCmd.Flags().Int64("connection", archive.AllConnections, "Only this connection id (-1 for all)")
	dumpCmd.Flags().Int64("from", 0, "Skip connections with smaller ids")
	dumpCmd.Flags().String("filter", "", "CEL expression over connection, sequence, timestamp, kind, line, command, source, params, now_ms")
	dumpCmd.Flags().Int("limit", 0, "Stop after this many events (0 for no limit)")
	return dumpCmd
}

// newCheckCommand constructs the `check` subcommand.
func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify sequence numbers, payloads and connection lifecycles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			problems := 0
			n, err := archive.Check(cmd.Context(), store, func(p archive.Problem) {
				problems++
				fmt.Fprintln(out, p.String())
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "checked %d events, %d problems\n", n, problems)
			if problems > 0 {
				return fmt.Errorf("%w: %d", ErrProblemsFound, problems)
			}
			return nil
		},
	}
}

// ConnectionStats is one row of `stats` output.
type ConnectionStats struct {
	ConnectionID   int64  `json:"connectionId"`
	Profile        string `json:"profile"`
	Events         int64  `json:"events"`
	FirstTimestamp int64  `json:"firstTimestamp"`
	LastTimestamp  int64  `json:"lastTimestamp"`
	DurationMs     int64  `json:"durationMs"`
	Closed         bool   `json:"closed"`
}

func summarize(c archive.ConnectionSummary) ConnectionStats {
	st := ConnectionStats{
		ConnectionID:   c.ConnectionID,
		Events:         c.Events,
		FirstTimestamp: c.FirstTimestamp,
		LastTimestamp:  c.LastTimestamp,
		DurationMs:     c.LastTimestamp - c.FirstTimestamp,
		Closed:         event.IsClosed(c.Last),
	}
	if c.First.Type == event.Connection {
		if lc, err := event.ParseLifecycle(c.First.Line); err == nil && lc.Kind == event.KindConnect {
			st.Profile = lc.Profile
		}
	}
	return st
}

// newStatsCommand constructs the `stats` subcommand.
func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize every archived connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			conns, err := store.Connections(cmd.Context())
			if err != nil {
				return err
			}
			var out struct {
				Connections []ConnectionStats `json:"connections"`
				Events      int64             `json:"events"`
			}
			out.Connections = make([]ConnectionStats, 0, len(conns))
			for _, c := range conns {
				out.Connections = append(out.Connections, summarize(c))
				out.Events += c.Events
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
