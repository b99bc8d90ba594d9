package archivecmd

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/nayuki/MamIRC-sub000/internal/msglog"
)

type windowView struct {
	Profile       string `json:"profile"`
	Party         string `json:"party"`
	Entries       uint64 `json:"entries"`
	Unread        uint64 `json:"unread"`
	LastTimestamp int64  `json:"lastTimestamp"`
}

// newWindowsCommand constructs the `windows` subcommand.
func newWindowsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "windows",
		Short: "List message windows kept by the Processor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			wins := rt.Messages().Windows()
			out := make([]windowView, 0, len(wins))
			for _, w := range wins {
				out = append(out, windowView{
					Profile:       w.Profile,
					Party:         w.Party,
					Entries:       w.LastSeq,
					Unread:        w.Unread(),
					LastTimestamp: w.LastTimestamp,
				})
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

type messageView struct {
	Seq          uint64   `json:"seq"`
	ConnectionID int64    `json:"connectionId"`
	EventSeq     int64    `json:"eventSeq"`
	Timestamp    int64    `json:"timestamp"`
	Kind         string   `json:"kind"`
	Args         []string `json:"args"`
}

// newMessagesCommand constructs the `messages` subcommand.
func newMessagesCommand() *cobra.Command {
	messagesCmd := &cobra.Command{
		Use:   "messages",
		Short: "Read one message window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profile, _ := cmd.Flags().GetString("profile")
			party, _ := cmd.Flags().GetString("party")
			limit, _ := cmd.Flags().GetInt("limit")
			reverse, _ := cmd.Flags().GetBool("reverse")
			start, _ := cmd.Flags().GetUint64("start")
			if profile == "" || party == "" {
				return errors.New("--profile and --party are required")
			}

			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			entries, next, err := rt.Messages().Read(profile, party, msglog.ReadOptions{
				Start:   msglog.TokenFromSeq(start),
				Limit:   limit,
				Reverse: reverse,
			})
			if err != nil {
				return err
			}
			var out struct {
				Profile string        `json:"profile"`
				Party   string        `json:"party"`
				Items   []messageView `json:"items"`
				Next    uint64        `json:"next,omitempty"`
			}
			out.Profile = profile
			out.Party = party
			out.Items = make([]messageView, 0, len(entries))
			for _, e := range entries {
				out.Items = append(out.Items, messageView{
					Seq:          e.Seq,
					ConnectionID: e.ConnectionID,
					EventSeq:     e.EventSeq,
					Timestamp:    e.Timestamp,
					Kind:         e.Kind,
					Args:         e.Args,
				})
			}
			out.Next = next.Seq()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	messagesCmd.Flags().String("profile", "", "Network profile")
	messagesCmd.Flags().String("party", "", "Channel or nickname")
	messagesCmd.Flags().Int("limit", 100, "Max entries to return")
	messagesCmd.Flags().Bool("reverse", false, "Read newest-to-oldest")
	messagesCmd.Flags().Uint64("start", 0, "First entry sequence (0 for the beginning, or the end with --reverse)")
	return messagesCmd
}
