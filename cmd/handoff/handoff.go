// Package handoff implements the handoff command for inspecting and clearing the
// pending session.
package handoff

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/handoff"
)

// Command creates the handoff command and its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handoff",
		Short: "Inspect or clear the pending session handoff",
	}
	cmd.AddCommand(statusCommand(settings), clearCommand(settings))
	return cmd
}

func statusCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the pending session and the consumer watermark",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withChannel(settings, func(c *handoff.Channel, backend string) error {
				st, err := c.Status(cmd.Context())
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), backend, st)
				return nil
			})
		},
	}
}

func clearCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the pending session without processing it",
		Long: `Deletes the pending session record. The session video and the consumer
watermark are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withChannel(settings, func(c *handoff.Channel, backend string) error {
				if err := c.Discard(cmd.Context()); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "pending session cleared from the %s handoff\n", backend)
				return err
			})
		},
	}
}

func withChannel(settings *conf.Settings, fn func(*handoff.Channel, string) error) error {
	store, err := handoff.OpenStore(settings.Handoff, settings.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(handoff.NewChannel(store), store.Name())
}

func printStatus(w io.Writer, backend string, st handoff.Status) {
	_, _ = fmt.Fprintf(w, "backend:   %s\n", backend)
	_, _ = fmt.Fprintf(w, "state:     %s\n", st.State)
	_, _ = fmt.Fprintf(w, "watermark: %s\n", epoch(st.Watermark))
	switch {
	case st.Corrupt:
		_, _ = fmt.Fprintln(w, "pending:   corrupt record, run 'killclip handoff clear' to remove it")
	case st.Pending == nil:
		_, _ = fmt.Fprintln(w, "pending:   none")
	default:
		_, _ = fmt.Fprintf(w, "pending:   %s (%d kills, published %s)\n",
			st.Pending.SessionURL, st.Pending.Len(), epoch(st.Pending.UpdatedAt))
	}
}

func epoch(sec float64) string {
	if sec <= 0 {
		return "never"
	}
	return handoff.FromEpoch(sec).UTC().Format(time.RFC3339Nano)
}
