// Package capture implements the capture command, which replays OCR frame samples
// through the kill detector and publishes the session for the consumer.
package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/killclip/internal/capture"
	"github.com/tphakala/killclip/internal/cli"
	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/handoff"
	"github.com/tphakala/killclip/internal/observability"
)

type options struct {
	frames    string
	startedAt string
	quiet     bool
}

// Command creates the capture command.
func Command(settings *conf.Settings) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "capture <session-video>",
		Short: "Detect kills in recorded frame samples and publish the session",
		Long: `Reads OCR frame samples as JSON lines, detects kill banners and publishes
the session video reference together with its kill timeline to the handoff.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, settings, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.frames, "frames", "f", "-", "JSON lines file with frame samples, - reads stdin")
	cmd.Flags().StringVar(&opts.startedAt, "started-at", "", "Recording start time in RFC 3339 (default: now)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print the kill table")

	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings, url string, opts options) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	startedAt := time.Now()
	if opts.startedAt != "" {
		t, err := time.Parse(time.RFC3339, opts.startedAt)
		if err != nil {
			return errors.New(err).
				Component("capture").
				Category(errors.CategoryValidation).
				Context("flag", "started-at").
				Build()
		}
		startedAt = t
	}

	dc, err := settings.DetectionConfig()
	if err != nil {
		return err
	}

	in, closeIn, err := openFrames(cmd.InOrStdin(), opts.frames)
	if err != nil {
		return err
	}
	defer closeIn()

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	sess, err := capture.NewSession(url, startedAt, dc, capture.WithMetrics(m.Capture))
	if err != nil {
		return err
	}

	store, err := handoff.OpenStore(settings.Handoff, settings.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	channel := handoff.NewChannel(store)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()
	if settings.Telemetry.Enabled {
		// the endpoint stops once the frame stream is exhausted
		endpoint, err := observability.NewEndpoint(settings.Telemetry, m)
		if err != nil {
			return err
		}
		g.Go(func() error { return endpoint.Run(runCtx) })
	}
	g.Go(func() error {
		defer stop()
		return sess.Run(runCtx, capture.NewJSONLSource(in, startedAt))
	})
	if err := g.Wait(); err != nil {
		return err
	}

	rec, err := sess.End(ctx, channel)
	if err != nil {
		return err
	}

	if !opts.quiet {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), killTable(rec))
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "published %d kills for %s\n", rec.Len(), rec.SessionURL)
	return nil
}

func openFrames(stdin io.Reader, path string) (io.Reader, func(), error) {
	if path == "-" || path == "" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	return f, func() { _ = f.Close() }, nil
}

func killTable(rec handoff.Record) string {
	events := rec.Events()
	rows := make([][]string, 0, len(events))
	for i, e := range events {
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			cli.Seconds(e.CaptureOffset),
			e.WallClock.Format(time.DateTime),
			e.Type,
		})
	}
	return cli.RenderTable(
		[]string{"Kill", "Offset", "Wall clock", "Type"},
		rows,
		[]cli.Alignment{cli.AlignRight, cli.AlignRight, cli.AlignLeft},
	)
}
