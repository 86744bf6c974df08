// Package plan implements the plan command, a dry run of clip planning for the
// pending session.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/killclip/internal/cli"
	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/export"
	"github.com/tphakala/killclip/internal/handoff"
	"github.com/tphakala/killclip/internal/highlight"
	"github.com/tphakala/killclip/internal/processor"
)

type options struct {
	record   string
	duration time.Duration
}

// Command creates the plan command.
func Command(settings *conf.Settings) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the clips the consumer would cut for the pending session",
		Long: `Groups the kills of the pending session and prints the planned clip ranges
and file names without exporting anything. The session length is probed with
ffprobe unless --duration is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, settings, opts)
		},
	}

	cmd.Flags().StringVar(&opts.record, "record", "", "Read the session from a handoff record JSON file instead of the store")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "Session video length, skips probing")

	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings, opts options) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rec, err := loadRecord(ctx, settings, opts.record)
	if err != nil {
		return err
	}

	dc, err := settings.DetectionConfig()
	if err != nil {
		return err
	}
	pcfg, err := processor.ConfigFromSettings(settings, dc)
	if err != nil {
		return err
	}

	duration := opts.duration
	if duration <= 0 {
		duration = probe(ctx, settings, rec.SessionURL)
	}

	groups := highlight.GroupEvents(rec.Events(), pcfg.GroupingGap)
	planner := highlight.NewPlanner(pcfg.PreRoll, pcfg.PostRoll, pcfg.Location)

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "session %s: %d kills in %d groups\n", rec.SessionURL, rec.Len(), len(groups))
	if len(groups) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(out, planTable(planner, groups, duration))
	return nil
}

func loadRecord(ctx context.Context, settings *conf.Settings, path string) (handoff.Record, error) {
	if path != "" {
		return readRecord(path)
	}

	store, err := handoff.OpenStore(settings.Handoff, settings.Debug)
	if err != nil {
		return handoff.Record{}, err
	}
	defer func() { _ = store.Close() }()

	rec, found, err := store.Load(ctx)
	if err != nil {
		return handoff.Record{}, err
	}
	if !found {
		return handoff.Record{}, errors.Newf("no pending session in the %s handoff", store.Name()).
			Component("plan").
			Category(errors.CategoryNotFound).
			Build()
	}
	return rec, nil
}

func readRecord(path string) (handoff.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return handoff.Record{}, errors.New(err).
			Component("plan").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	var rec handoff.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return handoff.Record{}, errors.New(err).
			Component("plan").
			Category(errors.CategoryValidation).
			FileContext(path).
			Build()
	}
	if err := rec.Validate(); err != nil {
		return handoff.Record{}, err
	}
	return rec, nil
}

// probe returns the session length, or 0 when it cannot be determined.
func probe(ctx context.Context, settings *conf.Settings, sessionURL string) time.Duration {
	src, err := handoff.LocalPath(sessionURL)
	if err != nil {
		return 0
	}
	cfg, err := export.ValidateConfig(export.Config{
		FFmpegPath:  settings.Processing.FFmpegPath,
		FFprobePath: settings.Processing.FFprobePath,
		Timeout:     settings.Processing.ExportTimeout,
	})
	if err != nil {
		return 0
	}
	exporter, err := export.NewFFmpegExporter(cfg)
	if err != nil {
		return 0
	}
	d, err := exporter.Duration(ctx, src)
	if err != nil {
		return 0
	}
	return d
}

func planTable(planner *highlight.Planner, groups []highlight.Group, duration time.Duration) string {
	rows := make([][]string, 0, len(groups))
	for i, g := range groups {
		index := i + 1
		p, err := planner.Plan(index, g, duration)
		if err != nil {
			rows = append(rows, []string{fmt.Sprint(index), g.Label(), fmt.Sprint(g.Size()), "", "", "", err.Error()})
			continue
		}
		rows = append(rows, []string{
			fmt.Sprint(index),
			p.Label,
			fmt.Sprint(p.Size),
			cli.Seconds(p.Start),
			cli.Seconds(p.End),
			cli.Seconds(p.Length()),
			p.OutputName,
		})
	}
	return cli.RenderTable(
		[]string{"Group", "Label", "Kills", "Start", "End", "Length", "Clip"},
		rows,
		[]cli.Alignment{cli.AlignRight, cli.AlignLeft, cli.AlignRight, cli.AlignRight, cli.AlignRight, cli.AlignRight, cli.AlignLeft},
	)
}
