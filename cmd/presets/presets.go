// Package presets implements the presets command.
package presets

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/killclip/internal/cli"
	"github.com/tphakala/killclip/internal/conf"
)

// Command creates the presets command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "presets [name]",
		Short: "List detection presets or print one as YAML",
		Long: `Without arguments, lists the built-in detection presets. With a preset name,
prints that preset as YAML, ready to be edited and used as detection.file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				dc, err := conf.Preset(args[0])
				if err != nil {
					return err
				}
				data, err := conf.MarshalDetectionYAML(dc)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			out, err := presetTable(settings.Detection.Preset)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
}

func presetTable(active string) (string, error) {
	if active == "" {
		active = conf.PresetBalanced
	}

	names := conf.PresetNames()
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		dc, err := conf.Preset(name)
		if err != nil {
			return "", err
		}
		marker := ""
		if strings.EqualFold(name, active) {
			marker = "*"
		}
		r := dc.RegionOfInterest
		rows = append(rows, []string{
			marker,
			name,
			fmt.Sprint(dc.FrameSkipInterval),
			cli.Seconds(dc.Cooldown()),
			fmt.Sprintf("%.2f", dc.ConfidenceThreshold),
			fmt.Sprintf("%.2f,%.2f %.2fx%.2f", r.X, r.Y, r.Width, r.Height),
			cli.Seconds(dc.PreRoll()),
			cli.Seconds(dc.PostRoll()),
		})
	}
	return cli.RenderTable(
		[]string{"", "Preset", "Frame skip", "Cooldown", "Threshold", "Region", "Preroll", "Postroll"},
		rows,
		[]cli.Alignment{cli.AlignLeft, cli.AlignLeft, cli.AlignRight, cli.AlignRight, cli.AlignRight, cli.AlignLeft, cli.AlignRight, cli.AlignRight},
	), nil
}
