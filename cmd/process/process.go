// Package process implements the process command, which runs the clip consumer.
package process

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/daemon"
)

// Command creates the process command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		outputDir    string
		deleteSource bool
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run the consumer that turns published sessions into clips",
		Long: `Polls the handoff for newly published sessions, exports one clip per kill
group and optionally uploads clips, publishes MQTT events and sends notifications.
Runs until interrupted; a session in progress is finished first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// flags override the loaded configuration only when given
			if cmd.Flags().Changed("output") {
				settings.Processing.OutputDir = outputDir
			}
			if cmd.Flags().Changed("delete-source") {
				settings.Processing.DeleteSource = deleteSource
			}

			d, err := daemon.New(settings)
			if err != nil {
				return err
			}
			return d.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory where clips are written")
	cmd.Flags().BoolVar(&deleteSource, "delete-source", false, "Delete the session video once every clip was created")

	return cmd
}
