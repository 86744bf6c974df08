package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/killclip/cmd/capture"
	"github.com/tphakala/killclip/cmd/handoff"
	"github.com/tphakala/killclip/cmd/plan"
	"github.com/tphakala/killclip/cmd/presets"
	"github.com/tphakala/killclip/cmd/process"
	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/logger"
)

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates the killclip command tree. Settings are loaded into settings
// before any subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var (
		configFile string
		central    *logger.CentralLogger
		stopHangup = func() {}
	)

	rootCmd := &cobra.Command{
		Use:           "killclip",
		Short:         "Detect kills in gameplay recordings and cut highlight clips",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config.yaml (default: search standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().String("preset", "", "Detection preset: balanced, sensitive or conservative")
	rootCmd.PersistentFlags().String("backend", "", "Handoff backend: file, sqlite, mysql or memory")
	rootCmd.PersistentFlags().String("handoff-path", "", "Handoff directory or SQLite file")

	bindings := map[string]string{
		"debug":            "debug",
		"detection.preset": "preset",
		"handoff.backend":  "backend",
		"handoff.path":     "handoff-path",
	}

	rootCmd.AddCommand(
		capture.Command(settings),
		process.Command(settings),
		plan.Command(settings),
		presets.Command(settings),
		handoff.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		for key, flag := range bindings {
			f := cmd.Flags().Lookup(flag)
			if f == nil || !f.Changed {
				continue
			}
			if err := viper.BindPFlag(key, f); err != nil {
				return fmt.Errorf("error binding flag %s: %w", flag, err)
			}
		}

		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded

		if settings.Debug {
			settings.Main.Log.DefaultLevel = "debug"
			if settings.Main.Log.Console != nil {
				settings.Main.Log.Console.Level = "debug"
			}
		}
		if central, err = logger.NewCentralLogger(&settings.Main.Log); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logger.SetGlobal(central)
		stopHangup = watchHangup(cmd.Context(), central)

		return initSentry(settings)
	}

	rootCmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		if settings.Sentry.Enabled {
			sentry.Flush(sentryFlushTimeout)
		}
		stopHangup()
		if central != nil {
			return central.Close()
		}
		return nil
	}

	return rootCmd
}

// watchHangup rotates the logs on SIGHUP. The returned func stops watching and
// returns once no rotation is running.
func watchHangup(parent context.Context, rotator interface{ Rotate() error }) (stop func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := rotator.Rotate(); err != nil {
					logger.Global().Module("main").Warn("log rotation failed", logger.Error(err))
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// initSentry enables error telemetry when configured.
func initSentry(settings *conf.Settings) error {
	if !settings.Sentry.Enabled {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		ServerName:       settings.Main.Name,
		AttachStacktrace: true,
		SendDefaultPII:   false,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	logger.Global().Module("telemetry").Info("error telemetry enabled")
	return nil
}
