package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"codeberg.org/mutker/hwcontrol/internal/computer"
	"codeberg.org/mutker/hwcontrol/internal/config"
	"codeberg.org/mutker/hwcontrol/internal/daemon"
	"codeberg.org/mutker/hwcontrol/internal/logger"
	"codeberg.org/mutker/hwcontrol/internal/pid"
	"codeberg.org/mutker/hwcontrol/internal/ring0"
)

// version is set during build via ldflags
var version = "dev"

func main() {
	computer.Version = version

	rootCmd := &cobra.Command{
		Use:               "hwcontrol",
		Short:             "Hardware sensor monitor and fan/voltage control daemon",
		Version:           version,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newRunCmd(), newReportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		return nil, err
	}
	logger.Debug().Msg("Config loaded")

	return cfg, nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Monitor sensors and drive controls until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			pidFile := pid.New("")
			if err := pidFile.Write(); err != nil {
				logger.Error().Err(err).Msg("Failed to write PID file")
				return err
			}
			defer func() {
				if err := pidFile.Remove(); err != nil {
					logger.Warn().Err(err).Msg("Failed to remove PID file")
				}
			}()

			d := daemon.New(cfg, computer.New(ring0.New()))
			if err := d.Run(cmd.Context()); err != nil {
				logger.Error().Err(err).Msg("Daemon stopped with error")
				return err
			}

			return nil
		},
	}
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print a diagnostic report of the detected hardware",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c := computer.New(ring0.New())
			for cat, enabled := range daemon.Categories(cfg.Hardware) {
				c.SetEnabled(cat, enabled)
			}
			c.Open()
			defer c.Close()

			return printReport(ctx, c)
		},
	}
}

func printReport(ctx context.Context, c *computer.Computer) error {
	for _, h := range c.Hardware() {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.Update()
	}
	_, err := fmt.Fprint(os.Stdout, c.Report())

	return err
}
