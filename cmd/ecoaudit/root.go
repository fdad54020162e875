package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/ecoaudit/internal/config"
	"github.com/dgnsrekt/ecoaudit/internal/telemetry"
)

// errScoreBelow marks a run that finished but scored under --fail-under.
var errScoreBelow = errors.New("score below threshold")

type rootOptions struct {
	cfg      *config.Config
	device   string
	location string
	profile  string
	debug    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "ecoaudit",
		Short:         "Audit web pages for sustainability",
		Long:          "ecoaudit loads a page in Chromium, records its network, rendering and console activity, and scores it against a sustainability profile.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if opts.debug {
				cfg.LogLevel = "debug"
			}
			if opts.device != "" {
				cfg.Device = opts.device
			}
			if opts.location != "" {
				cfg.Location = opts.location
			}
			if opts.profile != "" {
				cfg.ProfilePath = opts.profile
			}
			if _, ok := config.Devices[cfg.Device]; !ok {
				return fmt.Errorf("unknown device preset %q", cfg.Device)
			}
			if _, ok := config.Locations[cfg.Location]; !ok {
				return fmt.Errorf("unknown location preset %q", cfg.Location)
			}
			if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
				return fmt.Errorf("logger setup failed: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.device, "device", "", "Device preset (desktop, desktop-4-3, laptop)")
	cmd.PersistentFlags().StringVar(&opts.location, "location", "", "Location preset (seattle, barcelona, bangladesh, sydney)")
	cmd.PersistentFlags().StringVar(&opts.profile, "profile", "", "Path to a YAML scoring profile")

	cmd.AddCommand(newRunCmd(opts), newServeCmd(opts), newProbeCmd(opts))
	return cmd
}

func exitCode(err error) int {
	if errors.Is(err, errScoreBelow) {
		return 2
	}
	_, _ = fmt.Fprintln(os.Stderr, "error:", err)
	return 1
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogger logs to stderr through tint and, when filename is set, to a
// rotated file. Both sinks carry trace and span ids.
func setupLogger(level, filename string) error {
	slogLevel := parseLevel(level)

	console := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slogLevel,
		TimeFormat: time.Kitchen,
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	})
	handlers := []slog.Handler{console}

	if filename != "" {
		if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
			return err
		}
		logWriter := &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    25,
			MaxBackups: 10,
			MaxAge:     14,
			Compress:   true,
		}
		handlers = append(handlers, slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: slogLevel}))
	}

	slog.SetDefault(slog.New(telemetry.NewTraceHandler(telemetry.NewFanoutHandler(handlers...))))
	return nil
}
