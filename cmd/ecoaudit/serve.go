package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/ecoaudit/internal/api"
	"github.com/dgnsrekt/ecoaudit/internal/config"
	"github.com/dgnsrekt/ecoaudit/internal/netutil"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the audit HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := root.cfg

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if cfg.ProfilePath != "" {
				go func() {
					if err := config.Watch(ctx, cfg.ProfilePath, a.profiles.Store); err != nil {
						slog.Error("Profile watcher stopped", "path", cfg.ProfilePath, "error", err)
					}
				}()
			}

			ln, err := netutil.Listen(cfg.BindAddr, cfg.BindFallback)
			if err != nil {
				return err
			}

			// Audits are synchronous, so there is no write timeout.
			srv := &http.Server{
				Handler:           api.NewServer(a.svc),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				addr := ln.Addr().String()
				slog.Info("ecoaudit listening", "addr", addr, "docs", "http://"+addr+"/docs")
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("ecoaudit shutdown failed", "error", err)
				return err
			}
			slog.Info("ecoaudit stopped")
			return nil
		},
	}
}
