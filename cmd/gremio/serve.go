package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/gremio/internal/config"
	"github.com/hurttlocker/gremio/internal/mcp"
)

var (
	metricsAddr string
	noWatch     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the gremio tools over MCP on stdin/stdout",
	Long: `Starts a Model Context Protocol server on stdin/stdout exposing list,
investigate, refresh, analyze-link, bulk-update and delete tools.

With --metrics-addr the batch pipeline metrics are served on /metrics.
Changes to the config file are picked up while running; the bulk update
cooldown applies immediately, other settings on restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")
	serveCmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not watch the config file")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	log := appLogger()
	srv := mcp.NewServer(mcp.ServerConfig{Ingester: a.in, Version: version, Logger: log})

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return mcp.ServeStdio(ctx, srv)
	})

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		hs := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info("serving metrics", zap.String("addr", metricsAddr))
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	if !noWatch {
		g.Go(func() error {
			err := config.Watch(ctx, resolveOptions(), config.DefaultWatchDebounce, log, a.onConfigChange)
			if err != nil {
				// A missing config directory is not fatal for serving.
				log.Warn("config watch disabled", zap.Error(err))
			}
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// onConfigChange applies a re-resolved local config to the running app.
func (a *app) onConfigChange(cfg config.ResolvedConfig, err error) {
	log := appLogger()
	if err != nil {
		log.Warn("config reload failed, keeping previous settings", zap.Error(err))
		return
	}
	if d, err := cfg.Cooldown(); err == nil {
		if prev, _ := a.cfg.Cooldown(); prev != d {
			a.pipeline.SetCooldown(d)
			log.Info("bulk update cooldown changed", zap.Duration("from", prev), zap.Duration("to", d))
		}
	}
	if cfg.Store != a.cfg.Store || cfg.DBPath != a.cfg.DBPath || cfg.LLMProvider != a.cfg.LLMProvider {
		log.Warn("store or model settings changed; restart serve to apply them")
	}
	a.cfg.BatchCooldown = cfg.BatchCooldown
}
