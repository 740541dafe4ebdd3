package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warmpath/backend/internal/api"
	"github.com/warmpath/backend/internal/auth"
	"github.com/warmpath/backend/internal/cache/redis"
	"github.com/warmpath/backend/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		deps := api.Deps{
			Config: cfg,
			Store:  store,
			Mailer: auth.LogMailer{},
		}

		if cfg.Redis.Enabled {
			cache, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL())
			if err != nil {
				return eris.Wrap(err, "connect redis")
			}
			defer cache.Close() //nolint:errcheck
			deps.Cache = cache
		} else {
			logger.Info("query cache disabled")
		}

		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		deps.Registry = registry

		srv := api.NewServer(deps)
		defer srv.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, port)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("starting server", zap.String("addr", addr))
			if err := srv.App.Listen(addr); err != nil {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.App.ShutdownWithContext(shutdownCtx)
		})

		if err := g.Wait(); err != nil {
			return err
		}
		logger.Info("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
