package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/signalbox/internal/cache"
	"github.com/zulandar/signalbox/internal/db"
	"github.com/zulandar/signalbox/internal/gateway"
	"github.com/zulandar/signalbox/internal/identity"
	"github.com/zulandar/signalbox/internal/messaging"
	"github.com/zulandar/signalbox/internal/notify"
	"github.com/zulandar/signalbox/internal/presence"
	"github.com/zulandar/signalbox/internal/server"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		Long:  "Migrates the chat tables, then serves websocket sessions until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Signalbox config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	var store messaging.Store = messaging.NewGormStore(gormDB)
	var checks []server.HealthCheck
	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rc.Close()
		store = cache.NewStore(store, rc, cfg.Redis.TTL, logger)
		checks = append(checks, server.HealthCheck{Name: "redis", Check: rc.Ping})
		logger.Info().Dur("ttl", cfg.Redis.TTL).Msg("unread cache enabled")
	}

	notifier, err := notify.FromConfig(cfg.Notify, logger)
	if err != nil {
		return err
	}
	queue, err := notify.NewQueue(notify.QueueOpts{
		Notifier: notifier,
		Workers:  cfg.Notify.Workers,
		Size:     cfg.Notify.QueueSize,
		Timeout:  cfg.Notify.Timeout,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	queue.Start()
	defer queue.Close()

	registry := presence.NewRegistry()
	dir := identity.NewGormDirectory(gormDB)
	router, err := messaging.NewRouter(messaging.RouterOpts{
		Store:        store,
		Registry:     registry,
		Directory:    dir,
		Notifier:     queue,
		PreviewLimit: cfg.Notify.PreviewLimit,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	unread := messaging.NewUnread(store)

	gw, err := gateway.New(gateway.Opts{
		Registry:  registry,
		Directory: dir,
		Sender:    router,
		History:   messaging.NewHistory(store, dir, logger),
		Unread:    unread,
		Conn: gateway.ConnOpts{
			SendBuffer:   cfg.Presence.SendBuffer,
			WriteTimeout: cfg.Presence.WriteTimeout,
			PongWait:     cfg.Presence.PongWait,
		},
		SweepSchedule: cfg.Presence.SweepSchedule,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Opts{
		DB:             gormDB,
		Gateway:        gw,
		Auth:           identity.NewTokenAuthenticator(cfg.Auth.TokenSecret, cfg.Auth.Cookie, dir),
		Unread:         unread,
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Checks:         checks,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	go func() {
		if err := gw.RunSweep(ctx); err != nil {
			logger.Error().Err(err).Msg("presence sweep stopped")
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Signalbox running at http://localhost:%d\n", cfg.Server.Port)
	return srv.Run(ctx)
}
