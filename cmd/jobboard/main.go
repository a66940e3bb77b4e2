package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	auth "github.com/hirelane/jobboard-auth"
	"github.com/hirelane/jobboard-auth/activitylog"
	"github.com/hirelane/jobboard-auth/config"
	"github.com/hirelane/jobboard-auth/logging"
	"github.com/hirelane/jobboard-auth/persistence"
	"github.com/hirelane/jobboard-auth/server"
	"go.uber.org/zap"
)

func main() {
	configFile := flag.String("config", "", "optional YAML config file")
	envFile := flag.String("env-file", ".env", "optional .env file")
	flag.Parse()

	if err := run(*configFile, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "jobboard: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, envFile string) error {
	cfg, err := config.Load(
		config.WithFile(configFile),
		config.WithEnvFile(envFile),
	)
	if err != nil {
		return err
	}

	lg, logCloser, err := logging.New(logging.Config{
		Level:        cfg.Log.Level,
		Dev:          cfg.IsDevelopment(),
		File:         cfg.Log.File,
		MaxAge:       cfg.Log.MaxAge,
		RotationTime: cfg.Log.RotationTime,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()
	defer lg.Sync()

	if cfg.Diagnostics.GopsAddr != "" {
		if err := agent.Listen(agent.Options{Addr: cfg.Diagnostics.GopsAddr, ShutdownCleanup: true}); err != nil {
			lg.Warn("gops agent failed to start", zap.Error(err))
		} else {
			defer agent.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := persistence.OpenAndMigrate(ctx, persistence.Options{
		DSN:             cfg.Database.DSN,
		Debug:           cfg.Database.Debug,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	sinks := []auth.ActivitySink{activitylog.NewSQLSink(db)}
	if cfg.Redis.Addr != "" {
		pool := activitylog.NewRedisPool(cfg.Redis.Addr)
		defer pool.Close()
		sinks = append(sinks, activitylog.NewRedisSink(pool,
			activitylog.WithRedisKey(cfg.Redis.ActivityKey),
			activitylog.WithRedisLimit(cfg.Redis.ActivityLimit),
		))
	}

	services, err := server.NewServices(cfg, db, lg, activitylog.NewFanout(sinks...), nil)
	if err != nil {
		return err
	}

	admin, err := server.EnsureAdmin(ctx, services, cfg.Admin)
	if err != nil {
		return err
	}
	if admin != nil {
		lg.Info("admin account ready", zap.String("id", admin.ID.String()))
	}

	app := server.New(server.OptionsFromConfig(cfg), lg, db)
	server.Mount(app, services)

	errCh := make(chan error, 1)
	go func() {
		lg.Info("http server listening", zap.String("addr", cfg.HTTP.Addr), zap.String("env", cfg.Env))
		errCh <- app.Listen(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	if err := app.ShutdownWithTimeout(cfg.HTTP.ShutdownTimeout); err != nil {
		lg.Warn("http shutdown", zap.Error(err))
	}
	return nil
}
