package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"sendhelp/internal/config"
	"sendhelp/internal/database"
	"sendhelp/internal/engine"
	"sendhelp/internal/lock"
)

const programName = "sendhelp"

var globalFlags = struct {
	debug bool
}{}

func newLogger(cfg *config.Config) *slog.Logger {
	level := cfg.SlogLevel()
	if globalFlags.debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: globalFlags.debug}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler).With("component", programName)
	slog.SetDefault(logger)
	return logger
}

// app is what every subcommand needs: config, logger, store and engine.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *gorm.DB
	registry *prometheus.Registry
	engine   *engine.Engine
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.LoadConfig()
	a := &app{cfg: cfg, logger: newLogger(cfg)}

	db, err := database.Connect(cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.db = db
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, func() { _ = sqlDB.Close() })
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisEnabled {
		rdb, err := database.ConnectRedis(ctx, cfg, a.logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		locker = lock.NewRedis(rdb, a.logger)
	} else {
		a.logger.Warn("redis disabled, assignment locks are local to this process")
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.engine = engine.New(db, engine.Options{
		Locker:            locker,
		Logger:            a.logger.With("component", "engine"),
		Registerer:        a.registry,
		SystemMemberIDs:   cfg.SystemMemberIDs,
		MaxAssignAttempts: cfg.MaxAssignAttempts,
		LockTTL:           cfg.AssignLockTTL,
	})
	return a, nil
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			logger := newLogger(cfg)
			db, err := database.Connect(cfg, logger)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			logger.Info("database schema is up to date", "driver", cfg.DBDriver)
			return nil
		},
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Send help / receive help payment engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(sweepCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
