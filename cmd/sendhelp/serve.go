package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sendhelp/internal/api"
	"sendhelp/internal/bot"
	"sendhelp/internal/utils"
	"sendhelp/internal/worker"
)

func serveCommand() *cobra.Command {
	var noBot, noSweep bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the sweeper and the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(ctx, a, !noBot, !noSweep)
		},
	}
	cmd.Flags().BoolVar(&noBot, "no-bot", false, "do not start the Telegram bot")
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "do not run the timeout sweeper")
	return cmd
}

func serve(ctx context.Context, a *app, withBot, withSweep bool) error {
	admin, err := utils.ParseAllowlist(a.cfg.AdminAllowedCIDRs)
	if err != nil {
		return fmt.Errorf("failed to parse admin allowlist: %w", err)
	}
	if admin.Empty() {
		a.logger.Warn("admin allowlist is empty, administrative routes are unreachable")
	}

	h := api.NewHandler(a.engine, api.Options{
		Logger:     a.logger.With("component", "api"),
		Admin:      admin,
		Registerer: a.registry,
		Gatherer:   a.registry,
	})
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withSweep {
		sweeper := worker.NewSweeper(a.engine, a.logger.With("component", "sweeper"),
			a.cfg.SweepInterval, a.cfg.ProofWindow, a.cfg.ConfirmWindow)
		g.Go(func() error {
			sweeper.Run(gctx)
			return nil
		})
	}

	if withBot {
		if a.cfg.BotToken == "" {
			a.logger.Warn("TELEGRAM_BOT_TOKEN is empty, bot disabled")
		} else {
			b, err := bot.NewBot(a.cfg.BotToken, a.engine, a.logger.With("component", "bot"))
			if err != nil {
				return err
			}
			g.Go(func() error {
				return b.Start(gctx)
			})
		}
	}

	return g.Wait()
}
