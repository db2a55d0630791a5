package main

import (
	"github.com/spf13/cobra"

	"sendhelp/internal/worker"
)

func sweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one timeout sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			sweeper := worker.NewSweeper(a.engine, a.logger.With("component", "sweeper"),
				a.cfg.SweepInterval, a.cfg.ProofWindow, a.cfg.ConfirmWindow)
			res := sweeper.SweepOnce(cmd.Context())
			a.logger.Info("sweep complete",
				"timed_out", res.TimedOut, "disputed", res.Disputed, "failed", res.Failed)
			return nil
		},
	}
}
