package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stockbot/internal/app"
	logx "stockbot/pkg/logx"
)

func newRunCmd(f *rootFlags) *cobra.Command {
	var stopTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bot with the configured transports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(f.config)
			if err != nil {
				return err
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)

			if err := a.Start(cmd.Context()); err != nil {
				_ = a.Stop(context.Background(), app.StopFatalError)
				return err
			}

			reason := app.StopAppStop
			select {
			case s := <-sigs:
				reason = app.StopSIGINT
				if s == syscall.SIGTERM {
					reason = app.StopSIGTERM
				}
			case <-a.Done():
				if a.Err() != nil {
					reason = app.StopFatalError
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if err := a.Stop(ctx, reason); err != nil {
				a.Logger().Warn("stop finished with errors", logx.Err(err))
			}
			return a.Err()
		},
	}
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 10*time.Second, "upper bound for graceful shutdown")
	return cmd
}
