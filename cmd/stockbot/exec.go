package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stockbot/internal/app"
	"stockbot/internal/transport/console"
	logx "stockbot/pkg/logx"
)

func newExecCmd(f *rootFlags) *cobra.Command {
	var (
		noColor bool
		wait    time.Duration
		session string
	)
	cmd := &cobra.Command{
		Use:   "exec <words...>",
		Short: "Run one command line against a local dispatcher and print its lines",
		Example: `  stockbot exec quote get short avanza ERIC-B
  stockbot exec scrape stocks sek nordic large cap`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []console.Option{console.WithID(session)}
			if noColor {
				opts = append(opts, console.WithPalette(console.NoColor()))
			}
			out := console.New(strings.NewReader(""), cmd.OutOrStdout(), logx.Nop(), opts...)

			a, err := app.New(f.config, app.Offline(), app.WithLogLevel("warn"), app.WithAdapter(out))
			if err != nil {
				return err
			}
			defer func() { _ = a.Stop(context.Background(), app.StopAppStop) }()

			ctx := cmd.Context()
			for _, line := range a.Exec(ctx, out.Target(), strings.Join(args, " ")) {
				if err := out.Send(ctx, out.Target(), line); err != nil {
					return err
				}
			}

			// background tasks report through the console as they finish
			wctx, cancel := context.WithTimeout(ctx, wait)
			defer cancel()
			if err := a.Tasks().Wait(wctx); err != nil {
				return fmt.Errorf("waiting for tasks: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.Flags().DurationVar(&wait, "wait", time.Minute, "how long to wait for background tasks")
	cmd.Flags().StringVar(&session, "session", console.DefaultID, "session id to run the command in")
	return cmd
}

func newHelpTreeCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "help-tree",
		Short: "Print every command path with its arguments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(f.config, app.Offline(), app.WithLogLevel("error"))
			if err != nil {
				return err
			}
			defer func() { _ = a.Stop(context.Background(), app.StopAppStop) }()
			for _, line := range a.Dispatcher().Help() {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}
