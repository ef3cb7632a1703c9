package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shantoshdurai/ClassNow-app/internal/app"
	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
	"github.com/shantoshdurai/ClassNow-app/internal/timer"
)

// AppFunc opens the app for one command.
type AppFunc func() (*app.App, error)

// withApp opens the app, runs fn and closes the app.
func withApp(appFn AppFunc, fn func(a *app.App) error) error {
	a, err := appFn()
	if err != nil {
		return err
	}
	err = fn(a)
	if cerr := a.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func printReport(out *Output, rep reminder.Report) {
	out.Print(
		[]string{"ARMED", "DEGRADED", "SKIPPED", "FILTERED", "FAILED", "CANCELLED", "EXACT", "DISABLED"},
		[][]string{{
			strconv.Itoa(rep.Armed), strconv.Itoa(rep.Degraded), strconv.Itoa(rep.Skipped),
			strconv.Itoa(rep.Filtered), strconv.Itoa(rep.Failed), strconv.Itoa(rep.Cancelled),
			strconv.FormatBool(rep.Exact), strconv.FormatBool(rep.Disabled),
		}},
		rep,
	)
}

func warnInProcess(out *Output, a *app.App) {
	if a.InProcess() {
		out.Warn("timer.backend is memory: timers end with this command; use `classnow run` or the systemd backend")
	}
}

// NewRunCmd runs the host until SIGINT/SIGTERM.
func NewRunCmd(appFn AppFunc) *cobra.Command {
	var stopTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reminder host until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFn()
			if err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			if err := a.Start(cmd.Context()); err != nil {
				_ = a.Close()
				return fmt.Errorf("start: %w", err)
			}

			reason := app.StopAppStop
			select {
			case sig := <-sigCh:
				reason = app.StopSIGINT
				if sig == syscall.SIGTERM {
					reason = app.StopSIGTERM
				}
			case <-a.Done():
				reason = app.StopFatalError
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			return a.Stop(ctx, reason)
		},
	}

	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 10*time.Second, "Upper bound for a graceful stop")

	return cmd
}

func NewScheduleCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run one full scheduling pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			return withApp(appFn, func(a *app.App) error {
				warnInProcess(out, a)
				rep, err := a.RunPass(cmd.Context())
				if err != nil {
					return err
				}
				printReport(out, rep)
				return nil
			})
		},
	}
}

func NewBootCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "boot",
		Short: "Rebuild all timers after a restart",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			return withApp(appFn, func(a *app.App) error {
				warnInProcess(out, a)
				rep, err := a.Engine().OnBootCompleted(cmd.Context())
				if err != nil {
					return err
				}
				printReport(out, rep)
				return nil
			})
		},
	}
}

func NewCancelCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel every reminder timer",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			return withApp(appFn, func(a *app.App) error {
				n, err := a.Engine().CancelAll(cmd.Context())
				if err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Cancelled %d timer(s)", n))
				return nil
			})
		},
	}
}

// NewFireCmd is run by the systemd service unit when a reminder timer elapses.
func NewFireCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var payload string

	cmd := &cobra.Command{
		Use:   "fire",
		Short: "Deliver a fired reminder and re-arm it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if payload == "" {
				return errors.New("--payload is required")
			}
			p, err := timer.DecodePayload(payload)
			if err != nil {
				return err
			}
			out := outputFn()
			return withApp(appFn, func(a *app.App) error {
				if err := a.HandleFire(cmd.Context(), p); err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Delivered %q", p.Title))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&payload, "payload", "", "Encoded timer payload")

	return cmd
}
