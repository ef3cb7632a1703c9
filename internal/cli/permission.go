package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shantoshdurai/ClassNow-app/internal/app"
)

func NewPermissionCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permission",
		Short: "Inspect or request exact timer permission",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show whether exact timers are available",
			RunE: func(cmd *cobra.Command, args []string) error {
				out := outputFn()
				return withApp(appFn, func(a *app.App) error {
					exact := a.Engine().CanScheduleExact(cmd.Context())
					out.Print(
						[]string{"BACKEND", "EXACT"},
						[][]string{{a.BackendName(), strconv.FormatBool(exact)}},
						map[string]any{"backend": a.BackendName(), "exact": exact},
					)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "request",
			Short: "Ask the backend for exact timer permission",
			RunE: func(cmd *cobra.Command, args []string) error {
				out := outputFn()
				return withApp(appFn, func(a *app.App) error {
					if err := a.Engine().RequestExactPermission(cmd.Context()); err != nil {
						return err
					}
					if a.Engine().CanScheduleExact(cmd.Context()) {
						out.Success("Exact timers available")
					} else {
						out.Success("Permission requested; grant it, then run `classnow schedule`")
					}
					return nil
				})
			},
		},
	)

	return cmd
}
