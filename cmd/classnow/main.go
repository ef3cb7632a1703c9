// Command classnow arms weekly class reminders and delivers them when they fire.
//
// Usage:
//
//	classnow [--config FILE] [--json] <command> [flags]
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shantoshdurai/ClassNow-app/internal/app"
	"github.com/shantoshdurai/ClassNow-app/internal/cli"
)

// version is set with -ldflags at build time.
var version = "dev"

func main() {
	var cfgPath string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "classnow",
		Short:         "Weekly class reminder scheduler",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config (JSON or YAML); empty uses defaults")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	appFn := func() (*app.App, error) { return app.NewApp(cfgPath) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(appFn),
		cli.NewScheduleCmd(appFn, outputFn),
		cli.NewBootCmd(appFn, outputFn),
		cli.NewCancelCmd(appFn, outputFn),
		cli.NewFireCmd(appFn, outputFn),
		cli.NewNextCmd(appFn, outputFn),
		cli.NewArmedCmd(appFn, outputFn),
		cli.NewImportCmd(appFn, outputFn),
		cli.NewPrefsCmd(appFn, outputFn),
		cli.NewPermissionCmd(appFn, outputFn),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
