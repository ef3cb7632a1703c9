package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shantoshdurai/ClassNow-app/internal/app"
	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
)

type prefsView struct {
	Enabled             bool     `json:"enabled"`
	AllSubjectsSelected bool     `json:"all_subjects_selected"`
	SelectedSubjects    []string `json:"selected_subjects"`
	LeadTimeMinutes     int      `json:"lead_time_minutes"`
}

func printPrefs(out *Output, p reminder.Preferences) {
	v := prefsView{
		Enabled:             p.Enabled,
		AllSubjectsSelected: p.AllSubjectsSelected,
		SelectedSubjects:    p.SelectedSubjects,
		LeadTimeMinutes:     p.DefaultLeadTimeMinutes,
	}
	if v.SelectedSubjects == nil {
		v.SelectedSubjects = []string{}
	}
	out.Print(
		[]string{"ENABLED", "ALL_SUBJECTS", "SUBJECTS", "LEAD"},
		[][]string{{
			strconv.FormatBool(v.Enabled), strconv.FormatBool(v.AllSubjectsSelected),
			strings.Join(v.SelectedSubjects, ","), strconv.Itoa(v.LeadTimeMinutes),
		}},
		v,
	)
}

func NewPrefsCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change notification preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			return withApp(appFn, func(a *app.App) error {
				p, err := a.Events().LoadPreferences(cmd.Context())
				if err != nil {
					return err
				}
				printPrefs(out, p)
				return nil
			})
		},
	}

	cmd.AddCommand(newPrefsSetCmd(appFn, outputFn))

	return cmd
}

func newPrefsSetCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var (
		enabled     bool
		allSubjects bool
		subjects    []string
		leadTime    int
		schedule    bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change notification preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("lead-time") && leadTime < 0 {
				return errors.New("--lead-time must be >= 0")
			}
			out := outputFn()
			return withApp(appFn, func(a *app.App) error {
				ctx := cmd.Context()
				p, err := a.Events().LoadPreferences(ctx)
				if err != nil {
					return err
				}
				if flags.Changed("enabled") {
					p.Enabled = enabled
				}
				if flags.Changed("subjects") {
					p.SelectedSubjects = subjects
					p.AllSubjectsSelected = false
				}
				if flags.Changed("all-subjects") {
					p.AllSubjectsSelected = allSubjects
				}
				if flags.Changed("lead-time") {
					p.DefaultLeadTimeMinutes = leadTime
				}
				if err := a.Events().SavePreferences(ctx, p); err != nil {
					return err
				}
				printPrefs(out, p)

				if !schedule {
					return nil
				}
				warnInProcess(out, a)
				rep, err := a.RunPass(ctx)
				if err != nil {
					return fmt.Errorf("preferences saved, pass failed: %w", err)
				}
				printReport(out, rep)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.BoolVar(&enabled, "enabled", true, "Enable reminders")
	f.BoolVar(&allSubjects, "all-subjects", true, "Remind for every subject")
	f.StringSliceVar(&subjects, "subjects", nil, "Only remind for these subjects (clears --all-subjects)")
	f.IntVar(&leadTime, "lead-time", 15, "Default minutes before class start")
	f.BoolVar(&schedule, "schedule", false, "Run a scheduling pass after saving")

	return cmd
}
