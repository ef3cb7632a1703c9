package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shantoshdurai/ClassNow-app/internal/app"
	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
	"github.com/shantoshdurai/ClassNow-app/internal/timer"
	"github.com/shantoshdurai/ClassNow-app/internal/weekly"
)

// upcoming is one row of `classnow next`.
type upcoming struct {
	EventID  string      `json:"event_id,omitempty"`
	Title    string      `json:"title"`
	Location string      `json:"location,omitempty"`
	Day      string      `json:"day_of_week"`
	Start    string      `json:"start_time"`
	Lead     int         `json:"lead_time_minutes"`
	Selected bool        `json:"selected"`
	Triggers []time.Time `json:"triggers"`
}

// NewNextCmd previews the next trigger instants of every schedulable event.
func NewNextCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show upcoming reminder times",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return errors.New("--count must be >= 1")
			}
			out := outputFn()
			return withApp(appFn, func(a *app.App) error {
				ctx := cmd.Context()
				prefs, err := a.Events().LoadPreferences(ctx)
				if err != nil {
					return err
				}
				events, err := a.Events().LoadEvents(ctx)
				if err != nil {
					return err
				}

				now := time.Now().In(a.Engine().Location())
				var items []upcoming
				for _, ev := range events {
					if !ev.Schedulable() {
						continue
					}
					lead := ev.LeadTime(prefs.DefaultLeadTimeMinutes)
					items = append(items, upcoming{
						EventID:  ev.ID,
						Title:    ev.Title,
						Location: ev.Location,
						Day:      ev.Day.String(),
						Start:    ev.Start.String(),
						Lead:     lead,
						Selected: prefs.Enabled && prefs.Selects(ev.Title),
						Triggers: weekly.Upcoming(ev.Day, ev.Start, lead, now, count),
					})
				}
				sort.SliceStable(items, func(i, j int) bool {
					return items[i].Triggers[0].Before(items[j].Triggers[0])
				})

				rows := make([][]string, len(items))
				for i, it := range items {
					at := make([]string, len(it.Triggers))
					for k, t := range it.Triggers {
						at[k] = t.Format("Mon 2006-01-02 15:04 MST")
					}
					rows[i] = []string{
						it.Title, it.Location, it.Day, it.Start, strconv.Itoa(it.Lead),
						strconv.FormatBool(it.Selected), strings.Join(at, ", "),
					}
				}
				out.Print([]string{"TITLE", "ROOM", "DAY", "START", "LEAD", "SELECTED", "NEXT"}, rows, items)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&count, "count", 1, "Number of upcoming triggers per event")

	return cmd
}

// NewArmedCmd lists the timers currently held by the backend.
func NewArmedCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "armed",
		Short: "List armed reminder timers",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			return withApp(appFn, func(a *app.App) error {
				l, ok := a.Backend().(timer.Lister)
				if !ok {
					return fmt.Errorf("timer backend %s cannot list timers", a.BackendName())
				}
				warnInProcess(out, a)
				armed, err := l.Armed(cmd.Context())
				if err != nil {
					return err
				}
				if armed == nil {
					armed = []reminder.ArmedTimer{}
				}
				rows := make([][]string, len(armed))
				for i, t := range armed {
					rows[i] = []string{
						fmt.Sprintf("%08x", uint32(t.CorrelationID)),
						t.Payload.Title,
						t.TriggerAt.In(a.Engine().Location()).Format("Mon 2006-01-02 15:04 MST"),
						string(t.Precision),
					}
				}
				out.Print([]string{"ID", "TITLE", "TRIGGER", "PRECISION"}, rows, armed)
				return nil
			})
		},
	}
}

// NewImportCmd replaces the cached schedule with a JSON array from FILE or stdin.
func NewImportCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var schedule bool

	cmd := &cobra.Command{
		Use:   "import [FILE|-]",
		Short: "Import the weekly schedule (JSON array)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if len(args) == 0 || args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			out := outputFn()
			return withApp(appFn, func(a *app.App) error {
				ctx := cmd.Context()
				if err := a.Events().SaveEvents(ctx, raw); err != nil {
					return err
				}
				events, err := a.Events().LoadEvents(ctx)
				if err != nil {
					return err
				}
				bad := 0
				for _, ev := range events {
					if ev.Invalid != nil {
						bad++
						out.Warn(ev.Invalid.Error())
					}
				}
				out.Success(fmt.Sprintf("Imported %d event(s), %d malformed", len(events), bad))

				if !schedule {
					return nil
				}
				warnInProcess(out, a)
				rep, err := a.RunPass(ctx)
				if err != nil {
					return err
				}
				printReport(out, rep)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&schedule, "schedule", false, "Run a scheduling pass after the import")

	return cmd
}
