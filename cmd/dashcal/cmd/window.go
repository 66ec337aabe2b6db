package cmd

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"dashcal/internal/config"
	"dashcal/internal/geometry"
	"dashcal/internal/model"
	"dashcal/internal/refresh"
)

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "Print the fetch window and refresh schedule of a view",
	RunE:  runWindow,
}

func init() {
	windowCmd.Flags().String("view", "", "View: month, week or agenda (default: card view_type)")
	windowCmd.Flags().String("date", "", "Focus date YYYY-MM-DD (default: today)")
	rootCmd.AddCommand(windowCmd)
}

type windowOutput struct {
	View     geometry.ViewType `json:"view"`
	Focus    time.Time         `json:"focus"`
	Window   model.Window      `json:"window"`
	Days     int               `json:"days"`
	Schedule refresh.Schedule  `json:"schedule"`
	Cron     string            `json:"refresh_cron,omitempty"`
}

func runWindow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc := location(cfg)
	card := config.Resolve(cfg.Card)

	view := card.View
	if v, _ := cmd.Flags().GetString("view"); v != "" {
		view = geometry.ViewType(v)
		if !view.Valid() {
			return errors.New("--view must be month, week or agenda")
		}
	}
	dateFlag, _ := cmd.Flags().GetString("date")
	focus, err := parseDate(dateFlag, loc)
	if err != nil {
		return err
	}

	now := time.Now().In(loc)
	w, err := geometry.ComputeRange(view, focus, card.Options(view, now))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(windowOutput{
		View:     view,
		Focus:    focus,
		Window:   w,
		Days:     len(geometry.Days(w)),
		Schedule: refresh.Describe(card.RefreshMinutes, now),
		Cron:     card.RefreshCron,
	})
}
