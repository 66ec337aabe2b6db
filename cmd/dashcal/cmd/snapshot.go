package cmd

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"dashcal/internal/geometry"
	appLog "dashcal/internal/log"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Fetch once and print the laid-out view as JSON",
	Long: `Fetch every configured calendar once, lay out the requested view and
print it. Calendars that fail are listed in the "failed" field; the command
only fails when every calendar does.`,
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().String("view", "", "View to lay out: month, week or agenda (default: card view_type)")
	snapshotCmd.Flags().String("date", "", "Focus date YYYY-MM-DD (default: today)")
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc := location(cfg)

	dateFlag, _ := cmd.Flags().GetString("date")
	focus, err := parseDate(dateFlag, loc)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	coord := newOneShot(cfg)
	if v, _ := cmd.Flags().GetString("view"); v != "" {
		view := geometry.ViewType(v)
		if !view.Valid() {
			return errors.New("--view must be month, week or agenda")
		}
		if err := coord.SetView(ctx, view); err != nil {
			appLog.Warn("fetch for view failed", "err", err)
		}
	}
	// The first move fetches the focused window.
	if err := coord.SetFocus(ctx, focus); err != nil {
		appLog.Warn("fetch failed, printing layout without events", "err", err)
	}

	snap, err := coord.Snapshot(time.Now())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
