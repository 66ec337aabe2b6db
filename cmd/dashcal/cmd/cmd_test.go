package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashcal/internal/clock"
	"dashcal/internal/config"
	"dashcal/internal/coordinator"
	"dashcal/internal/events"
	"dashcal/internal/geometry"
	"dashcal/internal/model"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestWindowCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "--config", path, "window", "--view", "agenda", "--date", "2025-03-12")
	require.NoError(t, err)

	var got windowOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, geometry.ViewAgenda, got.View)
	assert.Equal(t, 14, got.Days)
	assert.True(t, got.Window.Start.Equal(time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC)), got.Window.Start)
	assert.Equal(t, 15, got.Schedule.IntervalMinutes)

	_, err = os.Stat(path)
	assert.NoError(t, err, "first run writes the default config")
}

func TestWindowCommandRejectsUnknownView(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_, err := run(t, "--config", path, "window", "--view", "year", "--date", "2025-03-12")
	assert.Error(t, err)
}

func TestConfigInitRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := run(t, "--config", path, "config", "init")
	require.NoError(t, err)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)

	_, err = run(t, "--config", path, "config", "init")
	assert.Error(t, err)
}

func TestReloadCardReschedulesRefresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.DefaultConfig()
	cfg.Card.Calendars = []model.Calendar{{Entity: "calendar.a"}}
	require.NoError(t, cfg.Save(path))

	prev := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prev })

	// Monday 2025-03-10 10:07 UTC.
	clk := clock.NewManual(time.Date(2025, time.March, 10, 10, 7, 0, 0, time.UTC))
	noEvents := events.FetcherFunc(func(context.Context, string, time.Time, time.Time) ([]model.RawEntry, error) {
		return nil, nil
	})
	coord := coordinator.New(config.Resolve(cfg.Card), coordinator.Options{Fetcher: noEvents, Clock: clk, Location: time.UTC})
	h, err := coord.Start(context.Background())
	require.NoError(t, err)
	t.Cleanup(h.Stop)

	st, err := coord.State()
	require.NoError(t, err)
	assert.True(t, st.NextFire.Equal(time.Date(2025, time.March, 10, 10, 15, 0, 0, time.UTC)), st.NextFire)

	cfg.Card.EventRefreshInterval = 10
	require.NoError(t, cfg.Save(path))
	require.NoError(t, reloadCard(context.Background(), coord))

	st, err = coord.State()
	require.NoError(t, err)
	assert.True(t, st.NextFire.Equal(time.Date(2025, time.March, 10, 10, 10, 0, 0, time.UTC)), st.NextFire)
}
