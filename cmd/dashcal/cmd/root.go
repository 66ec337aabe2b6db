package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dashcal/internal/config"
	appLog "dashcal/internal/log"
)

// Version is injected at build time via ldflags.
var Version = "0.1.0-dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dashcal",
	Short: "Calendar layout and refresh engine for dashboard calendar cards",
	Long: `dashcal fetches events for a dashboard calendar card, lays them out
(month, week and agenda views) and keeps them fresh on wall-clock aligned
refreshes. The computed geometry is served as JSON for a thin renderer.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "/etc/dashcal/config.yaml", "Path to config file")
	rootCmd.PersistentFlags().String("listen", "", "HTTP listen address (overrides config if set)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config if set)")
	rootCmd.PersistentFlags().String("timezone", "", "IANA timezone for calendar math (overrides config if set)")

	_ = viper.BindPFlag("listen", rootCmd.PersistentFlags().Lookup("listen"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("timezone", rootCmd.PersistentFlags().Lookup("timezone"))
}

func initConfig() {
	// DASHCAL_LISTEN, DASHCAL_LOG_LEVEL, DASHCAL_TIMEZONE, DASHCAL_CONFIG
	viper.SetEnvPrefix("DASHCAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if env := viper.GetString("config"); env != "" && !rootCmd.PersistentFlags().Changed("config") {
		cfgFile = env
	}
}

// loadConfig reads the config file and applies flag and environment
// overrides on top of it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgFile, err)
	}

	if v := viper.GetString("listen"); v != "" {
		cfg.Listen = v
	}
	if v := viper.GetString("log_level"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := viper.GetString("timezone"); v != "" {
		cfg.Timezone = v
	}
	cfg.Normalize()

	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// location returns cfg's zone. Validate has already checked it loads.
func location(cfg *config.Config) *time.Location {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// parseDate reads a --date flag in loc; empty means now.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Now().In(loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("--date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}
