package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dashcal/internal/clock"
	"dashcal/internal/config"
	"dashcal/internal/coordinator"
	appLog "dashcal/internal/log"
	"dashcal/internal/metrics"
	"dashcal/internal/source"
	"dashcal/internal/subscribe"
	"dashcal/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator and the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	appLog.Info("dashcal starting", "version", Version)

	cfg, err := loadConfig()
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", cfgFile)
		return err
	}
	loc := location(cfg)
	card := config.Resolve(cfg.Card)

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", loc.String(),
		"view", card.View,
		"calendars", len(card.Calendars),
		"refresh_minutes", card.RefreshMinutes,
		"refresh_cron", card.RefreshCron,
		"weather", card.Weather.Enabled,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(true)
	opts := coordinator.Options{
		Fetcher:  source.FromConfig(cfg, loc),
		Clock:    clock.Real{},
		Location: loc,
		Metrics:  m,
	}
	if cfg.Redis != nil && cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		opts.Subscriber = subscribe.NewRedisSubscriber(client)
	} else if card.Weather.Enabled {
		appLog.Warn("weather enabled without redis; forecasts disabled")
	}

	coord := coordinator.New(card, opts)
	h, err := coord.Start(ctx)
	if err != nil {
		return err
	}
	defer coord.Stop(h)

	viper.SetConfigFile(cfgFile)
	viper.OnConfigChange(func(e fsnotify.Event) {
		appLog.Info("config file changed", "path", e.Name, "op", e.Op.String())
		if err := reloadCard(ctx, coord); err != nil {
			appLog.Error("config reload failed", err, "config_path", cfgFile)
		}
	})
	viper.WatchConfig()

	srv := web.NewServer(cfg, coord, m, opts.Clock)
	srv.ConfigPath = cfgFile
	if err := srv.Run(ctx); err != nil {
		appLog.Error("http server stopped", err)
		return err
	}
	appLog.Info("dashcal exiting")
	return nil
}

// reloadCard re-reads the config file and hands its card to coord. Server
// settings (listen, auth, redis) only take effect on restart.
func reloadCard(ctx context.Context, coord *coordinator.Coordinator) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return coord.SetConfig(ctx, config.Resolve(cfg.Card))
}

// newOneShot builds a coordinator that is refreshed by hand, for the
// commands that print a single result.
func newOneShot(cfg *config.Config) *coordinator.Coordinator {
	loc := location(cfg)
	return coordinator.New(config.Resolve(cfg.Card), coordinator.Options{
		Fetcher:  source.FromConfig(cfg, loc),
		Location: loc,
	})
}
