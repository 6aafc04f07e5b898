package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/xaenox/herald-bot/internal/bot"
	"github.com/xaenox/herald-bot/internal/chat"
	"github.com/xaenox/herald-bot/internal/command"
	"github.com/xaenox/herald-bot/internal/directory"
	"github.com/xaenox/herald-bot/internal/gateway"
	"github.com/xaenox/herald-bot/internal/scheduler"
	"github.com/xaenox/herald-bot/internal/state"
	"github.com/xaenox/herald-bot/internal/storage"
	"github.com/xaenox/herald-bot/internal/weather"
	"github.com/xaenox/herald-bot/pkg/config"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath string
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:          "herald-bot",
		Short:        "Telegram bot with weather, AI chat, leaderboard and scheduled announcements",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, debug)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable development logging")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, debug bool) error {
	// Initialize logger
	logger, _ := zap.NewProduction()
	if debug {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err), zap.String("path", configPath))
		return err
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid config", zap.Error(err))
		return err
	}
	location, _ := cfg.Scheduler.Location()

	// Initialize admin directory storage
	adminStore, err := openAdminStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize admin storage", zap.Error(err))
		return err
	}
	defer adminStore.Close()

	st := state.NewStore()
	dir := directory.New(adminStore, st, cfg.Admins.Seed, logger)
	dir.Load(ctx)

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, tgbotapi.APIEndpoint, telegramHTTPClient(cfg.Telegram.HTTPTimeout))
	if err != nil {
		logger.Error("Failed to create bot", zap.Error(err))
		return fmt.Errorf("failed to create bot: %w", err)
	}
	gw := gateway.NewTelegram(api, cfg.Telegram.RateLimit, logger)

	broadcaster := bot.NewBroadcaster(st, gw, cfg.Broadcast.Concurrency, cfg.Broadcast.SendTimeout, logger)
	sched := scheduler.New(broadcaster.Deliver, logger)
	sched.Start(ctx)
	defer sched.Stop()

	dispatcher := bot.NewDispatcher(bot.Deps{
		Router:    command.NewRouter(api.Self.UserName),
		State:     st,
		Directory: dir,
		Weather:   weather.NewClient(cfg.Weather.APIKey, cfg.Weather.BaseURL, cfg.Weather.Timeout, logger),
		Chat: chat.NewClient(chat.Config{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Timeout:     cfg.OpenAI.Timeout,
		}, logger),
		Scheduler: sched,
		Location:  location,
		Logger:    logger,
	})

	if cfg.Metrics.Addr != "" {
		srv := startMetricsServer(cfg.Metrics.Addr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("Bot is starting", zap.String("username", api.Self.UserName))

	b := bot.New(api, dispatcher, gw, logger)
	if err := b.Start(ctx); err != nil {
		logger.Error("Bot error", zap.Error(err))
		return err
	}

	logger.Info("Bot stopped")
	return nil
}

func openAdminStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.AdminStore, error) {
	switch cfg.Admins.Backend {
	case config.BackendPostgres:
		logger.Info("Using PostgreSQL admin storage")
		return storage.NewPostgresStorage(ctx, storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, logger)
	case config.BackendRedis:
		logger.Info("Using Redis admin storage")
		return storage.NewRedisStorage(ctx, cfg.Redis.URL, cfg.Redis.Key)
	default:
		logger.Info("Using in-memory admin storage")
		return storage.NewMemoryStorage(), nil
	}
}

// telegramHTTPClient bounds Bot API requests so an abandoned send cannot block
// its goroutine forever.
func telegramHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func startMetricsServer(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	logger.Info("Serving metrics", zap.String("addr", addr))
	return srv
}
