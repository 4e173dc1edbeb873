package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"okx-trading-bot/config"
	"okx-trading-bot/internal/ai"
	"okx-trading-bot/internal/ai/llm"
	"okx-trading-bot/internal/api"
	"okx-trading-bot/internal/auth"
	"okx-trading-bot/internal/backtest"
	"okx-trading-bot/internal/bot"
	"okx-trading-bot/internal/cache"
	"okx-trading-bot/internal/database"
	"okx-trading-bot/internal/engine"
	"okx-trading-bot/internal/events"
	"okx-trading-bot/internal/logging"
	"okx-trading-bot/internal/okx"
	"okx-trading-bot/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		Component:  "app",
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Vault overrides file/env credentials when enabled.
	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			logger.Fatal("failed to connect to vault: %v", err)
		}
		if creds, err := vaultClient.GetExchangeCredentials(ctx); err != nil {
			logger.Warn("vault exchange credentials unavailable: %v", err)
		} else {
			cfg.OKXConfig.APIKey = creds.APIKey
			cfg.OKXConfig.SecretKey = creds.SecretKey
			cfg.OKXConfig.Passphrase = creds.Passphrase
		}
		if key, err := vaultClient.GetLLMAPIKey(ctx, cfg.AIConfig.LLMProvider); err != nil {
			logger.Warn("vault LLM key unavailable: %v", err)
		} else {
			switch cfg.AIConfig.LLMProvider {
			case string(llm.ProviderClaude):
				cfg.AIConfig.ClaudeAPIKey = key
			case string(llm.ProviderOpenAI):
				cfg.AIConfig.OpenAIAPIKey = key
			default:
				cfg.AIConfig.DeepSeekAPIKey = key
			}
		}
	}

	db, err := database.New(ctx, cfg.DatabaseConfig)
	if err != nil {
		logger.Fatal("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal("failed to run migrations: %v", err)
	}
	repo := database.NewRepository(db)

	var cacheSvc *cache.Service
	if cfg.RedisConfig.Enabled {
		cacheSvc, err = cache.New(cfg.RedisConfig)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache: %v", err)
			cacheSvc = nil
		} else {
			defer cacheSvc.Close()
		}
	}

	exchange := okx.NewClient(cfg.OKXConfig.APIKey, cfg.OKXConfig.SecretKey,
		cfg.OKXConfig.Passphrase, cfg.OKXConfig.BaseURL)

	llmClient := llm.NewClient(&llm.ClientConfig{
		Provider:    llm.Provider(cfg.AIConfig.LLMProvider),
		APIKey:      llmAPIKey(cfg),
		Model:       cfg.AIConfig.LLMModel,
		MaxTokens:   cfg.AIConfig.MaxTokens,
		Temperature: cfg.AIConfig.Temperature,
		Timeout:     30 * time.Second,
	})
	analyzer := ai.NewAnalyzer(llmClient, logger,
		cfg.TradingConfig.MinOrderSize, cfg.TradingConfig.MaxOrderSize, cfg.TradingConfig.Leverage)

	eventBus := events.NewEventBus()
	tracker := bot.NewTracker(os.Stdout)

	tradingBot := bot.New(bot.Config{
		Symbol:            cfg.TradingConfig.Symbol,
		Leverage:          cfg.TradingConfig.Leverage,
		FeeRate:           cfg.TradingConfig.FeeRate,
		MinOrderSize:      cfg.TradingConfig.MinOrderSize,
		MaxOrderSize:      cfg.TradingConfig.MaxOrderSize,
		SizeOverrideUSDT:  cfg.TradingConfig.SizeOverrideUSDT,
		Interval:          time.Duration(cfg.TradingConfig.AIFrequencySecs) * time.Second,
		InitialEquity:     cfg.TradingConfig.InitialEquity,
		MinConfidence:     engine.Confidence(cfg.TradingConfig.MinConfidence),
		TrendFilterOn:     cfg.TradingConfig.TrendFilterOn,
		NormalizeTriggers: cfg.TradingConfig.NormalizeTriggers,
		MockMode:          cfg.OKXConfig.MockMode,
	}, exchange, analyzer, repo, cacheSvc, eventBus, logger, tracker)

	backtester := backtest.NewRunner(repo, logger)
	authService := auth.NewService(cfg.AuthConfig)

	server := api.NewServer(api.ServerConfig{
		Host: cfg.ServerConfig.Host,
		Port: cfg.ServerConfig.Port,
	}, repo, eventBus, tradingBot, backtester, cacheSvc, authService, logger)

	tradingBot.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error: %v", err)
		}
	}

	tradingBot.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error: %v", err)
	}

	logger.Info("shutdown complete")
}

func llmAPIKey(cfg *config.Config) string {
	switch cfg.AIConfig.LLMProvider {
	case string(llm.ProviderClaude):
		return cfg.AIConfig.ClaudeAPIKey
	case string(llm.ProviderOpenAI):
		return cfg.AIConfig.OpenAIAPIKey
	default:
		return cfg.AIConfig.DeepSeekAPIKey
	}
}
