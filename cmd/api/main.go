package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"genrelay/internal/chat"
	"genrelay/internal/config"
	"genrelay/internal/dispatch"
	"genrelay/internal/http/handlers"
	"genrelay/internal/http/httpapi"
	"genrelay/internal/identity"
	"genrelay/internal/infra"
	"genrelay/internal/moderation"
	"genrelay/internal/postprocess"
	"genrelay/internal/providers"
	"genrelay/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	secrets, err := config.LoadSecrets(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("missing credentials")
	}

	hasher, err := identity.NewHasher(cfg.HashSalt)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid hash salt")
	}

	registry, err := providers.Build(cfg, secrets)
	if err != nil {
		logger.Fatal().Err(err).Msg("provider registry")
	}
	logger.Info().Strs("models", registry.Models()).Msg("providers registered")

	gate := moderation.NewGate(
		cfg.ModerationEnabled,
		moderation.NewClassifierClient(moderation.ClassifierOptions{APIKey: secrets.OpenAIKey}),
		moderation.NewWordFilter(cfg.WordFilterEnabled, cfg.BannedWords, cfg.AllowedWords),
	)

	var store *storage.FileStore
	if cfg.SaveImages {
		store, err = storage.NewFileStore(cfg.OutputDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("output directory")
		}
	}
	pipeline := postprocess.NewPipeline(postprocess.Options{
		SaveFormat:  cfg.SaveFormat,
		SendFormat:  cfg.SendFormat,
		JPEGQuality: cfg.JPEGQuality,
		Store:       store,
	})

	optimizer, err := chat.NewOptimizer(chat.OptimizerOptions{
		Backend:      cfg.PromptBackend,
		OpenAIKey:    secrets.OpenAIKey,
		AnthropicKey: secrets.AnthropicKey,
		Model:        cfg.PromptModel,
		MaxTokens:    cfg.ChatMaxTokens,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("prompt optimizer")
	}

	dispatcher := dispatch.New(dispatch.Options{
		Registry:     registry,
		Gate:         gate,
		Hasher:       hasher,
		Pipeline:     pipeline,
		Rewriter:     optimizer,
		DefaultModel: cfg.DefaultImageModel,
		ModelPrices:  cfg.ModelPrices,
		Logger:       logger,
	})

	chatRouter := chat.NewRouter(chat.Options{
		APIKey:        secrets.OpenAIKey,
		Model:         cfg.ChatModel,
		Temperature:   cfg.ChatTemperature,
		MaxTokens:     cfg.ChatMaxTokens,
		SystemMessage: cfg.ChatSystemMessage,
		Backend:       cfg.BackendSelector(),
	})

	app := &handlers.App{
		Dispatcher: dispatcher,
		ChatRouter: chatRouter,
		Sessions:   chat.NewSessionRegistry(),
		Models:     registry.Models(),
		Logger:     logger,
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, logger, cfg.AllowedOrigins))

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
