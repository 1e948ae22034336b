package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/domain"
	"server/internal/genai"
	"server/internal/history"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/jobs"
	"server/internal/retry"
	"server/internal/service"
	"server/internal/session"
	"server/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if cfg.GeminiAPIKey == "" {
		logger.Warn().Msg("GEMINI_API_KEY is not set; generation requests will fail")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		logger.Fatal().Err(err).Msg("failed to create data directories")
	}

	client, err := genai.NewClient(genai.Options{
		APIKey:      cfg.GeminiAPIKey,
		BaseURL:     cfg.GeminiBaseURL,
		ImageModel:  cfg.ImageModel,
		VideoModel:  cfg.VideoModel,
		PromptModel: cfg.PromptModel,
		Logger:      &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create api client")
	}

	imageFiles, err := storage.NewFileStore(cfg.ImagesDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open image store")
	}
	videoFiles, err := storage.NewFileStore(cfg.VideosDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open video store")
	}

	historyStore := history.NewStore(cfg.HistoryFile, logger)
	imageLibrary := history.NewLibrary(historyStore, imageFiles, domain.RecordTypeImage, "/api/image/", ".png", ".jpg", ".jpeg", ".webp")
	videoLibrary := history.NewLibrary(historyStore, videoFiles, domain.RecordTypeVideo, "/api/video/", ".mp4")

	retryCfg := retry.Config{Attempts: cfg.RetryAttempts, Delay: cfg.RetryDelay, Backoff: 2}

	imageJobs := jobs.NewRegistry(cfg.JobMaxProcessing, cfg.JobRetention, logger)
	videoJobs := jobs.NewRegistry(cfg.JobMaxProcessing, cfg.JobRetention, logger)
	sessions := session.New[service.Conversation](cfg.SessionTTL, logger)

	imageService := service.NewImageService(service.ImageOptions{
		Backend:         service.NewChatStarter(client),
		Jobs:            imageJobs,
		Sessions:        sessions,
		Files:           imageFiles,
		History:         historyStore,
		Logger:          logger,
		GenerateTimeout: cfg.GenerateTimeout,
		Retry:           retryCfg,
		Tier:            cfg.ImageTier,
	})
	videoService := service.NewVideoService(service.VideoOptions{
		Backend:      client,
		Jobs:         videoJobs,
		Files:        videoFiles,
		History:      historyStore,
		Logger:       logger,
		InitTimeout:  cfg.InitTimeout,
		PollInterval: cfg.PollInterval,
		PollBudget:   cfg.PollBudget,
		Retry:        retryCfg,
	})
	promptService := service.NewPromptService(client, logger)

	app := handlers.NewApp(cfg, logger)
	app.Images = imageService
	app.Videos = videoService
	app.Prompts = promptService
	app.History = historyStore
	app.ImageFiles = imageFiles
	app.VideoFiles = videoFiles
	app.ImageLibrary = imageLibrary
	app.VideoLibrary = videoLibrary

	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("API listening")
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
