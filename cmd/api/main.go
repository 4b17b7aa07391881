package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/google/generative-ai-go/genai"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/zhouzirui/storyteller/backend/internal/config"
	"github.com/zhouzirui/storyteller/backend/internal/handler"
	"github.com/zhouzirui/storyteller/backend/internal/logger"
	"github.com/zhouzirui/storyteller/backend/internal/metrics"
	"github.com/zhouzirui/storyteller/backend/internal/service/story"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	lg, err := logger.New(cfg.Log.Logger())
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	// Text model (Ark via eino)
	var chatModel model.BaseChatModel
	if cfg.AI.Enabled() {
		cm, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			lg.Warn("failed to initialize story model, continuing without text generation", zap.Error(err))
		} else {
			chatModel = cm
			lg.Info("story model initialized", zap.String("model", cfg.AI.Model))
		}
	} else {
		lg.Warn("Ark 凭证未配置，跳过故事文本生成初始化")
	}

	// Image model (Gemini)
	var illustrator *story.Illustrator
	if cfg.Image.Enabled() {
		client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.Image.APIKey))
		if err != nil {
			lg.Warn("failed to initialize image client, continuing without illustrations", zap.Error(err))
		} else {
			defer client.Close()

			store, err := story.NewImageStore(cfg.Image.Dir, cfg.Server.PublicBaseURL)
			if err != nil {
				lg.Fatal("failed to prepare image directory", zap.Error(err))
			}
			illustrator = story.NewIllustrator(
				story.NewGeminiImageModel(client, cfg.Image.Model),
				store,
				story.IllustratorOptions{
					MaxRetries:         cfg.Image.MaxRetries,
					InitialBackoff:     cfg.Image.InitialBackoff,
					FallbackToPrevious: cfg.Image.FallbackToPrevious,
				},
				lg,
			)
			lg.Info("image model initialized", zap.String("model", cfg.Image.Model), zap.String("dir", store.Dir()))
		}
	} else {
		lg.Warn("GEMINI_API_KEY 未配置，跳过插图生成初始化")
	}

	svc, err := story.NewService(ctx, chatModel, illustrator, lg)
	if err != nil {
		lg.Fatal("failed to initialize story service", zap.Error(err))
	}

	imageDir := ""
	if svc.ImageEnabled() {
		imageDir = cfg.Image.Dir
	}

	router := handler.NewRouter(handler.RouterConfig{
		Generator:      svc,
		Metrics:        metrics.New(),
		ImageDir:       imageDir,
		AllowedOrigins: cfg.Server.AllowedOrigins(),
		Logger:         lg,
	})

	startServer(ctx, lg, cfg.Server, router)
}

func startServer(ctx context.Context, lg *zap.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	lg.Info("storyteller backend listening",
		zap.String("addr", addr),
		zap.String("public_url", serverCfg.PublicBaseURL),
	)
	if err := runServer(ctx, srv); err != nil {
		lg.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
