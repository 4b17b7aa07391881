package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/vincent-petithory/dataurl"
	"go.uber.org/zap"

	"github.com/zhouzirui/storyteller/backend/internal/client/storyapi"
	"github.com/zhouzirui/storyteller/backend/internal/config"
	"github.com/zhouzirui/storyteller/backend/internal/logger"
	"github.com/zhouzirui/storyteller/backend/internal/service/session"
	"github.com/zhouzirui/storyteller/backend/internal/service/step"
	"github.com/zhouzirui/storyteller/backend/internal/tui"
)

func main() {
	imagePath := flag.String("image", "", "主角图片路径，提供后以图片模式开始故事")
	apiURL := flag.String("api", "", "故事服务地址，覆盖 STORY_API_URL")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if *apiURL != "" {
		cfg.APIURL = *apiURL
	}

	// 终端被界面占用，日志只能写文件
	logCfg := cfg.Log.Logger()
	if logCfg.OutputPath == "" {
		logCfg.OutputPath = filepath.Join(os.TempDir(), "storyteller-play.log")
	}
	lg, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	var image step.ImageData
	if *imagePath != "" {
		image, err = loadImage(*imagePath)
		if err != nil {
			log.Fatalf("failed to load character image: %v", err)
		}
	}

	client := storyapi.New(cfg.APIURL, storyapi.WithLogger(lg))
	orch := step.NewOrchestrator(client, step.Options{
		TextTimeout:  cfg.TextTimeout,
		ImageTimeout: cfg.ImageTimeout,
		Logger:       lg,
	})

	relay := &tui.Relay{}
	ctrl := session.NewController(orch,
		session.WithLogger(lg),
		session.WithObserver(relay.Observe),
	)

	program := tea.NewProgram(
		tui.New(ctx, ctrl, tui.Options{CharacterImage: image}),
		tea.WithContext(ctx),
	)
	relay.Attach(program)

	lg.Info("player started", zap.String("api", cfg.APIURL), zap.Bool("image_mode", image != ""))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		lg.Error("player exited with error", zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadImage(path string) (step.ImageData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", path, mime)
	}
	return step.ImageData(dataurl.New(data, mime).String()), nil
}
