package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/storyteller/backend/internal/handler/story"
	"github.com/zhouzirui/storyteller/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/storyteller/backend/internal/middleware"
)

// RouterConfig 汇集路由依赖。
type RouterConfig struct {
	Generator      story.Generator
	Metrics        *metrics.Metrics
	ImageDir       string
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(cfg.AllowedOrigins))

	storyHandler := story.New(cfg.Generator, cfg.Metrics, cfg.Logger)

	r.Route("/api", func(api chi.Router) {
		storyHandler.RegisterRoutes(api)
	})

	if cfg.ImageDir != "" {
		fs := http.StripPrefix("/images/", http.FileServer(http.Dir(cfg.ImageDir)))
		r.Get("/images/*", fs.ServeHTTP)
	}

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	return r
}
