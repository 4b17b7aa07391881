package story

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/storyteller/backend/internal/metrics"
	storymodel "github.com/zhouzirui/storyteller/backend/internal/model/story"
	storyservice "github.com/zhouzirui/storyteller/backend/internal/service/story"
	"github.com/zhouzirui/storyteller/backend/pkg/utils"
)

const (
	msgInvalidOutput = "AI response was not valid JSON."
	msgTextFailed    = "An unexpected error occurred with the story service."
	msgImageFailed   = "image generation failed"
)

// Generator 是处理器依赖的故事生成能力。
type Generator interface {
	Begin(ctx context.Context, req storymodel.StartStoryRequest) (storymodel.StoryResponse, error)
	Next(ctx context.Context, req storymodel.NextStepRequest) (storymodel.StoryResponse, error)
	Illustrate(ctx context.Context, req storymodel.ImageRequest) (string, error)
}

// Handler 故事服务的HTTP处理器
type Handler struct {
	gen     Generator
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New 创建故事处理器。metrics 可以为空。
func New(gen Generator, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{gen: gen, metrics: m, logger: logger.Named("handler")}
}

// RegisterRoutes 注册故事相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/start_story", h.handleStartStory)
	r.Post("/next_step", h.handleNextStep)
	r.Post("/generate_image", h.handleGenerateImage)
	r.Get("/lengths", h.handleLengths)
}

func (h *Handler) handleStartStory(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req storymodel.StartStoryRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.metrics.ObserveStep("start_story", "invalid", time.Since(started))
		h.fail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp, err := h.gen.Begin(r.Context(), req)
	if err != nil {
		h.respondTextError(w, "start_story", started, err)
		return
	}

	h.metrics.ObserveStep("start_story", "ok", time.Since(started))
	h.respond(w, http.StatusOK, resp)
}

func (h *Handler) handleNextStep(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req storymodel.NextStepRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.metrics.ObserveStep("next_step", "invalid", time.Since(started))
		h.fail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp, err := h.gen.Next(r.Context(), req)
	if err != nil {
		h.respondTextError(w, "next_step", started, err)
		return
	}

	h.metrics.ObserveStep("next_step", "ok", time.Since(started))
	h.respond(w, http.StatusOK, resp)
}

func (h *Handler) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req storymodel.ImageRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.metrics.ObserveImage("invalid", time.Since(started))
		h.fail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	url, err := h.gen.Illustrate(r.Context(), req)
	if err != nil {
		var verr *storyservice.ValidationError
		switch {
		case errors.As(err, &verr):
			h.metrics.ObserveImage("invalid", time.Since(started))
			h.fail(w, http.StatusUnprocessableEntity, verr.Message)
		case errors.Is(err, storyservice.ErrImageUnavailable):
			h.metrics.ObserveImage("unavailable", time.Since(started))
			h.fail(w, http.StatusServiceUnavailable, msgImageFailed)
		default:
			h.logger.Warn("image generation failed", zap.Error(err))
			h.metrics.ObserveImage("failed", time.Since(started))
			h.fail(w, http.StatusBadGateway, msgImageFailed)
		}
		return
	}

	h.metrics.ObserveImage("ok", time.Since(started))
	h.respond(w, http.StatusOK, storymodel.ImageResponse{ImageURL: url})
}

func (h *Handler) handleLengths(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, storymodel.Lengths())
}

func (h *Handler) respond(w http.ResponseWriter, status int, payload any) {
	if err := utils.RespondJSON(w, status, payload); err != nil {
		h.logger.Warn("failed to write response", zap.Int("status", status), zap.Error(err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, status int, message string) {
	if err := utils.RespondError(w, status, message); err != nil {
		h.logger.Warn("failed to write error response", zap.Int("status", status), zap.Error(err))
	}
}

// respondTextError 把文本阶段的错误映射为 HTTP 状态码。
func (h *Handler) respondTextError(w http.ResponseWriter, endpoint string, started time.Time, err error) {
	var verr *storyservice.ValidationError
	switch {
	case errors.As(err, &verr):
		h.metrics.ObserveStep(endpoint, "invalid", time.Since(started))
		h.fail(w, http.StatusUnprocessableEntity, verr.Message)
	case errors.Is(err, storyservice.ErrTextUnavailable):
		h.metrics.ObserveStep(endpoint, "unavailable", time.Since(started))
		h.fail(w, http.StatusServiceUnavailable, "story generation unavailable")
	case errors.Is(err, storyservice.ErrInvalidOutput):
		h.metrics.ObserveStep(endpoint, "invalid_output", time.Since(started))
		h.fail(w, http.StatusInternalServerError, msgInvalidOutput)
	default:
		h.logger.Error("story generation failed", zap.String("endpoint", endpoint), zap.Error(err))
		h.metrics.ObserveStep(endpoint, "failed", time.Since(started))
		h.fail(w, http.StatusInternalServerError, msgTextFailed)
	}
}
