package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
)

// ErrNoImage 表示模型调用成功但没有返回图片数据。
var ErrNoImage = errors.New("image model returned no image data")

// ImageModel 根据提示词和可选的参考图生成一张图片。
type ImageModel interface {
	Render(ctx context.Context, prompt string, reference *Picture) (*Picture, error)
}

// GeminiImageModel 使用 Gemini 图片模型出图。
type GeminiImageModel struct {
	model *genai.GenerativeModel
}

// NewGeminiImageModel 包装一个已创建的 genai 客户端。
func NewGeminiImageModel(client *genai.Client, modelName string) *GeminiImageModel {
	return &GeminiImageModel{model: client.GenerativeModel(modelName)}
}

// Render 返回响应中的第一张内联图片。
func (g *GeminiImageModel) Render(ctx context.Context, prompt string, reference *Picture) (*Picture, error) {
	parts := []genai.Part{genai.Text(prompt)}
	if reference != nil {
		parts = append(parts, genai.Blob{MIMEType: reference.MIMEType, Data: reference.Data})
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrNoImage
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
			return &Picture{MIMEType: blob.MIMEType, Data: blob.Data}, nil
		}
	}
	return nil, ErrNoImage
}

// IllustratorOptions 控制重试与回退。
type IllustratorOptions struct {
	MaxRetries         int
	InitialBackoff     time.Duration
	FallbackToPrevious bool
}

// Illustrator 生成与前文角色一致的插图并保存。
type Illustrator struct {
	model  ImageModel
	store  *ImageStore
	opts   IllustratorOptions
	logger *zap.Logger
}

// NewIllustrator 组装插图生成器。
func NewIllustrator(m ImageModel, store *ImageStore, opts IllustratorOptions, logger *zap.Logger) *Illustrator {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Illustrator{model: m, store: store, opts: opts, logger: logger.Named("illustrator")}
}

// IllustrateInput 描述一次出图请求。
type IllustrateInput struct {
	Scene            string
	PreviousImageURL string
	Initial          *Picture
}

// Illustrate 生成插图并返回公开 URL。参考图优先使用初始上传的主角图，
// 否则使用上一张本地保存的插图。
func (il *Illustrator) Illustrate(ctx context.Context, in IllustrateInput) (string, error) {
	prompt := illustrationPrompt(in.Scene)

	reference := in.Initial
	if reference == nil && strings.TrimSpace(in.PreviousImageURL) != "" {
		if pic, ok := il.store.Lookup(in.PreviousImageURL); ok {
			il.logger.Debug("using previous image as reference", zap.String("url", in.PreviousImageURL))
			reference = pic
		}
	}

	pic, err := il.render(ctx, prompt, reference)
	if err == nil {
		var url string
		url, err = il.store.Save(pic)
		if err == nil {
			il.logger.Info("image generated", zap.String("url", url))
			return url, nil
		}
	}

	if il.opts.FallbackToPrevious && strings.TrimSpace(in.PreviousImageURL) != "" && ctx.Err() == nil {
		il.logger.Warn("image generation failed, reusing previous image",
			zap.Error(err),
			zap.String("url", in.PreviousImageURL),
		)
		return in.PreviousImageURL, nil
	}
	return "", fmt.Errorf("generate image: %w", err)
}

func (il *Illustrator) render(ctx context.Context, prompt string, reference *Picture) (*Picture, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = il.opts.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0

	attempt := 0
	return backoff.Retry(ctx, func() (*Picture, error) {
		attempt++
		pic, err := il.model.Render(ctx, prompt, reference)
		if err != nil {
			il.logger.Warn("image attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", il.opts.MaxRetries),
				zap.Error(err),
			)
			return nil, err
		}
		return pic, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(il.opts.MaxRetries)),
		backoff.WithMaxElapsedTime(0),
	)
}
