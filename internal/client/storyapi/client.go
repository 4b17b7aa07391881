package storyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/storyteller/backend/internal/model/story"
	"github.com/zhouzirui/storyteller/backend/internal/service/step"
)

const maxErrorBody = 64 << 10

// Client talks to the story generation backend over JSON/HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ step.Service = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client rooted at baseURL, e.g. "http://127.0.0.1:8080/api".
// Per-call deadlines come from the caller's context.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("storyapi")
	return c
}

// BeginStory calls the begin-story endpoint.
func (c *Client) BeginStory(ctx context.Context, in step.BeginInput) (story.StoryResponse, error) {
	body := story.StartStoryRequest{
		Character:    in.Character,
		Setting:      in.Setting,
		TotalSteps:   in.TotalSteps,
		ImageDataURL: string(in.CharacterImage),
	}

	var resp story.StoryResponse
	if err := c.post(ctx, "begin story", "/start_story", body, &resp, TextMessageChain, beginFallback); err != nil {
		return story.StoryResponse{}, err
	}
	return resp, nil
}

// AdvanceStory calls the advance-story endpoint with the full prior history.
func (c *Client) AdvanceStory(ctx context.Context, in step.AdvanceInput) (story.StoryResponse, error) {
	body := story.NextStepRequest{
		StoryHistory:     story.HistoryOf(in.History),
		PreviousImageURL: in.PreviousImageURL,
		CurrentStep:      in.CurrentStep,
		TotalSteps:       in.TotalSteps,
	}
	if in.Action.IsChoice() {
		id := in.Action.ChoiceID
		body.ChoiceID = &id
	} else {
		text := in.Action.FreeText
		body.UserAction = &text
	}

	var resp story.StoryResponse
	if err := c.post(ctx, "advance story", "/next_step", body, &resp, TextMessageChain, advanceFallback); err != nil {
		return story.StoryResponse{}, err
	}
	return resp, nil
}

// GenerateImage calls the generate-image endpoint and returns the image URL.
func (c *Client) GenerateImage(ctx context.Context, in step.ImageInput) (string, error) {
	body := story.ImageRequest{
		ImagePrompt:         in.ImagePrompt,
		PreviousImageURL:    in.PreviousImageURL,
		InitialImageDataURL: string(in.ReferenceImage),
	}

	var resp story.ImageResponse
	if err := c.post(ctx, "generate image", "/generate_image", body, &resp, ImageMessageChain, imageFallback); err != nil {
		return "", err
	}
	return resp.ImageURL, nil
}

func (c *Client) post(ctx context.Context, op, path string, payload, out any, chain []string, fallback string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", zap.String("op", op), zap.Error(err))
		return &step.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := ExtractMessage(raw, chain, fallback)
		c.logger.Warn("remote returned failure",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return &step.RemoteError{Status: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return &step.NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}

	c.logger.Debug("request completed",
		zap.String("op", op),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}
