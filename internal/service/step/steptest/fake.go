// Package steptest provides a scriptable step.Service for tests.
package steptest

import (
	"context"
	"sync"

	"github.com/zhouzirui/storyteller/backend/internal/model/story"
	"github.com/zhouzirui/storyteller/backend/internal/service/step"
)

// Service records every call and answers through the configured funcs.
// A nil func answers with a zero value and no error.
type Service struct {
	BeginFunc   func(ctx context.Context, in step.BeginInput) (story.StoryResponse, error)
	AdvanceFunc func(ctx context.Context, in step.AdvanceInput) (story.StoryResponse, error)
	ImageFunc   func(ctx context.Context, in step.ImageInput) (string, error)

	mu       sync.Mutex
	calls    []string
	begins   []step.BeginInput
	advances []step.AdvanceInput
	images   []step.ImageInput
}

var _ step.Service = (*Service)(nil)

func (s *Service) BeginStory(ctx context.Context, in step.BeginInput) (story.StoryResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, "begin")
	s.begins = append(s.begins, in)
	fn := s.BeginFunc
	s.mu.Unlock()

	if fn == nil {
		return story.StoryResponse{}, nil
	}
	return fn(ctx, in)
}

func (s *Service) AdvanceStory(ctx context.Context, in step.AdvanceInput) (story.StoryResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, "advance")
	s.advances = append(s.advances, in)
	fn := s.AdvanceFunc
	s.mu.Unlock()

	if fn == nil {
		return story.StoryResponse{}, nil
	}
	return fn(ctx, in)
}

func (s *Service) GenerateImage(ctx context.Context, in step.ImageInput) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, "image")
	s.images = append(s.images, in)
	fn := s.ImageFunc
	s.mu.Unlock()

	if fn == nil {
		return "", nil
	}
	return fn(ctx, in)
}

// Calls returns the call order, e.g. ["begin", "image"].
func (s *Service) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Advances returns the recorded continuation inputs.
func (s *Service) Advances() []step.AdvanceInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]step.AdvanceInput(nil), s.advances...)
}

// Begins returns the recorded opening inputs.
func (s *Service) Begins() []step.BeginInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]step.BeginInput(nil), s.begins...)
}

// Images returns the recorded image inputs.
func (s *Service) Images() []step.ImageInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]step.ImageInput(nil), s.images...)
}

// Reply is a canned text-phase response.
func Reply(text, imagePrompt string, choices ...story.Choice) story.StoryResponse {
	if choices == nil {
		choices = []story.Choice{}
	}
	return story.StoryResponse{Text: text, Choices: choices, ImagePrompt: imagePrompt}
}

// Image answers every image call with url.
func Image(url string) func(context.Context, step.ImageInput) (string, error) {
	return func(context.Context, step.ImageInput) (string, error) {
		return url, nil
	}
}
