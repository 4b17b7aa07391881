package step

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/storyteller/backend/internal/model/story"
)

// OutcomeKind tags the phase an Outcome reports.
type OutcomeKind int

const (
	// TextFailed ends the step; nothing may be published.
	TextFailed OutcomeKind = iota + 1
	// TextReady carries the provisional step while the image is in flight.
	TextReady
	// ImageFailed keeps the provisional step with no illustration.
	ImageFailed
	// StepComplete carries the step with its image resolved.
	StepComplete
)

func (k OutcomeKind) String() string {
	switch k {
	case TextFailed:
		return "text_failed"
	case TextReady:
		return "text_ready"
	case ImageFailed:
		return "image_failed"
	case StepComplete:
		return "step_complete"
	default:
		return "unknown"
	}
}

// Final reports whether no further outcome follows for the step.
func (k OutcomeKind) Final() bool {
	return k != TextReady
}

// Outcome is one observation of a running step.
type Outcome struct {
	Kind   OutcomeKind
	Result story.StepResult
	Err    error
}

// Request selects between opening a story and continuing one. Exactly one of
// Begin and Advance is set.
type Request struct {
	Begin   *BeginInput
	Advance *AdvanceInput
}

// Options bounds every remote call. Zero values disable the bound.
type Options struct {
	TextTimeout  time.Duration
	ImageTimeout time.Duration
	Logger       *zap.Logger
}

// Orchestrator runs one step as a text call followed by a dependent image call.
// It holds no session state.
type Orchestrator struct {
	svc          Service
	textTimeout  time.Duration
	imageTimeout time.Duration
	logger       *zap.Logger
}

// NewOrchestrator wires an orchestrator around the remote service.
func NewOrchestrator(svc Service, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		svc:          svc,
		textTimeout:  opts.TextTimeout,
		imageTimeout: opts.ImageTimeout,
		logger:       logger.Named("step"),
	}
}

// RunStep executes both phases in order and reports every outcome through
// publish. The image call is never issued before the text result exists.
// The returned outcome is the final one.
func (o *Orchestrator) RunStep(ctx context.Context, req Request, publish func(Outcome)) Outcome {
	if publish == nil {
		publish = func(Outcome) {}
	}

	resp, err := o.runText(ctx, req)
	if err != nil {
		o.logger.Warn("text phase failed", zap.Error(err))
		out := Outcome{Kind: TextFailed, Err: err}
		publish(out)
		return out
	}

	provisional := resp.Provisional()
	publish(Outcome{Kind: TextReady, Result: provisional.Clone()})

	url, err := o.runImage(ctx, imageInputFor(req, provisional))
	if err != nil {
		o.logger.Warn("image phase failed", zap.Error(err))
		out := Outcome{Kind: ImageFailed, Result: provisional.Clone(), Err: err}
		publish(out)
		return out
	}

	out := Outcome{Kind: StepComplete, Result: provisional.WithImage(url)}
	publish(out)
	return out
}

func (o *Orchestrator) runText(ctx context.Context, req Request) (story.StoryResponse, error) {
	callCtx, cancel := withTimeout(ctx, o.textTimeout)
	defer cancel()

	switch {
	case req.Begin != nil && req.Advance == nil:
		return o.svc.BeginStory(callCtx, *req.Begin)
	case req.Advance != nil && req.Begin == nil:
		return o.svc.AdvanceStory(callCtx, *req.Advance)
	default:
		return story.StoryResponse{}, fmt.Errorf("step request must set exactly one of begin or advance")
	}
}

func (o *Orchestrator) runImage(ctx context.Context, in ImageInput) (string, error) {
	if strings.TrimSpace(in.ImagePrompt) == "" {
		return "", ErrMissingImagePrompt
	}

	callCtx, cancel := withTimeout(ctx, o.imageTimeout)
	defer cancel()

	url, err := o.svc.GenerateImage(callCtx, in)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("image service returned an empty url")
	}
	return url, nil
}

// imageInputFor picks the continuity hint: the uploaded character picture on
// the opening step, the previous illustration afterwards.
func imageInputFor(req Request, provisional story.StepResult) ImageInput {
	in := ImageInput{ImagePrompt: provisional.ImagePrompt}
	switch {
	case req.Begin != nil:
		in.ReferenceImage = req.Begin.CharacterImage
	case req.Advance != nil:
		in.PreviousImageURL = req.Advance.PreviousImageURL
	}
	return in
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
