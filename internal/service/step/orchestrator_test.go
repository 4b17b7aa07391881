package step_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/storyteller/backend/internal/model/story"
	"github.com/zhouzirui/storyteller/backend/internal/service/step"
	"github.com/zhouzirui/storyteller/backend/internal/service/step/steptest"
)

func beginRequest() step.Request {
	return step.Request{Begin: &step.BeginInput{
		Character:  "a fox",
		Setting:    "a forest",
		TotalSteps: 5,
	}}
}

func collect(outcomes *[]step.Outcome) func(step.Outcome) {
	return func(o step.Outcome) { *outcomes = append(*outcomes, o) }
}

func TestRunStepPublishesTextBeforeImage(t *testing.T) {
	svc := &steptest.Service{}
	var seenAtImage []step.Outcome
	var outcomes []step.Outcome

	svc.BeginFunc = func(context.Context, step.BeginInput) (story.StoryResponse, error) {
		return steptest.Reply("once upon a time", "fox in forest",
			story.Choice{ID: "a", Text: "run"},
			story.Choice{ID: "b", Text: "hide"},
		), nil
	}
	svc.ImageFunc = func(_ context.Context, in step.ImageInput) (string, error) {
		seenAtImage = append([]step.Outcome(nil), outcomes...)
		assert.Equal(t, "fox in forest", in.ImagePrompt)
		return "http://x/1.png", nil
	}

	orch := step.NewOrchestrator(svc, step.Options{})
	final := orch.RunStep(context.Background(), beginRequest(), collect(&outcomes))

	require.Len(t, seenAtImage, 1)
	assert.Equal(t, step.TextReady, seenAtImage[0].Kind)
	assert.Nil(t, seenAtImage[0].Result.ImageURL)
	assert.Len(t, seenAtImage[0].Result.Choices, 2)

	require.Len(t, outcomes, 2)
	assert.Equal(t, step.StepComplete, final.Kind)
	require.NotNil(t, final.Result.ImageURL)
	assert.Equal(t, "http://x/1.png", *final.Result.ImageURL)
	assert.Empty(t, final.Result.ImagePrompt)
	assert.Equal(t, []string{"begin", "image"}, svc.Calls())
}

func TestRunStepTextFailureSkipsImage(t *testing.T) {
	svc := &steptest.Service{
		BeginFunc: func(context.Context, step.BeginInput) (story.StoryResponse, error) {
			return story.StoryResponse{}, &step.RemoteError{Status: 500, Message: "boom"}
		},
	}
	var outcomes []step.Outcome

	final := step.NewOrchestrator(svc, step.Options{}).RunStep(context.Background(), beginRequest(), collect(&outcomes))

	assert.Equal(t, step.TextFailed, final.Kind)
	require.Len(t, outcomes, 1)
	var remote *step.RemoteError
	require.ErrorAs(t, final.Err, &remote)
	assert.Equal(t, 500, remote.Status)
	assert.Equal(t, []string{"begin"}, svc.Calls())
}

func TestRunStepImageFailureKeepsNarrative(t *testing.T) {
	svc := &steptest.Service{
		AdvanceFunc: func(context.Context, step.AdvanceInput) (story.StoryResponse, error) {
			return steptest.Reply("the fox ran", "fox running", story.Choice{ID: "a", Text: "rest"}), nil
		},
		ImageFunc: func(context.Context, step.ImageInput) (string, error) {
			return "", &step.NetworkError{Op: "generate image", Err: errors.New("connection reset")}
		},
	}

	req := step.Request{Advance: &step.AdvanceInput{
		Action:           step.Action{ChoiceID: "a"},
		PreviousImageURL: "http://x/1.png",
		CurrentStep:      2,
		TotalSteps:       5,
	}}
	final := step.NewOrchestrator(svc, step.Options{}).RunStep(context.Background(), req, nil)

	assert.Equal(t, step.ImageFailed, final.Kind)
	assert.Equal(t, "the fox ran", final.Result.Text)
	assert.Len(t, final.Result.Choices, 1)
	assert.Nil(t, final.Result.ImageURL)
	assert.Error(t, final.Err)

	images := svc.Images()
	require.Len(t, images, 1)
	assert.Equal(t, "http://x/1.png", images[0].PreviousImageURL)
	assert.Empty(t, images[0].ReferenceImage)
}

func TestRunStepOpeningUsesCharacterImageAsHint(t *testing.T) {
	svc := &steptest.Service{
		BeginFunc: func(context.Context, step.BeginInput) (story.StoryResponse, error) {
			return steptest.Reply("hello", "a toy bear", story.Choice{ID: "a", Text: "go"}), nil
		},
		ImageFunc: steptest.Image("http://x/bear.png"),
	}
	req := step.Request{Begin: &step.BeginInput{
		Setting:        "a castle",
		TotalSteps:     8,
		CharacterImage: "data:image/png;base64,AAAA",
	}}

	final := step.NewOrchestrator(svc, step.Options{}).RunStep(context.Background(), req, nil)

	assert.Equal(t, step.StepComplete, final.Kind)
	images := svc.Images()
	require.Len(t, images, 1)
	assert.Equal(t, step.ImageData("data:image/png;base64,AAAA"), images[0].ReferenceImage)
	assert.Empty(t, images[0].PreviousImageURL)
}

func TestRunStepMissingImagePromptIsImageFailure(t *testing.T) {
	svc := &steptest.Service{
		BeginFunc: func(context.Context, step.BeginInput) (story.StoryResponse, error) {
			return steptest.Reply("the end", ""), nil
		},
	}

	final := step.NewOrchestrator(svc, step.Options{}).RunStep(context.Background(), beginRequest(), nil)

	assert.Equal(t, step.ImageFailed, final.Kind)
	assert.ErrorIs(t, final.Err, step.ErrMissingImagePrompt)
	assert.True(t, final.Result.Terminal())
	assert.Equal(t, []string{"begin"}, svc.Calls())
}

func TestRunStepTextTimeout(t *testing.T) {
	svc := &steptest.Service{
		BeginFunc: func(ctx context.Context, _ step.BeginInput) (story.StoryResponse, error) {
			<-ctx.Done()
			return story.StoryResponse{}, ctx.Err()
		},
	}
	orch := step.NewOrchestrator(svc, step.Options{TextTimeout: 20 * time.Millisecond})

	final := orch.RunStep(context.Background(), beginRequest(), nil)

	assert.Equal(t, step.TextFailed, final.Kind)
	assert.ErrorIs(t, final.Err, context.DeadlineExceeded)
}

func TestRunStepImageTimeoutKeepsNarrative(t *testing.T) {
	svc := &steptest.Service{
		BeginFunc: func(context.Context, step.BeginInput) (story.StoryResponse, error) {
			return steptest.Reply("once upon a time", "fox in forest", story.Choice{ID: "a", Text: "run"}), nil
		},
		ImageFunc: func(ctx context.Context, _ step.ImageInput) (string, error) {
			<-ctx.Done()
			return "", &step.NetworkError{Op: "generate image", Err: ctx.Err()}
		},
	}
	orch := step.NewOrchestrator(svc, step.Options{
		TextTimeout:  time.Second,
		ImageTimeout: 20 * time.Millisecond,
	})

	var outcomes []step.Outcome
	final := orch.RunStep(context.Background(), beginRequest(), collect(&outcomes))

	assert.Equal(t, step.ImageFailed, final.Kind)
	assert.ErrorIs(t, final.Err, context.DeadlineExceeded)
	assert.Equal(t, "once upon a time", final.Result.Text)
	assert.Len(t, final.Result.Choices, 1)
	assert.Nil(t, final.Result.ImageURL)

	require.Len(t, outcomes, 2)
	assert.Equal(t, step.TextReady, outcomes[0].Kind)
	assert.Equal(t, step.ImageFailed, outcomes[1].Kind)
}

func TestRunStepRejectsAmbiguousRequest(t *testing.T) {
	svc := &steptest.Service{}
	final := step.NewOrchestrator(svc, step.Options{}).RunStep(context.Background(), step.Request{}, nil)

	assert.Equal(t, step.TextFailed, final.Kind)
	assert.Empty(t, svc.Calls())
}

func TestActionValid(t *testing.T) {
	assert.True(t, step.Action{ChoiceID: "a"}.Valid())
	assert.True(t, step.Action{FreeText: "climb the tree"}.Valid())
	assert.False(t, step.Action{}.Valid())
	assert.False(t, step.Action{ChoiceID: "a", FreeText: "climb"}.Valid())
	assert.False(t, step.Action{FreeText: "   "}.Valid())
}
