package step

import (
	"context"
	"strings"

	"github.com/zhouzirui/storyteller/backend/internal/model/story"
)

// ImageData is an uploaded picture encoded as a data URL.
type ImageData string

// BeginInput 描述开篇请求：角色描述与角色图片至少提供其一。
type BeginInput struct {
	Character      string
	Setting        string
	TotalSteps     int
	CharacterImage ImageData
}

// Action is the player's move: either a listed choice or a free-text action.
type Action struct {
	ChoiceID string
	FreeText string
}

// IsChoice reports whether the action picks a listed choice.
func (a Action) IsChoice() bool {
	return strings.TrimSpace(a.ChoiceID) != ""
}

// Valid reports whether exactly one of ChoiceID and FreeText is set.
func (a Action) Valid() bool {
	hasChoice := strings.TrimSpace(a.ChoiceID) != ""
	hasText := strings.TrimSpace(a.FreeText) != ""
	return hasChoice != hasText
}

// AdvanceInput carries the full finalized history; images travel only as the
// single PreviousImageURL hint.
type AdvanceInput struct {
	Action           Action
	History          []story.StepResult
	PreviousImageURL string
	CurrentStep      int
	TotalSteps       int
}

// ImageInput 描述插图请求。ReferenceImage 优先于 PreviousImageURL。
type ImageInput struct {
	ImagePrompt      string
	PreviousImageURL string
	ReferenceImage   ImageData
}

// Service abstracts the two generation endpoints. Every call is issued at most
// once per step; implementations must not cache or deduplicate.
type Service interface {
	BeginStory(ctx context.Context, in BeginInput) (story.StoryResponse, error)
	AdvanceStory(ctx context.Context, in AdvanceInput) (story.StoryResponse, error)
	GenerateImage(ctx context.Context, in ImageInput) (string, error)
}
