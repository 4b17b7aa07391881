package session

import (
	"strings"

	"github.com/zhouzirui/storyteller/backend/internal/model/story"
	"github.com/zhouzirui/storyteller/backend/internal/service/step"
)

// StartInput is what the start form hands over. TotalSteps wins over Length
// when both are set.
type StartInput struct {
	InputMode      InputMode
	Character      string
	CharacterImage step.ImageData
	Setting        string
	TotalSteps     int
	Length         story.Length
}

// Validate checks the fields required by the active input mode and resolves
// the step count.
func Validate(in StartInput) (step.BeginInput, error) {
	character := strings.TrimSpace(in.Character)
	setting := strings.TrimSpace(in.Setting)

	switch in.InputMode {
	case InputText:
		if character == "" {
			return step.BeginInput{}, &ValidationError{Field: "character", Message: "请描述故事主角"}
		}
	case InputImage:
		if strings.TrimSpace(string(in.CharacterImage)) == "" {
			return step.BeginInput{}, &ValidationError{Field: "characterImage", Message: "请上传主角图片"}
		}
	default:
		return step.BeginInput{}, &ValidationError{Field: "inputMode", Message: "unknown input mode"}
	}

	if setting == "" {
		return step.BeginInput{}, &ValidationError{Field: "setting", Message: "请填写故事场景"}
	}

	total := in.TotalSteps
	if total == 0 && in.Length != "" {
		steps, err := in.Length.Steps()
		if err != nil {
			return step.BeginInput{}, &ValidationError{Field: "length", Message: err.Error()}
		}
		total = steps
	}
	if total < 1 {
		return step.BeginInput{}, &ValidationError{Field: "totalSteps", Message: "story length must be at least one step"}
	}

	begin := step.BeginInput{
		Character:  character,
		Setting:    setting,
		TotalSteps: total,
	}
	if in.InputMode == InputImage {
		begin.CharacterImage = in.CharacterImage
	}
	return begin, nil
}

func validateAction(action step.Action, active *story.StepResult) error {
	if !action.Valid() {
		return &ValidationError{Field: "action", Message: "choose an option or describe an action, not both"}
	}
	if !action.IsChoice() {
		return nil
	}
	if active == nil {
		return &ValidationError{Field: "choiceId", Message: "no choices are available"}
	}
	if _, ok := active.FindChoice(action.ChoiceID); !ok {
		return &ValidationError{Field: "choiceId", Message: "unknown choice " + action.ChoiceID}
	}
	return nil
}
