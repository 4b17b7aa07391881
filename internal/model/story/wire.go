package story

// StartStoryRequest is the begin-story request body.
type StartStoryRequest struct {
	Character    string `json:"character,omitempty"`
	Setting      string `json:"setting"`
	TotalSteps   int    `json:"total_steps"`
	ImageDataURL string `json:"image_data_url,omitempty"`
}

// HistoryEntry is one prior step as sent back to the generator. Images are
// deliberately absent; only the latest one travels as PreviousImageURL.
type HistoryEntry struct {
	Text      string   `json:"text"`
	Choices   []Choice `json:"choices"`
	MainQuest string   `json:"main_quest,omitempty"`
}

// NextStepRequest is the advance-story request body. Exactly one of ChoiceID
// and UserAction is set.
type NextStepRequest struct {
	ChoiceID         *string        `json:"choice_id,omitempty"`
	UserAction       *string        `json:"user_action,omitempty"`
	StoryHistory     []HistoryEntry `json:"story_history"`
	PreviousImageURL string         `json:"previous_image_url,omitempty"`
	CurrentStep      int            `json:"current_step"`
	TotalSteps       int            `json:"total_steps"`
}

// StoryResponse is the text-phase response shared by begin and advance.
type StoryResponse struct {
	Text        string   `json:"text"`
	Choices     []Choice `json:"choices"`
	ImagePrompt string   `json:"image_prompt"`
	MainQuest   string   `json:"main_quest,omitempty"`
}

// ImageRequest is the generate-image request body.
type ImageRequest struct {
	ImagePrompt         string `json:"image_prompt"`
	PreviousImageURL    string `json:"previous_image_url,omitempty"`
	InitialImageDataURL string `json:"initial_image_data_url,omitempty"`
}

// ImageResponse is the generate-image response body.
type ImageResponse struct {
	ImageURL string `json:"image_url"`
}

// ErrorResponse is the failure body returned by every endpoint.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Provisional converts a text-phase response into a StepResult whose image is
// still pending.
func (r StoryResponse) Provisional() StepResult {
	return StepResult{
		Text:        r.Text,
		Choices:     copyChoices(r.Choices),
		ImagePrompt: r.ImagePrompt,
		MainQuest:   r.MainQuest,
	}
}

// HistoryOf strips images from finalized steps for context passing.
func HistoryOf(steps []StepResult) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(steps))
	for _, s := range steps {
		entries = append(entries, HistoryEntry{
			Text:      s.Text,
			Choices:   copyChoices(s.Choices),
			MainQuest: s.MainQuest,
		})
	}
	return entries
}
