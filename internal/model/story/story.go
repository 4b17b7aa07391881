package story

// Choice is one selectable continuation offered at the end of a step.
type Choice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// StepResult is the outcome of one narrative beat.
//
// ImageURL stays nil while the illustration is pending and remains nil for good
// when image generation failed. An empty Choices slice marks the terminal step.
type StepResult struct {
	Text        string   `json:"text"`
	Choices     []Choice `json:"choices"`
	ImagePrompt string   `json:"imagePrompt,omitempty"`
	ImageURL    *string  `json:"imageUrl"`
	MainQuest   string   `json:"mainQuest,omitempty"`
}

// Terminal 表示该步是否为故事结尾。
func (r StepResult) Terminal() bool {
	return len(r.Choices) == 0
}

// Clone returns a deep copy so snapshots never share slices with live state.
func (r StepResult) Clone() StepResult {
	out := r
	out.Choices = copyChoices(r.Choices)
	if r.ImageURL != nil {
		url := *r.ImageURL
		out.ImageURL = &url
	}
	return out
}

// WithImage returns a copy carrying the resolved illustration. The prompt is
// dropped because it is only meaningful until the image exists.
func (r StepResult) WithImage(url string) StepResult {
	out := r.Clone()
	out.ImageURL = &url
	out.ImagePrompt = ""
	return out
}

// FindChoice looks up a choice by identifier.
func (r StepResult) FindChoice(id string) (Choice, bool) {
	for _, c := range r.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// copyChoices always returns a non-nil slice so a terminal step encodes as [].
func copyChoices(in []Choice) []Choice {
	out := make([]Choice, len(in))
	copy(out, in)
	return out
}
