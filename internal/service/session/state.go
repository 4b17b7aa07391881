package session

import "github.com/zhouzirui/storyteller/backend/internal/model/story"

// Mode is the session's position in the step state machine.
type Mode int

const (
	NotStarted Mode = iota
	AwaitingText
	AwaitingImage
	Interactive
	Ended
	Aborted
)

func (m Mode) String() string {
	switch m {
	case NotStarted:
		return "not_started"
	case AwaitingText:
		return "awaiting_text"
	case AwaitingImage:
		return "awaiting_image"
	case Interactive:
		return "interactive"
	case Ended:
		return "ended"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Busy reports whether a step is in flight.
func (m Mode) Busy() bool {
	return m == AwaitingText || m == AwaitingImage
}

// InputMode 表示主角是通过文字描述还是上传图片指定的。
type InputMode int

const (
	InputText InputMode = iota
	InputImage
)

func (m InputMode) String() string {
	if m == InputImage {
		return "image"
	}
	return "text"
}

// State is the single record describing a session. Only Controller mutates it;
// callers receive deep copies.
type State struct {
	SessionID   string
	Mode        Mode
	TotalSteps  int
	CurrentStep int
	History     []story.StepResult
	Active      *story.StepResult
	LastError   *ErrorInfo
	InputMode   InputMode
	Character   string
}

// Clone returns a copy that shares nothing with the receiver.
func (s State) Clone() State {
	out := s
	if s.History != nil {
		out.History = make([]story.StepResult, len(s.History))
		for i, h := range s.History {
			out.History[i] = h.Clone()
		}
	}
	if s.Active != nil {
		active := s.Active.Clone()
		out.Active = &active
	}
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	return out
}

// latestImage returns the most recent resolved illustration, or "".
func (s State) latestImage() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if url := s.History[i].ImageURL; url != nil {
			return *url
		}
	}
	return ""
}

// settledMode is the resting mode after a step has finished.
func settledMode(last story.StepResult) Mode {
	if last.Terminal() {
		return Ended
	}
	return Interactive
}
