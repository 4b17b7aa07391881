package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/storyteller/backend/internal/model/story"
	"github.com/zhouzirui/storyteller/backend/internal/service/step"
)

// Runner executes one step and reports its outcomes in order.
type Runner interface {
	RunStep(ctx context.Context, req step.Request, publish func(step.Outcome)) step.Outcome
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers a callback invoked with a snapshot after every
// transition. It runs outside the state lock on the goroutine that caused the
// transition, so it may read the controller but must not block for long.
func WithObserver(fn func(State)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// Controller owns one session and is the only place its state changes.
//
// Every Start, Advance, Reset and Abandon takes a new epoch. Outcomes tagged
// with an older epoch arrive after the session was superseded and are dropped.
type Controller struct {
	runner Runner
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	epoch    uint64
	observer func(State)
}

// NewController creates a controller in the NotStarted mode.
func NewController(runner Runner, opts ...Option) *Controller {
	c := &Controller{
		runner: runner,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("session")
	return c
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Start validates the form input and runs the opening step. It blocks until
// both phases have finished or the session was superseded. Remote failures
// are reported through State.LastError, not the returned error.
func (c *Controller) Start(ctx context.Context, in StartInput) error {
	begin, err := Validate(in)
	if err != nil {
		c.mu.Lock()
		if c.state.Mode == NotStarted {
			c.state.LastError = describe(err)
		}
		snap := c.state.Clone()
		c.mu.Unlock()
		c.notify(snap)
		return err
	}

	c.mu.Lock()
	if c.state.Mode != NotStarted {
		mode := c.state.Mode
		c.mu.Unlock()
		return transitionError("start", mode)
	}
	c.epoch++
	epoch := c.epoch
	c.state = State{
		SessionID:   uuid.NewString(),
		Mode:        AwaitingText,
		TotalSteps:  begin.TotalSteps,
		CurrentStep: 1,
		History:     []story.StepResult{},
		InputMode:   in.InputMode,
		Character:   begin.Character,
	}
	snap := c.state.Clone()
	c.mu.Unlock()

	c.logger.Info("session started",
		zap.String("session_id", snap.SessionID),
		zap.Int("total_steps", snap.TotalSteps),
		zap.Stringer("input_mode", snap.InputMode),
	)
	c.notify(snap)

	c.run(ctx, epoch, step.Request{Begin: &begin})
	return nil
}

// Restart discards the current session and starts a new one.
func (c *Controller) Restart(ctx context.Context, in StartInput) error {
	c.Reset()
	return c.Start(ctx, in)
}

// Advance continues an Interactive session with the player's action. In any
// other mode it returns ErrInvalidTransition and changes nothing.
func (c *Controller) Advance(ctx context.Context, action step.Action) error {
	c.mu.Lock()
	if c.state.Mode != Interactive {
		mode := c.state.Mode
		c.mu.Unlock()
		return transitionError("advance", mode)
	}

	if err := validateAction(action, c.state.Active); err != nil {
		c.state.LastError = describe(err)
		snap := c.state.Clone()
		c.mu.Unlock()
		c.notify(snap)
		return err
	}

	c.epoch++
	epoch := c.epoch
	next := len(c.state.History) + 1
	req := step.Request{Advance: &step.AdvanceInput{
		Action:           action,
		History:          c.state.Clone().History,
		PreviousImageURL: c.state.latestImage(),
		CurrentStep:      next,
		TotalSteps:       c.state.TotalSteps,
	}}
	c.state.Mode = AwaitingText
	c.state.CurrentStep = next
	snap := c.state.Clone()
	c.mu.Unlock()

	c.logger.Info("advancing session",
		zap.String("session_id", snap.SessionID),
		zap.Int("step", next),
		zap.Bool("choice", action.IsChoice()),
	)
	c.notify(snap)

	c.run(ctx, epoch, req)
	return nil
}

// Reset discards everything and returns to NotStarted. It is valid in every
// mode; a step still in flight is superseded.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.epoch++
	c.state = State{Mode: NotStarted}
	snap := c.state.Clone()
	c.mu.Unlock()

	c.logger.Info("session reset")
	c.notify(snap)
}

// Abandon ends a started session early, keeping its finalized history for
// display. Confirmation is the caller's job.
func (c *Controller) Abandon() error {
	c.mu.Lock()
	if c.state.Mode == NotStarted || c.state.Mode == Aborted {
		mode := c.state.Mode
		c.mu.Unlock()
		return transitionError("abandon", mode)
	}
	c.epoch++
	c.state.Mode = Aborted
	c.state.CurrentStep = len(c.state.History)
	c.state.LastError = nil
	snap := c.state.Clone()
	c.mu.Unlock()

	c.logger.Info("session abandoned",
		zap.String("session_id", snap.SessionID),
		zap.Int("step", snap.CurrentStep),
	)
	c.notify(snap)
	return nil
}

func (c *Controller) run(ctx context.Context, epoch uint64, req step.Request) {
	c.runner.RunStep(ctx, req, func(o step.Outcome) {
		c.apply(epoch, o)
	})
}

// apply folds one orchestrator outcome into the state.
func (c *Controller) apply(epoch uint64, o step.Outcome) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		c.logger.Debug("dropping stale outcome", zap.Stringer("kind", o.Kind))
		return
	}

	s := &c.state
	switch o.Kind {
	case step.TextReady:
		if s.Mode != AwaitingText {
			c.mu.Unlock()
			return
		}
		result := o.Result.Clone()
		s.History = append(s.History, result)
		s.Active = &result
		s.CurrentStep = len(s.History)
		s.LastError = nil
		s.Mode = AwaitingImage

	case step.TextFailed:
		if s.Mode != AwaitingText {
			c.mu.Unlock()
			return
		}
		info := describe(o.Err)
		if len(s.History) == 0 {
			*s = State{Mode: NotStarted, LastError: info}
		} else {
			s.CurrentStep = len(s.History)
			s.Mode = settledMode(s.History[len(s.History)-1])
			s.LastError = info
		}

	case step.ImageFailed, step.StepComplete:
		if s.Mode != AwaitingImage || len(s.History) == 0 {
			c.mu.Unlock()
			return
		}
		result := o.Result.Clone()
		s.History[len(s.History)-1] = result
		s.Active = &result
		s.Mode = settledMode(result)
		if o.Kind == step.ImageFailed {
			s.LastError = describe(o.Err)
		} else {
			s.LastError = nil
		}
	}
	snap := s.Clone()
	c.mu.Unlock()

	c.logger.Debug("step outcome applied",
		zap.String("session_id", snap.SessionID),
		zap.Stringer("kind", o.Kind),
		zap.Stringer("mode", snap.Mode),
		zap.Int("step", snap.CurrentStep),
	)
	c.notify(snap)
}

func (c *Controller) notify(snap State) {
	if c.observer != nil {
		c.observer(snap)
	}
}
