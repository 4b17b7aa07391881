package tui

import (
	"context"
	"errors"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zhouzirui/storyteller/backend/internal/model/story"
	"github.com/zhouzirui/storyteller/backend/internal/service/session"
	"github.com/zhouzirui/storyteller/backend/internal/service/step"
)

// Controller is the part of session.Controller the player drives.
type Controller interface {
	Snapshot() session.State
	Start(ctx context.Context, in session.StartInput) error
	Restart(ctx context.Context, in session.StartInput) error
	Advance(ctx context.Context, action step.Action) error
	Reset()
	Abandon() error
}

// StateMsg carries a controller snapshot into the program.
type StateMsg struct {
	State session.State
}

type doneMsg struct {
	op  string
	err error
}

// Relay forwards controller snapshots to a running program. Attach it before
// the first operation; snapshots arriving earlier are dropped.
type Relay struct {
	mu      sync.Mutex
	program *tea.Program
}

// Attach binds the relay to p.
func (r *Relay) Attach(p *tea.Program) {
	r.mu.Lock()
	r.program = p
	r.mu.Unlock()
}

// Observe is meant for session.WithObserver.
func (r *Relay) Observe(s session.State) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(StateMsg{State: s})
	}
}

const (
	fieldCharacter = iota
	fieldSetting
	fieldLength
	fieldCount
)

type prompt int

const (
	promptNone prompt = iota
	promptAction
	promptRestart
	promptAbandon
)

// Options configures the player.
type Options struct {
	// CharacterImage switches the form to image input mode.
	CharacterImage step.ImageData
}

// Model is the bubbletea model of the terminal player.
type Model struct {
	ctx  context.Context
	ctrl Controller
	opts Options

	form    [fieldCount]string
	field   int
	input   string
	prompt  prompt
	pending bool
	last    session.StartInput
	state   session.State
	status  string
	styles  styles
}

// New creates the player around ctrl.
func New(ctx context.Context, ctrl Controller, opts Options) Model {
	return Model{
		ctx:    ctx,
		ctrl:   ctrl,
		opts:   opts,
		state:  ctrl.Snapshot(),
		styles: defaultStyles(),
	}
}

func (m Model) Init() tea.Cmd { return nil }

// onSetup reports whether the start form is showing.
func (m Model) onSetup() bool {
	return !m.pending && m.state.Mode == session.NotStarted
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StateMsg:
		m.state = msg.State
		return m, nil

	case doneMsg:
		m.pending = false
		m.state = m.ctrl.Snapshot()
		m.status = ""
		if msg.err != nil && errors.Is(msg.err, session.ErrInvalidTransition) {
			m.status = "当前状态下不能执行该操作"
		}
		if m.onSetup() {
			m.field = fieldCharacter
			m.input = m.form[fieldCharacter]
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.onSetup() {
			return m.updateSetup(msg)
		}
		return m.updateStory(msg)
	}
	return m, nil
}

func (m Model) updateSetup(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.form[m.field] = strings.TrimSpace(m.input)
		m.field++
		if m.field < fieldCount {
			m.input = m.form[m.field]
			return m, nil
		}
		m.field = fieldCharacter
		m.input = m.form[fieldCharacter]
		m.last = m.startInput()
		m.pending = true
		m.status = ""
		return m, m.startCmd(m.last)
	case tea.KeyEsc:
		if m.field > fieldCharacter {
			m.form[m.field] = strings.TrimSpace(m.input)
			m.field--
			m.input = m.form[m.field]
		}
		return m, nil
	default:
		m.input = edit(m.input, msg)
		return m, nil
	}
}

func (m Model) updateStory(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.prompt {
	case promptAction:
		switch msg.Type {
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input)
			m.prompt = promptNone
			m.input = ""
			if text == "" {
				return m, nil
			}
			m.pending = true
			return m, m.advanceCmd(step.Action{FreeText: text})
		case tea.KeyEsc:
			m.prompt = promptNone
			m.input = ""
			return m, nil
		default:
			m.input = edit(m.input, msg)
			return m, nil
		}

	case promptRestart, promptAbandon:
		confirmed := msg.String() == "y" || msg.String() == "Y"
		p := m.prompt
		m.prompt = promptNone
		if !confirmed {
			return m, nil
		}
		m.pending = true
		if p == promptRestart {
			return m, m.restartCmd(m.last)
		}
		return m, m.abandonCmd()
	}

	key := msg.String()
	mode := m.state.Mode
	switch {
	case key == "q":
		return m, tea.Quit
	case len(key) == 1 && key[0] >= '1' && key[0] <= '9':
		if mode != session.Interactive || m.state.Active == nil {
			return m, nil
		}
		idx := int(key[0] - '1')
		if idx >= len(m.state.Active.Choices) {
			return m, nil
		}
		m.pending = true
		return m, m.advanceCmd(step.Action{ChoiceID: m.state.Active.Choices[idx].ID})
	case key == "/":
		if mode == session.Interactive {
			m.prompt = promptAction
			m.input = ""
		}
	case key == "r":
		m.prompt = promptRestart
	case key == "a":
		if mode != session.Aborted {
			m.prompt = promptAbandon
		}
	case key == "n":
		if mode == session.Ended || mode == session.Aborted {
			m.pending = true
			return m, m.resetCmd()
		}
	}
	return m, nil
}

func (m Model) startInput() session.StartInput {
	in := session.StartInput{
		InputMode: session.InputText,
		Character: m.form[fieldCharacter],
		Setting:   m.form[fieldSetting],
		Length:    story.LengthMedium,
	}
	if raw := m.form[fieldLength]; raw != "" {
		if l, err := story.ParseLength(raw); err == nil {
			in.Length = l
		} else {
			in.Length = story.Length(raw)
		}
	}
	if m.opts.CharacterImage != "" {
		in.InputMode = session.InputImage
		in.CharacterImage = m.opts.CharacterImage
	}
	return in
}

func (m Model) startCmd(in session.StartInput) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return doneMsg{op: "start", err: ctrl.Start(ctx, in)}
	}
}

func (m Model) restartCmd(in session.StartInput) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return doneMsg{op: "restart", err: ctrl.Restart(ctx, in)}
	}
}

func (m Model) advanceCmd(action step.Action) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return doneMsg{op: "advance", err: ctrl.Advance(ctx, action)}
	}
}

func (m Model) abandonCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return doneMsg{op: "abandon", err: ctrl.Abandon()}
	}
}

func (m Model) resetCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.Reset()
		return doneMsg{op: "reset"}
	}
}

// edit applies a typing key to a single-line buffer.
func edit(buf string, msg tea.KeyMsg) string {
	switch msg.Type {
	case tea.KeyBackspace:
		r := []rune(buf)
		if len(r) == 0 {
			return buf
		}
		return string(r[:len(r)-1])
	case tea.KeySpace:
		return buf + " "
	case tea.KeyRunes:
		return buf + string(msg.Runes)
	default:
		return buf
	}
}
