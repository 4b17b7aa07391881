package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/storyteller/backend/internal/model/story"
	"github.com/zhouzirui/storyteller/backend/internal/service/session"
	"github.com/zhouzirui/storyteller/backend/internal/service/step"
)

type fakeController struct {
	state     session.State
	started   []session.StartInput
	restarted []session.StartInput
	actions   []step.Action
	resets    int
	abandons  int
	err       error
}

func (f *fakeController) Snapshot() session.State { return f.state }

func (f *fakeController) Start(_ context.Context, in session.StartInput) error {
	f.started = append(f.started, in)
	return f.err
}

func (f *fakeController) Restart(_ context.Context, in session.StartInput) error {
	f.restarted = append(f.restarted, in)
	return f.err
}

func (f *fakeController) Advance(_ context.Context, a step.Action) error {
	f.actions = append(f.actions, a)
	return f.err
}

func (f *fakeController) Reset() {
	f.resets++
	f.state = session.State{}
}

func (f *fakeController) Abandon() error {
	f.abandons++
	return f.err
}

func interactiveState() session.State {
	url := "http://127.0.0.1:8080/images/1.png"
	return session.State{
		Mode:        session.Interactive,
		TotalSteps:  5,
		CurrentStep: 1,
		Active: &story.StepResult{
			Text:     "狐狸走进森林",
			Choices:  []story.Choice{{ID: "A", Text: "向前"}, {ID: "B", Text: "回家"}},
			ImageURL: &url,
		},
	}
}

func keys(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, msgs ...tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		next, c := m.Update(msg)
		m = next.(Model)
		cmd = c
	}
	return m, cmd
}

// run executes cmd and feeds its message back like the runtime would.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	m, _ = press(t, m, cmd())
	return m
}

func TestSetupFormStartsStory(t *testing.T) {
	ctrl := &fakeController{}
	m := New(context.Background(), ctrl, Options{})

	m, _ = press(t, m, keys("狐狸"), tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = press(t, m, keys("森林"), tea.KeyMsg{Type: tea.KeySpace}, keys("深处"), tea.KeyMsg{Type: tea.KeyEnter})
	m, cmd := press(t, m, keys("Short"), tea.KeyMsg{Type: tea.KeyEnter})

	assert.True(t, m.pending)
	assert.Contains(t, m.View(), "正在编写故事")

	ctrl.state = interactiveState()
	m = run(t, m, cmd)

	require.Len(t, ctrl.started, 1)
	got := ctrl.started[0]
	assert.Equal(t, session.InputText, got.InputMode)
	assert.Equal(t, "狐狸", got.Character)
	assert.Equal(t, "森林 深处", got.Setting)
	assert.Equal(t, story.LengthShort, got.Length)
	assert.False(t, m.onSetup())
}

func TestSetupDefaultsToMediumAndImageMode(t *testing.T) {
	ctrl := &fakeController{}
	m := New(context.Background(), ctrl, Options{CharacterImage: "data:image/png;base64,AAAA"})

	assert.Contains(t, m.View(), "已载入主角图片")

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter}, keys("城堡"), tea.KeyMsg{Type: tea.KeyEnter})
	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	cmd()

	require.Len(t, ctrl.started, 1)
	got := ctrl.started[0]
	assert.Equal(t, session.InputImage, got.InputMode)
	assert.Equal(t, step.ImageData("data:image/png;base64,AAAA"), got.CharacterImage)
	assert.Empty(t, got.Character)
	assert.Equal(t, story.LengthMedium, got.Length)
}

func TestSetupEditing(t *testing.T) {
	m := New(context.Background(), &fakeController{}, Options{})

	m, _ = press(t, m, keys("狐狸x"), tea.KeyMsg{Type: tea.KeyBackspace})
	assert.Equal(t, "狐狸", m.input)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter}, keys("q"))
	assert.Equal(t, fieldSetting, m.field)
	assert.Equal(t, "q", m.input)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, fieldCharacter, m.field)
	assert.Equal(t, "狐狸", m.input)
	assert.Equal(t, "q", m.form[fieldSetting])
}

func TestFailedStartReturnsToSetupWithError(t *testing.T) {
	ctrl := &fakeController{}
	m := New(context.Background(), ctrl, Options{})
	m, cmd := press(t, m,
		keys("狐狸"), tea.KeyMsg{Type: tea.KeyEnter},
		keys("森林"), tea.KeyMsg{Type: tea.KeyEnter},
		tea.KeyMsg{Type: tea.KeyEnter},
	)

	ctrl.state = session.State{
		Mode:      session.NotStarted,
		LastError: &session.ErrorInfo{Kind: session.KindRemote, Status: 500, Message: "AI response was not valid JSON."},
	}
	m = run(t, m, cmd)

	assert.True(t, m.onSetup())
	assert.Equal(t, "狐狸", m.input)
	view := m.View()
	assert.Contains(t, view, "错误 (500): AI response was not valid JSON.")
	assert.Contains(t, view, "主角描述")
}

func TestChoiceKeysAdvance(t *testing.T) {
	ctrl := &fakeController{state: interactiveState()}
	m := New(context.Background(), ctrl, Options{})

	m, cmd := press(t, m, keys("9"))
	assert.Nil(t, cmd)

	m, cmd = press(t, m, keys("2"))
	run(t, m, cmd)

	require.Len(t, ctrl.actions, 1)
	assert.Equal(t, step.Action{ChoiceID: "B"}, ctrl.actions[0])
}

func TestChoiceKeysIgnoredWhileBusy(t *testing.T) {
	st := interactiveState()
	st.Mode = session.AwaitingImage
	ctrl := &fakeController{state: st}
	m := New(context.Background(), ctrl, Options{})

	_, cmd := press(t, m, keys("1"))

	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "插图生成中")
}

func TestFreeAction(t *testing.T) {
	ctrl := &fakeController{state: interactiveState()}
	m := New(context.Background(), ctrl, Options{})

	m, _ = press(t, m, keys("/"), keys("爬树"))
	assert.Contains(t, m.View(), "你的行动: 爬树")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	run(t, m, cmd)

	require.Len(t, ctrl.actions, 1)
	assert.Equal(t, step.Action{FreeText: "爬树"}, ctrl.actions[0])
}

func TestFreeActionCancelAndBlank(t *testing.T) {
	ctrl := &fakeController{state: interactiveState()}
	m := New(context.Background(), ctrl, Options{})

	m, cmd := press(t, m, keys("/"), keys("跳"), tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, cmd)
	assert.Equal(t, promptNone, m.prompt)

	_, cmd = press(t, m, keys("/"), tea.KeyMsg{Type: tea.KeySpace}, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, ctrl.actions)
}

func TestRestartNeedsConfirmation(t *testing.T) {
	ctrl := &fakeController{state: interactiveState()}
	m := New(context.Background(), ctrl, Options{})
	m.last = session.StartInput{Character: "狐狸", Setting: "森林", Length: story.LengthLong}

	m, cmd := press(t, m, keys("r"))
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "确定重新开始")

	m, cmd = press(t, m, keys("n"))
	assert.Nil(t, cmd)
	assert.Empty(t, ctrl.restarted)

	m, _ = press(t, m, keys("r"))
	m, cmd = press(t, m, keys("y"))
	run(t, m, cmd)

	require.Len(t, ctrl.restarted, 1)
	assert.Equal(t, story.LengthLong, ctrl.restarted[0].Length)
}

func TestAbandonNeedsConfirmation(t *testing.T) {
	ctrl := &fakeController{state: interactiveState()}
	m := New(context.Background(), ctrl, Options{})

	m, _ = press(t, m, keys("a"))
	assert.Contains(t, m.View(), "确定放弃当前故事")

	m, cmd := press(t, m, keys("y"))
	ctrl.state.Mode = session.Aborted
	m = run(t, m, cmd)

	assert.Equal(t, 1, ctrl.abandons)
	assert.Contains(t, m.View(), "故事已放弃")
}

func TestNewStoryAfterEnd(t *testing.T) {
	st := interactiveState()
	st.Mode = session.Ended
	st.Active.Choices = nil
	ctrl := &fakeController{state: st}
	m := New(context.Background(), ctrl, Options{})
	m.form = [fieldCount]string{"狐狸", "森林", "short"}

	assert.Contains(t, m.View(), "故事完结")

	m, cmd := press(t, m, keys("n"))
	m = run(t, m, cmd)

	assert.Equal(t, 1, ctrl.resets)
	assert.True(t, m.onSetup())
	assert.Equal(t, "狐狸", m.input)
}

func TestInvalidTransitionShowsStatus(t *testing.T) {
	ctrl := &fakeController{state: interactiveState(), err: session.ErrInvalidTransition}
	m := New(context.Background(), ctrl, Options{})

	m, cmd := press(t, m, keys("1"))
	m = run(t, m, cmd)

	assert.Contains(t, m.View(), "当前状态下不能执行该操作")
}

func TestStateMsgUpdatesView(t *testing.T) {
	ctrl := &fakeController{}
	m := New(context.Background(), ctrl, Options{})

	st := interactiveState()
	st.Active.ImageURL = nil
	m, _ = press(t, m, StateMsg{State: st})

	view := m.View()
	assert.Contains(t, view, "进度 1/5")
	assert.Contains(t, view, "1. 向前")
	assert.Contains(t, view, "本步没有插图")
}

func TestQuit(t *testing.T) {
	m := New(context.Background(), &fakeController{state: interactiveState()}, Options{})

	_, cmd := press(t, m, keys("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	setup := New(context.Background(), &fakeController{}, Options{})
	_, cmd = press(t, setup, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
