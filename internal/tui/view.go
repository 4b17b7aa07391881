package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/storyteller/backend/internal/model/story"
	"github.com/zhouzirui/storyteller/backend/internal/service/session"
)

type styles struct {
	title  lipgloss.Style
	label  lipgloss.Style
	active lipgloss.Style
	choice lipgloss.Style
	faint  lipgloss.Style
	err    lipgloss.Style
	box    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		label:  lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		active: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		choice: lipgloss.NewStyle().Foreground(lipgloss.Color("229")),
		faint:  lipgloss.NewStyle().Faint(true),
		err:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		box:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(72),
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render("互动故事"))
	b.WriteString("\n\n")

	if m.onSetup() {
		m.viewSetup(&b)
	} else {
		m.viewStory(&b)
	}

	if e := m.state.LastError; e != nil {
		b.WriteString("\n")
		b.WriteString(m.styles.err.Render(errorLine(e)))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.faint.Render(m.status))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) viewSetup(b *strings.Builder) {
	labels := [fieldCount]string{"主角描述", "故事场景", "故事长度 (short/medium/long，默认 medium)"}
	if m.opts.CharacterImage != "" {
		labels[fieldCharacter] = "主角名字 (可选，已载入主角图片)"
	}

	for i := 0; i < fieldCount; i++ {
		value := m.form[i]
		line := m.styles.label.Render(labels[i] + ": ")
		if i == m.field {
			line = m.styles.active.Render("> "+labels[i]+": ") + m.input + "█"
		} else {
			line += value
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.styles.faint.Render("enter 下一项 · esc 上一项 · ctrl+c 退出"))
	b.WriteString("\n")
}

func (m Model) viewStory(b *strings.Builder) {
	s := m.state
	fmt.Fprintf(b, "%s %d/%d · %s\n\n",
		m.styles.label.Render("进度"), s.CurrentStep, s.TotalSteps, modeLabel(s.Mode))

	if s.Mode == session.AwaitingText || (m.pending && s.Active == nil) {
		b.WriteString(m.styles.faint.Render("正在编写故事…"))
		b.WriteString("\n")
	}

	if s.Active != nil {
		b.WriteString(m.styles.box.Render(s.Active.Text))
		b.WriteString("\n")
		b.WriteString(m.imageLine(s.Active, s.Mode))
		b.WriteString("\n\n")
		for i, c := range s.Active.Choices {
			b.WriteString(m.styles.choice.Render(fmt.Sprintf("%d. %s", i+1, c.Text)))
			b.WriteString("\n")
		}
	}

	switch s.Mode {
	case session.Ended:
		b.WriteString(m.styles.active.Render("故事完结。"))
		b.WriteString("\n")
	case session.Aborted:
		b.WriteString(m.styles.active.Render("故事已放弃。"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch m.prompt {
	case promptAction:
		b.WriteString(m.styles.active.Render("你的行动: ") + m.input + "█")
		b.WriteString("\n")
		b.WriteString(m.styles.faint.Render("enter 提交 · esc 取消"))
	case promptRestart:
		b.WriteString(m.styles.active.Render("确定重新开始？(y/n)"))
	case promptAbandon:
		b.WriteString(m.styles.active.Render("确定放弃当前故事？(y/n)"))
	default:
		b.WriteString(m.styles.faint.Render(helpLine(s.Mode)))
	}
	b.WriteString("\n")
}

func (m Model) imageLine(step *story.StepResult, mode session.Mode) string {
	switch {
	case mode == session.AwaitingImage:
		return m.styles.faint.Render("插图生成中…")
	case step.ImageURL != nil:
		return m.styles.label.Render("插图: ") + *step.ImageURL
	default:
		return m.styles.faint.Render("本步没有插图")
	}
}

func helpLine(mode session.Mode) string {
	switch mode {
	case session.Interactive:
		return "1-9 选择 · / 自由行动 · r 重新开始 · a 放弃 · q 退出"
	case session.Ended, session.Aborted:
		return "n 新故事 · r 重新开始 · q 退出"
	default:
		return "r 重新开始 · a 放弃 · q 退出"
	}
}

func modeLabel(mode session.Mode) string {
	switch mode {
	case session.AwaitingText:
		return "等待故事"
	case session.AwaitingImage:
		return "等待插图"
	case session.Interactive:
		return "请选择"
	case session.Ended:
		return "已完结"
	case session.Aborted:
		return "已放弃"
	default:
		return "未开始"
	}
}

func errorLine(e *session.ErrorInfo) string {
	if e.Status > 0 {
		return fmt.Sprintf("错误 (%d): %s", e.Status, e.Message)
	}
	return "错误: " + e.Message
}
