package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/xhad/newsbot/internal/models"
	"github.com/xhad/newsbot/pkg/llm"
	"github.com/xhad/newsbot/pkg/pipeline"
)

// Runner is the TUI-facing subset of pipeline.App.
type Runner interface {
	Process(ctx context.Context, urls []string) (pipeline.ProcessReport, error)
	Ask(ctx context.Context, question string) (models.QueryResult, error)
}

// StatusMsg carries a pipeline state change into the program, see tea.Program.Send.
type StatusMsg pipeline.State

type processedMsg struct {
	report pipeline.ProcessReport
	urls   int
	err    error
}

type answeredMsg struct {
	result models.QueryResult
	err    error
}

const questionField = pipeline.MaxURLs

// Model is the Bubble Tea model for the news research form.
type Model struct {
	ctx     context.Context
	runner  Runner
	inputs  []textinput.Model
	focus   int
	busy    bool
	status  string
	warning string
	err     string
	answer  string
	sources []string
	width   int
}

// New creates the form with three URL fields and a question field.
func New(ctx context.Context, runner Runner) Model {
	inputs := make([]textinput.Model, pipeline.MaxURLs+1)
	for i := range inputs {
		ti := textinput.New()
		ti.CharLimit = 0
		ti.Width = 60
		if i < questionField {
			ti.Prompt = fmt.Sprintf("URL %d: ", i+1)
			ti.Placeholder = "https://"
		} else {
			ti.Prompt = "Question: "
			ti.Placeholder = "Ask about the articles and press Enter"
		}
		inputs[i] = ti
	}
	inputs[0].Focus()

	return Model{ctx: ctx, runner: runner, inputs: inputs}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case StatusMsg:
		if msg.Status != "" {
			m.status = msg.Status
		}
		return m, nil

	case processedMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.status = fmt.Sprintf("%s Indexed %d chunks from %d of %d URLs.",
			pipeline.StagePersisted.Status(), msg.report.Chunks, msg.report.Documents, msg.urls)
		return m, nil

	case answeredMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.status = ""
		m.answer = strings.TrimSpace(msg.result.Answer)
		m.sources = msg.result.Sources
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}

		switch msg.String() {
		case "tab", "down":
			cmd := m.setFocus((m.focus + 1) % len(m.inputs))
			return m, cmd
		case "shift+tab", "up":
			cmd := m.setFocus((m.focus - 1 + len(m.inputs)) % len(m.inputs))
			return m, cmd
		case "enter":
			return m.submit()
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *Model) setFocus(i int) tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = i
	return m.inputs[m.focus].Focus()
}

func (m *Model) setError(err error) {
	m.status = ""
	if pipeline.IsInputError(err) || errors.Is(err, pipeline.ErrBusy) {
		m.warning = err.Error()
		return
	}
	m.err = err.Error()
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	m.warning, m.err = "", ""

	if m.focus == questionField {
		question := m.inputs[questionField].Value()
		m.busy = true
		m.answer, m.sources = "", nil
		m.status = pipeline.StageLoading.Status()
		return m, func() tea.Msg {
			result, err := m.runner.Ask(m.ctx, question)
			return answeredMsg{result: result, err: err}
		}
	}

	urls := make([]string, 0, questionField)
	for _, in := range m.inputs[:questionField] {
		urls = append(urls, in.Value())
	}
	m.busy = true
	m.status = pipeline.StageFetching.Status()
	return m, func() tea.Msg {
		report, err := m.runner.Process(m.ctx, urls)
		return processedMsg{report: report, urls: len(pipeline.CleanURLs(urls)), err: err}
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	headingStyle = lipgloss.NewStyle().Bold(true)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	answerStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("News Article URLs"))
	b.WriteString("\n")
	for _, in := range m.inputs[:questionField] {
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.inputs[questionField].View())
	b.WriteString("\n\n")

	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	if m.warning != "" {
		b.WriteString(warningStyle.Render(m.warning))
		b.WriteString("\n")
	}
	if m.err != "" {
		b.WriteString(errorStyle.Render("Error: " + m.err))
		b.WriteString("\n")
	}

	if m.answer != "" {
		body := headingStyle.Render("Answer: ") + m.answer
		if sources := llm.FormatSources(m.sources); sources != "" {
			body += "\n\n" + sources
		}
		style := answerStyle
		if m.width > 4 {
			style = style.Width(m.width - 4)
		}
		b.WriteString(style.Render(body))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("tab: next field • enter on a URL: process • enter on the question: ask • esc: quit"))
	return b.String()
}
