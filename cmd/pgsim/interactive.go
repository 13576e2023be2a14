package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/pgbridge/datum"
	"github.com/wippyai/pgbridge/errors"
	"github.com/wippyai/pgbridge/fcall"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0E68C"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err      error
	session  *session
	report   *errors.Report
	title    string
	result   string
	notices  []string
	funcs    []fcall.Signature
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
	cancel   bool
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(s *session, title string) *interactiveModel {
	m := &interactiveModel{
		session: s,
		title:   title,
		state:   stateSelectFunc,
	}
	for _, name := range s.registry.Names() {
		m.funcs = append(m.funcs, s.registry.Overloads(name)...)
	}
	return m
}

type callResultMsg struct {
	err     error
	report  *errors.Report
	result  string
	notices []string
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "c":
			if m.state == stateSelectFunc {
				m.cancel = !m.cancel
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.clearResult()
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.clearResult()
			}
		}

	case callResultMsg:
		m.result = msg.result
		m.report = msg.report
		m.notices = msg.notices
		m.err = msg.err
		m.cancel = false
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) clearResult() {
	m.state = stateSelectFunc
	m.result = ""
	m.report = nil
	m.notices = nil
	m.err = nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.Args))
	for i, t := range f.Args {
		ti := textinput.New()
		ti.Placeholder = datum.TypeName(t)
		ti.Prompt = fmt.Sprintf("$%d: ", i+1)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	f := m.funcs[m.selected]
	args := make([]arg, len(m.inputs))
	for i, input := range m.inputs {
		v := input.Value()
		args[i] = arg{typ: f.Args[i], value: v, null: v == "NULL"}
	}

	out, err := m.session.call(f.Name, args, m.cancel)
	var notices []string
	for _, n := range m.session.engine.Notices() {
		notices = append(notices, n.String())
	}
	if err != nil {
		return callResultMsg{err: err, notices: notices}
	}
	return callResultMsg{report: out.report, result: out.String(), notices: notices}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("pgsim"))
	if m.title != "" {
		b.WriteString(" ")
		b.WriteString(m.title)
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatFunc(f)))
			} else {
				b.WriteString("  " + formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.cancel {
			b.WriteString(noticeStyle.Render("query cancel armed for the next call"))
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • c arm cancel • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.String())))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(datum.TypeName(f.Args[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("NULL for null • tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.String())))
		for _, n := range m.notices {
			b.WriteString(noticeStyle.Render(n))
			b.WriteString("\n")
		}
		switch {
		case m.err != nil:
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		case m.report != nil:
			b.WriteString(errorStyle.Render(m.report.String()))
		default:
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatFunc(f fcall.Signature) string {
	params := make([]string, len(f.Args))
	for i, t := range f.Args {
		params[i] = typeStyle.Render(datum.TypeName(t))
	}
	return funcStyle.Render(f.Name) + "(" + strings.Join(params, ", ") + ") -> " + typeStyle.Render(datum.TypeName(f.Result))
}

func runInteractive(s *session, title string) error {
	p := tea.NewProgram(newInteractiveModel(s, title), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
