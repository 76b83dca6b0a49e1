package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	call "github.com/koscakluka/delphi-call/core"
	events "github.com/koscakluka/delphi-call/core/events"
	"github.com/muesli/reflow/wordwrap"
)

const maxLogLines = 200

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

type sessionEventMsg struct {
	event events.Event
}

type opResultMsg struct {
	op  string
	err error
}

type model struct {
	session  *call.Session
	hasAudio bool

	input   textinput.Model
	spinner spinner.Model

	state     call.State
	callID    string
	playing   bool
	recording bool
	sending   bool

	lines []string
	width int
}

func newModel(session *call.Session, hasAudio bool) model {
	input := textinput.New()
	input.Placeholder = "Type a message"
	input.CharLimit = 2000
	input.Focus()

	return model{
		session:  session,
		hasAudio: hasAudio,
		input:    input,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		state:    call.StateIdle,
		width:    80,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "ctrl+n":
			return m, m.run("start", func(ctx context.Context) error {
				_, err := m.session.Start(ctx)
				return err
			})
		case "ctrl+e":
			return m, m.run("end", m.session.End)
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			m.appendLine(userStyle.Render("you: ") + text)
			return m, m.run("send", func(ctx context.Context) error {
				_, err := m.session.SendText(ctx, text)
				return err
			})
		case "ctrl+r":
			if m.session.IsRecording() {
				return m, m.run("stop recording", func(context.Context) error {
					_, err := m.session.StopRecording()
					return err
				})
			}
			return m, m.run("record", m.session.StartRecording)
		case "ctrl+s":
			return m, m.run("send recording", func(ctx context.Context) error {
				_, err := m.session.SendRecording(ctx)
				return err
			})
		}

	case sessionEventMsg:
		m.applyEvent(msg.event)
		return m, nil

	case opResultMsg:
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.appendLine(errorStyle.Render(fmt.Sprintf("%s failed: %v", msg.op, msg.err)))
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// run performs a session operation off the update loop.
func (m model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opResultMsg{op: op, err: fn(context.Background())}
	}
}

func (m *model) applyEvent(event events.Event) {
	switch event := event.(type) {
	case events.StateChanged:
		m.state = call.State(event.To)
	case events.CallStarted:
		m.callID = event.CallID
		m.appendLine(statusStyle.Render("call " + event.CallID + " started"))
	case events.CallEnded:
		m.callID = ""
		m.sending = false
		m.appendLine(statusStyle.Render("call ended"))
	case events.ExchangeStarted:
		m.sending = true
	case events.ExchangeEnded:
		m.sending = false
	case events.PlaybackStateChanged:
		m.playing = event.Playing
	case events.RecordingStateChanged:
		m.recording = event.Recording
	case events.SessionError:
		m.appendLine(errorStyle.Render(fmt.Sprintf("%s: %v", event.Op, event.Err)))
	}
}

func (m *model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Delphi call"))
	b.WriteString("  ")
	b.WriteString(statusStyle.Render(m.status()))
	b.WriteString("\n\n")

	for _, line := range m.lines {
		b.WriteString(wordwrap.String(line, max(m.width-2, 20)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("ctrl+n start • ctrl+e end • enter send • ctrl+r record • ctrl+s send recording • ctrl+c quit"))
	b.WriteString("\n")

	return b.String()
}

func (m model) status() string {
	parts := []string{string(m.state)}
	if m.callID != "" {
		parts = append(parts, m.callID)
	}
	if m.sending {
		parts = append(parts, m.spinner.View()+" replying")
	}
	if m.playing {
		parts = append(parts, "playing")
	}
	if m.recording {
		parts = append(parts, "recording")
	}
	if !m.hasAudio {
		parts = append(parts, "no audio")
	}
	return strings.Join(parts, " | ")
}
