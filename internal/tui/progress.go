// Package tui renders the provisioning pipeline's progress live. The driver
// publishes stage events over a channel; this view only displays them and
// never feeds input back into the run.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Status is the display state of one pipeline stage.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusDone
	StatusFailed
	StatusSkipped
)

// Event is one stage transition published by the driver.
type Event struct {
	Stage  string
	Status Status
	Reason string
	Err    error
}

type step struct {
	label  string
	status Status
	note   string
}

type eventMsg struct {
	event Event
	ok    bool
}

type model struct {
	title   string
	steps   []step
	index   map[string]int
	spinner spinner.Model
	events  <-chan Event
	done    bool
	errMsg  string
}

func newModel(title string, stages []string, events <-chan Event) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	steps := make([]step, len(stages))
	index := make(map[string]int, len(stages))
	for i, name := range stages {
		steps[i] = step{label: name}
		index[name] = i
	}
	return model{title: title, steps: steps, index: index, spinner: sp, events: events}
}

// Run displays the pipeline until the event channel closes.
func Run(title string, stages []string, events <-chan Event) error {
	_, err := tea.NewProgram(newModel(title, stages, events)).Run()
	return err
}

func waitEvent(events <-chan Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		return eventMsg{event: event, ok: ok}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitEvent(m.events))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		if !msg.ok {
			m.done = true
			return m, tea.Quit
		}
		if i, ok := m.index[msg.event.Stage]; ok {
			m.steps[i].status = msg.event.Status
			m.steps[i].note = msg.event.Reason
			if msg.event.Err != nil {
				m.errMsg = msg.event.Err.Error()
			}
		}
		return m, waitEvent(m.events)

	case tea.KeyMsg:
		// The run keeps going in the background; only the view closes.
		if msg.String() == "ctrl+c" {
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	for _, s := range m.steps {
		var icon string
		switch s.status {
		case StatusPending:
			icon = mutedStyle.Render("  ")
		case StatusRunning:
			icon = m.spinner.View()
		case StatusDone:
			icon = successStyle.Render("OK")
		case StatusFailed:
			icon = errorStyle.Render("XX")
		case StatusSkipped:
			icon = mutedStyle.Render("--")
		}
		line := s.label
		if s.note != "" {
			line += " " + mutedStyle.Render("("+s.note+")")
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", icon, normalStyle.Render(line)))
	}

	if m.errMsg != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("  Error: " + m.errMsg))
		b.WriteString("\n")
	}
	if !m.done {
		b.WriteString(helpStyle.Render("\n  running..."))
	}

	return b.String()
}
