package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/gfs/pkg/client"
	"github.com/rmax-ai/gfs/pkg/feature"
)

const (
	pollRate       = 5 * time.Second
	requestTimeout = 2 * time.Second
	viewportHeight = 20
)

// Styles
var (
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	edgeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	derivedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(40)
)

// registry is what the browser reads from the daemon.
type registry interface {
	ListEntities(ctx context.Context) ([]feature.Entity, error)
	FieldsOf(ctx context.Context, entityName string) ([]feature.Field, error)
}

type tickMsg time.Time

type entitiesMsg struct {
	entities []feature.Entity
	err      error
}

type fieldsMsg struct {
	entity string
	fields []feature.Field
	err    error
}

type model struct {
	api      registry
	spinner  spinner.Model
	viewport viewport.Model
	entities []feature.Entity
	cursor   int
	fields   []feature.Field
	err      error
	ready    bool
}

func initialModel(api registry) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	vp := viewport.New(60, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)

	return model{api: api, spinner: s, viewport: vp}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, fetchEntities(m.api), tick())
}

func (m model) selected() (feature.Entity, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entities) {
		return feature.Entity{}, false
	}
	return m.entities[m.cursor], true
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				return m, m.fetchSelected()
			}
			return m, nil
		case "down", "j":
			if m.cursor < len(m.entities)-1 {
				m.cursor++
				return m, m.fetchSelected()
			}
			return m, nil
		case "r":
			return m, fetchEntities(m.api)
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, fetchEntities(m.api), tick())

	case entitiesMsg:
		m.ready = true
		if msg.err != nil {
			m.err = msg.err
			break
		}
		m.err = nil
		prev, hadPrev := m.selected()
		m.entities = msg.entities
		m.cursor = 0
		if hadPrev {
			for i, e := range m.entities {
				if e.ResourceID() == prev.ResourceID() {
					m.cursor = i
				}
			}
		}
		cmds = append(cmds, m.fetchSelected())

	case fieldsMsg:
		if cur, ok := m.selected(); !ok || cur.Name != msg.entity {
			break
		}
		if msg.err != nil {
			m.err = msg.err
			break
		}
		m.err = nil
		m.fields = msg.fields
		m.viewport.SetContent(renderFields(msg.entity, msg.fields))

	case tea.WindowSizeMsg:
		m.viewport.Width = max(msg.Width-44, 20)
		m.viewport.Height = viewportHeight
	}

	return m, tea.Batch(cmds...)
}

func renderFields(entity string, fields []feature.Field) string {
	if len(fields) == 0 {
		return subtleStyle.Render(fmt.Sprintf("No fields registered for %s.", entity))
	}
	var sb strings.Builder
	for _, f := range fields {
		line := fmt.Sprintf("%-24s %s", f.Name, f.ValueType)
		if f.Variant != "" {
			line += subtleStyle.Render(" @" + f.Variant)
		}
		if f.IsDerived() {
			line += " " + derivedStyle.Render("<- "+string(f.TransformationID))
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Connecting...", m.spinner.View())
	}

	var list strings.Builder
	list.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Entities") + "\n\n")
	if len(m.entities) == 0 {
		list.WriteString(subtleStyle.Render("No entities registered."))
	}
	for i, e := range m.entities {
		name := e.Name
		if e.Variant != "" {
			name += " @" + e.Variant
		}
		if e.IsEdge() {
			name = edgeStyle.Render(name + " (edge)")
		}
		if i == m.cursor {
			list.WriteString(selectedStyle.Render("> ") + name + "\n")
		} else {
			list.WriteString("  " + name + "\n")
		}
	}

	title := "Fields"
	if e, ok := m.selected(); ok {
		title = fmt.Sprintf("Fields of %s", e.Name)
	}
	right := lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render(fmt.Sprintf("%s %s", m.spinner.View(), title)),
		m.viewport.View(),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top, paneStyle.Render(list.String()), right)

	var status string
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Offline: %v", m.err))
	} else {
		status = okStyle.Render(fmt.Sprintf("Online • %d Entities • %d Fields", len(m.entities), len(m.fields)))
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\n↑/↓ select • r refresh • q quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

// Commands

func fetchEntities(api registry) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		entities, err := api.ListEntities(ctx)
		return entitiesMsg{entities: entities, err: err}
	}
}

func (m model) fetchSelected() tea.Cmd {
	e, ok := m.selected()
	if !ok {
		return nil
	}
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		fields, err := api.FieldsOf(ctx, e.Name)
		return fieldsMsg{entity: e.Name, fields: fields, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func main() {
	endpoint := flag.String("endpoint", envOrDefault("GFS_ENDPOINT", client.DefaultEndpoint), "gfs-d address")
	flag.Parse()

	p := tea.NewProgram(initialModel(client.NewClient(*endpoint)), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
