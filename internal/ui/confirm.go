package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ConfirmResult is the decision taken on a release plan.
type ConfirmResult int

const (
	// ConfirmPending means no decision has been made yet.
	ConfirmPending ConfirmResult = iota
	// ConfirmAccepted means the plan should be applied.
	ConfirmAccepted
	// ConfirmRejected means nothing should be written.
	ConfirmRejected
)

// PlanRow is one package release shown for confirmation.
type PlanRow struct {
	Name       string
	OldVersion string
	NewVersion string
	Bump       string
}

// PlanSummary is the data rendered by the confirmation screen.
type PlanSummary struct {
	Rows     []PlanRow
	Entries  int
	Warnings []string
}

// ConfirmModel asks whether a release plan should be applied.
type ConfirmModel struct {
	summary  PlanSummary
	viewport viewport.Model
	result   ConfirmResult
	ready    bool
	keymap   confirmKeyMap
	styles   confirmStyles
}

type confirmKeyMap struct {
	Approve key.Binding
	Reject  key.Binding
	Up      key.Binding
	Down    key.Binding
}

type confirmStyles struct {
	title   lipgloss.Style
	name    lipgloss.Style
	subtle  lipgloss.Style
	version lipgloss.Style
	warning lipgloss.Style
	border  lipgloss.Style
	bump    map[string]lipgloss.Style
}

func defaultConfirmKeyMap() confirmKeyMap {
	return confirmKeyMap{
		Approve: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "apply"),
		),
		Reject: key.NewBinding(
			key.WithKeys("n", "N", "q", "esc", "ctrl+c"),
			key.WithHelp("n", "abort"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("k/up", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("j/down", "scroll down"),
		),
	}
}

func defaultConfirmStyles() confirmStyles {
	return confirmStyles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).Padding(0, 1),
		name:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		subtle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		version: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 1),
		bump: map[string]lipgloss.Style{
			"major": lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
			"minor": lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			"patch": lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		},
	}
}

// NewConfirmModel creates the confirmation screen for summary.
func NewConfirmModel(summary PlanSummary) ConfirmModel {
	return ConfirmModel{
		summary: summary,
		result:  ConfirmPending,
		keymap:  defaultConfirmKeyMap(),
		styles:  defaultConfirmStyles(),
	}
}

// Result returns the decision.
func (m ConfirmModel) Result() ConfirmResult {
	return m.result
}

// Init implements tea.Model.
func (m ConfirmModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := msg.Height - 6
		if height < 3 {
			height = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width-2, height)
			m.viewport.SetContent(m.renderRows())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 2
			m.viewport.Height = height
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Approve):
			m.result = ConfirmAccepted
			return m, tea.Quit
		case key.Matches(msg, m.keymap.Reject):
			m.result = ConfirmRejected
			return m, tea.Quit
		case key.Matches(msg, m.keymap.Up), key.Matches(msg, m.keymap.Down):
			if m.ready {
				m.viewport, cmd = m.viewport.Update(msg)
			}
			return m, cmd
		}
	}

	return m, cmd
}

// View implements tea.Model.
func (m ConfirmModel) View() string {
	var b strings.Builder

	b.WriteString(m.styles.title.Render("Release Plan"))
	b.WriteString("\n")
	b.WriteString(m.styles.subtle.Render(fmt.Sprintf("%d changelog(s), %d package(s)", m.summary.Entries, len(m.summary.Rows))))
	b.WriteString("\n\n")

	if m.ready {
		b.WriteString(m.styles.border.Render(m.viewport.View()))
	} else {
		b.WriteString(m.renderRows())
	}
	b.WriteString("\n")

	for _, w := range m.summary.Warnings {
		b.WriteString(m.styles.warning.Render("⚠ " + w))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.styles.subtle.Render("Apply these versions? [y/n]"))
	b.WriteString("\n")
	return b.String()
}

func (m ConfirmModel) renderRows() string {
	var b strings.Builder
	width := 0
	for _, r := range m.summary.Rows {
		if len(r.Name) > width {
			width = len(r.Name)
		}
	}
	for _, r := range m.summary.Rows {
		bump, ok := m.styles.bump[r.Bump]
		if !ok {
			bump = m.styles.subtle
		}
		fmt.Fprintf(&b, "• %s %s → %s (%s)\n",
			m.styles.name.Render(fmt.Sprintf("%-*s", width, r.Name)),
			m.styles.subtle.Render(r.OldVersion),
			m.styles.version.Render(r.NewVersion),
			bump.Render(r.Bump))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// RunConfirm shows summary on in/out and reports whether the user accepted.
func RunConfirm(summary PlanSummary, in io.Reader, out io.Writer) (bool, error) {
	final, err := tea.NewProgram(NewConfirmModel(summary), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return final.(ConfirmModel).Result() == ConfirmAccepted, nil
}
