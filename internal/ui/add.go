// Package ui provides the interactive terminal prompts of the changelogs CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/relicta-tech/changelogs/internal/domain/entry"
	"github.com/relicta-tech/changelogs/internal/domain/version"
)

type addStep int

const (
	stepPackages addStep = iota
	stepBumps
	stepSummary
	stepDone
)

var bumpChoices = []version.BumpType{version.BumpPatch, version.BumpMinor, version.BumpMajor}

// AddResult is what the add prompt collected.
type AddResult struct {
	Releases []entry.Release
	Summary  string
	Canceled bool
}

// editorFinishedMsg carries the text written in the external editor.
type editorFinishedMsg struct {
	content string
	err     error
}

// AddModel is the Bubble Tea model for "changelogs add". It asks for the
// packages to release, a bump per package and a summary. An empty summary
// opens $EDITOR.
type AddModel struct {
	packages []string
	selected map[int]bool
	cursor   int
	step     addStep

	chosen     []string
	bumps      []version.BumpType
	bumpCursor int

	input  textinput.Model
	editor func(path string) *exec.Cmd

	result AddResult
	err    error
	notice string
	keymap addKeyMap
	styles addStyles
}

type addKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	Confirm key.Binding
	Quit    key.Binding
}

type addStyles struct {
	title    lipgloss.Style
	cursor   lipgloss.Style
	selected lipgloss.Style
	subtle   lipgloss.Style
	warning  lipgloss.Style
	bump     map[version.BumpType]lipgloss.Style
}

func defaultAddKeyMap() addKeyMap {
	return addKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" ", "x"),
			key.WithHelp("space", "toggle"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

func defaultAddStyles() addStyles {
	return addStyles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		cursor:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		selected: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		subtle:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		warning:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		bump: map[version.BumpType]lipgloss.Style{
			version.BumpPatch: lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
			version.BumpMinor: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			version.BumpMajor: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		},
	}
}

// NewAddModel creates the prompt for packages. A single package is
// selected without asking.
func NewAddModel(packages []string) AddModel {
	ti := textinput.New()
	ti.Placeholder = "leave empty to open your editor"
	ti.CharLimit = 0
	ti.Width = 72

	m := AddModel{
		packages: packages,
		selected: make(map[int]bool),
		input:    ti,
		editor:   defaultEditor,
		keymap:   defaultAddKeyMap(),
		styles:   defaultAddStyles(),
	}
	if len(packages) == 1 {
		m.selected[0] = true
		m.chosen = []string{packages[0]}
		m.step = stepBumps
	}
	return m
}

// WithEditor replaces the command used to edit the summary.
func (m AddModel) WithEditor(fn func(path string) *exec.Cmd) AddModel {
	m.editor = fn
	return m
}

// Result returns the collected answers.
func (m AddModel) Result() AddResult {
	return m.result
}

// Err returns the error that ended the prompt, if any.
func (m AddModel) Err() error {
	return m.err
}

// Init implements tea.Model.
func (m AddModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m AddModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case editorFinishedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.result.Canceled = true
			m.step = stepDone
			return m, tea.Quit
		}
		return m.finish(msg.content)

	case tea.KeyMsg:
		if key.Matches(msg, m.keymap.Quit) {
			m.result.Canceled = true
			m.step = stepDone
			return m, tea.Quit
		}
		switch m.step {
		case stepPackages:
			return m.updatePackages(msg)
		case stepBumps:
			return m.updateBumps(msg)
		case stepSummary:
			return m.updateSummary(msg)
		}
	}
	return m, nil
}

func (m AddModel) updatePackages(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keymap.Down):
		if m.cursor < len(m.packages)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keymap.Toggle):
		m.selected[m.cursor] = !m.selected[m.cursor]
		m.notice = ""
	case key.Matches(msg, m.keymap.Confirm):
		m.chosen = m.chosen[:0]
		for i, name := range m.packages {
			if m.selected[i] {
				m.chosen = append(m.chosen, name)
			}
		}
		if len(m.chosen) == 0 {
			m.notice = "Select at least one package"
			return m, nil
		}
		m.step = stepBumps
	}
	return m, nil
}

func (m AddModel) updateBumps(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Up):
		if m.bumpCursor > 0 {
			m.bumpCursor--
		}
	case key.Matches(msg, m.keymap.Down):
		if m.bumpCursor < len(bumpChoices)-1 {
			m.bumpCursor++
		}
	case key.Matches(msg, m.keymap.Confirm):
		m.bumps = append(m.bumps, bumpChoices[m.bumpCursor])
		m.bumpCursor = 0
		if len(m.bumps) == len(m.chosen) {
			m.step = stepSummary
			return m, m.input.Focus()
		}
	}
	return m, nil
}

func (m AddModel) updateSummary(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keymap.Confirm) {
		if strings.TrimSpace(m.input.Value()) == "" {
			return m, m.openEditor()
		}
		return m.finish(m.input.Value())
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m AddModel) finish(summary string) (tea.Model, tea.Cmd) {
	releases := make([]entry.Release, len(m.chosen))
	for i, name := range m.chosen {
		releases[i] = entry.Release{Package: name, Bump: m.bumps[i]}
	}
	m.result = AddResult{Releases: releases, Summary: strings.TrimSpace(summary)}
	m.step = stepDone
	return m, tea.Quit
}

func (m AddModel) openEditor() tea.Cmd {
	f, err := os.CreateTemp("", "changelog-*.md")
	if err != nil {
		return func() tea.Msg { return editorFinishedMsg{err: err} }
	}
	path := f.Name()
	_ = f.Close()

	return tea.ExecProcess(m.editor(path), func(err error) tea.Msg {
		defer os.Remove(path)
		if err != nil {
			return editorFinishedMsg{err: fmt.Errorf("editor failed: %w", err)}
		}
		data, err := os.ReadFile(path) // #nosec G304 -- temp file created above
		return editorFinishedMsg{content: string(data), err: err}
	})
}

// defaultEditor runs $VISUAL, then $EDITOR, falling back to vim.
func defaultEditor(path string) *exec.Cmd {
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vim"
	}
	fields := strings.Fields(editor)
	return exec.Command(fields[0], append(fields[1:], path)...) // #nosec G204 -- user's own editor
}

// View implements tea.Model.
func (m AddModel) View() string {
	var b strings.Builder

	switch m.step {
	case stepPackages:
		b.WriteString(m.styles.title.Render("Which packages would you like to include?"))
		b.WriteString("\n\n")
		for i, name := range m.packages {
			cursor := "  "
			if i == m.cursor {
				cursor = m.styles.cursor.Render("> ")
			}
			box := "[ ]"
			line := name
			if m.selected[i] {
				box = "[x]"
				line = m.styles.selected.Render(name)
			}
			fmt.Fprintf(&b, "%s%s %s\n", cursor, box, line)
		}
		if m.notice != "" {
			b.WriteString("\n" + m.styles.warning.Render(m.notice) + "\n")
		}
		b.WriteString("\n" + m.styles.subtle.Render("space: toggle • enter: confirm • esc: cancel"))

	case stepBumps:
		pkg := m.chosen[len(m.bumps)]
		b.WriteString(m.styles.title.Render(fmt.Sprintf("Bump type for %s:", pkg)))
		b.WriteString("\n\n")
		for i, bt := range bumpChoices {
			cursor := "  "
			if i == m.bumpCursor {
				cursor = m.styles.cursor.Render("> ")
			}
			b.WriteString(cursor + m.styles.bump[bt].Render(bt.String()) + "\n")
		}
		b.WriteString("\n" + m.styles.subtle.Render("↑/↓: choose • enter: confirm • esc: cancel"))

	case stepSummary:
		b.WriteString(m.styles.title.Render("Summary:"))
		b.WriteString("\n\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n" + m.styles.subtle.Render("enter: save • esc: cancel"))
	}

	return b.String() + "\n"
}

// RunAddPrompt runs the add prompt on in/out.
func RunAddPrompt(packages []string, in io.Reader, out io.Writer) (AddResult, error) {
	if len(packages) == 0 {
		return AddResult{Canceled: true}, nil
	}

	final, err := tea.NewProgram(NewAddModel(packages), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return AddResult{}, fmt.Errorf("prompt failed: %w", err)
	}
	m := final.(AddModel)
	if m.err != nil {
		return AddResult{}, m.err
	}
	return m.result, nil
}
