package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/pastoralist/pkg/security"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// OverrideListModel - Interactive override selection
// =============================================================================

// OverrideListModel is the bubbletea model for choosing overrides. Every
// override starts selected.
type OverrideListModel struct {
	Overrides []security.Override
	Chosen    []bool
	Titles    map[string]string // package name -> advisory title
	Cursor    int
	Confirmed bool
	Height    int
	Offset    int
}

// NewOverrideListModel creates a model with all overrides selected.
func NewOverrideListModel(overrides []security.Override, alerts []security.Alert) OverrideListModel {
	chosen := make([]bool, len(overrides))
	for i := range chosen {
		chosen[i] = true
	}
	titles := make(map[string]string, len(alerts))
	for _, a := range alerts {
		if _, ok := titles[a.PackageName]; !ok {
			titles[a.PackageName] = a.Title
		}
	}
	return OverrideListModel{Overrides: overrides, Chosen: chosen, Titles: titles, Height: 15}
}

func (m OverrideListModel) Init() tea.Cmd {
	return nil
}

func (m OverrideListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Overrides)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case " ", "x":
			if len(m.Chosen) > 0 {
				m.Chosen[m.Cursor] = !m.Chosen[m.Cursor]
			}
		case "a":
			all := !m.allChosen()
			for i := range m.Chosen {
				m.Chosen[i] = all
			}
		case "enter":
			m.Confirmed = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-6, 5)
	}
	return m, nil
}

func (m OverrideListModel) allChosen() bool {
	for _, c := range m.Chosen {
		if !c {
			return false
		}
	}
	return true
}

func (m OverrideListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Overrides"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  space toggle  a all  ⏎ apply  q cancel"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Overrides))
	for i := m.Offset; i < end; i++ {
		o := m.Overrides[i]
		cursor, style := "  ", listNormalStyle
		if i == m.Cursor {
			cursor, style = "▸ ", listSelectedStyle
		}
		box := "[ ]"
		if m.Chosen[i] {
			box = "[x]"
		}
		line := fmt.Sprintf("%s %s %s %s", box, o.PackageName, o.FromVersion+" "+iconArrow, o.ToVersion)
		b.WriteString(cursor + style.Render(line) + "  " + severityStyle(o.Severity).Render(string(o.Severity)))
		if t := m.Titles[o.PackageName]; t != "" {
			b.WriteString("  " + listDimStyle.Render(truncate(t, 50)))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Overrides))))
	return b.String()
}

// Selected returns the chosen overrides, or nil when the user cancelled.
func (m OverrideListModel) Selected() []security.Override {
	if !m.Confirmed {
		return nil
	}
	var out []security.Override
	for i, o := range m.Overrides {
		if m.Chosen[i] {
			out = append(out, o)
		}
	}
	return out
}

// =============================================================================
// Prompter
// =============================================================================

// teaPrompter implements security.Prompter with OverrideListModel.
type teaPrompter struct {
	in  io.Reader
	out io.Writer
}

func newTeaPrompter(in io.Reader, out io.Writer) teaPrompter {
	return teaPrompter{in: in, out: out}
}

// SelectOverrides runs the picker. Cancelling selects nothing.
func (p teaPrompter) SelectOverrides(ctx context.Context, overrides []security.Override, alerts []security.Alert) ([]security.Override, error) {
	if len(overrides) == 0 {
		return nil, nil
	}
	prog := tea.NewProgram(NewOverrideListModel(overrides, alerts),
		tea.WithContext(ctx),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
	)
	final, err := prog.Run()
	if err != nil {
		return nil, err
	}
	fm, ok := final.(OverrideListModel)
	if !ok {
		return nil, nil
	}
	return fm.Selected(), nil
}
