// Package command is the ":" palette. It completes and parses console
// commands; the app carries them out.
package command

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/order-console/internal/model"
	"github.com/nhle/order-console/internal/theme"
)

// Name identifies a palette command.
type Name string

const (
	Refresh   Name = "refresh"
	Login     Name = "login"
	Logout    Name = "logout"
	Reconnect Name = "reconnect"
	Read      Name = "read"
	Clear     Name = "clear"
	Filter    Name = "filter"
	Open      Name = "open"
	Quit      Name = "quit"
)

var aliases = map[string]Name{
	"sync": Refresh,
	"q":    Quit,
}

// Command is one parsed palette entry. Arg holds the order id for Open
// and the order status for Filter.
type Command struct {
	Name Name
	Arg  string
}

// CommandMsg carries a parsed command to the app.
type CommandMsg Command

// Parse turns palette input into a Command.
func Parse(input string) (Command, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}
	name := Name(fields[0])
	if alias, ok := aliases[fields[0]]; ok {
		name = alias
	}
	arg := strings.Join(fields[1:], " ")

	switch name {
	case Open:
		if arg == "" {
			return Command{}, fmt.Errorf("open needs an order id")
		}
	case Filter:
		if err := model.ValidateValue(model.FieldOrderStatus, arg); err != nil {
			return Command{}, fmt.Errorf("filter: %w", err)
		}
	case Clear:
		if arg != "" && arg != "filters" {
			return Command{}, fmt.Errorf("clear takes no argument")
		}
		arg = ""
	case Refresh, Login, Logout, Reconnect, Read, Quit:
		if arg != "" {
			return Command{}, fmt.Errorf("%s takes no argument", name)
		}
	default:
		return Command{}, fmt.Errorf("unknown command %q", fields[0])
	}
	return Command{Name: name, Arg: arg}, nil
}

// suggestions returns the completions for the fixed commands plus one
// "open" entry per known order.
func suggestions(orderIDs []string) []string {
	s := []string{
		string(Refresh), string(Login), string(Logout), string(Reconnect),
		string(Read), string(Clear), string(Quit),
	}
	for _, st := range model.OrderStatuses {
		s = append(s, string(Filter)+" "+string(st))
	}
	for _, id := range orderIDs {
		s = append(s, string(Open)+" "+id)
	}
	return s
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	err    string
	width  int
	height int
}

// New creates a palette with completions for the fixed commands only.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "refresh, open <order id>, filter <status>..."
	ti.Prompt = ": "
	ti.Focus()
	ti.Width = width - 6
	ti.ShowSuggestions = true
	ti.SetSuggestions(suggestions(nil))

	return Model{input: ti, width: width, height: height}
}

// SetOrderIDs offers "open <id>" completions for the given orders.
func (m *Model) SetOrderIDs(ids []string) {
	m.input.SetSuggestions(suggestions(ids))
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update parses the input on enter. A command that does not parse stays
// in the palette with its error shown underneath.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "enter" {
		input := strings.TrimSpace(m.input.Value())
		if input == "" {
			return m, nil
		}
		c, err := Parse(input)
		if err != nil {
			m.err = err.Error()
			return m, nil
		}
		m.err = ""
		m.input.Reset()
		return m, func() tea.Msg { return CommandMsg(c) }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Command")

	hint := theme.HelpStyle.Render("tab completes order ids and statuses")
	if m.err != "" {
		hint = theme.ErrorStyle.Render(m.err)
	}
	content := lipgloss.JoinVertical(lipgloss.Left, title, m.input.View(), hint)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input and clears any stale error.
func (m *Model) Focus() tea.Cmd {
	m.err = ""
	return m.input.Focus()
}
