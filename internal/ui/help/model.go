// Package help is the "?" overlay: key bindings, palette commands and
// what the status colors mean.
package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/order-console/internal/keys"
	"github.com/nhle/order-console/internal/model"
	"github.com/nhle/order-console/internal/theme"
)

// paletteCommands documents what ":" accepts.
var paletteCommands = [][2]string{
	{"open <order id>", "open an order, even one not in the list"},
	{"filter <status>", "show only orders with that status"},
	{"clear", "drop list filters"},
	{"refresh", "sync the order list now"},
	{"reconnect", "reopen the live channel"},
	{"read", "mark activity read"},
	{"login / logout", "switch admin"},
}

// Model is the help overlay.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	width  int
	height int
}

func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.ShowAll = true
	h.Width = width - 4
	return Model{keys: keys, help: h, width: width, height: height}
}

func (m Model) Init() tea.Cmd {
	return nil
}

// Update is a no-op; the app closes the overlay.
func (m Model) Update(tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

func (m Model) View() string {
	heading := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginTop(1)

	content := lipgloss.JoinVertical(lipgloss.Left,
		heading.UnsetMarginTop().Render("Keys"),
		m.help.View(m.keys),
		heading.Render("Commands"),
		commands(),
		heading.Render("Statuses"),
		legend(),
	)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

func commands() string {
	width := 0
	for _, c := range paletteCommands {
		width = max(width, len(c[0]))
	}
	lines := make([]string, len(paletteCommands))
	for i, c := range paletteCommands {
		lines[i] = ":" + c[0] + strings.Repeat(" ", width-len(c[0])+2) + theme.HelpStyle.Render(c[1])
	}
	return strings.Join(lines, "\n")
}

// legend shows every status value in its list color. A trailing "…" on a
// detail badge marks an edit that is still being confirmed.
func legend() string {
	var orders, payments []string
	for _, st := range model.OrderStatuses {
		orders = append(orders, theme.OrderStatusStyle(string(st)).Render(string(st)))
	}
	for _, st := range model.PaymentStatuses {
		payments = append(payments, theme.PaymentStatusStyle(string(st)).Render(string(st)))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		"order   "+strings.Join(orders, " "),
		"payment "+strings.Join(payments, " "),
		theme.HelpStyle.Render("… after a status: your change is waiting for the server"),
	)
}

// SetSize updates the overlay dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
