package orderdetail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/order-console/internal/keys"
	"github.com/nhle/order-console/internal/model"
	"github.com/nhle/order-console/internal/reconciler"
	"github.com/nhle/order-console/internal/theme"
)

// BackMsg signals the parent to leave the order and return to the list.
type BackMsg struct{}

// ViewUpdatedMsg carries a fresh snapshot of the observed order.
type ViewUpdatedMsg struct {
	View reconciler.View
}

// ChangeRequestMsg asks the parent to submit a local status change.
type ChangeRequestMsg struct {
	Field model.Field
	Value string
}

// pickerBindings lives on the heap so huh's Value pointer survives model
// copies.
type pickerBindings struct {
	field model.Field
	value string
}

// Model is the order detail view component.
type Model struct {
	view     reconciler.View
	viewport viewport.Model
	keys     *keys.KeyMap
	picker   *huh.Form
	pb       *pickerBindings
	notice   string
	width    int
	height   int
}

// New creates a new detail view model.
func New(k *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     k,
		pb:       &pickerBindings{},
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.picker != nil {
		return m.updatePicker(msg)
	}

	switch msg := msg.(type) {
	case ViewUpdatedMsg:
		m.SetView(msg.View)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }

		case key.Matches(msg, m.keys.EditStatus):
			if m.CanEditStatus() {
				return m, m.openPicker(model.FieldOrderStatus)
			}
			return m, nil

		case key.Matches(msg, m.keys.EditPayment):
			if m.view.Load == reconciler.LoadReady {
				return m, m.openPicker(model.FieldPaymentStatus)
			}
			return m, nil
		}
	}

	// Scrolling (j/k, up/down, pgup/pgdn).
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) updatePicker(msg tea.Msg) (Model, tea.Cmd) {
	// Snapshots keep arriving while the picker is open.
	if u, ok := msg.(ViewUpdatedMsg); ok {
		m.SetView(u.View)
		return m, nil
	}

	mdl, cmd := m.picker.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.picker = f
	}

	switch m.picker.State {
	case huh.StateCompleted:
		m.picker = nil
		field, value := m.pb.field, m.pb.value
		if value == m.view.Value(field) {
			return m, nil
		}
		return m, func() tea.Msg {
			return ChangeRequestMsg{Field: field, Value: value}
		}
	case huh.StateAborted:
		m.picker = nil
		return m, nil
	}
	return m, cmd
}

func (m *Model) openPicker(field model.Field) tea.Cmd {
	m.pb.field = field
	m.pb.value = m.view.Value(field)

	var opts []huh.Option[string]
	title := "Order status"
	switch field {
	case model.FieldOrderStatus:
		for _, s := range model.OrderStatuses {
			opts = append(opts, huh.NewOption(string(s), string(s)))
		}
	case model.FieldPaymentStatus:
		title = "Payment status"
		for _, s := range model.PaymentStatuses {
			opts = append(opts, huh.NewOption(string(s), string(s)))
		}
	}

	m.picker = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(title).
				Options(opts...).
				Value(&m.pb.value),
		),
	).WithWidth(min(m.width-4, 40)).WithShowHelp(false)
	return m.picker.Init()
}

// CanEditStatus reports whether the order status picker is offered. A
// cancelled order keeps its status.
func (m Model) CanEditStatus() bool {
	return m.view.Load == reconciler.LoadReady &&
		m.view.OrderStatus != model.OrderStatusCancelled
}

// Picking reports whether a status picker is open.
func (m Model) Picking() bool {
	return m.picker != nil
}

// View renders the detail view.
func (m Model) View() string {
	center := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch m.view.Load {
	case reconciler.LoadUnobserved:
		return center.Render("No order selected")
	case reconciler.LoadLoading:
		return center.Render("Loading order...")
	case reconciler.LoadError:
		if len(m.view.Lines) == 0 {
			return center.Render(theme.ErrorStyle.Render("Could not load order: " + errString(m.view.FetchErr)))
		}
	}

	if m.picker != nil {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.viewport.View(),
			theme.DetailPanelStyle.Render(m.picker.View()),
		)
	}
	return m.viewport.View()
}

// SetView replaces the displayed snapshot and re-renders.
func (m *Model) SetView(v reconciler.View) {
	first := m.view.ResourceID != v.ResourceID
	m.view = v
	m.viewport.SetContent(m.renderContent())
	if first {
		m.viewport.GotoTop()
	}
}

// Reset clears the screen when the order is left.
func (m *Model) Reset() {
	m.view = reconciler.View{}
	m.picker = nil
	m.notice = ""
	m.viewport.SetContent("")
}

// SetNotice shows a one-line message under the status badges.
func (m *Model) SetNotice(s string) {
	m.notice = s
	m.viewport.SetContent(m.renderContent())
}

// OrderID returns the id of the displayed order.
func (m Model) OrderID() string {
	return m.view.ResourceID
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
}

func (m Model) renderContent() string {
	v := m.view
	order, ok := v.Order()
	if !ok {
		return ""
	}

	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render("Order "+v.ResourceID))

	statusBadge := theme.OrderStatusStyle(string(v.OrderStatus)).Render(string(v.OrderStatus) + m.savingMark(model.FieldOrderStatus))
	payBadge := theme.PaymentStatusStyle(string(v.PaymentStatus)).Render(string(v.PaymentStatus) + m.savingMark(model.FieldPaymentStatus))
	method := model.PaymentMethod("")
	if order.Payment != nil {
		method = order.Payment.PaymentMethod
	}
	methodBadge := theme.PaymentMethodStyle(string(method)).Render(method.Label())
	stateLabel := theme.SyncStateStyle(v.State.String()).Render(v.State.String())

	sections = append(sections, lipgloss.JoinHorizontal(
		lipgloss.Top, statusBadge, "  ", payBadge, "  ", methodBadge, "  ", stateLabel,
	))

	if v.WriteErr != nil {
		sections = append(sections, theme.ErrorStyle.Render("Change rejected: "+v.WriteErr.Error()))
	}
	if v.FetchErr != nil {
		sections = append(sections, theme.ErrorStyle.Render("Refresh failed: "+v.FetchErr.Error()))
	}
	if m.notice != "" {
		sections = append(sections, theme.HelpStyle.Render(m.notice))
	}
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) string {
		return fmt.Sprintf("%s %s", metaStyle.Render(fmt.Sprintf("%-10s", label+":")), valStyle.Render(value))
	}

	sections = append(sections,
		row("Customer", strings.TrimSpace(order.FirstName+" "+order.LastName)),
		row("Phone", order.PhoneNumber),
		row("Address", joinNonEmpty(", ", order.AddressLine, order.Street, order.City)),
		row("State", joinNonEmpty(" ", order.State, order.Zipcode)),
	)
	if !v.UpdatedAt.IsZero() {
		sections = append(sections, row("Updated", v.UpdatedAt.Local().Format("2006-01-02 15:04:05")))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 10)))
	sections = append(sections, "", separator, "")

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, headerStyle.Render(fmt.Sprintf("%-28s %-14s %10s %4s %11s", "Product", "Category", "Price", "Qty", "Total")))
	for _, l := range v.Lines {
		category := ""
		if l.Product.Category != nil {
			category = l.Product.Category.CategoryName
		}
		sections = append(sections, fmt.Sprintf("%-28s %-14s %10.2f %4d %11.2f",
			truncate(l.Product.Name, 28), truncate(category, 14), l.Product.Price, l.Quantity, l.LineTotal()))
	}
	sections = append(sections, "", headerStyle.Render(fmt.Sprintf("Total: Rs %.2f", order.TotalPrice)))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) savingMark(f model.Field) string {
	if m.view.Guarded[f] {
		return " …"
	}
	return ""
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
