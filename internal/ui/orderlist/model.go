package orderlist

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/order-console/internal/keys"
	"github.com/nhle/order-console/internal/model"
	"github.com/nhle/order-console/internal/store"
	"github.com/nhle/order-console/internal/theme"
)

// OrdersLoadedMsg is sent when orders have been loaded from the cache.
type OrdersLoadedMsg struct {
	Orders []model.OrderSummary
	Err    error
}

// SelectedOrderMsg is sent when the user opens an order.
type SelectedOrderMsg struct {
	OrderID string
}

// Model is the order list view component.
type Model struct {
	list   list.Model
	store  store.Store
	keys   *keys.KeyMap
	filter store.OrderFilter
	stale  *bool
	err    error
	width  int
	height int

	// statusIndex and paymentIndex point one past the active filter value;
	// zero means unfiltered.
	statusIndex  int
	paymentIndex int
}

// New creates a new order list model.
func New(s store.Store, k *keys.KeyMap, width, height int) Model {
	stale := new(bool)
	delegate := ItemDelegate{stale: stale}
	l := list.New([]list.Item{}, delegate, width, height-2)
	l.Title = "Orders"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		store:  s,
		keys:   k,
		stale:  stale,
		width:  width,
		height: height,
	}
}

// Init returns a command that loads the cached orders.
func (m Model) Init() tea.Cmd {
	return m.LoadOrders()
}

// Update handles messages for the order list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case OrdersLoadedMsg:
		m.err = msg.Err
		items := make([]list.Item, len(msg.Orders))
		for i, o := range msg.Orders {
			items[i] = OrderItem{Order: o}
		}
		cmd := m.list.SetItems(items)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		item, ok := m.list.SelectedItem().(OrderItem)
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg {
			return SelectedOrderMsg{OrderID: item.Order.ID}
		}

	case key.Matches(msg, m.keys.FilterStatus):
		m.statusIndex = (m.statusIndex + 1) % (len(model.OrderStatuses) + 1)
		m.filter.OrderStatus = nil
		if m.statusIndex > 0 {
			s := model.OrderStatuses[m.statusIndex-1]
			m.filter.OrderStatus = &s
		}
		return m, m.LoadOrders()

	case key.Matches(msg, m.keys.FilterPayment):
		m.paymentIndex = (m.paymentIndex + 1) % (len(model.PaymentStatuses) + 1)
		m.filter.PaymentStatus = nil
		if m.paymentIndex > 0 {
			s := model.PaymentStatuses[m.paymentIndex-1]
			m.filter.PaymentStatus = &s
		}
		return m, m.LoadOrders()

	case key.Matches(msg, m.keys.ClearFilters):
		return m, m.ClearFilters()
	}

	// Navigation keys (up/down/pgup/pgdn).
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the order list view.
func (m Model) View() string {
	if m.err != nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Render(theme.ErrorStyle.Render("Could not load orders: " + m.err.Error()))
	}
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.HasFilters() {
		return style.Render("No matching orders.\nPress 3 to clear filters.")
	}
	return style.Render("No orders yet.\n\nPress r to refresh or L to log in.")
}

// LoadOrders returns a tea.Cmd that queries the cache with the current filter.
func (m Model) LoadOrders() tea.Cmd {
	filter := m.filter
	s := m.store
	return func() tea.Msg {
		orders, err := s.GetOrders(context.Background(), filter)
		return OrdersLoadedMsg{Orders: orders, Err: err}
	}
}

// ClearFilters removes every filter and reloads.
func (m *Model) ClearFilters() tea.Cmd {
	m.filter = store.OrderFilter{}
	m.statusIndex = 0
	m.paymentIndex = 0
	return m.LoadOrders()
}

// SetStatusFilter filters by order status; an empty status clears it.
func (m *Model) SetStatusFilter(status model.OrderStatus) tea.Cmd {
	m.filter.OrderStatus = nil
	m.statusIndex = 0
	for i, s := range model.OrderStatuses {
		if s == status {
			m.filter.OrderStatus = &status
			m.statusIndex = i + 1
		}
	}
	return m.LoadOrders()
}

// HasFilters reports whether any filter is active.
func (m Model) HasFilters() bool {
	return m.filter.OrderStatus != nil || m.filter.PaymentStatus != nil
}

// FilterSummary describes the active filters for the status bar.
func (m Model) FilterSummary() string {
	if !m.HasFilters() {
		return ""
	}
	out := "filter:"
	if m.filter.OrderStatus != nil {
		out += fmt.Sprintf(" status=%s", *m.filter.OrderStatus)
	}
	if m.filter.PaymentStatus != nil {
		out += fmt.Sprintf(" payment=%s", *m.filter.PaymentStatus)
	}
	return out
}

// SetStale marks the list as out of date after a failed sync.
func (m *Model) SetStale(stale bool) {
	*m.stale = stale
}

// SelectedOrder returns the highlighted order, if any.
func (m Model) SelectedOrder() (model.OrderSummary, bool) {
	item, ok := m.list.SelectedItem().(OrderItem)
	if !ok {
		return model.OrderSummary{}, false
	}
	return item.Order, true
}

// OrderIDs returns the ids of the orders currently listed.
func (m Model) OrderIDs() []string {
	items := m.list.Items()
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if o, ok := it.(OrderItem); ok {
			ids = append(ids, o.Order.ID)
		}
	}
	return ids
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
