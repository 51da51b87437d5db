package orderlist

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/order-console/internal/keys"
	"github.com/nhle/order-console/internal/model"
	"github.com/nhle/order-console/tests/testutil"
)

func seededModel(t *testing.T) Model {
	t.Helper()
	s := testutil.NewTestStore(t)
	now := time.Now()
	_, err := s.UpsertOrders(context.Background(), []model.OrderSummary{
		{ID: "ord-1", OrderStatus: model.OrderStatusDelivered, CreatedAt: now.Add(-2 * time.Hour),
			Payment: model.Payment{PaymentMethod: model.PaymentMethodCOD, PaymentStatus: model.PaymentStatusPaid}},
		{ID: "ord-2", OrderStatus: model.OrderStatusPending, CreatedAt: now.Add(-time.Hour),
			Payment: model.Payment{PaymentMethod: model.PaymentMethodKhalti, PaymentStatus: model.PaymentStatusUnpaid}},
	}, now)
	require.NoError(t, err)
	return New(s, keys.DefaultKeyMap(), 100, 30)
}

// load runs the model's pending load command and feeds the result back.
func load(m Model, cmd tea.Cmd) Model {
	m, _ = m.Update(cmd())
	return m
}

func TestModel_LoadsNewestFirst(t *testing.T) {
	m := seededModel(t)
	m = load(m, m.Init())

	got, ok := m.SelectedOrder()
	require.True(t, ok)
	assert.Equal(t, "ord-2", got.ID)
	assert.Contains(t, m.View(), "ord-1")
}

func TestModel_SelectOpensOrder(t *testing.T) {
	m := seededModel(t)
	m = load(m, m.Init())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, SelectedOrderMsg{OrderID: "ord-2"}, cmd())
}

func TestModel_Filters(t *testing.T) {
	m := seededModel(t)
	m = load(m, m.Init())

	m = load(m, m.SetStatusFilter(model.OrderStatusDelivered))
	assert.True(t, m.HasFilters())
	assert.Equal(t, "filter: status=delivered", m.FilterSummary())
	got, ok := m.SelectedOrder()
	require.True(t, ok)
	assert.Equal(t, "ord-1", got.ID)

	m = load(m, m.SetStatusFilter(model.OrderStatusCancelled))
	_, ok = m.SelectedOrder()
	assert.False(t, ok)
	assert.Contains(t, m.View(), "No matching orders")

	m = load(m, m.ClearFilters())
	assert.False(t, m.HasFilters())
	assert.Len(t, m.list.Items(), 2)
}

func TestModel_PaymentFilterCycles(t *testing.T) {
	m := seededModel(t)
	m = load(m, m.Init())

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("2")})
	m = load(m, cmd)
	assert.Equal(t, "filter: payment=paid", m.FilterSummary())

	m, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("2")})
	m = load(m, cmd)
	assert.Equal(t, "filter: payment=unpaid", m.FilterSummary())

	m, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("2")})
	m = load(m, cmd)
	assert.False(t, m.HasFilters())
}

func TestModel_OrderIDsFollowFilter(t *testing.T) {
	m := seededModel(t)
	m = load(m, m.Init())
	assert.Equal(t, []string{"ord-2", "ord-1"}, m.OrderIDs())

	m = load(m, m.SetStatusFilter(model.OrderStatusDelivered))
	assert.Equal(t, []string{"ord-1"}, m.OrderIDs())
}
