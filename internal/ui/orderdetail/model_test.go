package orderdetail

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/nhle/order-console/internal/keys"
	"github.com/nhle/order-console/internal/model"
	"github.com/nhle/order-console/internal/reconciler"
)

func readyView(status model.OrderStatus) reconciler.View {
	order := model.Order{
		FirstName:   "Sita",
		LastName:    "Rai",
		City:        "Pokhara",
		OrderStatus: status,
		TotalPrice:  900,
		UserID:      "cust-1",
		Payment:     &model.Payment{ID: "pay-1", PaymentMethod: model.PaymentMethodEsewa, PaymentStatus: model.PaymentStatusUnpaid},
	}
	return reconciler.View{
		ResourceID:    "ord-1",
		OrderStatus:   status,
		PaymentStatus: model.PaymentStatusUnpaid,
		OwnerUserID:   "cust-1",
		UpdatedAt:     time.Now(),
		Load:          reconciler.LoadReady,
		Lines: []model.OrderDetail{{
			ID:       "line-1",
			Quantity: 3,
			OrderID:  "ord-1",
			Order:    order,
			Product:  model.Product{Name: "Ilam tea", Price: 300, Category: &model.Category{CategoryName: "Drinks"}},
		}},
	}
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_RendersOrder(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 40)
	m, _ = m.Update(ViewUpdatedMsg{View: readyView(model.OrderStatusPreparation)})

	out := m.View()
	assert.Contains(t, out, "Order ord-1")
	assert.Contains(t, out, "Sita Rai")
	assert.Contains(t, out, "Ilam tea")
	assert.Contains(t, out, "900.00")
	assert.Equal(t, "ord-1", m.OrderID())
}

func TestModel_LoadStates(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 40)
	assert.Contains(t, m.View(), "No order selected")

	m.SetView(reconciler.View{ResourceID: "ord-1", Load: reconciler.LoadLoading})
	assert.Contains(t, m.View(), "Loading order")

	m.SetView(reconciler.View{ResourceID: "ord-1", Load: reconciler.LoadError, FetchErr: errors.New("status 500")})
	assert.Contains(t, m.View(), "status 500")
}

func TestModel_GuardedFieldMarked(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 40)
	v := readyView(model.OrderStatusOnTheWay)
	v.Guarded = map[model.Field]bool{model.FieldOrderStatus: true}
	m.SetView(v)

	assert.Contains(t, m.View(), "ontheway …")
}

func TestModel_CancelledOrderHasNoStatusPicker(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 40)
	m.SetView(readyView(model.OrderStatusCancelled))
	assert.False(t, m.CanEditStatus())

	m, _ = m.Update(keyMsg("s"))
	assert.False(t, m.Picking())

	m, _ = m.Update(keyMsg("p"))
	assert.True(t, m.Picking())
}

func TestModel_BackAndReset(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 40)
	m.SetView(readyView(model.OrderStatusPending))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if assert.NotNil(t, cmd) {
		assert.IsType(t, BackMsg{}, cmd())
	}

	m.Reset()
	assert.Empty(t, m.OrderID())
	assert.False(t, m.Picking())
}
