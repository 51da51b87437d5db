package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/order-console/internal/api"
	"github.com/nhle/order-console/internal/app"
	"github.com/nhle/order-console/internal/model"
	"github.com/nhle/order-console/internal/reconciler"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not logged in", fmt.Errorf("resuming: %w", app.ErrNotLoggedIn), ExitCodeAuthRequired},
		{"token rejected", &api.AuthError{Message: "expired"}, ExitCodeAuthRequired},
		{"other", errors.New("boom"), ExitCodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestParseField(t *testing.T) {
	f, err := parseField("status")
	require.NoError(t, err)
	assert.Equal(t, model.FieldOrderStatus, f)

	f, err = parseField("paymentStatus")
	require.NoError(t, err)
	assert.Equal(t, model.FieldPaymentStatus, f)

	_, err = parseField("total")
	assert.ErrorIs(t, err, model.ErrInvalidValue)
}

func TestFormatView(t *testing.T) {
	v := reconciler.View{
		ResourceID:    "ord-1",
		OrderStatus:   model.OrderStatusDelivered,
		PaymentStatus: model.PaymentStatusPaid,
		Load:          reconciler.LoadReady,
		State:         reconciler.StateIdle,
	}
	line := formatView(v)
	assert.Contains(t, line, "ord-1")
	assert.Contains(t, line, "delivered")
	assert.Contains(t, line, "[idle]")

	assert.Equal(t, "ord-1 loading", formatView(reconciler.View{ResourceID: "ord-1", Load: reconciler.LoadLoading}))
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"login", "logout", "orders", "activity", "watch", "set", "devserver"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
}
