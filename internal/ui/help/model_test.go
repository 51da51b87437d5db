package help

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/order-console/internal/keys"
)

func TestView_ListsKeysCommandsAndStatuses(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 200, 50)
	out := m.View()

	assert.Contains(t, out, "set order status")
	assert.Contains(t, out, ":open <order id>")
	assert.Contains(t, out, ":reconnect")
	assert.Contains(t, out, "ontheway")
	assert.Contains(t, out, "unpaid")
}
