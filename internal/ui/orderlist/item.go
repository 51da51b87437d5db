package orderlist

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/order-console/internal/model"
	"github.com/nhle/order-console/internal/theme"
)

// StalenessThreshold defines how old FetchedAt can be before a cached
// order is marked stale.
var StalenessThreshold = 5 * time.Minute

// OrderItem wraps a cached order summary so it can be used in a bubbles/list.
type OrderItem struct {
	Order model.OrderSummary
}

// FilterValue returns the string used for fuzzy filtering.
func (i OrderItem) FilterValue() string { return i.Order.ID }

// Title returns the order id.
func (i OrderItem) Title() string { return i.Order.ID }

// Description returns a short summary line for the list.
func (i OrderItem) Description() string {
	return fmt.Sprintf("%s | %s | %s",
		i.Order.Payment.PaymentMethod.Label(),
		i.Order.Payment.PaymentStatus,
		i.Order.OrderStatus,
	)
}

// ItemDelegate renders one order per line.
type ItemDelegate struct {
	// stale is set while the last sync failed. Shared with the Model.
	stale *bool
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single order line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	oi, ok := item.(OrderItem)
	if !ok {
		return
	}
	o := oi.Order
	isSelected := index == m.Index()

	status := string(o.OrderStatus)
	if status == "" {
		status = string(model.OrderStatusPending)
	}
	payStatus := string(o.Payment.PaymentStatus)
	if payStatus == "" {
		payStatus = string(model.PaymentStatusUnpaid)
	}

	method := theme.PaymentMethodStyle(string(o.Payment.PaymentMethod)).
		Render(fmt.Sprintf("%-6s", o.Payment.PaymentMethod.Label()))
	payBadge := theme.PaymentStatusStyle(payStatus).Render(fmt.Sprintf("%-6s", payStatus))
	statusBadge := theme.OrderStatusStyle(status).Render(fmt.Sprintf("%-11s", status))

	staleIndicator := ""
	if d.stale != nil && *d.stale {
		staleIndicator = lipgloss.NewStyle().Foreground(theme.ColorYellow).Render(" ⚠")
	} else if !o.FetchedAt.IsZero() && time.Since(o.FetchedAt) > StalenessThreshold {
		staleIndicator = lipgloss.NewStyle().Foreground(theme.ColorGray).Render(" ●")
	}

	created := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(o.CreatedAt))

	line := fmt.Sprintf(
		"%-38s %3d  Rs %9.2f %s%s%s%s  %s",
		o.ID, o.Items(), o.TotalPrice, method, payBadge, statusBadge, staleIndicator, created,
	)

	if o.OrderStatus == model.OrderStatusCancelled || o.OrderStatus == model.OrderStatusDelivered {
		line = theme.DimmedStyle.Render(line)
	}

	if isSelected {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
