// Package ui holds the console chrome shared by every screen.
package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/order-console/internal/theme"
)

// Header is what the top bar reports about the session.
type Header struct {
	// Email is the logged-in admin; empty when signed out.
	Email  string
	Live   bool
	Unread int
	// Sync describes the order list poller, e.g. "synced 14:02:11".
	Sync string
}

func (h Header) left() string {
	s := "Order Console"
	if h.Email != "" {
		s += " · " + h.Email
	}
	if h.Unread > 0 {
		s += fmt.Sprintf(" [%d new]", h.Unread)
	}
	return s
}

func (h Header) right() string {
	live := "○ offline"
	if h.Live {
		live = "● live"
	}
	return live + " · " + h.Sync
}

// Frame is the terminal split into a one-line header, the active screen
// and a one-line footer of key hints.
type Frame struct {
	Width  int
	Height int
}

// NewFrame sizes the frame to the terminal.
func NewFrame(width, height int) Frame {
	return Frame{Width: width, Height: height}
}

// Body returns the size left for the active screen.
func (f Frame) Body() (width, height int) {
	return f.Width, max(f.Height-2, 0)
}

// Render draws header, body and footer top to bottom.
func (f Frame) Render(h Header, body, footer string) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		f.bar(theme.HeaderStyle, h.left(), h.right()),
		body,
		f.bar(theme.StatusBarStyle, footer, ""),
	)
}

// bar renders left and right aligned text on a full-width line of style.
func (f Frame) bar(style lipgloss.Style, left, right string) string {
	l := style.Render(left)
	r := ""
	if right != "" {
		r = style.Align(lipgloss.Right).Render(right)
	}
	gap := max(f.Width-lipgloss.Width(l)-lipgloss.Width(r), 0)
	fill := style.Render(lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render(""))
	return lipgloss.JoinHorizontal(lipgloss.Top, l, fill, r)
}
