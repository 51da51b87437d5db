package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestFrame_Body(t *testing.T) {
	w, h := NewFrame(100, 30).Body()
	assert.Equal(t, 100, w)
	assert.Equal(t, 28, h)

	_, h = NewFrame(10, 1).Body()
	assert.Zero(t, h)
}

func TestFrame_RenderHeader(t *testing.T) {
	f := NewFrame(80, 10)
	out := f.Render(Header{Email: "admin@example.com", Live: true, Unread: 3, Sync: "idle"}, "body", "q quit")

	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "admin@example.com")
	assert.Contains(t, lines[0], "[3 new]")
	assert.Contains(t, lines[0], "● live · idle")
	assert.Equal(t, 80, lipgloss.Width(lines[0]))
	assert.Contains(t, lines[2], "q quit")

	out = f.Render(Header{Sync: "signed out"}, "", "")
	assert.Contains(t, out, "○ offline")
	assert.NotContains(t, out, "new]")
}
