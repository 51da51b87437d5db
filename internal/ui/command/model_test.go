package command

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/order-console/internal/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"refresh", Command{Name: Refresh}},
		{"sync", Command{Name: Refresh}},
		{"q", Command{Name: Quit}},
		{"clear filters", Command{Name: Clear}},
		{"open ord-1001", Command{Name: Open, Arg: "ord-1001"}},
		{"  filter   delivered ", Command{Name: Filter, Arg: "delivered"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, input := range []string{"", "frobnicate", "open", "filter shipped", "logout now"} {
		_, err := Parse(input)
		assert.Error(t, err, input)
	}

	_, err := Parse("filter shipped")
	assert.ErrorIs(t, err, model.ErrInvalidValue)
}

func typeInto(m Model, s string) Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestUpdate_EnterEmitsParsedCommand(t *testing.T) {
	m := typeInto(New(80, 24), "open ord-1003")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, CommandMsg{Name: Open, Arg: "ord-1003"}, cmd())
	assert.Empty(t, m.input.Value())
}

func TestUpdate_BadCommandStaysWithError(t *testing.T) {
	m := typeInto(New(80, 24), "frobnicate")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "frobnicate", m.input.Value())
	assert.Contains(t, m.View(), "unknown command")

	m.Focus()
	assert.Empty(t, m.err)
}

func TestSuggestions_IncludeOrders(t *testing.T) {
	s := suggestions([]string{"ord-1001"})
	assert.Contains(t, s, "open ord-1001")
	assert.Contains(t, s, "filter ontheway")
	assert.NotContains(t, s, "open ")
}
