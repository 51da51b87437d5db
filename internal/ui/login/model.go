package login

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/order-console/internal/model"
	"github.com/nhle/order-console/internal/theme"
)

// SubmitMsg is dispatched when the admin submits the login form.
type SubmitMsg struct {
	Credentials model.Credentials
}

// CancelMsg is dispatched when the admin leaves the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	email    string
	password string
}

// Model is the Bubble Tea model for the login form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	err    string
	width  int
	height int
}

// New creates a new login form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Start builds a fresh form. The email of the previous attempt is kept.
func (m *Model) Start() tea.Cmd {
	m.fb.password = ""
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("admin@example.com").
				Value(&m.fb.email).
				Validate(func(s string) error {
					if !strings.Contains(s, "@") {
						return errors.New("enter an email address")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("password is required")
					}
					return nil
				}),
		),
	).WithWidth(min(m.width-4, 60))
	return m.form.Init()
}

// SetError shows a failed login attempt above the form.
func (m *Model) SetError(msg string) {
	m.err = msg
}

// Update handles messages for the login form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		creds := model.Credentials{
			Email:    strings.TrimSpace(m.fb.email),
			Password: m.fb.password,
		}
		m.form = nil
		m.err = ""
		return m, func() tea.Msg { return SubmitMsg{Credentials: creds} }
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the login form.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Log in")
	if m.err != "" {
		content += "\n" + theme.ErrorStyle.Render(m.err) + "\n"
	}
	if m.form != nil {
		content += "\n" + m.form.View()
	} else {
		content += "\n" + theme.HelpStyle.Render("Logging in...")
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
