package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/order-console/internal/keys"
	"github.com/nhle/order-console/internal/model"
	"github.com/nhle/order-console/internal/reconciler"
	appsync "github.com/nhle/order-console/internal/sync"
	"github.com/nhle/order-console/internal/ui"
	"github.com/nhle/order-console/internal/ui/command"
	helpview "github.com/nhle/order-console/internal/ui/help"
	"github.com/nhle/order-console/internal/ui/login"
	"github.com/nhle/order-console/internal/ui/orderdetail"
	"github.com/nhle/order-console/internal/ui/orderlist"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewLogin
	ViewHelp
	ViewCommand
)

// Model is the root Bubble Tea model that manages view routing, layout
// and the session's long-lived collaborators.
type Model struct {
	currentView  ViewState
	previousView ViewState
	frame        ui.Frame
	keys         *keys.KeyMap
	session      *Session
	orderList    orderlist.Model
	detail       orderdetail.Model
	loginView    login.Model
	helpView     helpview.Model
	commandView  command.Model
	poller       *appsync.Poller

	// obs is the open order, if any.
	obs *observation

	// rec is the session's reconciler; closing viewsDone stops its
	// update pump.
	rec       *reconciler.Reconciler
	viewsDone chan struct{}

	ready       bool
	connected   bool
	unreadCount int
	statusMsg   string
}

// New creates the root model. The session is resumed from the stored
// token in Init.
func New(s *Session) Model {
	k := keys.DefaultKeyMap()
	return Model{
		currentView: ViewList,
		keys:        k,
		session:     s,
		orderList:   orderlist.New(s.Store(), k, 80, 24),
		detail:      orderdetail.New(k, 80, 24),
		loginView:   login.New(80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
	}
}

// Init loads the cached orders and resumes the session.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.orderList.Init(),
		m.resumeSession(),
		m.waitConnState(),
		m.fetchUnreadCount(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.frame = ui.NewFrame(msg.Width, msg.Height)
		m.ready = true
		w, h := m.frame.Body()
		m.orderList.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.loginView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		// Forward to the active view so huh forms can lay out.
		return m.updateActiveView(msg)

	case sessionMsg:
		if msg.err != nil {
			m.statusMsg = msg.err.Error()
			cmd := m.showLogin("")
			return m, cmd
		}
		cmd := m.startSession()
		return m, cmd

	case login.SubmitMsg:
		return m, m.login(msg.Credentials)

	case login.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case loginResultMsg:
		if msg.err != nil {
			m.loginView.SetError(msg.err.Error())
			cmd := m.loginView.Start()
			return m, cmd
		}
		m.currentView = ViewList
		m.statusMsg = ""
		cmd := m.startSession()
		return m, cmd

	case connStateMsg:
		m.connected = msg.connected
		return m, m.waitConnState()

	case appsync.SyncResultMsg:
		if msg.AuthError != nil {
			m.statusMsg = msg.AuthError.Message
		} else if msg.Error == nil {
			m.statusMsg = ""
		}
		m.orderList.SetStale(msg.Error != nil)
		cmds := []tea.Cmd{m.orderList.LoadOrders(), m.fetchUnreadCount()}
		if m.poller != nil {
			cmds = append(cmds, m.poller.WaitForNextResult())
		}
		return m, tea.Batch(cmds...)

	case unreadCountMsg:
		m.unreadCount = msg.count
		return m, nil

	case orderlist.SelectedOrderMsg:
		cmd := m.openOrder(msg.OrderID)
		return m, cmd

	case observeResultMsg:
		if m.obs == nil || m.obs.id != msg.id {
			return m, nil
		}
		if msg.err != nil {
			m.detail.SetNotice("Open failed: " + msg.err.Error())
		}
		return m, nil

	case viewMsg:
		if msg.rec != m.rec {
			return m, nil
		}
		cmds := []tea.Cmd{m.waitView()}
		if m.obs != nil && msg.view.ResourceID == m.obs.id {
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(orderdetail.ViewUpdatedMsg{View: msg.view})
			cmds = append(cmds, cmd, m.cacheView(msg.view))
		}
		return m, tea.Batch(cmds...)

	case orderdetail.ChangeRequestMsg:
		cmd := m.submitChange(msg.Field, msg.Value)
		return m, cmd

	case noticeMsg:
		m.statusMsg = msg.text
		return m, nil

	case orderdetail.BackMsg:
		m.closeOrder()
		m.currentView = ViewList
		return m, tea.Batch(m.orderList.LoadOrders(), m.fetchUnreadCount())

	case command.CommandMsg:
		m.currentView = m.previousView
		cmd := m.executeCommand(command.Command(msg))
		return m, cmd

	case tea.KeyMsg:
		if cmd, handled := m.handleGlobalKey(msg); handled {
			return m, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKey processes keys that work regardless of the active view.
// Text-entry views only see ctrl+c here.
func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m.quit(), true
	}
	if m.currentView == ViewLogin || m.currentView == ViewCommand || m.detail.Picking() {
		if m.currentView == ViewCommand && msg.String() == "esc" {
			m.currentView = m.previousView
			return nil, true
		}
		return nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.currentView == ViewList {
			return m.quit(), true
		}

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return nil, true

	case key.Matches(msg, m.keys.Back):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		m.commandView.SetOrderIDs(m.orderList.OrderIDs())
		return m.commandView.Focus(), true

	case key.Matches(msg, m.keys.Refresh):
		if m.currentView == ViewList {
			return m.refresh(), true
		}

	case key.Matches(msg, m.keys.Login):
		if m.currentView == ViewList {
			return m.showLogin(""), true
		}

	case key.Matches(msg, m.keys.Logout):
		if m.currentView == ViewList {
			m.logout()
			return m.showLogin("Logged out."), true
		}

	case key.Matches(msg, m.keys.MarkRead):
		if m.currentView == ViewList {
			return m.markAllRead(), true
		}
	}
	return nil, false
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.orderList, cmd = m.orderList.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// View renders the active screen inside the console frame.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	h := ui.Header{Live: m.connected, Unread: m.unreadCount, Sync: m.syncStatus()}
	if u := m.session.User(); u != nil {
		h.Email = u.Email
	}
	return m.frame.Render(h, m.renderContent(), m.keyHints())
}

func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.orderList.View()
	case ViewDetail:
		return m.detail.View()
	case ViewLogin:
		return m.loginView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// syncStatus describes the order list poller.
func (m Model) syncStatus() string {
	if m.poller == nil {
		return "signed out"
	}
	st := m.poller.Status()
	switch st.State {
	case appsync.SyncRunning:
		return "syncing"
	case appsync.SyncError:
		return "⚠ sync failed"
	}
	if st.LastSync.IsZero() {
		return "idle"
	}
	return "synced " + st.LastSync.Format("15:04:05")
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.statusMsg != "" && m.currentView == ViewList {
		return m.statusMsg
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewLogin:
		return "enter next/submit | esc cancel"
	case ViewDetail:
		if m.detail.Picking() {
			return "enter choose | esc cancel"
		}
		hints := []string{"esc back"}
		if m.detail.CanEditStatus() {
			hints = append(hints, "s order status")
		}
		hints = append(hints, "p payment", "j/k scroll")
		return strings.Join(hints, " | ")
	default:
		if f := m.orderList.FilterSummary(); f != "" {
			return f + " | 3 clear"
		}
		return "q quit | ? help | enter open | r refresh | 1 status | 2 payment | m read"
	}
}

// executeCommand carries out a parsed palette command.
func (m *Model) executeCommand(c command.Command) tea.Cmd {
	switch c.Name {
	case command.Refresh:
		return m.refresh()
	case command.Quit:
		return m.quit()
	case command.Login:
		return m.showLogin("")
	case command.Logout:
		m.logout()
		return m.showLogin("Logged out.")
	case command.Reconnect:
		return m.reconnect()
	case command.Read:
		return m.markAllRead()
	case command.Clear:
		return m.orderList.ClearFilters()
	case command.Filter:
		return m.orderList.SetStatusFilter(model.OrderStatus(c.Arg))
	case command.Open:
		return m.openOrder(c.Arg)
	default:
		m.statusMsg = fmt.Sprintf("unknown command %q", c.Name)
		return nil
	}
}
