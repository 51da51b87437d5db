package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/order-console/internal/api"
	"github.com/nhle/order-console/internal/logging"
	"github.com/nhle/order-console/internal/model"
	"github.com/nhle/order-console/internal/reconciler"
	appsync "github.com/nhle/order-console/internal/sync"
)

const requestTimeout = 30 * time.Second

type sessionMsg struct {
	user *model.User
	err  error
}

type loginResultMsg struct {
	user *model.User
	err  error
}

type connStateMsg struct {
	connected bool
}

// unreadCountMsg carries the number of unread activity entries.
type unreadCountMsg struct {
	count int
}

type observeResultMsg struct {
	id  string
	err error
}

type viewMsg struct {
	rec  *reconciler.Reconciler
	view reconciler.View
}

type noticeMsg struct {
	text string
}

// observation is the order open on the detail screen.
type observation struct {
	id     string
	cancel context.CancelFunc
}

func (m Model) resumeSession() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		user, err := s.Resume(ctx)
		return sessionMsg{user: user, err: err}
	}
}

func (m Model) login(creds model.Credentials) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		user, err := s.Login(ctx, creds)
		if api.IsAuthError(err) {
			return loginResultMsg{err: errInvalidLogin}
		}
		return loginResultMsg{user: user, err: err}
	}
}

// showLogin switches to the login form.
func (m *Model) showLogin(notice string) tea.Cmd {
	m.closeOrder()
	m.previousView = ViewList
	m.currentView = ViewLogin
	m.loginView.SetError(notice)
	return m.loginView.Start()
}

// startSession creates the session's reconciler and poller. Anything left
// from a previous login is stopped first.
func (m *Model) startSession() tea.Cmd {
	m.stopSession()

	rec, err := m.session.NewReconciler()
	if err != nil {
		logging.Error(subsystem, err, "starting session")
		m.statusMsg = err.Error()
		return nil
	}
	m.rec = rec
	m.viewsDone = make(chan struct{})

	cfg := m.session.Config()
	m.poller = appsync.New(m.session.Client(), m.session.Store(),
		time.Duration(cfg.Sync.PollIntervalSec)*time.Second)

	return tea.Batch(m.poller.Start(), m.waitView(), m.fetchUnreadCount())
}

// stopSession ends the observation, the poller and the update pump.
func (m *Model) stopSession() {
	m.closeOrder()
	if m.poller != nil {
		m.poller.Stop()
		m.poller = nil
	}
	if m.viewsDone != nil {
		close(m.viewsDone)
		m.viewsDone = nil
	}
	m.rec = nil
}

func (m *Model) logout() {
	m.stopSession()
	m.session.Logout()
	m.connected = false
}

func (m *Model) quit() tea.Cmd {
	m.stopSession()
	m.session.Close()
	return tea.Quit
}

func (m Model) waitConnState() tea.Cmd {
	ch := m.session.ConnState()
	return func() tea.Msg {
		return connStateMsg{connected: <-ch}
	}
}

// waitView delivers the next reconciler snapshot. It returns nil once the
// session's update pump is stopped.
func (m Model) waitView() tea.Cmd {
	rec, done := m.rec, m.viewsDone
	if rec == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case v := <-rec.Updates():
			return viewMsg{rec: rec, view: v}
		case <-done:
			return nil
		}
	}
}

// openOrder observes id and shows the detail screen.
func (m *Model) openOrder(id string) tea.Cmd {
	if m.rec == nil {
		m.statusMsg = "Log in to open orders."
		return nil
	}
	m.closeOrder()

	ctx, cancel := context.WithCancel(context.Background())
	m.obs = &observation{id: id, cancel: cancel}
	m.previousView = m.currentView
	m.currentView = ViewDetail

	rec := m.rec
	return func() tea.Msg {
		return observeResultMsg{id: id, err: rec.Observe(ctx, id)}
	}
}

// closeOrder tears down the current observation.
func (m *Model) closeOrder() {
	if m.obs == nil {
		return
	}
	if m.rec != nil {
		m.rec.Teardown()
	}
	m.obs.cancel()
	m.obs = nil
	m.detail.Reset()
}

func (m *Model) submitChange(field model.Field, value string) tea.Cmd {
	if m.rec == nil {
		return nil
	}
	if err := m.rec.SubmitLocalChange(field, value); err != nil {
		m.detail.SetNotice("Change not sent: " + err.Error())
		return nil
	}
	m.detail.SetNotice("")
	return nil
}

// cacheView writes the displayed statuses through to the order cache so
// the list agrees with the detail screen.
func (m Model) cacheView(v reconciler.View) tea.Cmd {
	if v.Load != reconciler.LoadReady {
		return nil
	}
	s := m.session.Store()
	return func() tea.Msg {
		ctx := context.Background()
		for _, f := range model.Fields {
			if err := s.UpdateCachedStatus(ctx, v.ResourceID, f, v.Value(f)); err != nil {
				logging.Debug(subsystem, "caching %s of %s: %v", f, v.ResourceID, err)
			}
		}
		return nil
	}
}

func (m *Model) refresh() tea.Cmd {
	if m.poller != nil {
		m.poller.Refresh()
	}
	return m.orderList.LoadOrders()
}

func (m Model) reconnect() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := s.Connect(ctx); err != nil {
			return noticeMsg{text: "reconnect failed: " + err.Error()}
		}
		return noticeMsg{text: "reconnected"}
	}
}

func (m Model) markAllRead() tea.Cmd {
	s := m.session.Store()
	return func() tea.Msg {
		if err := s.MarkAllActivityRead(context.Background()); err != nil {
			logging.Warn(subsystem, "marking activity read: %v", err)
		}
		return unreadCountMsg{count: 0}
	}
}

// fetchUnreadCount queries the store for the number of unread activity
// entries.
func (m Model) fetchUnreadCount() tea.Cmd {
	s := m.session.Store()
	return func() tea.Msg {
		n, err := s.GetUnreadActivityCount(context.Background())
		if err != nil {
			return unreadCountMsg{count: 0}
		}
		return unreadCountMsg{count: n}
	}
}
