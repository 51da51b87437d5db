package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/order-console/internal/api"
	"github.com/nhle/order-console/internal/logging"
	"github.com/nhle/order-console/internal/model"
	"github.com/nhle/order-console/internal/store"
)

const subsystem = "sync"

// SyncState represents the current state of the order list sync.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "syncing"
	case SyncError:
		return "error"
	default:
		return "unknown"
	}
}

// SyncStatus holds the state of the last sync.
type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Error    error
}

// SyncResultMsg is a tea.Msg sent when a sync operation completes.
type SyncResultMsg struct {
	Orders        []model.OrderSummary
	Error         error
	AuthError     *AuthErrorMsg
	NewOrderCount int
}

// AuthErrorMsg is a tea.Msg sent when the backend rejects the session.
type AuthErrorMsg struct {
	Message string
}

// OrderLister is the REST surface the poller needs.
type OrderLister interface {
	FetchOrders(ctx context.Context) ([]model.OrderSummary, error)
}

// fetchTimeout is the maximum time allowed for a single fetch operation.
const fetchTimeout = 30 * time.Second

// Poller keeps the local order cache in step with GET /order/all.
type Poller struct {
	lister    OrderLister
	store     store.Store
	interval  time.Duration
	status    SyncStatus
	resultCh  chan SyncResultMsg
	triggerCh chan struct{}
	stopCh    chan struct{}
	mu        gosync.Mutex
	running   bool
}

// New creates a new Poller. A non-positive interval defaults to 60s.
func New(lister OrderLister, s store.Store, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Poller{
		lister:    lister,
		store:     s,
		interval:  interval,
		resultCh:  make(chan SyncResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start returns a tea.Cmd that starts the polling goroutine and waits
// for the first result.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	go p.loop()

	return p.waitForResult()
}

// Stop halts the polling goroutine.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// Refresh triggers an immediate poll.
func (p *Poller) Refresh() tea.Cmd {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A refresh is already queued.
	}
	return nil
}

// Status returns the state of the last sync.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.sendResult(p.SyncOnce(context.Background()))

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sendResult(p.SyncOnce(context.Background()))
		case <-p.triggerCh:
			p.sendResult(p.SyncOnce(context.Background()))
		}
	}
}

// SyncOnce fetches the order list, upserts it into the cache and records
// a new_order activity for every order not seen before.
func (p *Poller) SyncOnce(ctx context.Context) SyncResultMsg {
	p.setStatus(SyncRunning, nil)

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	orders, err := p.lister.FetchOrders(ctx)
	if err != nil {
		p.setStatus(SyncError, err)
		logging.Error(subsystem, err, "fetching order list")

		if api.IsAuthError(err) {
			return SyncResultMsg{
				Error: err,
				AuthError: &AuthErrorMsg{
					Message: "Session expired. Press 'L' to log in again.",
				},
			}
		}
		return SyncResultMsg{Error: err}
	}

	cached, err := p.store.CountOrders(ctx)
	if err != nil {
		p.setStatus(SyncError, err)
		return SyncResultMsg{Error: err}
	}

	now := time.Now()
	added, err := p.store.UpsertOrders(ctx, orders, now)
	if err != nil {
		p.setStatus(SyncError, err)
		logging.Error(subsystem, err, "caching %d orders", len(orders))
		return SyncResultMsg{Error: err}
	}

	// The first sync into an empty cache is not news.
	if cached > 0 {
		for _, id := range added {
			a := &model.Activity{
				OrderID:   id,
				Kind:      model.ActivityNewOrder,
				Message:   fmt.Sprintf("New order %s", id),
				CreatedAt: now,
			}
			if err := p.store.CreateActivity(ctx, a); err != nil {
				logging.Warn(subsystem, "recording new order %s: %v", id, err)
			}
		}
	} else {
		added = nil
	}

	logging.Debug(subsystem, "synced %d orders, %d new", len(orders), len(added))
	p.setStatus(SyncIdle, nil)
	return SyncResultMsg{
		Orders:        orders,
		NewOrderCount: len(added),
	}
}

func (p *Poller) setStatus(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state == SyncIdle && err == nil {
		p.status.LastSync = time.Now()
	}
}

// sendResult sends a SyncResultMsg on the result channel without blocking.
func (p *Poller) sendResult(msg SyncResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		select {
		case result := <-p.resultCh:
			return result
		case <-p.stopCh:
			return nil
		}
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next sync result.
// This should be called after processing a SyncResultMsg to continue
// listening for future results.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
