// Package reconciler keeps the displayed status fields of one order
// consistent across the admin's own edits and changes pushed by other
// clients.
//
// A local edit is shown immediately and arms a guard for its (order,
// field) pair; the server's echo of that edit arrives as an ordinary
// change notification and is dropped while the guard is live. Any other
// notification for the observed order starts a trailing debounce that
// ends in one authoritative fetch.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/nhle/order-console/internal/channel"
	"github.com/nhle/order-console/internal/logging"
	"github.com/nhle/order-console/internal/model"
)

const subsystem = "reconciler"

const (
	// GuardWindow is how long a local edit suppresses notifications for
	// the same field.
	GuardWindow = 1000 * time.Millisecond

	// DebounceWindow is the quiet period after the last notification
	// before the authoritative fetch runs.
	DebounceWindow = 1000 * time.Millisecond
)

var (
	// ErrFetchFailed wraps every failed authoritative fetch. Failed
	// fetches are not retried.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrEmptyResourceID is returned by Observe for an empty id.
	ErrEmptyResourceID = errors.New("resource id must not be empty")

	// ErrNotObserved is returned by SubmitLocalChange before Observe or
	// after Teardown.
	ErrNotObserved = errors.New("no order is observed")

	// ErrNotLoaded is returned by SubmitLocalChange until the first fetch
	// has supplied the order's owning user.
	ErrNotLoaded = errors.New("order is not loaded")
)

// Fetcher performs the authoritative read of an order.
type Fetcher interface {
	FetchOrderDetail(ctx context.Context, id string) ([]model.OrderDetail, error)
}

// Subscriber is the receiving half of the event channel. On returns a
// func that detaches exactly the registered handler.
type Subscriber interface {
	On(event string, h channel.Handler) func()
}

// Recorder stores activity entries. It is called outside the
// reconciler's lock.
type Recorder interface {
	CreateActivity(ctx context.Context, a *model.Activity) error
}

// Config wires a Reconciler.
type Config struct {
	Fetcher    Fetcher
	Subscriber Subscriber
	Writer     Writer

	// Clock defaults to the real clock.
	Clock clock.WithDelayedExecution

	// GuardScope is model.GuardScopeField (default) or
	// model.GuardScopeResource.
	GuardScope string

	// Recorder is optional.
	Recorder Recorder
}

// Reconciler owns the canonical local view of one observed order. All
// methods are safe for concurrent use.
type Reconciler struct {
	fetcher    Fetcher
	subscriber Subscriber
	writer     Writer
	clock      clock.WithDelayedExecution
	recorder   Recorder
	scope      string

	mu      sync.Mutex
	view    View
	guards  *guardTable
	obsGen  uint64
	ctx     context.Context
	cancel  context.CancelFunc
	offs    []func()
	updates chan View

	debounce    clock.Timer
	debounceGen uint64

	fetchSeq   uint64
	appliedSeq uint64

	// lastWrite is closed when the most recently submitted write is done.
	lastWrite chan struct{}
}

// New creates an unobserved Reconciler.
func New(cfg Config) *Reconciler {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	scope := cfg.GuardScope
	if scope == "" {
		scope = model.GuardScopeField
	}
	return &Reconciler{
		fetcher:    cfg.Fetcher,
		subscriber: cfg.Subscriber,
		writer:     cfg.Writer,
		clock:      clk,
		recorder:   cfg.Recorder,
		scope:      scope,
		guards:     newGuardTable(scope),
		updates:    make(chan View, 1),
	}
}

// Updates delivers view snapshots. The channel holds only the latest
// snapshot; a slow reader skips intermediate ones.
func (r *Reconciler) Updates() <-chan View {
	return r.updates
}

// View returns the current snapshot.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// State returns the current synchronization state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

// Observe replaces any current observation with one of id. It subscribes
// to both notification events, then blocks on one authoritative fetch.
// A fetch failure leaves the view in LoadError and is returned; it is
// not retried.
func (r *Reconciler) Observe(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyResourceID
	}

	r.mu.Lock()
	stale := r.teardownLocked()
	r.obsGen++
	gen := r.obsGen
	r.ctx, r.cancel = context.WithCancel(ctx)
	obsCtx := r.ctx
	r.view = View{ResourceID: id, Load: LoadLoading}
	r.publishLocked()
	r.mu.Unlock()

	for _, off := range stale {
		off()
	}

	offs := []func(){
		r.subscriber.On(channel.EventOrderStatusUpdated, r.handler(model.KindOrderStatusUpdated)),
		r.subscriber.On(channel.EventPaymentStatusUpdated, r.handler(model.KindPaymentStatusUpdated)),
	}

	r.mu.Lock()
	if gen != r.obsGen {
		r.mu.Unlock()
		for _, off := range offs {
			off()
		}
		return context.Canceled
	}
	r.offs = offs
	seq := r.nextFetchLocked()
	r.mu.Unlock()

	logging.Debug(subsystem, "observing order %s", id)
	return r.fetch(obsCtx, gen, seq, id)
}

// Teardown ends the observation: both handlers are detached, guard and
// debounce timers are stopped, and in-flight fetches are discarded.
func (r *Reconciler) Teardown() {
	r.mu.Lock()
	offs := r.teardownLocked()
	r.publishLocked()
	r.mu.Unlock()

	for _, off := range offs {
		off()
	}
}

// teardownLocked resets the observation and returns the handlers still
// to be detached.
func (r *Reconciler) teardownLocked() []func() {
	if r.view.Load == LoadUnobserved && r.cancel == nil {
		return nil
	}
	logging.Debug(subsystem, "tearing down order %s", r.view.ResourceID)

	r.obsGen++
	if r.debounce != nil {
		r.debounce.Stop()
		r.debounce = nil
	}
	r.guards.stopAll()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.ctx = nil
	r.view = View{}

	offs := r.offs
	r.offs = nil
	return offs
}

// SubmitLocalChange shows value for field immediately, arms the guard
// for (order, field) and hands the change to the Writer in the
// background. A fire-and-forget writer's failure is logged and the value
// stays; an acknowledged writer's failure reverts the value and sets
// View.WriteErr.
func (r *Reconciler) SubmitLocalChange(field model.Field, value string) error {
	if err := model.ValidateValue(field, value); err != nil {
		return err
	}

	r.mu.Lock()
	if r.view.Load == LoadUnobserved {
		r.mu.Unlock()
		return ErrNotObserved
	}
	if r.view.OwnerUserID == "" {
		r.mu.Unlock()
		return ErrNotLoaded
	}

	id := r.view.ResourceID
	prev := r.view.Value(field)
	r.setValueLocked(field, value)
	r.view.WriteErr = nil

	gen := r.obsGen
	r.guards.arm(r.clock, id, field, func(k guardKey, g uint64) {
		r.onGuardExpired(gen, k, g)
	})

	intent := model.ChangeIntent{
		ResourceID:   id,
		Field:        field,
		Value:        value,
		ActingUserID: r.view.OwnerUserID,
		PaymentID:    r.view.PaymentID,
	}
	ctx := r.ctx

	// Each write waits for the previous one, so intents reach the writer
	// in submit order without blocking the caller.
	after, done := r.lastWrite, make(chan struct{})
	r.lastWrite = done

	r.publishLocked()
	r.mu.Unlock()

	r.record(id, model.ActivityLocalChange, fmt.Sprintf("%s set to %s", field, value))

	go func() {
		defer close(done)
		if after != nil {
			<-after
		}
		r.write(ctx, gen, intent, prev)
	}()
	return nil
}

// write hands one intent to the writer. A fire-and-forget writer's failure
// is logged; an acknowledged writer's failure reverts the optimistic value.
func (r *Reconciler) write(ctx context.Context, gen uint64, intent model.ChangeIntent, prev string) {
	err := r.writer.Write(ctx, intent)
	if err == nil {
		return
	}
	field, id, value := intent.Field, intent.ResourceID, intent.Value
	if !r.writer.Acknowledged() {
		logging.Warn(subsystem, "change of %s on %s not delivered: %v", field, id, err)
		return
	}
	logging.Error(subsystem, err, "write of %s on %s failed, reverting", field, id)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.obsGen {
		return
	}
	if r.view.Value(field) == value {
		r.setValueLocked(field, prev)
	}
	r.view.WriteErr = err
	r.publishLocked()
}

// OnChangeNotification handles a change notification for resourceID.
// Notifications for other orders are ignored, echoes of guarded local
// edits are dropped, and everything else (re)starts the debounce.
func (r *Reconciler) OnChangeNotification(resourceID string, kind model.NotificationKind) {
	field := kind.Field()

	r.mu.Lock()
	if r.view.Load == LoadUnobserved || resourceID != r.view.ResourceID {
		r.mu.Unlock()
		return
	}

	if r.guards.active(r.clock.Now(), resourceID, field) {
		r.mu.Unlock()
		logging.Debug(subsystem, "dropping echo %s for %s", kind, resourceID)
		r.record(resourceID, model.ActivityEchoSuppressed, fmt.Sprintf("%s suppressed while own edit is guarded", kind))
		return
	}

	if r.debounce != nil {
		r.debounce.Stop()
	}
	r.debounceGen++
	dgen, ogen := r.debounceGen, r.obsGen
	// Timer callbacks take r.mu and read the clock, so they must not run
	// on the clock's own goroutine.
	r.debounce = r.clock.AfterFunc(DebounceWindow, func() {
		go r.onDebounceElapsed(ogen, dgen)
	})
	r.publishLocked()
	r.mu.Unlock()

	logging.Debug(subsystem, "%s for %s, refetch scheduled", kind, resourceID)
	r.record(resourceID, model.ActivityRemoteChange, fmt.Sprintf("%s by another client", kind))
}

func (r *Reconciler) handler(kind model.NotificationKind) channel.Handler {
	return func(data json.RawMessage) {
		var n channel.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			logging.Warn(subsystem, "malformed %s payload: %v", kind, err)
			return
		}
		r.OnChangeNotification(n.OrderID, kind)
	}
}

func (r *Reconciler) onGuardExpired(obsGen uint64, k guardKey, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if obsGen != r.obsGen {
		return
	}
	if r.guards.expire(k, gen) {
		r.publishLocked()
	}
}

func (r *Reconciler) onDebounceElapsed(obsGen, dgen uint64) {
	r.mu.Lock()
	if obsGen != r.obsGen || dgen != r.debounceGen || r.debounce == nil {
		r.mu.Unlock()
		return
	}
	r.debounce = nil
	id, ctx := r.view.ResourceID, r.ctx
	seq := r.nextFetchLocked()
	r.publishLocked()
	r.mu.Unlock()

	_ = r.fetch(ctx, obsGen, seq, id)
}

func (r *Reconciler) nextFetchLocked() uint64 {
	r.fetchSeq++
	return r.fetchSeq
}

// fetch performs one authoritative read and applies it unless the
// observation changed or a later fetch already landed.
func (r *Reconciler) fetch(ctx context.Context, obsGen, seq uint64, id string) error {
	lines, err := r.fetcher.FetchOrderDetail(ctx, id)

	r.mu.Lock()
	if obsGen != r.obsGen || seq <= r.appliedSeq {
		r.mu.Unlock()
		if err != nil {
			return err
		}
		return nil
	}
	r.appliedSeq = seq

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrFetchFailed, err)
		r.view.Load = LoadError
		r.view.FetchErr = err
		r.publishLocked()
		r.mu.Unlock()

		logging.Error(subsystem, err, "loading order %s", id)
		r.record(id, model.ActivityFetchFailed, err.Error())
		return err
	}

	r.applyLocked(lines)
	r.publishLocked()
	r.mu.Unlock()
	return nil
}

// applyLocked merges a fetched snapshot into the view. Fields with a live
// guard keep their optimistic value, and a snapshot older than the one on
// display is ignored.
func (r *Reconciler) applyLocked(lines []model.OrderDetail) {
	o := lines[0].Order
	if !o.UpdatedAt.IsZero() && !r.view.UpdatedAt.IsZero() && o.UpdatedAt.Before(r.view.UpdatedAt) {
		logging.Debug(subsystem, "ignoring stale snapshot of %s (%s < %s)",
			r.view.ResourceID, o.UpdatedAt.Format(time.RFC3339Nano), r.view.UpdatedAt.Format(time.RFC3339Nano))
		r.view.Load = LoadReady
		return
	}

	guarded := r.guards.guardedFields(r.clock.Now())
	if !guarded[model.FieldOrderStatus] {
		r.view.OrderStatus = o.StatusOrDefault()
	}
	if !guarded[model.FieldPaymentStatus] {
		r.view.PaymentStatus = o.PaymentStatusOrDefault()
	}
	r.view.PaymentID = o.PaymentID()
	r.view.OwnerUserID = o.UserID
	r.view.UpdatedAt = o.UpdatedAt
	r.view.Lines = lines
	r.view.Load = LoadReady
	r.view.FetchErr = nil
}

func (r *Reconciler) setValueLocked(f model.Field, value string) {
	switch f {
	case model.FieldOrderStatus:
		r.view.OrderStatus = model.OrderStatus(value)
	case model.FieldPaymentStatus:
		r.view.PaymentStatus = model.PaymentStatus(value)
	}
}

// stateLocked derives the state: a pending debounce wins over a live
// guard.
func (r *Reconciler) stateLocked() State {
	if r.debounce != nil {
		return StateAwaitingRefetch
	}
	if len(r.guards.guardedFields(r.clock.Now())) > 0 {
		return StateEditInFlight
	}
	return StateIdle
}

func (r *Reconciler) snapshotLocked() View {
	v := r.view
	if v.Load == LoadUnobserved {
		return v
	}
	v.State = r.stateLocked()
	v.Guarded = r.guards.guardedFields(r.clock.Now())
	return v
}

func (r *Reconciler) publishLocked() {
	v := r.snapshotLocked()
	select {
	case <-r.updates:
	default:
	}
	r.updates <- v
}

func (r *Reconciler) record(orderID string, kind model.ActivityKind, msg string) {
	if r.recorder == nil {
		return
	}
	a := &model.Activity{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Kind:      kind,
		Message:   msg,
		CreatedAt: r.clock.Now(),
	}
	if err := r.recorder.CreateActivity(context.Background(), a); err != nil {
		logging.Warn(subsystem, "recording %s activity: %v", kind, err)
	}
}
