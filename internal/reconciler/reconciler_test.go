package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/nhle/order-console/internal/channel"
	"github.com/nhle/order-console/internal/model"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	clk *testingclock.FakeClock

	mu      sync.Mutex
	order   model.Order
	err     error
	calls   []time.Time
	release chan struct{}
}

func (f *fakeFetcher) FetchOrderDetail(ctx context.Context, id string) ([]model.OrderDetail, error) {
	f.mu.Lock()
	f.calls = append(f.calls, f.clk.Now())
	order, err, release := f.order, f.err, f.release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	order.ID = id
	return []model.OrderDetail{{ID: "line-1", OrderID: id, Quantity: 1, Order: order}}, nil
}

func (f *fakeFetcher) set(order model.Order, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order, f.err = order, err
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) callTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.calls...)
}

type emitted struct {
	event   string
	payload any
}

type fakeChannel struct {
	mu       sync.Mutex
	handlers map[string]map[int]channel.Handler
	next     int
	emits    []emitted
	emitErr  error
	block    chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string]map[int]channel.Handler)}
}

func (c *fakeChannel) On(event string, h channel.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := c.next
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]channel.Handler)
	}
	c.handlers[event][id] = h
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}
}

func (c *fakeChannel) Emit(event string, payload any) error {
	c.mu.Lock()
	block := c.block
	c.mu.Unlock()
	if block != nil {
		<-block
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.emitErr != nil {
		return c.emitErr
	}
	c.emits = append(c.emits, emitted{event: event, payload: payload})
	return nil
}

func (c *fakeChannel) handlerCount(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[event])
}

func (c *fakeChannel) emitted() []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]emitted(nil), c.emits...)
}

// fire delivers an inbound notification the way the websocket client
// does: outside any lock, with a JSON payload.
func (c *fakeChannel) fire(t *testing.T, event, orderID string) {
	t.Helper()
	data, err := json.Marshal(channel.Notification{OrderID: orderID})
	require.NoError(t, err)

	c.mu.Lock()
	var hs []channel.Handler
	for _, h := range c.handlers[event] {
		hs = append(hs, h)
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(data)
	}
}

type fakeUpdater struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (u *fakeUpdater) UpdateOrderStatus(_ context.Context, id string, s model.OrderStatus) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, id+":"+string(s))
	return u.err
}

func (u *fakeUpdater) UpdatePaymentStatus(_ context.Context, id string, s model.PaymentStatus) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, id+":"+string(s))
	return u.err
}

type memRecorder struct {
	mu      sync.Mutex
	entries []model.Activity
}

func (m *memRecorder) CreateActivity(_ context.Context, a *model.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *a)
	return nil
}

func (m *memRecorder) kinds() []model.ActivityKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ActivityKind
	for _, e := range m.entries {
		out = append(out, e.Kind)
	}
	return out
}

type harness struct {
	r        *Reconciler
	clk      *testingclock.FakeClock
	fetcher  *fakeFetcher
	ch       *fakeChannel
	recorder *memRecorder
}

func pendingOrder() model.Order {
	return model.Order{
		OrderStatus: model.OrderStatusPending,
		UserID:      "user-1",
		Payment:     &model.Payment{ID: "pay-1", PaymentStatus: model.PaymentStatusUnpaid, PaymentMethod: model.PaymentMethodCOD},
	}
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	clk := testingclock.NewFakeClock(t0)
	h := &harness{
		clk:      clk,
		fetcher:  &fakeFetcher{clk: clk, order: pendingOrder()},
		ch:       newFakeChannel(),
		recorder: &memRecorder{},
	}
	cfg := Config{
		Fetcher:    h.fetcher,
		Subscriber: h.ch,
		Writer:     NewChannelWriter(h.ch),
		Clock:      clk,
		Recorder:   h.recorder,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.r = New(cfg)
	t.Cleanup(h.r.Teardown)
	return h
}

func (h *harness) observe(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, h.r.Observe(context.Background(), id))
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.r.State() == want }, time.Second, time.Millisecond)
}

func (h *harness) waitEmits(t *testing.T, n int) []emitted {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.ch.emitted()) == n }, time.Second, time.Millisecond)
	return h.ch.emitted()
}

// step advances the fake clock and fails instead of hanging when a timer
// callback blocks the clock.
func (h *harness) step(t *testing.T, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		h.clk.Step(d)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("clock step of %s blocked by a timer callback", d)
	}
}

func (h *harness) waitFetches(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.fetcher.count() == n }, time.Second, time.Millisecond)
}

func TestObserve_FetchesAndSubscribes(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "order-1")

	v := h.r.View()
	assert.Equal(t, LoadReady, v.Load)
	assert.Equal(t, StateIdle, v.State)
	assert.Equal(t, "order-1", v.ResourceID)
	assert.Equal(t, model.OrderStatusPending, v.OrderStatus)
	assert.Equal(t, model.PaymentStatusUnpaid, v.PaymentStatus)
	assert.Equal(t, "user-1", v.OwnerUserID)
	assert.Equal(t, "pay-1", v.PaymentID)
	assert.Len(t, v.Lines, 1)

	assert.Equal(t, 1, h.fetcher.count())
	assert.Equal(t, 1, h.ch.handlerCount(channel.EventOrderStatusUpdated))
	assert.Equal(t, 1, h.ch.handlerCount(channel.EventPaymentStatusUpdated))
}

func TestObserve_TwiceFetchesTwiceSubscribesOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "order-1")
	h.observe(t, "order-1")

	assert.Equal(t, 2, h.fetcher.count())
	assert.Equal(t, 1, h.ch.handlerCount(channel.EventOrderStatusUpdated))
	assert.Equal(t, 1, h.ch.handlerCount(channel.EventPaymentStatusUpdated))

	for i := 0; i < 3; i++ {
		h.observe(t, "order-1")
		h.r.Teardown()
	}
	assert.Equal(t, 0, h.ch.handlerCount(channel.EventOrderStatusUpdated))
	assert.Equal(t, 0, h.ch.handlerCount(channel.EventPaymentStatusUpdated))
}

func TestObserve_EmptyID(t *testing.T) {
	h := newHarness(t, nil)
	require.ErrorIs(t, h.r.Observe(context.Background(), ""), ErrEmptyResourceID)
	assert.Equal(t, 0, h.fetcher.count())
}

func TestObserve_FetchFailureIsNotRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.set(model.Order{}, errors.New("status 500"))

	err := h.r.Observe(context.Background(), "order-1")
	require.ErrorIs(t, err, ErrFetchFailed)

	v := h.r.View()
	assert.Equal(t, LoadError, v.Load)
	require.ErrorIs(t, v.FetchErr, ErrFetchFailed)
	assert.False(t, h.clk.HasWaiters(), "no retry scheduled")

	h.step(t, 10*time.Second)
	assert.Equal(t, 1, h.fetcher.count())
	assert.Contains(t, h.recorder.kinds(), model.ActivityFetchFailed)
}

func TestSubmitLocalChange_OptimisticGuardAndIntent(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "order-1")

	require.NoError(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "delivered"))

	v := h.r.View()
	assert.Equal(t, model.OrderStatusDelivered, v.OrderStatus)
	assert.Equal(t, StateEditInFlight, v.State)
	assert.True(t, v.Guarded[model.FieldOrderStatus])
	assert.False(t, v.Guarded[model.FieldPaymentStatus])

	emits := h.waitEmits(t, 1)
	assert.Equal(t, channel.EventUpdateOrderStatus, emits[0].event)
	assert.Equal(t, channel.OrderStatusIntent{Status: "delivered", OrderID: "order-1", UserID: "user-1"}, emits[0].payload)

	h.step(t, GuardWindow)
	h.waitState(t, StateIdle)
	assert.Equal(t, model.OrderStatusDelivered, h.r.View().OrderStatus)
}

func TestSubmitLocalChange_PaymentIntentCarriesPaymentID(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "order-1")

	require.NoError(t, h.r.SubmitLocalChange(model.FieldPaymentStatus, "paid"))

	emits := h.waitEmits(t, 1)
	assert.Equal(t, channel.EventUpdatePaymentStatus, emits[0].event)
	assert.Equal(t, channel.PaymentStatusIntent{
		PaymentStatus: "paid", PaymentID: "pay-1", OrderID: "order-1", UserID: "user-1",
	}, emits[0].payload)
}

func TestSubmitLocalChange_Rejections(t *testing.T) {
	h := newHarness(t, nil)
	require.ErrorIs(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "pending"), ErrNotObserved)

	h.observe(t, "order-1")
	require.ErrorIs(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "shipped"), model.ErrInvalidValue)
	require.ErrorIs(t, h.r.SubmitLocalChange(model.FieldPaymentStatus, "pending"), model.ErrInvalidValue)
	assert.Empty(t, h.ch.emitted())
}

func TestSubmitLocalChange_ChannelUnavailableKeepsOptimisticValue(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "order-1")
	h.ch.mu.Lock()
	h.ch.emitErr = channel.ErrUnavailable
	h.ch.mu.Unlock()

	require.NoError(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "preparation"))
	v := h.r.View()
	assert.Equal(t, model.OrderStatusPreparation, v.OrderStatus)
	assert.NoError(t, v.WriteErr)
}

// Scenario A: an echo inside the guard window is dropped; a notification
// after expiry triggers a refetch.
func TestGuard_SuppressesEchoUntilExpiry(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "order-1")

	require.NoError(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "delivered"))

	h.step(t, 500*time.Millisecond)
	h.ch.fire(t, channel.EventOrderStatusUpdated, "order-1")
	assert.Equal(t, StateEditInFlight, h.r.State())

	h.step(t, 1000*time.Millisecond)
	h.waitState(t, StateIdle)
	h.ch.fire(t, channel.EventOrderStatusUpdated, "order-1")
	assert.Equal(t, StateAwaitingRefetch, h.r.State())

	h.fetcher.set(model.Order{OrderStatus: model.OrderStatusDelivered, UserID: "user-1"}, nil)
	h.step(t, DebounceWindow)
	h.waitFetches(t, 2)
	require.Eventually(t, func() bool {
		return h.r.View().OrderStatus == model.OrderStatusDelivered
	}, time.Second, time.Millisecond)
	assert.Equal(t, StateIdle, h.r.State())

	kinds := h.recorder.kinds()
	assert.Contains(t, kinds, model.ActivityEchoSuppressed)
	assert.Contains(t, kinds, model.ActivityRemoteChange)
}

// Scenario B: a burst of notifications produces exactly one fetch, one
// window after the last of them.
func TestDebounce_CoalescesBurst(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "order-1")

	h.ch.fire(t, channel.EventOrderStatusUpdated, "order-1")
	h.step(t, 200*time.Millisecond)
	h.ch.fire(t, channel.EventPaymentStatusUpdated, "order-1")
	h.step(t, 200*time.Millisecond)
	h.ch.fire(t, channel.EventOrderStatusUpdated, "order-1")

	h.step(t, 999*time.Millisecond)
	assert.Equal(t, 1, h.fetcher.count())
	assert.Equal(t, StateAwaitingRefetch, h.r.State())

	h.step(t, time.Millisecond)
	h.waitFetches(t, 2)
	assert.Equal(t, t0.Add(1400*time.Millisecond), h.fetcher.callTimes()[1])

	h.step(t, 5*time.Second)
	assert.Equal(t, 2, h.fetcher.count())
}

// Scenario C: notifications for another order change nothing.
func TestNotification_ForeignResourceIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "Y")
	before := h.r.View()

	h.ch.fire(t, channel.EventOrderStatusUpdated, "X")
	h.ch.fire(t, channel.EventPaymentStatusUpdated, "X")

	assert.False(t, h.clk.HasWaiters())
	assert.Equal(t, before, h.r.View())
	h.step(t, 5*time.Second)
	assert.Equal(t, 1, h.fetcher.count())
}

// Scenario D: teardown cancels a pending debounced fetch.
func TestTeardown_CancelsPendingRefetch(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "order-1")

	h.ch.fire(t, channel.EventOrderStatusUpdated, "order-1")
	h.step(t, 100*time.Millisecond)
	h.r.Teardown()

	assert.False(t, h.clk.HasWaiters())
	h.step(t, 2*time.Second)
	assert.Never(t, func() bool { return h.fetcher.count() > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	assert.Equal(t, 0, h.ch.handlerCount(channel.EventOrderStatusUpdated))
	assert.Equal(t, 0, h.ch.handlerCount(channel.EventPaymentStatusUpdated))
	assert.False(t, h.r.View().Observed())
}

func TestTeardown_ClearsGuardTimers(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "order-1")
	require.NoError(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "delivered"))
	require.True(t, h.clk.HasWaiters())

	h.r.Teardown()
	assert.False(t, h.clk.HasWaiters())
}

func TestTeardown_DiscardsInFlightFetch(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.release = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- h.r.Observe(context.Background(), "order-1") }()
	h.waitFetches(t, 1)

	h.r.Teardown()
	close(h.fetcher.release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Observe did not return")
	}
	v := h.r.View()
	assert.False(t, v.Observed())
	assert.Empty(t, v.ResourceID)
}

func TestGuard_FieldScopeLetsOtherFieldThrough(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "order-1")

	require.NoError(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "delivered"))
	h.ch.fire(t, channel.EventPaymentStatusUpdated, "order-1")
	assert.Equal(t, StateAwaitingRefetch, h.r.State())
}

func TestGuard_ResourceScopeSuppressesEveryField(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.GuardScope = model.GuardScopeResource })
	h.observe(t, "order-1")

	require.NoError(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "delivered"))
	h.ch.fire(t, channel.EventPaymentStatusUpdated, "order-1")
	assert.Equal(t, StateEditInFlight, h.r.State())
	assert.Contains(t, h.recorder.kinds(), model.ActivityEchoSuppressed)
}

func TestGuard_ResubmitExtendsWindow(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "order-1")

	require.NoError(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "preparation"))
	h.step(t, 800*time.Millisecond)
	require.NoError(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "ontheway"))

	h.step(t, 700*time.Millisecond)
	h.ch.fire(t, channel.EventOrderStatusUpdated, "order-1")
	assert.Equal(t, StateEditInFlight, h.r.State())

	h.step(t, 300*time.Millisecond)
	h.waitState(t, StateIdle)
	h.waitEmits(t, 2)
}

func TestRefetch_KeepsGuardedFieldValue(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "order-1")

	h.ch.fire(t, channel.EventPaymentStatusUpdated, "order-1")
	h.step(t, 500*time.Millisecond)
	require.NoError(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "delivered"))

	server := pendingOrder()
	server.Payment.PaymentStatus = model.PaymentStatusPaid
	h.fetcher.set(server, nil)

	h.step(t, 500*time.Millisecond)
	h.waitFetches(t, 2)
	require.Eventually(t, func() bool {
		return h.r.View().PaymentStatus == model.PaymentStatusPaid
	}, time.Second, time.Millisecond)
	assert.Equal(t, model.OrderStatusDelivered, h.r.View().OrderStatus)
}

func TestRefetch_IgnoresStaleSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	fresh := pendingOrder()
	fresh.OrderStatus = model.OrderStatusOnTheWay
	fresh.UpdatedAt = t0
	h.fetcher.set(fresh, nil)
	h.observe(t, "order-1")

	stale := pendingOrder()
	stale.UpdatedAt = t0.Add(-time.Minute)
	h.fetcher.set(stale, nil)

	h.ch.fire(t, channel.EventOrderStatusUpdated, "order-1")
	h.step(t, DebounceWindow)
	h.waitFetches(t, 2)
	assert.Never(t, func() bool {
		return h.r.View().OrderStatus != model.OrderStatusOnTheWay
	}, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, t0, h.r.View().UpdatedAt)
}

func TestRefetch_FailureIsErrorStateNotRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "order-1")
	h.fetcher.set(model.Order{}, errors.New("connection refused"))

	h.ch.fire(t, channel.EventOrderStatusUpdated, "order-1")
	h.step(t, DebounceWindow)
	require.Eventually(t, func() bool { return h.r.View().Load == LoadError }, time.Second, time.Millisecond)

	v := h.r.View()
	require.ErrorIs(t, v.FetchErr, ErrFetchFailed)
	assert.Equal(t, model.OrderStatusPending, v.OrderStatus, "last known value stays")
	h.step(t, 10*time.Second)
	assert.Equal(t, 2, h.fetcher.count())
}

func TestRESTWriter_RevertsOnFailure(t *testing.T) {
	up := &fakeUpdater{err: errors.New("status 500")}
	h := newHarness(t, func(c *Config) { c.Writer = NewRESTWriter(up) })
	h.observe(t, "order-1")

	require.NoError(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "delivered"))
	require.Eventually(t, func() bool { return h.r.View().WriteErr != nil }, time.Second, time.Millisecond)

	v := h.r.View()
	assert.Equal(t, model.OrderStatusPending, v.OrderStatus)
	assert.Empty(t, h.ch.emitted(), "acknowledged writes do not use the channel")
}

func TestRESTWriter_SuccessKeepsValue(t *testing.T) {
	up := &fakeUpdater{}
	h := newHarness(t, func(c *Config) { c.Writer = NewRESTWriter(up) })
	h.observe(t, "order-1")

	require.NoError(t, h.r.SubmitLocalChange(model.FieldPaymentStatus, "paid"))
	require.Eventually(t, func() bool {
		up.mu.Lock()
		defer up.mu.Unlock()
		return len(up.calls) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, model.PaymentStatusPaid, h.r.View().PaymentStatus)
	assert.NoError(t, h.r.View().WriteErr)
}

func TestUpdates_DeliversLatestSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "order-1")
	require.NoError(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "preparation"))
	require.NoError(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "ontheway"))

	select {
	case v := <-h.r.Updates():
		assert.Equal(t, model.OrderStatusOnTheWay, v.OrderStatus)
		assert.Equal(t, StateEditInFlight, v.State)
	default:
		t.Fatal("no snapshot buffered")
	}

	select {
	case <-h.r.Updates():
		t.Fatal("only the latest snapshot is buffered")
	default:
	}
}

func TestTimerCallbacks_DoNotHoldTheClock(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "order-1")

	require.NoError(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "delivered"))
	h.step(t, GuardWindow)
	h.waitState(t, StateIdle)

	h.ch.fire(t, channel.EventOrderStatusUpdated, "order-1")
	h.step(t, DebounceWindow)
	h.waitFetches(t, 2)
	h.waitState(t, StateIdle)
}

func TestSubmitLocalChange_DoesNotWaitForWriter(t *testing.T) {
	h := newHarness(t, nil)
	h.observe(t, "order-1")
	block := make(chan struct{})
	h.ch.mu.Lock()
	h.ch.block = block
	h.ch.mu.Unlock()

	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		assert.NoError(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "preparation"))
		assert.NoError(t, h.r.SubmitLocalChange(model.FieldOrderStatus, "ontheway"))
	}()
	select {
	case <-submitted:
	case <-time.After(time.Second):
		t.Fatal("SubmitLocalChange waited for a stalled channel")
	}
	assert.Equal(t, model.OrderStatusOnTheWay, h.r.View().OrderStatus)

	close(block)
	emits := h.waitEmits(t, 2)
	assert.Equal(t, "preparation", emits[0].payload.(channel.OrderStatusIntent).Status)
	assert.Equal(t, "ontheway", emits[1].payload.(channel.OrderStatusIntent).Status)
}
