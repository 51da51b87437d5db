package reconciler

import (
	"time"

	"k8s.io/utils/clock"

	"github.com/nhle/order-console/internal/model"
)

type guardKey struct {
	resourceID string
	field      model.Field
}

// guard is one armed echo-suppression window.
type guard struct {
	until  time.Time
	timer  clock.Timer
	gen    uint64
	fields map[model.Field]bool
}

// guardTable holds the armed guards of an observation. With the field
// scope each (order, field) pair has its own window; with the resource
// scope one window covers every field of the order.
type guardTable struct {
	scope   string
	entries map[guardKey]*guard
	gen     uint64
}

func newGuardTable(scope string) *guardTable {
	return &guardTable{scope: scope, entries: make(map[guardKey]*guard)}
}

func (t *guardTable) key(resourceID string, f model.Field) guardKey {
	if t.scope == model.GuardScopeResource {
		return guardKey{resourceID: resourceID}
	}
	return guardKey{resourceID: resourceID, field: f}
}

// arm starts or extends the window for (resourceID, f). onExpire runs on
// its own goroutine, never on the clock's, with the key and generation to
// check against.
func (t *guardTable) arm(clk clock.WithDelayedExecution, resourceID string, f model.Field, onExpire func(guardKey, uint64)) {
	k := t.key(resourceID, f)
	t.gen++
	gen := t.gen

	g := t.entries[k]
	if g == nil {
		g = &guard{fields: make(map[model.Field]bool)}
		t.entries[k] = g
	} else if g.timer != nil {
		g.timer.Stop()
	}
	g.fields[f] = true
	g.gen = gen
	g.until = clk.Now().Add(GuardWindow)
	g.timer = clk.AfterFunc(GuardWindow, func() { go onExpire(k, gen) })
}

// expire removes the guard at k if it was not re-armed since gen.
func (t *guardTable) expire(k guardKey, gen uint64) bool {
	g := t.entries[k]
	if g == nil || g.gen != gen {
		return false
	}
	delete(t.entries, k)
	return true
}

// active reports whether a notification about (resourceID, f) must be
// treated as an echo at now.
func (t *guardTable) active(now time.Time, resourceID string, f model.Field) bool {
	g := t.entries[t.key(resourceID, f)]
	return g != nil && now.Before(g.until)
}

// guardedFields returns the fields with a live window at now.
func (t *guardTable) guardedFields(now time.Time) map[model.Field]bool {
	out := make(map[model.Field]bool)
	for _, g := range t.entries {
		if !now.Before(g.until) {
			continue
		}
		for f := range g.fields {
			out[f] = true
		}
	}
	return out
}

func (t *guardTable) stopAll() {
	for k, g := range t.entries {
		if g.timer != nil {
			g.timer.Stop()
		}
		delete(t.entries, k)
	}
}
