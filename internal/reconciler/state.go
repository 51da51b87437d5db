package reconciler

import (
	"time"

	"github.com/nhle/order-console/internal/model"
)

// State is the synchronization state of the observed order.
type State int

const (
	// StateIdle means no local edit is guarded and no refetch is pending.
	StateIdle State = iota

	// StateEditInFlight means at least one local edit is still inside its
	// guard window.
	StateEditInFlight

	// StateAwaitingRefetch means a change notification started the
	// debounce timer and an authoritative fetch will follow.
	StateAwaitingRefetch
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEditInFlight:
		return "edit-in-flight"
	case StateAwaitingRefetch:
		return "awaiting-refetch"
	default:
		return "unknown"
	}
}

// LoadState tracks the authoritative fetches of the observed order.
type LoadState int

const (
	LoadUnobserved LoadState = iota
	LoadLoading
	LoadReady
	LoadError
)

func (l LoadState) String() string {
	switch l {
	case LoadUnobserved:
		return "unobserved"
	case LoadLoading:
		return "loading"
	case LoadReady:
		return "ready"
	case LoadError:
		return "error"
	default:
		return "unknown"
	}
}

// View is an immutable snapshot of what the console displays for the
// observed order.
type View struct {
	ResourceID    string
	OrderStatus   model.OrderStatus
	PaymentStatus model.PaymentStatus
	PaymentID     string
	OwnerUserID   string
	UpdatedAt     time.Time

	// Lines are the detail lines of the last successful fetch. The slice
	// is replaced, never mutated, so sharing it between snapshots is safe.
	Lines []model.OrderDetail

	Load  LoadState
	State State

	// FetchErr is set when the last authoritative fetch failed.
	FetchErr error

	// WriteErr is set when an acknowledged write failed and the
	// optimistic value was reverted.
	WriteErr error

	// Guarded lists the fields whose local edit is still inside its
	// guard window.
	Guarded map[model.Field]bool
}

// Observed reports whether the view belongs to an active observation.
func (v View) Observed() bool {
	return v.Load != LoadUnobserved
}

// Value returns the displayed value of a status field.
func (v View) Value(f model.Field) string {
	switch f {
	case model.FieldOrderStatus:
		return string(v.OrderStatus)
	case model.FieldPaymentStatus:
		return string(v.PaymentStatus)
	default:
		return ""
	}
}

// Order returns the nested order of the first detail line, if any.
func (v View) Order() (model.Order, bool) {
	if len(v.Lines) == 0 {
		return model.Order{}, false
	}
	return v.Lines[0].Order, true
}
