package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/order-console/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// OrderFilter controls filtering and pagination for cached order queries.
// Results are always newest first.
type OrderFilter struct {
	OrderStatus   *model.OrderStatus
	PaymentStatus *model.PaymentStatus
	Limit         int
	Offset        int
}

// ActivityFilter controls activity log queries. Results are newest first.
type ActivityFilter struct {
	OrderID    string
	UnreadOnly bool
	Limit      int
}

// Store defines the persistence interface for the local order cache and
// the activity log.
type Store interface {
	// === Order cache ===

	// UpsertOrders caches the given summaries and returns the ids that
	// were not cached before.
	UpsertOrders(ctx context.Context, orders []model.OrderSummary, fetchedAt time.Time) ([]string, error)
	GetOrders(ctx context.Context, filter OrderFilter) ([]model.OrderSummary, error)
	GetOrderByID(ctx context.Context, id string) (*model.OrderSummary, error)
	UpdateCachedStatus(ctx context.Context, id string, field model.Field, value string) error
	CountOrders(ctx context.Context) (int, error)

	// === Activity log ===

	CreateActivity(ctx context.Context, a *model.Activity) error
	GetActivities(ctx context.Context, filter ActivityFilter) ([]model.Activity, error)
	GetUnreadActivityCount(ctx context.Context) (int, error)
	MarkActivityRead(ctx context.Context, id string) error
	MarkAllActivityRead(ctx context.Context) error

	Close() error
}

var _ Store = (*SQLiteStore)(nil)
