package model

import "time"

// ActivityKind classifies an entry in the local activity log.
type ActivityKind string

const (
	// ActivityRemoteChange is recorded when a change notification from
	// another client triggers a refetch.
	ActivityRemoteChange ActivityKind = "remote_change"

	// ActivityEchoSuppressed is recorded when a notification is dropped
	// because a local edit of the same field is still guarded.
	ActivityEchoSuppressed ActivityKind = "echo_suppressed"

	// ActivityLocalChange is recorded for every submitted local edit.
	ActivityLocalChange ActivityKind = "local_change"

	// ActivityFetchFailed is recorded when an authoritative fetch fails.
	ActivityFetchFailed ActivityKind = "fetch_failed"

	// ActivityNewOrder is recorded by the order poller for unseen orders.
	ActivityNewOrder ActivityKind = "new_order"
)

// Activity is one entry of the local activity log shown to the admin.
type Activity struct {
	ID        string       `json:"id" db:"id"`
	OrderID   string       `json:"order_id" db:"order_id"`
	Kind      ActivityKind `json:"kind" db:"kind"`
	Message   string       `json:"message" db:"message"`
	Read      bool         `json:"read" db:"read"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}
