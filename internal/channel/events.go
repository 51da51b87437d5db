package channel

import "encoding/json"

// Outbound event names.
const (
	EventUpdateOrderStatus   = "updateOrderStatus"
	EventUpdatePaymentStatus = "updatePaymentStatus"
)

// Inbound event names.
const (
	EventOrderStatusUpdated   = "orderStatusUpdated"
	EventPaymentStatusUpdated = "paymentStatusUpdated"
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// OrderStatusIntent is the payload of updateOrderStatus.
type OrderStatusIntent struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
}

// PaymentStatusIntent is the payload of updatePaymentStatus.
type PaymentStatusIntent struct {
	PaymentStatus string `json:"paymentStatus"`
	PaymentID     string `json:"paymentId"`
	OrderID       string `json:"orderId"`
	UserID        string `json:"userId"`
}

// Notification is the payload of orderStatusUpdated and
// paymentStatusUpdated. It only names the order; the new value has to be
// fetched.
type Notification struct {
	OrderID string `json:"orderId"`
}
