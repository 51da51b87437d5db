package model

import (
	"errors"
	"fmt"
	"time"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusPending     OrderStatus = "pending"
	OrderStatusPreparation OrderStatus = "preparation"
	OrderStatusOnTheWay    OrderStatus = "ontheway"
	OrderStatusDelivered   OrderStatus = "delivered"
	OrderStatusCancelled   OrderStatus = "cancelled"
)

// OrderStatuses lists every order status in the order the pickers show them.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPreparation,
	OrderStatusOnTheWay,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// PaymentStatus is the settlement state of an order's payment.
type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusUnpaid PaymentStatus = "unpaid"
)

// PaymentStatuses lists every payment status.
var PaymentStatuses = []PaymentStatus{PaymentStatusPaid, PaymentStatusUnpaid}

// PaymentMethod identifies how the customer paid.
type PaymentMethod string

const (
	PaymentMethodKhalti PaymentMethod = "khalti"
	PaymentMethodEsewa  PaymentMethod = "esewa"
	PaymentMethodCOD    PaymentMethod = "cod"
)

// Label returns the display name of the payment method.
func (p PaymentMethod) Label() string {
	switch p {
	case PaymentMethodKhalti:
		return "Khalti"
	case PaymentMethodEsewa:
		return "Esewa"
	case PaymentMethodCOD:
		return "COD"
	default:
		return "Unknown"
	}
}

// Field names a mutable status field of an order.
type Field string

const (
	FieldOrderStatus   Field = "orderStatus"
	FieldPaymentStatus Field = "paymentStatus"
)

// Fields lists the status fields in display order.
var Fields = []Field{FieldOrderStatus, FieldPaymentStatus}

// ErrInvalidValue is returned when a status value is not part of its
// field's enumeration.
var ErrInvalidValue = errors.New("invalid status value")

// ValidateValue checks that value belongs to the enumeration of field.
func ValidateValue(field Field, value string) error {
	switch field {
	case FieldOrderStatus:
		for _, s := range OrderStatuses {
			if string(s) == value {
				return nil
			}
		}
	case FieldPaymentStatus:
		for _, s := range PaymentStatuses {
			if string(s) == value {
				return nil
			}
		}
	default:
		return fmt.Errorf("unknown field %q: %w", field, ErrInvalidValue)
	}
	return fmt.Errorf("%s %q: %w", field, value, ErrInvalidValue)
}

// Payment is the payment record nested in an order.
type Payment struct {
	ID            string        `json:"id"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
}

// Order holds the customer, shipping and status data of an order as
// nested in each order detail line.
type Order struct {
	ID          string      `json:"id,omitempty"`
	FirstName   string      `json:"firstName"`
	LastName    string      `json:"lastName"`
	PhoneNumber string      `json:"phoneNumber"`
	AddressLine string      `json:"addressLine"`
	City        string      `json:"city"`
	Street      string      `json:"street"`
	Zipcode     string      `json:"zipcode"`
	State       string      `json:"state"`
	OrderStatus OrderStatus `json:"orderStatus"`
	TotalPrice  float64     `json:"totalPrice"`
	UserID      string      `json:"userId"`
	Payment     *Payment    `json:"Payment,omitempty"`

	// UpdatedAt is the server's last modification time, when it sends one.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Category is the product category shown on order lines.
type Category struct {
	ID           string `json:"id"`
	CategoryName string `json:"categoryName"`
}

// Product is the product referenced by an order line.
type Product struct {
	Image    []string  `json:"image"`
	Name     string    `json:"name"`
	Price    float64   `json:"price"`
	Category *Category `json:"Category,omitempty"`
}

// OrderDetail is one line of an order as returned by GET /order/{id}.
// Every line carries the same nested Order.
type OrderDetail struct {
	ID        string    `json:"id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
	OrderID   string    `json:"orderId"`
	ProductID string    `json:"productId"`
	PaymentID string    `json:"paymentId"`
	Order     Order     `json:"Order"`
	Product   Product   `json:"Product"`
}

// LineTotal returns quantity times unit price.
func (d OrderDetail) LineTotal() float64 {
	return float64(d.Quantity) * d.Product.Price
}

// OrderSummary is one row of GET /order/all.
type OrderSummary struct {
	ID           string         `json:"id"`
	TotalPrice   float64        `json:"totalPrice"`
	OrderStatus  OrderStatus    `json:"orderStatus"`
	CreatedAt    time.Time      `json:"createdAt"`
	Payment      Payment        `json:"Payment"`
	OrderDetails []LineQuantity `json:"OrderDetails,omitempty"`

	// ItemCount is the quantity of the first line, which is what the
	// order table shows. Set when the summary comes from the local cache.
	ItemCount int `json:"-"`

	// FetchedAt is when the summary was last cached locally.
	FetchedAt time.Time `json:"-"`
}

// LineQuantity is the only per-line field the order list needs.
type LineQuantity struct {
	Quantity int `json:"quantity"`
}

// Items returns the item count shown in the order table.
func (s OrderSummary) Items() int {
	if len(s.OrderDetails) > 0 {
		return s.OrderDetails[0].Quantity
	}
	return s.ItemCount
}

// StatusOrDefault returns the order status, falling back to pending.
func (o Order) StatusOrDefault() OrderStatus {
	if o.OrderStatus == "" {
		return OrderStatusPending
	}
	return o.OrderStatus
}

// PaymentStatusOrDefault returns the payment status, falling back to unpaid.
func (o Order) PaymentStatusOrDefault() PaymentStatus {
	if o.Payment == nil || o.Payment.PaymentStatus == "" {
		return PaymentStatusUnpaid
	}
	return o.Payment.PaymentStatus
}

// PaymentID returns the nested payment id, or "" when absent.
func (o Order) PaymentID() string {
	if o.Payment == nil {
		return ""
	}
	return o.Payment.ID
}

// ChangeIntent is a locally initiated status change sent to the server.
type ChangeIntent struct {
	ResourceID   string
	Field        Field
	Value        string
	ActingUserID string
	PaymentID    string
}

// NotificationKind tags an inbound change notification.
type NotificationKind string

const (
	KindOrderStatusUpdated   NotificationKind = "orderStatusUpdated"
	KindPaymentStatusUpdated NotificationKind = "paymentStatusUpdated"
)

// Field returns the status field a notification kind refers to.
func (k NotificationKind) Field() Field {
	switch k {
	case KindOrderStatusUpdated:
		return FieldOrderStatus
	case KindPaymentStatusUpdated:
		return FieldPaymentStatus
	default:
		return ""
	}
}
