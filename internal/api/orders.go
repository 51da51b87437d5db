package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/nhle/order-console/internal/model"
)

// ErrEmptyOrder is returned when GET /order/{id} yields no lines.
var ErrEmptyOrder = errors.New("order has no detail lines")

// FetchOrders returns every order summary, newest first.
func (c *Client) FetchOrders(ctx context.Context) ([]model.OrderSummary, error) {
	var orders []model.OrderSummary
	if err := c.Get(ctx, "/order/all", &orders); err != nil {
		return nil, fmt.Errorf("fetching orders: %w", err)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// FetchOrderDetail returns the detail lines of one order. Every line
// nests the same Order, which carries the authoritative status fields.
func (c *Client) FetchOrderDetail(ctx context.Context, id string) ([]model.OrderDetail, error) {
	var lines []model.OrderDetail
	if err := c.Get(ctx, "/order/"+url.PathEscape(id), &lines); err != nil {
		return nil, fmt.Errorf("fetching order %s: %w", id, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("fetching order %s: %w", id, ErrEmptyOrder)
	}
	return lines, nil
}

// UpdateOrderStatus sets the fulfilment status of an order and waits
// for the server to acknowledge it.
func (c *Client) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	body := map[string]string{"orderStatus": string(status)}
	if err := c.Patch(ctx, "/order/"+url.PathEscape(id)+"/status", body, nil); err != nil {
		return fmt.Errorf("updating order status of %s: %w", id, err)
	}
	return nil
}

// UpdatePaymentStatus sets the payment status of an order and waits for
// the server to acknowledge it.
func (c *Client) UpdatePaymentStatus(ctx context.Context, id string, status model.PaymentStatus) error {
	body := map[string]string{"paymentStatus": string(status)}
	if err := c.Patch(ctx, "/order/"+url.PathEscape(id)+"/payment", body, nil); err != nil {
		return fmt.Errorf("updating payment status of %s: %w", id, err)
	}
	return nil
}
