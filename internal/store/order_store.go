package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/order-console/internal/model"
)

// orderRow is the orders table layout.
type orderRow struct {
	ID            string    `db:"id"`
	TotalPrice    float64   `db:"total_price"`
	OrderStatus   string    `db:"order_status"`
	PaymentID     string    `db:"payment_id"`
	PaymentMethod string    `db:"payment_method"`
	PaymentStatus string    `db:"payment_status"`
	ItemCount     int       `db:"item_count"`
	CreatedAt     time.Time `db:"created_at"`
	FetchedAt     time.Time `db:"fetched_at"`
}

func (r orderRow) toModel() model.OrderSummary {
	return model.OrderSummary{
		ID:          r.ID,
		TotalPrice:  r.TotalPrice,
		OrderStatus: model.OrderStatus(r.OrderStatus),
		CreatedAt:   r.CreatedAt,
		Payment: model.Payment{
			ID:            r.PaymentID,
			PaymentMethod: model.PaymentMethod(r.PaymentMethod),
			PaymentStatus: model.PaymentStatus(r.PaymentStatus),
		},
		ItemCount: r.ItemCount,
		FetchedAt: r.FetchedAt,
	}
}

// UpsertOrders inserts or replaces a batch of order summaries in one
// transaction and returns the ids that were not cached before.
func (s *SQLiteStore) UpsertOrders(
	ctx context.Context,
	orders []model.OrderSummary,
	fetchedAt time.Time,
) ([]string, error) {
	if len(orders) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var known []string
	if err := tx.SelectContext(ctx, &known, "SELECT id FROM orders"); err != nil {
		return nil, fmt.Errorf("listing cached order ids: %w", err)
	}
	seen := make(map[string]bool, len(known))
	for _, id := range known {
		seen[id] = true
	}

	const query = `
		INSERT OR REPLACE INTO orders (
			id, total_price, order_status,
			payment_id, payment_method, payment_status,
			item_count, created_at, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	var added []string
	for _, o := range orders {
		status := o.OrderStatus
		if status == "" {
			status = model.OrderStatusPending
		}
		payStatus := o.Payment.PaymentStatus
		if payStatus == "" {
			payStatus = model.PaymentStatusUnpaid
		}

		_, err := stmt.ExecContext(ctx,
			o.ID, o.TotalPrice, string(status),
			o.Payment.ID, string(o.Payment.PaymentMethod), string(payStatus),
			o.Items(), o.CreatedAt.UTC(), fetchedAt.UTC(),
		)
		if err != nil {
			return nil, fmt.Errorf("upserting order %s: %w", o.ID, err)
		}
		if !seen[o.ID] {
			added = append(added, o.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing orders: %w", err)
	}
	return added, nil
}

// GetOrders retrieves cached orders matching the filter, newest first.
func (s *SQLiteStore) GetOrders(
	ctx context.Context,
	filter OrderFilter,
) ([]model.OrderSummary, error) {
	var conditions []string
	var args []interface{}

	if filter.OrderStatus != nil {
		conditions = append(conditions, "order_status = ?")
		args = append(args, string(*filter.OrderStatus))
	}
	if filter.PaymentStatus != nil {
		conditions = append(conditions, "payment_status = ?")
		args = append(args, string(*filter.PaymentStatus))
	}

	query := "SELECT * FROM orders"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	var rows []orderRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}

	orders := make([]model.OrderSummary, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, r.toModel())
	}
	return orders, nil
}

// GetOrderByID retrieves a single cached order.
func (s *SQLiteStore) GetOrderByID(
	ctx context.Context,
	id string,
) (*model.OrderSummary, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM orders WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}
	o := row.toModel()
	return &o, nil
}

// UpdateCachedStatus writes a status value the console displays for an
// order back into the cache so the order list agrees with the detail
// view.
func (s *SQLiteStore) UpdateCachedStatus(
	ctx context.Context,
	id string,
	field model.Field,
	value string,
) error {
	if err := model.ValidateValue(field, value); err != nil {
		return err
	}

	var column string
	switch field {
	case model.FieldOrderStatus:
		column = "order_status"
	case model.FieldPaymentStatus:
		column = "payment_status"
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE orders SET "+column+" = ? WHERE id = ?", value, id,
	)
	if err != nil {
		return fmt.Errorf("updating %s of order %s: %w", field, id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountOrders returns how many orders are cached.
func (s *SQLiteStore) CountOrders(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM orders"); err != nil {
		return 0, fmt.Errorf("counting orders: %w", err)
	}
	return n, nil
}
