package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/order-console/internal/model"
)

// CreateActivity inserts a new activity entry. A UUID and creation time
// are filled in when missing.
func (s *SQLiteStore) CreateActivity(ctx context.Context, a *model.Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity (id, order_id, kind, message, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.OrderID, string(a.Kind), a.Message,
		boolToInt(a.Read), a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating activity: %w", err)
	}
	return nil
}

// GetActivities retrieves activity entries, newest first.
func (s *SQLiteStore) GetActivities(
	ctx context.Context,
	filter ActivityFilter,
) ([]model.Activity, error) {
	var conditions []string
	var args []interface{}

	if filter.OrderID != "" {
		conditions = append(conditions, "order_id = ?")
		args = append(args, filter.OrderID)
	}
	if filter.UnreadOnly {
		conditions = append(conditions, "read = 0")
	}

	query := "SELECT id, order_id, kind, message, read, created_at FROM activity"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var entries []model.Activity
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	return entries, nil
}

// GetUnreadActivityCount returns how many entries have not been read.
func (s *SQLiteStore) GetUnreadActivityCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM activity WHERE read = 0"); err != nil {
		return 0, fmt.Errorf("counting unread activity: %w", err)
	}
	return n, nil
}

// MarkActivityRead marks a single entry as read.
func (s *SQLiteStore) MarkActivityRead(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE activity SET read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("marking activity %s as read: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkAllActivityRead marks every entry as read.
func (s *SQLiteStore) MarkAllActivityRead(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE activity SET read = 1 WHERE read = 0"); err != nil {
		return fmt.Errorf("marking activity as read: %w", err)
	}
	return nil
}
