// Package journal records order results in a SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"papertrader/internal/errors"
	"papertrader/internal/models"
)

// Journal stores the latest state of every order plus an append-only history
// of each recorded update.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Filter selects orders from the journal.
type Filter struct {
	Ticker   string
	Statuses []models.OrderStatus
	Since    time.Time
	Limit    int
}

// Entry is one recorded update of an order.
type Entry struct {
	Result     models.OrderResult
	RecordedAt time.Time
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(errors.ErrDatabaseError, "creating journal directory: %v", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabaseError, "failed to open database: %v", err)
	}

	// A single writer keeps WAL contention out of the picture.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	j := &Journal{db: db, now: time.Now}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrapf(errors.ErrDatabaseError, "failed to initialize schema: %v", err)
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		order_id TEXT PRIMARY KEY,
		client_order_id TEXT,
		ticker TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity_requested INTEGER NOT NULL,
		quantity_filled INTEGER NOT NULL,
		status TEXT NOT NULL,
		average_price REAL,
		message TEXT,
		submitted_at TEXT NOT NULL,
		filled_at TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS order_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL,
		status TEXT NOT NULL,
		quantity_filled INTEGER NOT NULL,
		average_price REAL,
		message TEXT,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_ticker ON orders(ticker);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_order_events_order ON order_events(order_id);
	`

	_, err := j.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// timeLayout has fixed-width fractions so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Record upserts the order and appends the update to its history.
func (j *Journal) Record(ctx context.Context, r models.OrderResult) error {
	if r.OrderID == "" {
		return errors.Wrap(errors.ErrDatabaseError, "order result has no id")
	}

	var avg sql.NullFloat64
	if r.AveragePrice != nil {
		avg = sql.NullFloat64{Float64: *r.AveragePrice, Valid: true}
	}
	var filledAt sql.NullString
	if r.FilledAt != nil {
		filledAt = sql.NullString{String: formatTime(*r.FilledAt), Valid: true}
	}
	now := formatTime(j.now())

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (order_id, client_order_id, ticker, side, quantity_requested, quantity_filled, status, average_price, message, submitted_at, filled_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			quantity_filled = excluded.quantity_filled,
			status = excluded.status,
			average_price = excluded.average_price,
			message = excluded.message,
			filled_at = excluded.filled_at,
			updated_at = excluded.updated_at
	`, r.OrderID, r.ClientOrderID, r.Ticker, string(r.Side), r.QuantityRequested, r.QuantityFilled,
		string(r.Status), avg, r.Message, formatTime(r.SubmittedAt), filledAt, now)
	if err != nil {
		return fmt.Errorf("failed to upsert order: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_events (order_id, status, quantity_filled, average_price, message, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.OrderID, string(r.Status), r.QuantityFilled, avg, r.Message, now)
	if err != nil {
		return fmt.Errorf("failed to append order event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Orders returns the latest state of matching orders, newest first.
func (j *Journal) Orders(ctx context.Context, filter Filter) ([]models.OrderResult, error) {
	query := "SELECT order_id, client_order_id, ticker, side, quantity_requested, quantity_filled, status, average_price, message, submitted_at, filled_at FROM orders WHERE 1=1"
	args := []interface{}{}

	if filter.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, filter.Ticker)
	}
	if len(filter.Statuses) > 0 {
		query += " AND status IN (?" + strings.Repeat(", ?", len(filter.Statuses)-1) + ")"
		for _, s := range filter.Statuses {
			args = append(args, string(s))
		}
	}
	if !filter.Since.IsZero() {
		query += " AND submitted_at >= ?"
		args = append(args, formatTime(filter.Since))
	}

	query += " ORDER BY submitted_at DESC, order_id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var results []models.OrderResult
	for rows.Next() {
		var (
			r                 models.OrderResult
			side, status      string
			avg               sql.NullFloat64
			clientID, message sql.NullString
			submittedAt       string
			filledAt          sql.NullString
		)
		if err := rows.Scan(&r.OrderID, &clientID, &r.Ticker, &side, &r.QuantityRequested, &r.QuantityFilled,
			&status, &avg, &message, &submittedAt, &filledAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		r.ClientOrderID = clientID.String
		r.Message = message.String
		r.Side = models.OrderSide(side)
		r.Status = models.OrderStatus(status)
		if avg.Valid {
			price := avg.Float64
			r.AveragePrice = &price
		}
		if r.SubmittedAt, err = parseTime(submittedAt); err != nil {
			return nil, fmt.Errorf("failed to parse submitted_at: %w", err)
		}
		if filledAt.Valid {
			t, err := parseTime(filledAt.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse filled_at: %w", err)
			}
			r.FilledAt = &t
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return results, nil
}

// History returns every recorded update for orderID in recording order.
func (j *Journal) History(ctx context.Context, orderID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT o.order_id, o.client_order_id, o.ticker, o.side, o.quantity_requested, o.submitted_at,
			e.status, e.quantity_filled, e.average_price, e.message, e.recorded_at
		FROM order_events e JOIN orders o ON o.order_id = e.order_id
		WHERE e.order_id = ?
		ORDER BY e.id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                       Entry
			side, status            string
			clientID, message       sql.NullString
			avg                     sql.NullFloat64
			submittedAt, recordedAt string
		)
		if err := rows.Scan(&e.Result.OrderID, &clientID, &e.Result.Ticker, &side, &e.Result.QuantityRequested,
			&submittedAt, &status, &e.Result.QuantityFilled, &avg, &message, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order event: %w", err)
		}

		e.Result.ClientOrderID = clientID.String
		e.Result.Message = message.String
		e.Result.Side = models.OrderSide(side)
		e.Result.Status = models.OrderStatus(status)
		if avg.Valid {
			price := avg.Float64
			e.Result.AveragePrice = &price
		}
		if e.Result.SubmittedAt, err = parseTime(submittedAt); err != nil {
			return nil, fmt.Errorf("failed to parse submitted_at: %w", err)
		}
		if e.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Stats counts journaled orders by status.
func (j *Journal) Stats(ctx context.Context) (map[models.OrderStatus]int, error) {
	rows, err := j.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM orders GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to query order stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[models.OrderStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan order stats: %w", err)
		}
		stats[models.OrderStatus(status)] = n
	}
	return stats, rows.Err()
}
