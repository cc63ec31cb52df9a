package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "embed"

	_ "modernc.org/sqlite"

	"github.com/patrickjm/orderwatch/internal/portal"
)

//go:embed schema.sql
var schema string

// Record is an order as persisted, plus the operator-facing delivered flag.
type Record struct {
	portal.Order
	Delivered   bool      `json:"delivered"`
	FirstSeenAt time.Time `json:"firstSeenAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store persists orders in a local sqlite file. Writes upsert by order ID:
// the monitor re-emits orders after a crash-recovery relaunch, so insert-only
// semantics would duplicate rows.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const upsertOrderSQL = `
INSERT INTO orders (
    order_id, order_time, status, delivery_time, payment_method, visit_count,
    customer_name, customer_phone, receipt_name, waiting_time, address,
    items, notes, total_amount, first_seen_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(order_id) DO UPDATE SET
    order_time = excluded.order_time,
    status = excluded.status,
    delivery_time = excluded.delivery_time,
    payment_method = excluded.payment_method,
    visit_count = excluded.visit_count,
    customer_name = excluded.customer_name,
    customer_phone = excluded.customer_phone,
    receipt_name = excluded.receipt_name,
    waiting_time = excluded.waiting_time,
    address = excluded.address,
    items = excluded.items,
    notes = excluded.notes,
    total_amount = excluded.total_amount,
    updated_at = excluded.updated_at
`

// UpsertOrders writes a batch in one transaction. The delivered flag and
// first_seen_at survive re-emission of an already known order.
func (s *Store) UpsertOrders(orders []portal.Order) error {
	if len(orders) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, o := range orders {
		_, err := tx.Exec(upsertOrderSQL,
			o.OrderID, o.OrderTime, o.Status, o.DeliveryTime, o.PaymentMethod,
			o.VisitCount, o.CustomerName, o.CustomerPhone, o.ReceiptName,
			o.WaitingTime, o.Address, o.Items, o.Notes, o.TotalAmount, now, now,
		)
		if err != nil {
			return fmt.Errorf("upsert order %s: %w", o.OrderID, err)
		}
	}
	return tx.Commit()
}

// Sink adapts the store to the monitor's emission callback.
func (s *Store) Sink() func([]portal.Order) error {
	return s.UpsertOrders
}

const selectOrderSQL = `
SELECT order_id, order_time, status, delivery_time, payment_method, visit_count,
       customer_name, customer_phone, receipt_name, waiting_time, address,
       items, notes, total_amount, delivered, first_seen_at, updated_at
FROM orders
`

func (s *Store) ListOrders(onlyUndelivered bool) ([]Record, error) {
	query := selectOrderSQL
	if onlyUndelivered {
		query += " WHERE delivered = 0"
	}
	query += " ORDER BY first_seen_at DESC, order_id DESC"

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var delivered int
		var firstSeen, updated string
		err := rows.Scan(
			&r.OrderID, &r.OrderTime, &r.Status, &r.DeliveryTime, &r.PaymentMethod,
			&r.VisitCount, &r.CustomerName, &r.CustomerPhone, &r.ReceiptName,
			&r.WaitingTime, &r.Address, &r.Items, &r.Notes, &r.TotalAmount,
			&delivered, &firstSeen, &updated,
		)
		if err != nil {
			return nil, err
		}
		r.Delivered = delivered != 0
		r.FirstSeenAt, _ = time.Parse(time.RFC3339, firstSeen)
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) MarkDelivered(orderID string) error {
	res, err := s.db.Exec(
		"UPDATE orders SET delivered = 1, updated_at = ? WHERE order_id = ?",
		time.Now().UTC().Format(time.RFC3339), orderID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %s not found", orderID)
	}
	return nil
}

func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM orders").Scan(&n)
	return n, err
}
