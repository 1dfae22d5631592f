// Package support provides the customer-support business capabilities: a
// seeded sqlite store for orders, inventory, refunds and tickets, and the
// tool set that exposes those capabilities plus knowledge search to the
// agent loop.
package support

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/supportflow/core"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Order is a customer order record.
type Order struct {
	ID                string  `json:"id"`
	CustomerEmail     string  `json:"customer_email"`
	Status            string  `json:"status"`
	Items             string  `json:"items"`
	Total             float64 `json:"total"`
	EstimatedDelivery string  `json:"estimated_delivery,omitempty"`
}

// InventoryItem is a stock record keyed by SKU.
type InventoryItem struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	InStock  bool   `json:"in_stock"`
}

// Refund is a processed refund record.
type Refund struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Amount    float64   `json:"amount"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Ticket is a support ticket record.
type Ticket struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Priority  string    `json:"priority"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id                 TEXT PRIMARY KEY,
	customer_email     TEXT NOT NULL,
	status             TEXT NOT NULL,
	items              TEXT NOT NULL,
	total              REAL NOT NULL,
	estimated_delivery TEXT
);
CREATE TABLE IF NOT EXISTS inventory (
	sku      TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	quantity INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS refunds (
	id         TEXT PRIMARY KEY,
	order_id   TEXT NOT NULL,
	amount     REAL NOT NULL,
	reason     TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS tickets (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	body       TEXT NOT NULL,
	priority   TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);`

// Store wraps the sqlite database behind typed accessors. Safe for
// concurrent use.
type Store struct {
	db *sql.DB
}

// NewStore opens the sqlite database at dsn (":memory:" for an ephemeral
// store), creates the schema and seeds demo data.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// An in-memory sqlite database exists per connection; a single pooled
	// connection keeps every query on the same database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &Store{db: db}
	if err := s.seed(); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed store: %w", err)
	}
	return s, nil
}

func (s *Store) seed() error {
	orders := []Order{
		{ID: "ORD-12345", CustomerEmail: "alex@example.com", Status: "shipped", Items: "Wireless Headphones x1", Total: 129.99, EstimatedDelivery: "2 business days"},
		{ID: "ORD-67890", CustomerEmail: "sam@example.com", Status: "processing", Items: "USB-C Dock x1, HDMI Cable x2", Total: 214.50, EstimatedDelivery: "5 business days"},
		{ID: "ORD-24680", CustomerEmail: "jo@example.com", Status: "delivered", Items: "Mechanical Keyboard x1", Total: 89.00},
	}
	for _, o := range orders {
		_, err := s.db.Exec(
			`INSERT OR IGNORE INTO orders (id, customer_email, status, items, total, estimated_delivery)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			o.ID, o.CustomerEmail, o.Status, o.Items, o.Total, o.EstimatedDelivery,
		)
		if err != nil {
			return err
		}
	}

	items := []InventoryItem{
		{SKU: "HDPH-WL-01", Name: "Wireless Headphones", Quantity: 42},
		{SKU: "DOCK-UC-02", Name: "USB-C Dock", Quantity: 7},
		{SKU: "KEYB-MX-03", Name: "Mechanical Keyboard", Quantity: 0},
	}
	for _, it := range items {
		_, err := s.db.Exec(
			`INSERT OR IGNORE INTO inventory (sku, name, quantity) VALUES (?, ?, ?)`,
			it.SKU, it.Name, it.Quantity,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// FindOrder returns the order with the given id.
func (s *Store) FindOrder(ctx context.Context, id string) (Order, error) {
	var o Order
	var delivery sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, customer_email, status, items, total, estimated_delivery FROM orders WHERE id = ?`, id,
	).Scan(&o.ID, &o.CustomerEmail, &o.Status, &o.Items, &o.Total, &delivery)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("find order: %w", err)
	}
	o.EstimatedDelivery = delivery.String
	return o, nil
}

// CheckInventory returns the stock record for a SKU or product name.
func (s *Store) CheckInventory(ctx context.Context, skuOrName string) (InventoryItem, error) {
	var it InventoryItem
	err := s.db.QueryRowContext(ctx,
		`SELECT sku, name, quantity FROM inventory WHERE sku = ? OR name LIKE ?`,
		skuOrName, "%"+skuOrName+"%",
	).Scan(&it.SKU, &it.Name, &it.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return InventoryItem{}, ErrNotFound
	}
	if err != nil {
		return InventoryItem{}, fmt.Errorf("check inventory: %w", err)
	}
	it.InStock = it.Quantity > 0
	return it, nil
}

// ProcessRefund records a refund against an existing order. The refund is
// rejected when the order is unknown or the amount exceeds the order total.
func (s *Store) ProcessRefund(ctx context.Context, orderID string, amount float64, reason string) (Refund, error) {
	order, err := s.FindOrder(ctx, orderID)
	if err != nil {
		return Refund{}, err
	}
	if amount <= 0 || amount > order.Total {
		return Refund{}, fmt.Errorf("refund amount %.2f outside valid range for order %s", amount, orderID)
	}

	r := Refund{
		ID:        "REF-" + core.NewID()[:8],
		OrderID:   orderID,
		Amount:    amount,
		Reason:    reason,
		Status:    "processed",
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO refunds (id, order_id, amount, reason, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.OrderID, r.Amount, r.Reason, r.Status, r.CreatedAt,
	)
	if err != nil {
		return Refund{}, fmt.Errorf("record refund: %w", err)
	}
	return r, nil
}

// CreateTicket records a new support ticket.
func (s *Store) CreateTicket(ctx context.Context, subject, body, priority string) (Ticket, error) {
	switch priority {
	case "low", "normal", "high", "urgent":
	case "":
		priority = "normal"
	default:
		return Ticket{}, fmt.Errorf("unknown priority %q", priority)
	}

	t := Ticket{
		ID:        "TKT-" + core.NewID()[:8],
		Subject:   subject,
		Body:      body,
		Priority:  priority,
		Status:    "open",
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (id, subject, body, priority, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Subject, t.Body, t.Priority, t.Status, t.CreatedAt,
	)
	if err != nil {
		return Ticket{}, fmt.Errorf("record ticket: %w", err)
	}
	return t, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }
