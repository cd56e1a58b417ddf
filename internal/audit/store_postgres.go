package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	txcontext "github.com/airalab/xcm-robobank-prototype/pkg/platform/tx"
)

// PostgresStore appends events to the events table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append is idempotent on event id so a redelivered event is written once.
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO events (id, kind, occurred_at, device, client, domain, order_id, state, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	var orderID *uuid.UUID
	if event.OrderID != uuid.Nil {
		orderID = &event.OrderID
	}
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, query,
		event.ID,
		string(event.Kind),
		event.Timestamp,
		string(event.Device),
		string(event.Client),
		int64(event.Domain),
		orderID,
		event.State,
		event.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, account domain.AccountID) ([]Event, error) {
	query := `
		SELECT id, kind, occurred_at, device, client, domain, order_id, state, reason
		FROM events
		WHERE device = $1 OR client = $1
		ORDER BY occurred_at, id
	`
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, string(account))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e       Event
			kind    string
			device  string
			client  string
			dom     int64
			orderID uuid.NullUUID
		)
		if err := rows.Scan(&e.ID, &kind, &e.Timestamp, &device, &client, &dom, &orderID, &e.State, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = EventKind(kind)
		e.Device = domain.AccountID(device)
		e.Client = domain.AccountID(client)
		e.Domain = domain.DomainID(dom)
		if orderID.Valid {
			e.OrderID = orderID.UUID
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
