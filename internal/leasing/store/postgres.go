package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/ports"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	dErrors "github.com/airalab/xcm-robobank-prototype/pkg/domain-errors"
	"github.com/airalab/xcm-robobank-prototype/pkg/platform/sentinel"
	txcontext "github.com/airalab/xcm-robobank-prototype/pkg/platform/tx"
)

// PostgresTx runs each leasing operation in one database transaction. The
// transaction travels in ctx so every store and the event log join it.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresTx(db *sql.DB) *PostgresTx {
	return &PostgresTx{db: db, timeout: defaultTxTimeout}
}

var _ ports.StoreTx = (*PostgresTx)(nil)

func (t *PostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, st ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), &postgresStores{db: t.db}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type postgresStores struct {
	db *sql.DB
}

func (p *postgresStores) Devices() ports.DeviceStore { return postgresDevices{p.db} }
func (p *postgresStores) Orders() ports.OrderStore { return postgresOrders{p.db} }
func (p *postgresStores) RemoteOrders() ports.RemoteOrderStore { return postgresRemote{p.db} }
func (p *postgresStores) Ledger() ports.Ledger { return &ledger{rows: postgresAccounts{p.db}} }

type postgresDevices struct{ db *sql.DB }

func (d postgresDevices) Get(ctx context.Context, device domain.AccountID) (*models.DeviceProfile, error) {
	query := `
		SELECT device, state, penalty, min_lead_ms, updated_at
		FROM devices
		WHERE device = $1
		FOR UPDATE
	`
	var (
		p       models.DeviceProfile
		id      string
		state   int16
		penalty int64
		leadMS  int64
	)
	err := txcontext.Pick(ctx, d.db).QueryRowContext(ctx, query, string(device)).
		Scan(&id, &state, &penalty, &leadMS, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find device: %w", err)
	}
	p.Device = domain.AccountID(id)
	p.State = models.DeviceState(state)
	p.Penalty = domain.Amount(penalty)
	p.MinLeadTime = time.Duration(leadMS) * time.Millisecond
	return &p, nil
}

func (d postgresDevices) Save(ctx context.Context, p *models.DeviceProfile) error {
	query := `
		INSERT INTO devices (device, state, penalty, min_lead_ms, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device) DO UPDATE SET
			state = EXCLUDED.state,
			penalty = EXCLUDED.penalty,
			min_lead_ms = EXCLUDED.min_lead_ms,
			updated_at = EXCLUDED.updated_at
	`
	_, err := txcontext.Pick(ctx, d.db).ExecContext(ctx, query,
		string(p.Device),
		int16(p.State),
		int64(p.Penalty),
		p.MinLeadTime.Milliseconds(),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save device: %w", err)
	}
	return nil
}

func (d postgresDevices) Delete(ctx context.Context, device domain.AccountID) error {
	res, err := txcontext.Pick(ctx, d.db).ExecContext(ctx, `DELETE FROM devices WHERE device = $1`, string(device))
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	return expectOne(res)
}

type postgresOrders struct{ db *sql.DB }

func (o postgresOrders) Get(ctx context.Context, device domain.AccountID) (*models.Order, error) {
	query := `
		SELECT id, device, client, deadline, payload, fee, origin_domain, bond, created_at
		FROM orders
		WHERE device = $1
		FOR UPDATE
	`
	var (
		order          models.Order
		dev, client    string
		fee, bond, dom int64
	)
	err := txcontext.Pick(ctx, o.db).QueryRowContext(ctx, query, string(device)).
		Scan(&order.ID, &dev, &client, &order.Deadline, &order.Payload, &fee, &dom, &bond, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	order.Device = domain.AccountID(dev)
	order.Client = domain.AccountID(client)
	order.Fee = domain.Amount(fee)
	order.Bond = domain.Amount(bond)
	order.OriginDomain = domain.DomainID(dom)
	return &order, nil
}

func (o postgresOrders) Create(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (id, device, client, deadline, payload, fee, origin_domain, bond, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (device) DO NOTHING
	`
	res, err := txcontext.Pick(ctx, o.db).ExecContext(ctx, query,
		order.ID,
		string(order.Device),
		string(order.Client),
		order.Deadline,
		order.Payload,
		int64(order.Fee),
		int64(order.OriginDomain),
		int64(order.Bond),
		order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (o postgresOrders) Delete(ctx context.Context, device domain.AccountID) error {
	res, err := txcontext.Pick(ctx, o.db).ExecContext(ctx, `DELETE FROM orders WHERE device = $1`, string(device))
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return expectOne(res)
}

type postgresRemote struct{ db *sql.DB }

func (r postgresRemote) Get(ctx context.Context, key models.RemoteKey) (*models.RemoteOrder, error) {
	query := `
		SELECT device, domain, client, fee, fee_held, deadline, status, placed_at, updated_at
		FROM remote_orders
		WHERE device = $1 AND domain = $2
		FOR UPDATE
	`
	var (
		ro             models.RemoteOrder
		dev, client, s string
		dom, fee       int64
	)
	err := txcontext.Pick(ctx, r.db).QueryRowContext(ctx, query, string(key.Device), int64(key.Domain)).
		Scan(&dev, &dom, &client, &fee, &ro.FeeHeld, &ro.Deadline, &s, &ro.PlacedAt, &ro.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find remote order: %w", err)
	}
	ro.Device = domain.AccountID(dev)
	ro.Domain = domain.DomainID(dom)
	ro.Client = domain.AccountID(client)
	ro.Fee = domain.Amount(fee)
	ro.Status = models.RemoteOrderStatus(s)
	return &ro, nil
}

func (r postgresRemote) Create(ctx context.Context, ro *models.RemoteOrder) error {
	query := `
		INSERT INTO remote_orders (device, domain, client, fee, fee_held, deadline, status, placed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (device, domain) DO NOTHING
	`
	res, err := txcontext.Pick(ctx, r.db).ExecContext(ctx, query, remoteArgs(ro)...)
	if err != nil {
		return fmt.Errorf("create remote order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create remote order: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (r postgresRemote) Save(ctx context.Context, ro *models.RemoteOrder) error {
	query := `
		INSERT INTO remote_orders (device, domain, client, fee, fee_held, deadline, status, placed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (device, domain) DO UPDATE SET
			client = EXCLUDED.client,
			fee = EXCLUDED.fee,
			fee_held = EXCLUDED.fee_held,
			deadline = EXCLUDED.deadline,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := txcontext.Pick(ctx, r.db).ExecContext(ctx, query, remoteArgs(ro)...); err != nil {
		return fmt.Errorf("save remote order: %w", err)
	}
	return nil
}

func (r postgresRemote) Delete(ctx context.Context, key models.RemoteKey) error {
	res, err := txcontext.Pick(ctx, r.db).ExecContext(ctx,
		`DELETE FROM remote_orders WHERE device = $1 AND domain = $2`, string(key.Device), int64(key.Domain))
	if err != nil {
		return fmt.Errorf("delete remote order: %w", err)
	}
	return expectOne(res)
}

func remoteArgs(ro *models.RemoteOrder) []any {
	return []any{
		string(ro.Device),
		int64(ro.Domain),
		string(ro.Client),
		int64(ro.Fee),
		ro.FeeHeld,
		ro.Deadline,
		string(ro.Status),
		ro.PlacedAt,
		ro.UpdatedAt,
	}
}

type postgresAccounts struct{ db *sql.DB }

// load locks the existing rows for ids. Accounts without a row read as zero
// and are inserted on save.
func (a postgresAccounts) load(ctx context.Context, ids ...domain.AccountID) (map[domain.AccountID]*models.Balance, error) {
	keys := make([]string, 0, len(ids))
	out := make(map[domain.AccountID]*models.Balance, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		out[id] = &models.Balance{Account: id}
		keys = append(keys, string(id))
	}

	query := `
		SELECT id, free, reserved
		FROM accounts
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`
	rows, err := txcontext.Pick(ctx, a.db).QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id             string
			free, reserved int64
		)
		if err := rows.Scan(&id, &free, &reserved); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		b := out[domain.AccountID(id)]
		b.Free = domain.Amount(free)
		b.Reserved = domain.Amount(reserved)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func (a postgresAccounts) save(ctx context.Context, balances ...*models.Balance) error {
	query := `
		INSERT INTO accounts (id, free, reserved)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			free = EXCLUDED.free,
			reserved = EXCLUDED.reserved
	`
	for _, b := range balances {
		if _, err := txcontext.Pick(ctx, a.db).ExecContext(ctx, query, string(b.Account), int64(b.Free), int64(b.Reserved)); err != nil {
			return fmt.Errorf("save account %s: %w", b.Account, err)
		}
	}
	return nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
