package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/creditshop/creditshop-api/internal/pkg/logger"
)

const queryTimeout = 3 * time.Second

// dbtx is satisfied by both *sqlx.DB and *sqlx.Tx
type dbtx interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// PostgresRepository implements Repository on Postgres
type PostgresRepository struct {
	db *sqlx.DB
	queries
}

// NewRepository creates ledger repository
func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db, queries: queries{q: db}}
}

// WithTx runs fn inside a database transaction
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrInternal, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.LogError(ctx, rbErr, "ledger tx rollback failed")
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("%w: commit tx: %v", ErrInternal, cErr)
		}
	}()

	return fn(&queries{q: tx})
}

// queries holds every statement; bound to the pool for reads or to a tx for writes
type queries struct {
	q dbtx
}

// hashToInt64 maps a user id onto the advisory lock keyspace
func hashToInt64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64() & ((1 << 63) - 1))
}

func (r *queries) LockUser(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, hashToInt64(userID.String())); err != nil {
		return fmt.Errorf("%w: advisory lock: %v", ErrInternal, err)
	}
	return nil
}

const lotColumns = `id, user_id, amount, purchase_date, expiry_date, status, source_package_id, package_name`

func (r *queries) ListLots(ctx context.Context, userID uuid.UUID) ([]CreditLot, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	lots := []CreditLot{}
	query := `SELECT ` + lotColumns + ` FROM credit_lots WHERE user_id = $1 ORDER BY purchase_date ASC, id ASC`
	if err := r.q.SelectContext(ctx, &lots, query, userID); err != nil {
		return nil, fmt.Errorf("%w: list lots: %v", ErrInternal, err)
	}
	return lots, nil
}

func (r *queries) SumActiveCredits(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var total int64
	query := `
		SELECT COALESCE(SUM(amount), 0) FROM credit_lots
		WHERE user_id = $1 AND status = 'active' AND expiry_date >= $2
	`
	if err := r.q.GetContext(ctx, &total, query, userID, now); err != nil {
		return 0, fmt.Errorf("%w: sum credits: %v", ErrInternal, err)
	}
	return total, nil
}

func (r *queries) ListActiveLots(ctx context.Context, userID uuid.UUID) ([]CreditLot, error) {
	lots := []CreditLot{}
	query := `
		SELECT ` + lotColumns + ` FROM credit_lots
		WHERE user_id = $1 AND status = 'active'
		ORDER BY purchase_date ASC, id ASC
		FOR UPDATE
	`
	if err := r.q.SelectContext(ctx, &lots, query, userID); err != nil {
		return nil, fmt.Errorf("%w: list active lots: %v", ErrInternal, err)
	}
	return lots, nil
}

func (r *queries) ListDueLots(ctx context.Context, userID uuid.UUID, now time.Time) ([]CreditLot, error) {
	lots := []CreditLot{}
	query := `
		SELECT ` + lotColumns + ` FROM credit_lots
		WHERE user_id = $1 AND status = 'active' AND expiry_date < $2
		ORDER BY expiry_date ASC, id ASC
		FOR UPDATE
	`
	if err := r.q.SelectContext(ctx, &lots, query, userID, now); err != nil {
		return nil, fmt.Errorf("%w: list due lots: %v", ErrInternal, err)
	}
	return lots, nil
}

func (r *queries) CreateLot(ctx context.Context, lot *CreditLot) error {
	query := `
		INSERT INTO credit_lots (` + lotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.q.ExecContext(ctx, query,
		lot.ID, lot.UserID, lot.Amount, lot.PurchaseDate, lot.ExpiryDate,
		lot.Status, lot.SourcePackageID, lot.PackageName,
	)
	if err != nil {
		return fmt.Errorf("%w: create lot: %v", ErrInternal, err)
	}
	return nil
}

func (r *queries) UpdateLot(ctx context.Context, lot *CreditLot) error {
	query := `UPDATE credit_lots SET amount = $2, status = $3, updated_at = NOW() WHERE id = $1`
	if _, err := r.q.ExecContext(ctx, query, lot.ID, lot.Amount, lot.Status); err != nil {
		return fmt.Errorf("%w: update lot: %v", ErrInternal, err)
	}
	return nil
}

const grantColumns = `id, product_id, user_id, product_name, price_paid, expiry_days, purchase_date, expiry_date, status`

func (r *queries) ListGrants(ctx context.Context, userID uuid.UUID) ([]ProductGrant, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	grants := []ProductGrant{}
	query := `SELECT ` + grantColumns + ` FROM product_grants WHERE user_id = $1 ORDER BY purchase_date DESC`
	if err := r.q.SelectContext(ctx, &grants, query, userID); err != nil {
		return nil, fmt.Errorf("%w: list grants: %v", ErrInternal, err)
	}
	return grants, nil
}

func (r *queries) GetGrant(ctx context.Context, id uuid.UUID) (*ProductGrant, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var g ProductGrant
	err := r.q.GetContext(ctx, &g, `SELECT `+grantColumns+` FROM product_grants WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: grant", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get grant: %v", ErrInternal, err)
	}
	return &g, nil
}

func (r *queries) GetLatestGrant(ctx context.Context, userID, productID uuid.UUID) (*ProductGrant, error) {
	var g ProductGrant
	query := `
		SELECT ` + grantColumns + ` FROM product_grants
		WHERE user_id = $1 AND product_id = $2
		ORDER BY purchase_date DESC, id DESC
		LIMIT 1
		FOR UPDATE
	`
	err := r.q.GetContext(ctx, &g, query, userID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: latest grant: %v", ErrInternal, err)
	}
	return &g, nil
}

func (r *queries) ListDueGrants(ctx context.Context, userID uuid.UUID, now time.Time) ([]ProductGrant, error) {
	grants := []ProductGrant{}
	query := `
		SELECT ` + grantColumns + ` FROM product_grants
		WHERE user_id = $1 AND status = 'active' AND expiry_date < $2
		ORDER BY expiry_date ASC, id ASC
		FOR UPDATE
	`
	if err := r.q.SelectContext(ctx, &grants, query, userID, now); err != nil {
		return nil, fmt.Errorf("%w: list due grants: %v", ErrInternal, err)
	}
	return grants, nil
}

func (r *queries) CreateGrant(ctx context.Context, g *ProductGrant) error {
	query := `
		INSERT INTO product_grants (` + grantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.q.ExecContext(ctx, query,
		g.ID, g.ProductID, g.UserID, g.ProductName, g.PricePaid, g.ExpiryDays,
		g.PurchaseDate, g.ExpiryDate, g.Status,
	)
	if err != nil {
		return fmt.Errorf("%w: create grant: %v", ErrInternal, err)
	}
	return nil
}

func (r *queries) UpdateGrant(ctx context.Context, g *ProductGrant) error {
	query := `
		UPDATE product_grants SET
			product_name = $2, price_paid = $3, expiry_days = $4,
			expiry_date = $5, status = $6, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.q.ExecContext(ctx, query, g.ID, g.ProductName, g.PricePaid, g.ExpiryDays, g.ExpiryDate, g.Status)
	if err != nil {
		return fmt.Errorf("%w: update grant: %v", ErrInternal, err)
	}
	return nil
}

const purchaseColumns = `id, user_id, kind, item_id, item_name, monetary_amount, status, created_at, resolved_at, resolved_by`

func (r *queries) CreatePendingPurchase(ctx context.Context, p *PendingPurchase) error {
	query := `
		INSERT INTO pending_purchases (` + purchaseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.q.ExecContext(ctx, query,
		p.ID, p.UserID, p.Kind, p.ItemID, p.ItemName, p.MonetaryAmount,
		p.Status, p.CreatedAt, p.ResolvedAt, p.ResolvedBy,
	)
	if err != nil {
		return fmt.Errorf("%w: create purchase: %v", ErrInternal, err)
	}
	return nil
}

func (r *queries) GetPendingPurchase(ctx context.Context, id uuid.UUID) (*PendingPurchase, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return r.getPurchase(ctx, `SELECT `+purchaseColumns+` FROM pending_purchases WHERE id = $1`, id)
}

func (r *queries) GetPendingPurchaseForUpdate(ctx context.Context, id uuid.UUID) (*PendingPurchase, error) {
	return r.getPurchase(ctx, `SELECT `+purchaseColumns+` FROM pending_purchases WHERE id = $1 FOR UPDATE`, id)
}

func (r *queries) getPurchase(ctx context.Context, query string, id uuid.UUID) (*PendingPurchase, error) {
	var p PendingPurchase
	err := r.q.GetContext(ctx, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get purchase: %v", ErrInternal, err)
	}
	return &p, nil
}

func (r *queries) ListPendingPurchases(ctx context.Context, filter PurchaseFilter) ([]PendingPurchase, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := `
		SELECT ` + purchaseColumns + ` FROM pending_purchases
		WHERE ($1::uuid IS NULL OR user_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	purchases := []PendingPurchase{}
	err := r.q.SelectContext(ctx, &purchases, query, filter.UserID, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list purchases: %v", ErrInternal, err)
	}
	return purchases, nil
}

func (r *queries) UpdatePendingPurchase(ctx context.Context, p *PendingPurchase) error {
	query := `UPDATE pending_purchases SET status = $2, resolved_at = $3, resolved_by = $4 WHERE id = $1`
	if _, err := r.q.ExecContext(ctx, query, p.ID, p.Status, p.ResolvedAt, p.ResolvedBy); err != nil {
		return fmt.Errorf("%w: update purchase: %v", ErrInternal, err)
	}
	return nil
}

func (r *queries) AppendUsage(ctx context.Context, rec *UsageRecord) error {
	query := `
		INSERT INTO usage_history (id, user_id, action, amount, product_id, product_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.q.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.Action, rec.Amount, rec.ProductID, rec.ProductName, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: append usage: %v", ErrInternal, err)
	}
	return nil
}

func (r *queries) ListUsage(ctx context.Context, userID uuid.UUID, limit int) ([]UsageRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	records := []UsageRecord{}
	query := `
		SELECT id, user_id, action, amount, product_id, product_name, created_at
		FROM usage_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	if err := r.q.SelectContext(ctx, &records, query, userID, limit); err != nil {
		return nil, fmt.Errorf("%w: list usage: %v", ErrInternal, err)
	}
	return records, nil
}

func (r *queries) ListUsersWithDueItems(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT user_id FROM credit_lots WHERE status = 'active' AND expiry_date < $1
		UNION
		SELECT user_id FROM product_grants WHERE status = 'active' AND expiry_date < $1
		LIMIT $2
	`
	ids := []uuid.UUID{}
	if err := r.q.SelectContext(ctx, &ids, query, now, limit); err != nil {
		return nil, fmt.Errorf("%w: list due users: %v", ErrInternal, err)
	}
	return ids, nil
}
