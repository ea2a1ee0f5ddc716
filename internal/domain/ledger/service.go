package ledger

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/creditshop/creditshop-api/internal/domain/catalog"
	"github.com/creditshop/creditshop-api/internal/domain/notification"
	"github.com/creditshop/creditshop-api/internal/pkg/events"
	"github.com/creditshop/creditshop-api/internal/pkg/lock"
)

const (
	defaultHistoryLimit = 6
	maxHistoryLimit     = 100
	defaultLockTTL      = 15 * time.Second
)

// Catalog is the read-only view of products and packages the ledger prices against
type Catalog interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*catalog.Product, error)
	GetPackage(ctx context.Context, id uuid.UUID) (*catalog.Package, error)
}

// UserDirectory answers whether a user is known
type UserDirectory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Notifier delivers notices after a ledger change has committed
type Notifier interface {
	Notify(ctx context.Context, n notification.Notice) error
	ResolveAction(ctx context.Context, purchaseID uuid.UUID) error
}

// Service owns credit lots, product grants, pending purchases and usage history
type Service struct {
	repo      Repository
	catalog   Catalog
	users     UserDirectory
	locker    lock.Locker
	notifier  Notifier
	publisher events.Publisher

	now          func() time.Time
	historyLimit int
	lockTTL      time.Duration

	entropyMu sync.Mutex
	entropy   io.Reader
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHistoryLimit sets the default usage history page size
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 && n <= maxHistoryLimit {
			s.historyLimit = n
		}
	}
}

// WithLockTTL sets how long a per-user lock may be held
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// NewService creates ledger service. notifier and publisher may be nil.
func NewService(
	repo Repository,
	cat Catalog,
	users UserDirectory,
	locker lock.Locker,
	notifier Notifier,
	publisher events.Publisher,
	opts ...Option,
) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	s := &Service{
		repo:         repo,
		catalog:      cat,
		users:        users,
		locker:       locker,
		notifier:     notifier,
		publisher:    publisher,
		now:          time.Now,
		historyLimit: defaultHistoryLimit,
		lockTTL:      defaultLockTTL,
		entropy:      ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TotalCredits sums the active lots of a user that have not passed their expiry date
func (s *Service) TotalCredits(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.SumActiveCredits(ctx, userID, s.now().UTC())
}

// Lots lists every lot of a user, oldest first
func (s *Service) Lots(ctx context.Context, userID uuid.UUID) ([]CreditLot, error) {
	return s.repo.ListLots(ctx, userID)
}

// Grants lists a user's product grants, newest first
func (s *Service) Grants(ctx context.Context, userID uuid.UUID) ([]ProductGrant, error) {
	return s.repo.ListGrants(ctx, userID)
}

// UsageHistory returns the newest usage records. limit <= 0 uses the default.
func (s *Service) UsageHistory(ctx context.Context, userID uuid.UUID, limit int) ([]UsageRecord, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.repo.ListUsage(ctx, userID, limit)
}

// ActiveGrant returns the grant if it belongs to the user and is active
func (s *Service) ActiveGrant(ctx context.Context, userID, grantID uuid.UUID) (*ProductGrant, error) {
	g, err := s.repo.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if g.UserID != userID {
		return nil, fmt.Errorf("%w: grant", ErrNotFound)
	}
	if g.Status != GrantActive || g.ExpiryDate.Before(s.now()) {
		return nil, fmt.Errorf("%w: grant is not active", ErrInvalidState)
	}
	return g, nil
}

// PurchaseProduct buys access to a product with credits, oldest lots first
func (s *Service) PurchaseProduct(ctx context.Context, actor Actor, productID uuid.UUID) (*PurchaseResult, error) {
	if err := s.ensureUser(ctx, actor.UserID); err != nil {
		return nil, err
	}
	product, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}

	var result *PurchaseResult
	err = s.withUserLock(ctx, actor.UserID, func(tx Tx) error {
		result, err = s.purchaseTx(ctx, tx, actor, product)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, result.Events)
	return result, nil
}

// purchaseTx spends the product price and issues a fresh grant
func (s *Service) purchaseTx(ctx context.Context, tx Tx, actor Actor, product *catalog.Product) (*PurchaseResult, error) {
	now := s.now().UTC()
	var expired SweepResult
	plan, balance, err := s.spend(ctx, tx, actor.UserID, product.Price, now, &expired)
	if err != nil {
		return nil, err
	}

	grant := ProductGrant{
		ID:           uuid.New(),
		ProductID:    product.ID,
		UserID:       actor.UserID,
		ProductName:  product.Name,
		PricePaid:    product.Price,
		ExpiryDays:   product.ExpiryDays,
		PurchaseDate: now,
		ExpiryDate:   addDays(now, product.ExpiryDays),
		Status:       GrantActive,
	}
	if err := tx.CreateGrant(ctx, &grant); err != nil {
		return nil, err
	}
	if err := s.appendUsage(ctx, tx, actor.UserID, ActionPurchase, -product.Price, &grant, now); err != nil {
		return nil, err
	}

	return &PurchaseResult{
		Grant:    grant,
		Consumed: plan,
		Balance:  balance,
		Events: append(expired.Events, Event{
			Type:       EventProductPurchased,
			UserID:     actor.UserID,
			UserName:   actor.Name,
			OccurredAt: now,
			Credits:    -product.Price,
			ProductID:  ptr(product.ID),
			ItemName:   product.Name,
			GrantID:    ptr(grant.ID),
			ExpiryDate: ptr(grant.ExpiryDate),
		}),
	}, nil
}

// RenewProductAccess extends the user's latest grant for a product. The
// current catalog price is charged, not the price paid originally.
func (s *Service) RenewProductAccess(ctx context.Context, actor Actor, productID uuid.UUID) (*PurchaseResult, error) {
	if err := s.ensureUser(ctx, actor.UserID); err != nil {
		return nil, err
	}
	product, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}

	var result *PurchaseResult
	err = s.withUserLock(ctx, actor.UserID, func(tx Tx) error {
		grant, err := tx.GetLatestGrant(ctx, actor.UserID, productID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		var expired SweepResult
		plan, balance, err := s.spend(ctx, tx, actor.UserID, product.Price, now, &expired)
		if err != nil {
			return err
		}

		reprice(grant, product, now)
		if err := tx.UpdateGrant(ctx, grant); err != nil {
			return err
		}
		if err := s.appendUsage(ctx, tx, actor.UserID, ActionRenewal, -product.Price, grant, now); err != nil {
			return err
		}

		result = &PurchaseResult{
			Grant:    *grant,
			Consumed: plan,
			Balance:  balance,
			Events: append(expired.Events, Event{
				Type:       EventProductRenewed,
				UserID:     actor.UserID,
				UserName:   actor.Name,
				OccurredAt: now,
				Credits:    -product.Price,
				ProductID:  ptr(product.ID),
				ItemName:   product.Name,
				GrantID:    ptr(grant.ID),
				ExpiryDate: ptr(grant.ExpiryDate),
			}),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, result.Events)
	return result, nil
}

// spend expires the user's lots that are past their expiry date, then plans
// and applies FIFO consumption of cost. Expirations are recorded in expired.
// Nothing is consumed when the user cannot afford it.
func (s *Service) spend(ctx context.Context, tx Tx, userID uuid.UUID, cost int64, now time.Time, expired *SweepResult) ([]Consumption, int64, error) {
	lots, err := tx.ListActiveLots(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	for _, lot := range lots {
		if !lot.Due(now) {
			continue
		}
		if err := s.expireLot(ctx, tx, lot, now, expired); err != nil {
			return nil, 0, err
		}
	}

	plan, err := planConsumption(lots, cost, now)
	if err != nil {
		return nil, 0, err
	}
	for _, lot := range applyConsumption(lots, plan) {
		lot := lot
		if err := tx.UpdateLot(ctx, &lot); err != nil {
			return nil, 0, err
		}
	}
	return plan, sumAmounts(lots, now) - totalTaken(plan), nil
}

// reprice refreshes a grant's snapshot from the catalog and restarts its term
func reprice(g *ProductGrant, product *catalog.Product, now time.Time) {
	g.ProductName = product.Name
	g.PricePaid = product.Price
	g.ExpiryDays = product.ExpiryDays
	g.ExpiryDate = addDays(now, product.ExpiryDays)
	g.Status = GrantActive
}

func (s *Service) appendUsage(ctx context.Context, tx Tx, userID uuid.UUID, action string, amount int64, g *ProductGrant, at time.Time) error {
	rec := UsageRecord{
		ID:        s.newUsageID(at),
		UserID:    userID,
		Action:    action,
		Amount:    amount,
		CreatedAt: at,
	}
	if g != nil {
		rec.ProductID = uuid.NullUUID{UUID: g.ProductID, Valid: true}
		rec.ProductName = sql.NullString{String: g.ProductName, Valid: true}
	}
	return tx.AppendUsage(ctx, &rec)
}

func (s *Service) newUsageID(at time.Time) string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}

// withUserLock serializes fn against every other mutation of the user's
// ledger, across instances via the locker and inside Postgres via an
// advisory transaction lock.
func (s *Service) withUserLock(ctx context.Context, userID uuid.UUID, fn func(tx Tx) error) error {
	key := lock.UserKey(userID.String())
	token, err := s.locker.TryLock(ctx, key, s.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return ErrBusy
		}
		return fmt.Errorf("%w: user lock: %v", ErrInternal, err)
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to release user lock")
		}
	}()

	return s.repo.WithTx(ctx, func(tx Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		return fn(tx)
	})
}

func (s *Service) ensureUser(ctx context.Context, userID uuid.UUID) error {
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: user lookup: %v", ErrInternal, err)
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

func (s *Service) product(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	p, err := s.catalog.GetProduct(ctx, id)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: product lookup: %v", ErrInternal, err)
	}
	return p, nil
}

func (s *Service) pkg(ctx context.Context, id uuid.UUID) (*catalog.Package, error) {
	p, err := s.catalog.GetPackage(ctx, id)
	if errors.Is(err, catalog.ErrPackageNotFound) {
		return nil, ErrPackageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: package lookup: %v", ErrInternal, err)
	}
	return p, nil
}

func addDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}
