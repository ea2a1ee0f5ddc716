package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/creditshop/creditshop-api/internal/domain/catalog"
	"github.com/creditshop/creditshop-api/internal/domain/notification"
)

// memRepo is an in-memory Repository. WithTx snapshots the state and
// restores it when fn fails.
type memRepo struct {
	txMu sync.Mutex
	mu   sync.Mutex

	lots      map[uuid.UUID]CreditLot
	grants    map[uuid.UUID]ProductGrant
	purchases map[uuid.UUID]PendingPurchase
	usage     []UsageRecord

	failUsage error
	locked    []uuid.UUID
}

func newMemRepo() *memRepo {
	return &memRepo{
		lots:      map[uuid.UUID]CreditLot{},
		grants:    map[uuid.UUID]ProductGrant{},
		purchases: map[uuid.UUID]PendingPurchase{},
	}
}

type memSnapshot struct {
	lots      map[uuid.UUID]CreditLot
	grants    map[uuid.UUID]ProductGrant
	purchases map[uuid.UUID]PendingPurchase
	usage     []UsageRecord
}

func (r *memRepo) snapshot() memSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := memSnapshot{
		lots:      make(map[uuid.UUID]CreditLot, len(r.lots)),
		grants:    make(map[uuid.UUID]ProductGrant, len(r.grants)),
		purchases: make(map[uuid.UUID]PendingPurchase, len(r.purchases)),
		usage:     append([]UsageRecord(nil), r.usage...),
	}
	for k, v := range r.lots {
		s.lots[k] = v
	}
	for k, v := range r.grants {
		s.grants[k] = v
	}
	for k, v := range r.purchases {
		s.purchases[k] = v
	}
	return s
}

func (r *memRepo) restore(s memSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lots, r.grants, r.purchases, r.usage = s.lots, s.grants, s.purchases, s.usage
}

func (r *memRepo) WithTx(_ context.Context, fn func(tx Tx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	snap := r.snapshot()
	if err := fn(r); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memRepo) addLot(userID uuid.UUID, amount int64, purchased, expires time.Time) CreditLot {
	l := CreditLot{
		ID:           uuid.New(),
		UserID:       userID,
		Amount:       amount,
		PurchaseDate: purchased,
		ExpiryDate:   expires,
		Status:       LotActive,
	}
	r.mu.Lock()
	r.lots[l.ID] = l
	r.mu.Unlock()
	return l
}

func (r *memRepo) addGrant(g ProductGrant) ProductGrant {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	r.mu.Lock()
	r.grants[g.ID] = g
	r.mu.Unlock()
	return g
}

func (r *memRepo) lot(id uuid.UUID) CreditLot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lots[id]
}

func (r *memRepo) grant(id uuid.UUID) ProductGrant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grants[id]
}

func (r *memRepo) LockUser(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	r.locked = append(r.locked, userID)
	r.mu.Unlock()
	return nil
}

func (r *memRepo) lotsWhere(keep func(CreditLot) bool) []CreditLot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []CreditLot{}
	for _, l := range r.lots {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchaseDate.Before(out[j].PurchaseDate) })
	return out
}

func (r *memRepo) ListLots(_ context.Context, userID uuid.UUID) ([]CreditLot, error) {
	return r.lotsWhere(func(l CreditLot) bool { return l.UserID == userID }), nil
}

func (r *memRepo) SumActiveCredits(_ context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	var total int64
	for _, l := range r.lotsWhere(func(l CreditLot) bool {
		return l.UserID == userID && l.Status == LotActive && !l.ExpiryDate.Before(now)
	}) {
		total += l.Amount
	}
	return total, nil
}

func (r *memRepo) ListActiveLots(_ context.Context, userID uuid.UUID) ([]CreditLot, error) {
	return r.lotsWhere(func(l CreditLot) bool { return l.UserID == userID && l.Status == LotActive }), nil
}

func (r *memRepo) ListDueLots(_ context.Context, userID uuid.UUID, now time.Time) ([]CreditLot, error) {
	return r.lotsWhere(func(l CreditLot) bool {
		return l.UserID == userID && l.Status == LotActive && l.ExpiryDate.Before(now)
	}), nil
}

func (r *memRepo) CreateLot(_ context.Context, l *CreditLot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lots[l.ID] = *l
	return nil
}

func (r *memRepo) UpdateLot(_ context.Context, l *CreditLot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lots[l.ID] = *l
	return nil
}

func (r *memRepo) grantsWhere(keep func(ProductGrant) bool) []ProductGrant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []ProductGrant{}
	for _, g := range r.grants {
		if keep(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchaseDate.After(out[j].PurchaseDate) })
	return out
}

func (r *memRepo) ListGrants(_ context.Context, userID uuid.UUID) ([]ProductGrant, error) {
	return r.grantsWhere(func(g ProductGrant) bool { return g.UserID == userID }), nil
}

func (r *memRepo) GetGrant(_ context.Context, id uuid.UUID) (*ProductGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (r *memRepo) GetLatestGrant(_ context.Context, userID, productID uuid.UUID) (*ProductGrant, error) {
	gs := r.grantsWhere(func(g ProductGrant) bool { return g.UserID == userID && g.ProductID == productID })
	if len(gs) == 0 {
		return nil, ErrGrantNotFound
	}
	return &gs[0], nil
}

func (r *memRepo) ListDueGrants(_ context.Context, userID uuid.UUID, now time.Time) ([]ProductGrant, error) {
	return r.grantsWhere(func(g ProductGrant) bool {
		return g.UserID == userID && g.Status == GrantActive && g.ExpiryDate.Before(now)
	}), nil
}

func (r *memRepo) CreateGrant(_ context.Context, g *ProductGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[g.ID] = *g
	return nil
}

func (r *memRepo) UpdateGrant(_ context.Context, g *ProductGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[g.ID] = *g
	return nil
}

func (r *memRepo) CreatePendingPurchase(_ context.Context, p *PendingPurchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purchases[p.ID] = *p
	return nil
}

func (r *memRepo) GetPendingPurchase(_ context.Context, id uuid.UUID) (*PendingPurchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[id]
	if !ok {
		return nil, ErrPurchaseNotFound
	}
	return &p, nil
}

func (r *memRepo) GetPendingPurchaseForUpdate(ctx context.Context, id uuid.UUID) (*PendingPurchase, error) {
	return r.GetPendingPurchase(ctx, id)
}

func (r *memRepo) UpdatePendingPurchase(_ context.Context, p *PendingPurchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purchases[p.ID] = *p
	return nil
}

func (r *memRepo) ListPendingPurchases(_ context.Context, f PurchaseFilter) ([]PendingPurchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []PendingPurchase{}
	for _, p := range r.purchases {
		if f.UserID != nil && p.UserID != *f.UserID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) AppendUsage(_ context.Context, rec *UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUsage != nil {
		return r.failUsage
	}
	r.usage = append(r.usage, *rec)
	return nil
}

func (r *memRepo) ListUsage(_ context.Context, userID uuid.UUID, limit int) ([]UsageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []UsageRecord{}
	for _, u := range r.usage {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) ListUsersWithDueItems(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	add := func(id uuid.UUID) {
		if !seen[id] && len(out) < limit {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, l := range r.lots {
		if l.Status == LotActive && l.ExpiryDate.Before(now) {
			add(l.UserID)
		}
	}
	for _, g := range r.grants {
		if g.Status == GrantActive && g.ExpiryDate.Before(now) {
			add(g.UserID)
		}
	}
	return out, nil
}

type catalogStub struct {
	mu       sync.Mutex
	products map[uuid.UUID]catalog.Product
	packages map[uuid.UUID]catalog.Package
}

func newCatalogStub() *catalogStub {
	return &catalogStub{products: map[uuid.UUID]catalog.Product{}, packages: map[uuid.UUID]catalog.Package{}}
}

func (c *catalogStub) put(p catalog.Product) {
	c.mu.Lock()
	c.products[p.ID] = p
	c.mu.Unlock()
}

func (c *catalogStub) putPackage(p catalog.Package) {
	c.mu.Lock()
	c.packages[p.ID] = p
	c.mu.Unlock()
}

func (c *catalogStub) GetProduct(_ context.Context, id uuid.UUID) (*catalog.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

func (c *catalogStub) GetPackage(_ context.Context, id uuid.UUID) (*catalog.Package, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.packages[id]
	if !ok {
		return nil, catalog.ErrPackageNotFound
	}
	return &p, nil
}

type usersStub map[uuid.UUID]bool

func (u usersStub) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	return u[id], nil
}

type notifierStub struct {
	mu       sync.Mutex
	notices  []notification.Notice
	resolved []uuid.UUID
}

func (n *notifierStub) Notify(_ context.Context, notice notification.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

func (n *notifierStub) ResolveAction(_ context.Context, purchaseID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, purchaseID)
	return nil
}

func (n *notifierStub) templates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.notices))
	for i, x := range n.notices {
		out[i] = x.Template
	}
	return out
}

type publisherStub struct {
	mu   sync.Mutex
	keys []string
}

func (p *publisherStub) Publish(_ context.Context, routingKey string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
