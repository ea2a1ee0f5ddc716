package ledger

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/creditshop/creditshop-api/internal/domain/catalog"
	"github.com/creditshop/creditshop-api/internal/domain/notification"
	"github.com/creditshop/creditshop-api/internal/pkg/lock"
)

type fixture struct {
	svc      *Service
	repo     *memRepo
	catalog  *catalogStub
	notifier *notifierStub
	events   *publisherStub
	clock    *clock
	user     Actor
	admin    Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemRepo(),
		catalog:  newCatalogStub(),
		notifier: &notifierStub{},
		events:   &publisherStub{},
		clock:    &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		user:     Actor{UserID: uuid.New(), Role: RoleUser, Name: "Dana"},
		admin:    Actor{UserID: uuid.New(), Role: RoleAdmin, Name: "Ops"},
	}
	users := usersStub{f.user.UserID: true, f.admin.UserID: true}
	f.svc = NewService(f.repo, f.catalog, users, lock.NewLocalLocker(lock.Options{}), f.notifier, f.events,
		WithClock(f.clock.Now))
	return f
}

func (f *fixture) product(price int64, days int) catalog.Product {
	p := catalog.Product{ID: uuid.New(), Name: "Premium Design Templates", Price: price, ExpiryDays: days}
	f.catalog.put(p)
	return p
}

func (f *fixture) total(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	n, err := f.svc.TotalCredits(context.Background(), userID)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	return n
}

func TestPurchaseProductConsumesOldestLotFirst(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	older := f.repo.addLot(f.user.UserID, 30, now.AddDate(0, 0, -10), now.AddDate(0, 0, 20))
	newer := f.repo.addLot(f.user.UserID, 50, now.AddDate(0, 0, -5), now.AddDate(0, 0, 25))
	p := f.product(40, 30)

	res, err := f.svc.PurchaseProduct(context.Background(), f.user, p.ID)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if l := f.repo.lot(older.ID); l.Amount != 0 || l.Status != LotExpired {
		t.Fatalf("expected older lot drained and expired, got %+v", l)
	}
	if l := f.repo.lot(newer.ID); l.Amount != 40 || l.Status != LotActive {
		t.Fatalf("expected newer lot reduced to 40, got %+v", l)
	}
	if res.Balance != 40 || f.total(t, f.user.UserID) != 40 {
		t.Fatalf("expected balance 40, got %d", res.Balance)
	}
	if res.Grant.Status != GrantActive || !res.Grant.ExpiryDate.Equal(now.AddDate(0, 0, 30)) {
		t.Fatalf("unexpected grant %+v", res.Grant)
	}
}

func TestPurchaseProductEndToEnd(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.repo.addLot(f.user.UserID, 100, now, now.AddDate(0, 0, 30))
	p := f.product(60, 30)

	if _, err := f.svc.PurchaseProduct(context.Background(), f.user, p.ID); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if got := f.total(t, f.user.UserID); got != 40 {
		t.Fatalf("expected 40 credits, got %d", got)
	}

	history, err := f.svc.UsageHistory(context.Background(), f.user.UserID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Action != ActionPurchase || history[0].Amount != -60 {
		t.Fatalf("expected one Purchase -60 record, got %+v", history)
	}
	if history[0].ProductName.String != p.Name {
		t.Fatalf("expected product name on record, got %+v", history[0])
	}

	if got := f.notifier.templates(); !reflect.DeepEqual(got, []string{notification.TemplateProductPurchase}) {
		t.Fatalf("unexpected notices %v", got)
	}
	if !reflect.DeepEqual(f.events.keys, []string{EventProductPurchased}) {
		t.Fatalf("unexpected events %v", f.events.keys)
	}
}

func TestPurchaseProductInsufficientCreditsChangesNothing(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.repo.addLot(f.user.UserID, 30, now, now.AddDate(0, 0, 30))
	f.repo.addLot(f.user.UserID, 15, now.Add(time.Minute), now.AddDate(0, 0, 30))
	p := f.product(50, 30)
	before := f.repo.snapshot()

	_, err := f.svc.PurchaseProduct(context.Background(), f.user, p.ID)
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if after := f.repo.snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatal("ledger changed after failed purchase")
	}
	if len(f.notifier.templates()) != 0 || len(f.events.keys) != 0 {
		t.Fatal("no side effects expected on failure")
	}
}

func TestLotsPastExpiryDateCannotPayBeforeSweep(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	overdue := f.repo.addLot(f.user.UserID, 100, now.AddDate(0, -1, 0), now.AddDate(0, 0, -10))
	p := f.product(60, 30)

	if got := f.total(t, f.user.UserID); got != 0 {
		t.Fatalf("overdue lot must not count toward the balance, got %d", got)
	}
	if _, err := f.svc.PurchaseProduct(context.Background(), f.user, p.ID); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if l := f.repo.lot(overdue.ID); l.Amount != 100 {
		t.Fatalf("overdue lot must not be consumed, got %+v", l)
	}

	fresh := f.repo.addLot(f.user.UserID, 80, now.AddDate(0, 0, -1), now.AddDate(0, 1, 0))
	res, err := f.svc.PurchaseProduct(context.Background(), f.user, p.ID)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if res.Balance != 20 || len(res.Consumed) != 1 || res.Consumed[0].LotID != fresh.ID {
		t.Fatalf("expected only the fresh lot consumed, got %+v", res)
	}
	if l := f.repo.lot(overdue.ID); l.Status != LotExpired || l.Amount != 100 {
		t.Fatalf("expected overdue lot expired with frozen amount, got %+v", l)
	}

	history, _ := f.svc.UsageHistory(context.Background(), f.user.UserID, 0)
	actions := map[string]int64{}
	for _, h := range history {
		actions[h.Action] += h.Amount
	}
	if actions[ActionCreditsExpired] != -100 || actions[ActionPurchase] != -60 {
		t.Fatalf("expected Credits Expired -100 and Purchase -60, got %+v", history)
	}
	if !reflect.DeepEqual(f.events.keys, []string{EventCreditsExpired, EventProductPurchased}) {
		t.Fatalf("unexpected events %v", f.events.keys)
	}

	res2, err := f.svc.SweepExpiry(context.Background(), f.user.UserID)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res2.ExpiredLots != 0 {
		t.Fatalf("lot already expired at purchase time, sweep got %+v", res2)
	}
}

func TestPurchaseRollsBackWhenHistoryWriteFails(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	l := f.repo.addLot(f.user.UserID, 100, now, now.AddDate(0, 0, 30))
	p := f.product(60, 30)
	f.repo.failUsage = errors.New("disk full")

	if _, err := f.svc.PurchaseProduct(context.Background(), f.user, p.ID); err == nil {
		t.Fatal("expected error")
	}
	if got := f.repo.lot(l.ID); got.Amount != 100 {
		t.Fatalf("lot must be restored, got %+v", got)
	}
	grants, _ := f.svc.Grants(context.Background(), f.user.UserID)
	if len(grants) != 0 {
		t.Fatalf("expected no grants, got %d", len(grants))
	}
}

func TestPurchaseProductUnknownProductOrUser(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.PurchaseProduct(context.Background(), f.user, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for product, got %v", err)
	}
	p := f.product(10, 30)
	stranger := Actor{UserID: uuid.New(), Role: RoleUser}
	if _, err := f.svc.PurchaseProduct(context.Background(), stranger, p.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestRenewChargesCurrentCatalogPrice(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.repo.addLot(f.user.UserID, 100, now, now.AddDate(0, 1, 0))
	p := f.product(20, 30)

	first, err := f.svc.PurchaseProduct(context.Background(), f.user, p.ID)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	// Price went up after the first purchase; renewal pays the new price.
	p.Price = 35
	p.ExpiryDays = 10
	f.catalog.put(p)
	f.clock.Advance(24 * time.Hour)

	res, err := f.svc.RenewProductAccess(context.Background(), f.user, p.ID)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if res.Grant.ID != first.Grant.ID {
		t.Fatal("renewal must extend the existing grant")
	}
	if res.Grant.PricePaid != 35 || res.Balance != 45 {
		t.Fatalf("expected re-priced renewal, got grant %+v balance %d", res.Grant, res.Balance)
	}
	if want := f.clock.Now().AddDate(0, 0, 10); !res.Grant.ExpiryDate.Equal(want) {
		t.Fatalf("expected fresh expiry %v, got %v", want, res.Grant.ExpiryDate)
	}

	history, _ := f.svc.UsageHistory(context.Background(), f.user.UserID, 0)
	if history[0].Action != ActionRenewal || history[0].Amount != -35 {
		t.Fatalf("expected Renewal -35 first, got %+v", history[0])
	}
}

func TestRenewWithoutPriorGrant(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.repo.addLot(f.user.UserID, 100, now, now.AddDate(0, 1, 0))
	p := f.product(20, 30)

	_, err := f.svc.RenewProductAccess(context.Background(), f.user, p.ID)
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected grant not found, got %v", err)
	}
	if f.total(t, f.user.UserID) != 100 {
		t.Fatal("credits must be untouched")
	}
}

func TestRenewRestoresExpiredGrant(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.repo.addLot(f.user.UserID, 100, now, now.AddDate(0, 1, 0))
	p := f.product(20, 30)
	g := f.repo.addGrant(ProductGrant{
		ProductID: p.ID, UserID: f.user.UserID, ProductName: p.Name, PricePaid: 20, ExpiryDays: 30,
		PurchaseDate: now.AddDate(0, -2, 0), ExpiryDate: now.AddDate(0, -1, 0), Status: GrantExpired,
	})

	res, err := f.svc.RenewProductAccess(context.Background(), f.user, p.ID)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if res.Grant.ID != g.ID || res.Grant.Status != GrantActive {
		t.Fatalf("expected grant reactivated, got %+v", res.Grant)
	}
}

func TestApproveCreditPackageIssuesOneLotOnApprovalTerms(t *testing.T) {
	f := newFixture(t)
	pkg := catalog.Package{ID: uuid.New(), Name: "Pro", Credits: 500, Price: decimal.RequireFromString("39.99"), ExpiryDays: 30}
	f.catalog.putPackage(pkg)

	req, err := f.svc.PurchaseCreditPackage(context.Background(), f.user, pkg.ID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.Status != PurchasePending || !req.MonetaryAmount.Equal(pkg.Price) {
		t.Fatalf("unexpected pending purchase %+v", req)
	}
	if f.total(t, f.user.UserID) != 0 {
		t.Fatal("request must not issue credits")
	}
	first := f.notifier.notices[0]
	if first.Audience != notification.AudienceAdmin || !first.ActionRequired || *first.PurchaseID != req.ID {
		t.Fatalf("expected admin action notice, got %+v", first)
	}
	if first.Template != notification.TemplateCreditPurchaseRequest || first.Vars["user_name"] != "Dana" {
		t.Fatalf("unexpected admin notice %+v", first)
	}

	// Catalog terms change before the admin gets to it
	pkg.Credits = 600
	pkg.ExpiryDays = 60
	f.catalog.putPackage(pkg)
	f.clock.Advance(time.Hour)

	if _, err := f.svc.ApprovePendingPurchase(context.Background(), f.user, req.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for non-admin, got %v", err)
	}

	res, err := f.svc.ApprovePendingPurchase(context.Background(), f.admin, req.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	approvedAt := f.clock.Now()
	lots, _ := f.svc.Lots(context.Background(), f.user.UserID)
	if len(lots) != 1 {
		t.Fatalf("expected exactly one lot, got %d", len(lots))
	}
	if lots[0].Amount != 600 || !lots[0].ExpiryDate.Equal(approvedAt.AddDate(0, 0, 60)) {
		t.Fatalf("lot must carry approval-time terms, got %+v", lots[0])
	}
	if res.Purchase.Status != PurchaseApproved || res.Purchase.ResolvedBy.UUID != f.admin.UserID {
		t.Fatalf("unexpected purchase %+v", res.Purchase)
	}

	history, _ := f.svc.UsageHistory(context.Background(), f.user.UserID, 0)
	if len(history) != 1 || history[0].Action != ActionCreditPurchase || history[0].Amount != 600 {
		t.Fatalf("expected Credit Purchase +600, got %+v", history)
	}
	if len(f.notifier.resolved) != 1 || f.notifier.resolved[0] != req.ID {
		t.Fatalf("expected admin notices resolved, got %v", f.notifier.resolved)
	}
	last := f.notifier.notices[len(f.notifier.notices)-1]
	if last.Template != notification.TemplateCreditPurchase || last.Vars["credit_amount"] != "600" {
		t.Fatalf("unexpected user notice %+v", last)
	}

	if _, err := f.svc.ApprovePendingPurchase(context.Background(), f.admin, req.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state on second approval, got %v", err)
	}
	if lots, _ := f.svc.Lots(context.Background(), f.user.UserID); len(lots) != 1 {
		t.Fatal("second approval must not issue credits")
	}
}

func TestRejectCreatesNoLot(t *testing.T) {
	f := newFixture(t)
	pkg := catalog.Package{ID: uuid.New(), Name: "Starter", Credits: 100, Price: decimal.RequireFromString("9.99"), ExpiryDays: 30}
	f.catalog.putPackage(pkg)
	req, err := f.svc.PurchaseCreditPackage(context.Background(), f.user, pkg.ID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if _, err := f.svc.RejectPendingPurchase(context.Background(), f.user, req.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	p, err := f.svc.RejectPendingPurchase(context.Background(), f.admin, req.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if p.Status != PurchaseRejected {
		t.Fatalf("expected rejected, got %s", p.Status)
	}
	if lots, _ := f.svc.Lots(context.Background(), f.user.UserID); len(lots) != 0 {
		t.Fatalf("rejection must not issue credits, got %d lots", len(lots))
	}
	if _, err := f.svc.ApprovePendingPurchase(context.Background(), f.admin, req.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state after rejection, got %v", err)
	}
	last := f.notifier.notices[len(f.notifier.notices)-1]
	if last.Template != notification.TemplatePurchaseRejected || last.Vars["item_name"] != "Starter" {
		t.Fatalf("unexpected notice %+v", last)
	}
}

func TestApproveUnknownPurchaseOrDeletedPackage(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.ApprovePendingPurchase(context.Background(), f.admin, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	pkg := catalog.Package{ID: uuid.New(), Name: "Gone", Credits: 100, Price: decimal.NewFromInt(5), ExpiryDays: 30}
	f.catalog.putPackage(pkg)
	req, _ := f.svc.PurchaseCreditPackage(context.Background(), f.user, pkg.ID)
	delete(f.catalog.packages, pkg.ID)

	if _, err := f.svc.ApprovePendingPurchase(context.Background(), f.admin, req.ID); !errors.Is(err, ErrPackageNotFound) {
		t.Fatalf("expected package not found, got %v", err)
	}
	p, _ := f.repo.GetPendingPurchase(context.Background(), req.ID)
	if p.Status != PurchasePending {
		t.Fatalf("purchase must stay pending, got %s", p.Status)
	}
}

func TestApproveProductRequestChargesCredits(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.repo.addLot(f.user.UserID, 80, now, now.AddDate(0, 1, 0))
	p := f.product(50, 14)

	req, err := f.svc.RequestProductPurchase(context.Background(), f.user, p.ID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if f.total(t, f.user.UserID) != 80 {
		t.Fatal("request must not charge credits")
	}

	res, err := f.svc.ApprovePendingPurchase(context.Background(), f.admin, req.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if res.Grant == nil || res.Grant.UserID != f.user.UserID || res.Grant.Status != GrantActive {
		t.Fatalf("expected active grant for the requester, got %+v", res.Grant)
	}
	if f.total(t, f.user.UserID) != 30 {
		t.Fatalf("expected 30 credits left, got %d", f.total(t, f.user.UserID))
	}
	last := f.notifier.notices[len(f.notifier.notices)-1]
	if last.Template != notification.TemplatePurchaseApproved || last.Vars["product_name"] != p.Name {
		t.Fatalf("unexpected notice %+v", last)
	}
}

func TestApproveProductRequestWithoutFundsStaysPending(t *testing.T) {
	f := newFixture(t)
	p := f.product(50, 14)
	req, _ := f.svc.RequestProductPurchase(context.Background(), f.user, p.ID)

	if _, err := f.svc.ApprovePendingPurchase(context.Background(), f.admin, req.ID); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected insufficient credits, got %v", err)
	}
	got, _ := f.repo.GetPendingPurchase(context.Background(), req.ID)
	if got.Status != PurchasePending {
		t.Fatalf("failed approval must leave purchase pending, got %s", got.Status)
	}
}

func TestSweepExpiresLotsOnceAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	stale := f.repo.addLot(f.user.UserID, 25, now.AddDate(0, -2, 0), now.Add(-time.Minute))
	fresh := f.repo.addLot(f.user.UserID, 10, now, now.AddDate(0, 1, 0))

	res, err := f.svc.SweepExpiry(context.Background(), f.user.UserID)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.ExpiredLots != 1 || res.ExpiredCredits != 25 {
		t.Fatalf("unexpected result %+v", res)
	}
	if l := f.repo.lot(stale.ID); l.Status != LotExpired || l.Amount != 25 {
		t.Fatalf("expected stale lot expired with frozen amount, got %+v", l)
	}
	if l := f.repo.lot(fresh.ID); l.Status != LotActive {
		t.Fatalf("fresh lot must stay active, got %+v", l)
	}
	if f.total(t, f.user.UserID) != 10 {
		t.Fatal("expected only the fresh lot to count")
	}
	history, _ := f.svc.UsageHistory(context.Background(), f.user.UserID, 0)
	if len(history) != 1 || history[0].Action != ActionCreditsExpired || history[0].Amount != -25 {
		t.Fatalf("expected Credits Expired -25, got %+v", history)
	}

	before := f.repo.snapshot()
	eventsBefore := len(f.events.keys)
	noticesBefore := len(f.notifier.templates())

	res, err = f.svc.SweepExpiry(context.Background(), f.user.UserID)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if res.Changed() {
		t.Fatalf("second sweep must be a no-op, got %+v", res)
	}
	if !reflect.DeepEqual(before, f.repo.snapshot()) {
		t.Fatal("second sweep changed state")
	}
	if len(f.events.keys) != eventsBefore || len(f.notifier.templates()) != noticesBefore {
		t.Fatal("second sweep produced side effects")
	}
}

func TestSweepAutoRenewsAffordableGrant(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.repo.addLot(f.user.UserID, 100, now.AddDate(0, 0, -1), now.AddDate(0, 1, 0))
	p := f.product(30, 30)
	g := f.repo.addGrant(ProductGrant{
		ProductID: p.ID, UserID: f.user.UserID, ProductName: p.Name, PricePaid: 30, ExpiryDays: 30,
		PurchaseDate: now.AddDate(0, 0, -31), ExpiryDate: now.AddDate(0, 0, -1), Status: GrantActive,
	})

	res, err := f.svc.SweepExpiry(context.Background(), f.user.UserID)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	got := f.repo.grant(g.ID)
	if got.Status != GrantActive || !got.ExpiryDate.After(g.ExpiryDate) {
		t.Fatalf("expected renewed grant, got %+v", got)
	}
	if !got.ExpiryDate.Equal(now.AddDate(0, 0, 30)) {
		t.Fatalf("expected expiry now+30d, got %v", got.ExpiryDate)
	}
	if len(res.Renewed) != 1 || f.total(t, f.user.UserID) != 70 {
		t.Fatalf("expected one renewal costing 30, got %+v", res)
	}
	history, _ := f.svc.UsageHistory(context.Background(), f.user.UserID, 0)
	if history[0].Action != ActionAutoRenewal || history[0].Amount != -30 {
		t.Fatalf("expected Auto-Renewal -30, got %+v", history[0])
	}
	if got := f.notifier.templates(); !reflect.DeepEqual(got, []string{notification.TemplateProductAutoRenewal}) {
		t.Fatalf("unexpected notices %v", got)
	}
}

func TestSweepExpiresUnaffordableGrantsWithOneNotice(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.repo.addLot(f.user.UserID, 10, now, now.AddDate(0, 1, 0))
	a, b := f.product(30, 30), f.product(40, 30)
	for _, p := range []catalog.Product{a, b} {
		f.repo.addGrant(ProductGrant{
			ProductID: p.ID, UserID: f.user.UserID, ProductName: p.Name, PricePaid: p.Price, ExpiryDays: 30,
			PurchaseDate: now.AddDate(0, 0, -31), ExpiryDate: now.AddDate(0, 0, -1), Status: GrantActive,
		})
	}
	// A product removed from the catalog cannot renew either
	gone := f.repo.addGrant(ProductGrant{
		ProductID: uuid.New(), UserID: f.user.UserID, ProductName: "Retired Course", PricePaid: 1, ExpiryDays: 30,
		PurchaseDate: now.AddDate(0, 0, -31), ExpiryDate: now.AddDate(0, 0, -1), Status: GrantActive,
	})

	res, err := f.svc.SweepExpiry(context.Background(), f.user.UserID)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.Expired) != 3 || len(res.Renewed) != 0 {
		t.Fatalf("expected three expired grants, got %+v", res)
	}
	if f.repo.grant(gone.ID).Status != GrantExpired {
		t.Fatal("grant for deleted product must expire")
	}
	if f.total(t, f.user.UserID) != 10 {
		t.Fatal("failed renewals must not spend credits")
	}
	if got := f.notifier.templates(); !reflect.DeepEqual(got, []string{notification.TemplateProductsExpired}) {
		t.Fatalf("expected a single batched expiry notice, got %v", got)
	}
}

func TestSweepDueVisitsOnlyUsersWithOverdueItems(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	other := uuid.New()
	idle := uuid.New()
	f.repo.addLot(f.user.UserID, 5, now.AddDate(0, -1, 0), now.Add(-time.Hour))
	f.repo.addLot(other, 5, now.AddDate(0, -1, 0), now.Add(-time.Hour))
	f.repo.addLot(idle, 5, now, now.AddDate(0, 1, 0))

	swept, err := f.svc.SweepDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("sweep due: %v", err)
	}
	if swept != 2 {
		t.Fatalf("expected 2 users swept, got %d", swept)
	}
	if f.total(t, idle) != 5 || f.total(t, other) != 0 {
		t.Fatal("unexpected balances after scheduled sweep")
	}
}

func TestBusyLedgerIsReported(t *testing.T) {
	f := newFixture(t)
	locker := lock.NewLocalLocker(lock.Options{Wait: 10 * time.Millisecond, RetryDelay: time.Millisecond})
	f.svc.locker = locker
	if _, err := locker.TryLock(context.Background(), lock.UserKey(f.user.UserID.String()), time.Minute); err != nil {
		t.Fatalf("lock: %v", err)
	}

	if _, err := f.svc.SweepExpiry(context.Background(), f.user.UserID); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestListPurchasesScopesNonAdmins(t *testing.T) {
	f := newFixture(t)
	pkg := catalog.Package{ID: uuid.New(), Name: "Starter", Credits: 100, Price: decimal.NewFromInt(10), ExpiryDays: 30}
	f.catalog.putPackage(pkg)
	if _, err := f.svc.PurchaseCreditPackage(context.Background(), f.user, pkg.ID); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := f.svc.PurchaseCreditPackage(context.Background(), f.admin, pkg.ID); err != nil {
		t.Fatalf("request: %v", err)
	}

	mine, _ := f.svc.ListPurchases(context.Background(), f.user, PurchaseFilter{})
	if len(mine) != 1 || mine[0].UserID != f.user.UserID {
		t.Fatalf("user must only see own purchases, got %+v", mine)
	}
	all, _ := f.svc.ListPurchases(context.Background(), f.admin, PurchaseFilter{Status: PurchasePending})
	if len(all) != 2 {
		t.Fatalf("admin must see every pending purchase, got %d", len(all))
	}
}

func TestUsageHistoryLimit(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.repo.addLot(f.user.UserID, 1000, now, now.AddDate(1, 0, 0))
	for i := 0; i < 8; i++ {
		p := f.product(1, 30)
		if _, err := f.svc.PurchaseProduct(context.Background(), f.user, p.ID); err != nil {
			t.Fatalf("purchase %d: %v", i, err)
		}
	}

	history, _ := f.svc.UsageHistory(context.Background(), f.user.UserID, 0)
	if len(history) != defaultHistoryLimit {
		t.Fatalf("expected default limit %d, got %d", defaultHistoryLimit, len(history))
	}
	history, _ = f.svc.UsageHistory(context.Background(), f.user.UserID, 500)
	if len(history) != 8 {
		t.Fatalf("expected all 8 records, got %d", len(history))
	}
}

func TestActiveGrantChecksOwnerAndStatus(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	g := f.repo.addGrant(ProductGrant{
		ProductID: uuid.New(), UserID: f.user.UserID, ProductName: "Kit",
		PurchaseDate: now, ExpiryDate: now.AddDate(0, 0, 3), Status: GrantActive,
	})
	if _, err := f.svc.ActiveGrant(context.Background(), f.user.UserID, g.ID); err != nil {
		t.Fatalf("active grant: %v", err)
	}
	if _, err := f.svc.ActiveGrant(context.Background(), f.admin.UserID, g.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for another user, got %v", err)
	}
	f.clock.Advance(4 * 24 * time.Hour)
	if _, err := f.svc.ActiveGrant(context.Background(), f.user.UserID, g.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state past expiry, got %v", err)
	}
}
