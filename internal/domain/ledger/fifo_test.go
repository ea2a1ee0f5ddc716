package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func lot(amount int64, purchased time.Time) CreditLot {
	return CreditLot{
		ID:           uuid.New(),
		Amount:       amount,
		PurchaseDate: purchased,
		ExpiryDate:   purchased.AddDate(1, 0, 0),
		Status:       LotActive,
	}
}

func TestPlanConsumptionOldestFirst(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	older := lot(30, base)
	newer := lot(50, base.Add(time.Hour))

	// Listed newest first to make sure order comes from purchase date
	plan, err := planConsumption([]CreditLot{newer, older}, 40, base)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(plan))
	}
	if plan[0].LotID != older.ID || plan[0].Taken != 30 || !plan[0].Drained() {
		t.Fatalf("expected older lot drained first, got %+v", plan[0])
	}
	if plan[1].LotID != newer.ID || plan[1].Taken != 10 || plan[1].Remaining != 40 {
		t.Fatalf("expected newer lot reduced to 40, got %+v", plan[1])
	}

	touched := applyConsumption([]CreditLot{newer, older}, plan)
	for _, l := range touched {
		switch l.ID {
		case older.ID:
			if l.Amount != 0 || l.Status != LotExpired {
				t.Fatalf("older lot: %+v", l)
			}
		case newer.ID:
			if l.Amount != 40 || l.Status != LotActive {
				t.Fatalf("newer lot: %+v", l)
			}
		}
	}
}

func TestPlanConsumptionTieBreaksByID(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := lot(10, at)
	b := lot(10, at)
	a.ID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b.ID = uuid.MustParse("00000000-0000-0000-0000-000000000002")

	plan, err := planConsumption([]CreditLot{b, a}, 5, at)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan) != 1 || plan[0].LotID != a.ID {
		t.Fatalf("expected lowest id consumed, got %+v", plan)
	}
}

func TestPlanConsumptionInsufficient(t *testing.T) {
	at := time.Now()
	lots := []CreditLot{lot(10, at), lot(5, at)}

	plan, err := planConsumption(lots, 16, at)
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if plan != nil {
		t.Fatalf("expected no plan, got %+v", plan)
	}
	if lots[0].Amount != 10 || lots[1].Amount != 5 {
		t.Fatal("lots must not be mutated")
	}
}

func TestPlanConsumptionSkipsExpiredAndEmpty(t *testing.T) {
	at := time.Now()
	expired := lot(100, at.Add(-time.Hour))
	expired.Status = LotExpired
	empty := lot(0, at.Add(-time.Minute))
	live := lot(20, at)

	plan, err := planConsumption([]CreditLot{expired, empty, live}, 20, at)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan) != 1 || plan[0].LotID != live.ID {
		t.Fatalf("expected only live lot used, got %+v", plan)
	}
	if _, err := planConsumption([]CreditLot{expired}, 1, at); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expired lot must not count, got %v", err)
	}
}

func TestPlanConsumptionZeroCost(t *testing.T) {
	plan, err := planConsumption(nil, 0, time.Now())
	if err != nil || len(plan) != 0 {
		t.Fatalf("expected empty plan, got %+v %v", plan, err)
	}
	if _, err := planConsumption(nil, -1, time.Now()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for negative cost, got %v", err)
	}
}

func TestPlanConsumptionSkipsLotsPastExpiryDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	overdue := lot(100, now.AddDate(0, -2, 0))
	overdue.ExpiryDate = now.AddDate(0, 0, -10)
	fresh := lot(30, now.AddDate(0, -1, 0))

	if _, err := planConsumption([]CreditLot{overdue, fresh}, 60, now); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("overdue lot must not pay, got %v", err)
	}

	plan, err := planConsumption([]CreditLot{overdue, fresh}, 30, now)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan) != 1 || plan[0].LotID != fresh.ID {
		t.Fatalf("expected only the fresh lot used, got %+v", plan)
	}

	// A lot expiring exactly now is still spendable
	edge := lot(10, now.AddDate(0, -1, 0))
	edge.ExpiryDate = now
	if _, err := planConsumption([]CreditLot{edge}, 10, now); err != nil {
		t.Fatalf("lot expiring now should pay, got %v", err)
	}
}
