package ledger

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Consumption is one step of a FIFO spending plan
type Consumption struct {
	LotID     uuid.UUID `json:"lot_id"`
	Taken     int64     `json:"taken"`
	Remaining int64     `json:"remaining"`
}

// Drained reports whether the step empties its lot
func (c Consumption) Drained() bool {
	return c.Remaining == 0
}

// planConsumption computes which lots pay for cost, oldest purchase first
// (ties broken by lot ID). Whole lots are drained before the first larger
// lot is decremented. Nothing is mutated; when the spendable total is short
// of cost the plan is empty and ErrInsufficientCredits is returned. Lots past
// their expiry date at now are never drawn from.
func planConsumption(lots []CreditLot, cost int64, now time.Time) ([]Consumption, error) {
	if cost < 0 {
		return nil, fmt.Errorf("%w: negative cost %d", ErrInvalidState, cost)
	}

	spendable := make([]CreditLot, 0, len(lots))
	for _, l := range lots {
		if l.Spendable(now) {
			spendable = append(spendable, l)
		}
	}
	sort.SliceStable(spendable, func(i, j int) bool {
		a, b := spendable[i], spendable[j]
		if !a.PurchaseDate.Equal(b.PurchaseDate) {
			return a.PurchaseDate.Before(b.PurchaseDate)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})

	if total := sumAmounts(spendable, now); total < cost {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientCredits, cost, total)
	}

	var plan []Consumption
	remaining := cost
	for _, l := range spendable {
		if remaining == 0 {
			break
		}
		take := l.Amount
		if take > remaining {
			take = remaining
		}
		remaining -= take
		plan = append(plan, Consumption{LotID: l.ID, Taken: take, Remaining: l.Amount - take})
	}
	return plan, nil
}

// applyConsumption writes a plan onto lots and returns the touched lots.
// Drained lots become expired.
func applyConsumption(lots []CreditLot, plan []Consumption) []CreditLot {
	steps := make(map[uuid.UUID]Consumption, len(plan))
	for _, c := range plan {
		steps[c.LotID] = c
	}

	touched := make([]CreditLot, 0, len(plan))
	for _, l := range lots {
		c, ok := steps[l.ID]
		if !ok {
			continue
		}
		l.Amount = c.Remaining
		if c.Drained() {
			l.Status = LotExpired
		}
		touched = append(touched, l)
	}
	return touched
}

func sumAmounts(lots []CreditLot, now time.Time) int64 {
	var total int64
	for _, l := range lots {
		if l.Spendable(now) {
			total += l.Amount
		}
	}
	return total
}

func totalTaken(plan []Consumption) int64 {
	var n int64
	for _, c := range plan {
		n += c.Taken
	}
	return n
}
