package lots

import (
	"sort"
	"time"

	"directstock/internal/domain"

	"github.com/shopspring/decimal"
)

// SortFefo orders lots by expiry ascending with undated lots last, then by batch number
func SortFefo(lots []domain.LotLine) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i].ExpiryDate, lots[j].ExpiryDate
		switch {
		case a == nil && b != nil:
			return false
		case a != nil && b == nil:
			return true
		case a != nil && b != nil && !sameDate(a, b):
			return a.Before(*b)
		}
		return lots[i].BatchNumber < lots[j].BatchNumber
	})
}

// PlanFefo picks quantities from lots in FEFO order until required is covered.
// It does not modify the lots. A shortfall fails without a partial plan.
func PlanFefo(productID, binID string, lots []domain.LotLine, required decimal.Decimal) ([]domain.BatchAllocation, error) {
	if err := domain.RequirePositive("quantity", required); err != nil {
		return nil, err
	}

	candidates := make([]domain.LotLine, 0, len(lots))
	total := decimal.Zero
	for _, lot := range lots {
		if lot.Quantity.IsPositive() {
			candidates = append(candidates, lot)
			total = total.Add(lot.Quantity)
		}
	}
	if total.LessThan(required) {
		return nil, domain.NewInsufficientLotStock(productID, binID, "", total, required)
	}
	SortFefo(candidates)

	remaining := required
	var plan []domain.BatchAllocation
	for _, lot := range candidates {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(lot.Quantity, remaining)
		plan = append(plan, domain.BatchAllocation{
			BatchNumber: lot.BatchNumber,
			Quantity:    take,
			ExpiryDate:  lot.ExpiryDate,
		})
		remaining = remaining.Sub(take)
	}
	return plan, nil
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
