package ledger

import (
	"context"
	"sort"

	"directstock/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LineKey identifies a stock line
type LineKey struct {
	ProductID string
	BinID     string
}

// Replay folds journal entries into per-line quantities: the destination bin gains
// the quantity and the source bin loses it.
func Replay(entries []domain.MovementEntry) map[LineKey]decimal.Decimal {
	out := make(map[LineKey]decimal.Decimal)
	for _, e := range entries {
		if e.ToBinID != nil {
			k := LineKey{e.ProductID, *e.ToBinID}
			out[k] = out[k].Add(e.Quantity)
		}
		if e.FromBinID != nil {
			k := LineKey{e.ProductID, *e.FromBinID}
			out[k] = out[k].Sub(e.Quantity)
		}
	}
	return out
}

// Drift is a stock line whose stored quantity disagrees with the journal
type Drift struct {
	ProductID string          `json:"product_id"`
	BinID     string          `json:"bin_id"`
	Projected decimal.Decimal `json:"projected"`
	Journal   decimal.Decimal `json:"journal"`
}

// Projection checks and repairs stock lines against the journal
type Projection struct {
	ledger  *Ledger
	journal *Journal
	logger  *zap.Logger
}

func NewProjection(l *Ledger, j *Journal, logger *zap.Logger) *Projection {
	return &Projection{ledger: l, journal: j, logger: logger}
}

// Verify reports every line whose stored quantity differs from the replayed journal
func (p *Projection) Verify(ctx context.Context) ([]Drift, error) {
	var drifts []Drift
	err := p.ledger.db.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		drifts, _, err = p.compare(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return drifts, nil
}

// Rebuild overwrites drifted stock line quantities with the replayed journal values
func (p *Projection) Rebuild(ctx context.Context) ([]Drift, error) {
	var drifts []Drift
	err := p.ledger.db.WithinTx(ctx, func(ctx context.Context) error {
		var units map[LineKey]string
		var err error
		drifts, units, err = p.compare(ctx)
		if err != nil {
			return err
		}
		for _, d := range drifts {
			if d.Journal.IsNegative() {
				return domain.NewConflict("journal replays to a negative quantity", map[string]any{
					"product_id": d.ProductID,
					"bin_id":     d.BinID,
					"quantity":   d.Journal.String(),
				})
			}
			if err := p.ledger.setQuantity(ctx, d.ProductID, d.BinID, units[LineKey{d.ProductID, d.BinID}], d.Journal); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(drifts) > 0 {
		p.logger.Warn("Stock lines rebuilt from journal", zap.Int("lines", len(drifts)))
	}
	return drifts, nil
}

func (p *Projection) compare(ctx context.Context) ([]Drift, map[LineKey]string, error) {
	entries, err := p.journal.All(ctx)
	if err != nil {
		return nil, nil, err
	}
	lines, err := p.ledger.List(ctx, StockFilter{})
	if err != nil {
		return nil, nil, err
	}

	expected := Replay(entries)
	units := make(map[LineKey]string)
	for _, e := range entries {
		if e.ToBinID != nil {
			units[LineKey{e.ProductID, *e.ToBinID}] = e.Unit
		}
	}

	stored := make(map[LineKey]decimal.Decimal, len(lines))
	for _, line := range lines {
		stored[LineKey{line.ProductID, line.BinID}] = line.Quantity
	}

	keys := make(map[LineKey]struct{}, len(expected)+len(stored))
	for k := range expected {
		keys[k] = struct{}{}
	}
	for k := range stored {
		keys[k] = struct{}{}
	}

	var drifts []Drift
	for k := range keys {
		if !stored[k].Equal(expected[k]) {
			drifts = append(drifts, Drift{
				ProductID: k.ProductID,
				BinID:     k.BinID,
				Projected: stored[k],
				Journal:   expected[k],
			})
		}
	}
	sort.Slice(drifts, func(i, j int) bool {
		if drifts[i].ProductID != drifts[j].ProductID {
			return drifts[i].ProductID < drifts[j].ProductID
		}
		return drifts[i].BinID < drifts[j].BinID
	})
	return drifts, units, nil
}
