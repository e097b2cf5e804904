package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RequirePositive rejects zero and negative quantities.
func RequirePositive(field string, q decimal.Decimal) error {
	if !q.IsPositive() {
		return NewValidationError("quantity must be greater than zero", map[string]any{
			"field":    field,
			"quantity": q.String(),
		})
	}
	return nil
}

// NormalizeSerials trims serial numbers and rejects blanks and duplicates within one request.
func NormalizeSerials(serials []string) ([]string, error) {
	if len(serials) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(serials))
	out := make([]string, 0, len(serials))
	for _, s := range serials {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, NewFieldError("serial_numbers", "serial numbers must not be blank")
		}
		if _, dup := seen[s]; dup {
			return nil, NewValidationError("duplicate serial number in request", map[string]any{
				"field":         "serial_numbers",
				"serial_number": s,
			})
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

// CheckSerialQuantity enforces the tracking rules of a product on one line item:
// serial-tracked products need exactly one serial per unit, other products take none.
func CheckSerialQuantity(product *Product, quantity decimal.Decimal, serials []string) error {
	if !product.RequiresSerial {
		if len(serials) > 0 {
			return NewValidationError("product is not serial tracked", map[string]any{
				"field":      "serial_numbers",
				"product_id": product.ID,
			})
		}
		return nil
	}
	if !quantity.Equal(decimal.NewFromInt(int64(len(serials)))) {
		return NewValidationError("quantity must equal the number of serial numbers", map[string]any{
			"field":        "serial_numbers",
			"product_id":   product.ID,
			"quantity":     quantity.String(),
			"serial_count": len(serials),
		})
	}
	return nil
}
