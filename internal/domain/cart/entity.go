// internal/domain/cart/entity.go
package cart

import (
	"errors"

	meddom "medicart/internal/domain/medicine"
)

var (
	// ErrNotAuthenticated: mutating operation attempted without a signed-in
	// customer. Surfaced to the user, never retried.
	ErrNotAuthenticated = errors.New("cart: not authenticated")

	// ErrInvalidMedicine: the medicine reference has no resolvable identifier
	// (or the requested quantity is not a positive integer).
	ErrInvalidMedicine = errors.New("cart: invalid medicine reference")

	// ErrLineNotFound: quantity update targeting a line that is not in the cart.
	ErrLineNotFound = errors.New("cart: line not found")
)

// LineItem represents "one row" in the cart: one medicine and the number of
// units requested for it.
//
// Uniqueness is defined by Medicine.ID — at most one LineItem per distinct
// medicine identifier within a cart.
type LineItem struct {
	Medicine meddom.Medicine `json:"medicine" firestore:"medicine"`
	Quantity int             `json:"quantity" firestore:"quantity"`
}

// Subtotal is Quantity × unit price; lines without a resolvable price
// contribute 0 (never NaN).
func (l LineItem) Subtotal() float64 {
	if l.Quantity <= 0 {
		return 0
	}
	return float64(l.Quantity) * l.Medicine.UnitPrice()
}

// valid reports whether the line survives defensive normalization:
// it must reference a real medicine and carry a positive quantity.
func (l LineItem) valid() bool {
	return l.Medicine.HasID() && l.Quantity > 0
}

// ----------------------------
// Helpers
// ----------------------------

func findLineIndex(lines []LineItem, medicineID string) int {
	for i := range lines {
		if lines[i].Medicine.ID == medicineID {
			return i
		}
	}
	return -1
}

func removeLineIndex(lines []LineItem, idx int) []LineItem {
	if idx < 0 || idx >= len(lines) {
		return lines
	}
	// preserve order
	return append(lines[:idx], lines[idx+1:]...)
}

// normalizeLines drops malformed entries and merges duplicate medicine IDs by
// accumulating quantities. First-seen order is preserved — insertion order is
// not semantically meaningful, but the UI relies on it for row stability, so
// unlike a map-backed merge this never reorders surviving lines.
//
// The server response goes through this too: the backend is not fully trusted
// to return well-formed line items.
func normalizeLines(src []LineItem) []LineItem {
	out := make([]LineItem, 0, len(src))
	seen := map[string]int{} // medicineID -> index in out

	for _, l := range src {
		l.Medicine = l.Medicine.Normalized()
		if !l.valid() {
			continue
		}
		if i, ok := seen[l.Medicine.ID]; ok {
			out[i].Quantity += l.Quantity
			// 表示フィールドは既存優先、空なら埋める
			if out[i].Medicine.Name == "" {
				out[i].Medicine.Name = l.Medicine.Name
			}
			if out[i].Medicine.Price == nil {
				out[i].Medicine.Price = l.Medicine.Price
			}
			if out[i].Medicine.ThumbnailURL == "" {
				out[i].Medicine.ThumbnailURL = l.Medicine.ThumbnailURL
			}
			continue
		}
		seen[l.Medicine.ID] = len(out)
		out = append(out, l)
	}

	return out
}

func cloneLines(src []LineItem) []LineItem {
	if len(src) == 0 {
		return []LineItem{}
	}
	cp := make([]LineItem, len(src))
	copy(cp, src)
	return cp
}
