// internal/domain/medicine/entity.go
package medicine

import (
	"errors"
	"strings"
)

var (
	ErrInvalidMedicine = errors.New("medicine: invalid")
)

// Medicine is a denormalized reference to a catalog item as the storefront
// carries it inside the cart: opaque identifier plus the display/pricing
// fields the cart screen needs without another catalog round trip.
//
// NOTE:
// - Price is a pointer because the backend does not always resolve a unit
//   price (e.g. prescription items pending quotation). nil は「価格未解決」。
// - The catalog itself is NOT owned here; this is a reference only.
type Medicine struct {
	ID           string   `json:"id" firestore:"id"`
	Name         string   `json:"name,omitempty" firestore:"name,omitempty"`
	Price        *float64 `json:"price,omitempty" firestore:"price,omitempty"`
	ThumbnailURL string   `json:"thumbnailUrl,omitempty" firestore:"thumbnailUrl,omitempty"`
}

// Normalized returns a copy with trimmed string fields.
func (m Medicine) Normalized() Medicine {
	m.ID = strings.TrimSpace(m.ID)
	m.Name = strings.TrimSpace(m.Name)
	m.ThumbnailURL = strings.TrimSpace(m.ThumbnailURL)
	return m
}

// HasID reports whether the reference resolves to a catalog identifier.
// Cart mutations against an ID-less reference are rejected up front.
func (m Medicine) HasID() bool {
	return strings.TrimSpace(m.ID) != ""
}

// UnitPrice returns the resolvable unit price, or 0 when the price is
// unknown. Totals must never propagate NaN / negative values into the UI.
func (m Medicine) UnitPrice() float64 {
	if m.Price == nil {
		return 0
	}
	if *m.Price < 0 {
		return 0
	}
	return *m.Price
}

// Validate checks the reference is usable as a cart line target.
func (m Medicine) Validate() error {
	if !m.HasID() {
		return ErrInvalidMedicine
	}
	return nil
}
