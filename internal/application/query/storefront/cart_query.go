// internal/application/query/storefront/cart_query.go
package storefront

import (
	"errors"

	sfdto "medicart/internal/application/query/storefront/dto"
	cartdom "medicart/internal/domain/cart"
)

// CartQuery projects the session's local cart store into the shape the cart
// screen renders. Reads only — all mutations go through the engine.
type CartQuery struct {
	Store *cartdom.Store
}

func NewCartQuery(store *cartdom.Store) *CartQuery {
	return &CartQuery{Store: store}
}

// View returns the current cart snapshot with derived aggregates.
// No side effects; safe to call from any goroutine.
func (q *CartQuery) View() (sfdto.CartViewDTO, error) {
	if q == nil || q.Store == nil {
		return sfdto.CartViewDTO{}, errors.New("storefront cart query: store is nil")
	}

	lines := q.Store.Lines()

	out := sfdto.CartViewDTO{
		Items: make([]sfdto.CartLineDTO, 0, len(lines)),
		Error: q.Store.Err(),
	}

	for _, l := range lines {
		out.Items = append(out.Items, sfdto.CartLineDTO{
			MedicineID:   l.Medicine.ID,
			Name:         l.Medicine.Name,
			ThumbnailURL: l.Medicine.ThumbnailURL,
			Price:        l.Medicine.Price,
			Quantity:     l.Quantity,
			Subtotal:     l.Subtotal(),
		})
		out.ItemCount += l.Quantity
		out.TotalPrice += l.Subtotal()
	}

	return out, nil
}
