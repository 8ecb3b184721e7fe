// internal/application/query/storefront/dto/cart_dto.go
package dto

// CartViewDTO is the response shape for the storefront cart screen.
// NOTE: this is ONLY what the cart screen needs — the UI never touches the
// domain store directly.
type CartViewDTO struct {
	Items      []CartLineDTO `json:"items"`
	ItemCount  int           `json:"itemCount"`
	TotalPrice float64       `json:"totalPrice"`

	// Error is the store's "could not refresh cart" flag ("" when healthy).
	Error string `json:"error,omitempty"`
}

type CartLineDTO struct {
	MedicineID   string   `json:"medicineId"`
	Name         string   `json:"name,omitempty"`
	ThumbnailURL string   `json:"thumbnailUrl,omitempty"`
	Price        *float64 `json:"price,omitempty"` // nil = 価格未解決 (totals treat as 0)

	Quantity int     `json:"quantity"`
	Subtotal float64 `json:"subtotal"`
}
