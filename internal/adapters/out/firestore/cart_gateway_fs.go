// internal/adapters/out/firestore/cart_gateway_fs.go
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	cartdom "medicart/internal/domain/cart"
	meddom "medicart/internal/domain/medicine"
)

// CartGatewayFS implements cart.Gateway directly against the project's
// Firestore cart collection. The storefront itself talks to the REST backend;
// this adapter exists for the ops console and for local development without
// the backend.
//
// Collection design:
// - collection: carts
// - docId: customerId  ✅ (docId is the source of truth)
// - fields: items(map[medicineId]itemDoc), createdAt, updatedAt
type CartGatewayFS struct {
	Client     *firestore.Client
	CustomerID string

	// CartCol defaults to "carts" when empty.
	CartCol string
}

func NewCartGatewayFS(client *firestore.Client, customerID string) *CartGatewayFS {
	return &CartGatewayFS{
		Client:     client,
		CustomerID: strings.TrimSpace(customerID),
		CartCol:    "carts",
	}
}

var _ cartdom.Gateway = (*CartGatewayFS)(nil)

func (g *CartGatewayFS) doc() (*firestore.DocumentRef, error) {
	if g == nil || g.Client == nil {
		return nil, errors.New("cart_gateway_fs: firestore client is nil")
	}
	id := strings.TrimSpace(g.CustomerID)
	if id == "" {
		return nil, errors.New("cart_gateway_fs: customerID is empty")
	}
	col := strings.TrimSpace(g.CartCol)
	if col == "" {
		col = "carts"
	}
	return g.Client.Collection(col).Doc(id), nil
}

// List returns the customer's cart. Not-found is an empty cart, not an error.
func (g *CartGatewayFS) List(ctx context.Context) ([]cartdom.LineItem, error) {
	ref, err := g.doc()
	if err != nil {
		return nil, err
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return []cartdom.LineItem{}, nil
		}
		return nil, fmt.Errorf("cart_gateway_fs: get: %w", err)
	}

	return linesFromSnapshot(snap), nil
}

// Add merges qty onto the item, creating the doc when absent.
// Runs in a transaction so concurrent console sessions cannot lose updates.
func (g *CartGatewayFS) Add(ctx context.Context, medicineID string, qty int) error {
	ref, err := g.doc()
	if err != nil {
		return err
	}

	id := strings.TrimSpace(medicineID)
	if id == "" || qty <= 0 {
		return errors.New("cart_gateway_fs: invalid add")
	}

	return g.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now().UTC()

		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			// new cart doc
			return tx.Set(ref, map[string]any{
				"items": map[string]any{
					id: map[string]any{"qty": qty},
				},
				"createdAt": now,
				"updatedAt": now,
			})
		}

		items := itemsFromSnapshot(snap)
		entry := items[id]
		entry.Qty += qty
		items[id] = entry

		return tx.Set(ref, map[string]any{
			"items":     itemDocsToWire(items),
			"updatedAt": now,
		}, firestore.MergeAll)
	})
}

// Remove deletes the item field. Missing doc or missing item is fine
// (removal is idempotent on the server side too).
func (g *CartGatewayFS) Remove(ctx context.Context, medicineID string) error {
	ref, err := g.doc()
	if err != nil {
		return err
	}

	id := strings.TrimSpace(medicineID)
	if id == "" {
		return errors.New("cart_gateway_fs: medicineID is empty")
	}

	_, err = ref.Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"items", id}, Value: firestore.Delete},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	if err != nil && status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// -----------------------------------------
// Firestore DTO
// -----------------------------------------

type cartItemDoc struct {
	Name         string
	Price        *float64
	ThumbnailURL string
	Qty          int
}

func itemDocsToWire(items map[string]cartItemDoc) map[string]any {
	out := map[string]any{}
	for id, it := range items {
		id = strings.TrimSpace(id)
		if id == "" || it.Qty <= 0 {
			continue
		}
		m := map[string]any{"qty": it.Qty}
		if s := strings.TrimSpace(it.Name); s != "" {
			m["name"] = s
		}
		if it.Price != nil {
			m["price"] = *it.Price
		}
		if s := strings.TrimSpace(it.ThumbnailURL); s != "" {
			m["thumbnailUrl"] = s
		}
		out[id] = m
	}
	return out
}

// itemsFromSnapshot parses the items map with backward compatibility.
//
// Supported shapes:
// 1) items: map[medicineId] = {name, price, thumbnailUrl, qty}
// 2) items: map[medicineId] = qty (legacy)
//
// ✅ IMPORTANT: snap.DataTo(&struct{...}) は過去 schema と型不一致で落ち得る
// ので、snap.Data() を取り自前パースする。
func itemsFromSnapshot(snap *firestore.DocumentSnapshot) map[string]cartItemDoc {
	if snap == nil {
		return map[string]cartItemDoc{}
	}
	return itemsFromData(snap.Data())
}

func itemsFromData(raw map[string]any) map[string]cartItemDoc {
	out := map[string]cartItemDoc{}
	if raw == nil {
		return out
	}

	itemsAny := raw["items"]
	m, ok := itemsAny.(map[string]any)
	if !ok || m == nil {
		return out
	}

	for k, v := range m {
		id := strings.TrimSpace(k)
		if id == "" {
			continue
		}

		// new shape
		if mv, ok := v.(map[string]any); ok {
			qty := asInt(mv["qty"])
			if qty <= 0 {
				continue
			}
			doc := cartItemDoc{
				Name:         strings.TrimSpace(asString(mv["name"])),
				ThumbnailURL: strings.TrimSpace(asString(mv["thumbnailUrl"])),
				Qty:          qty,
			}
			if p, ok := asFloat(mv["price"]); ok {
				doc.Price = &p
			}
			out[id] = doc
			continue
		}

		// legacy shape: qty only
		qty := asInt(v)
		if qty <= 0 {
			continue
		}
		out[id] = cartItemDoc{Qty: qty}
	}

	return out
}

func linesFromSnapshot(snap *firestore.DocumentSnapshot) []cartdom.LineItem {
	items := itemsFromSnapshot(snap)

	out := make([]cartdom.LineItem, 0, len(items))
	for id, it := range items {
		out = append(out, cartdom.LineItem{
			Medicine: meddom.Medicine{
				ID:           id,
				Name:         it.Name,
				Price:        it.Price,
				ThumbnailURL: it.ThumbnailURL,
			},
			Quantity: it.Qty,
		})
	}

	// map iteration is random; the UI wants a stable row order
	sort.Slice(out, func(i, j int) bool {
		return out[i].Medicine.ID < out[j].Medicine.ID
	})
	return out
}

// -----------------------------------------
// loose-type helpers
// -----------------------------------------

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func asInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case float32:
		return int(x)
	case float64:
		return int(x)
	default:
		return 0
	}
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
