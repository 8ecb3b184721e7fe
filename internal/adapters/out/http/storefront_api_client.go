// internal/adapters/out/http/storefront_api_client.go
package httpout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	cartdom "medicart/internal/domain/cart"
	meddom "medicart/internal/domain/medicine"
)

// TokenSource supplies the bearer token for storefront API calls.
// The auth session gate implements this.
type TokenSource interface {
	IDToken() string
}

// StorefrontAPIClient implements cart.Gateway against the pharmacy backend's
// REST API:
//
//	GET    {base}/store/cart
//	POST   {base}/store/cart/items        {"medicineId","quantity"}
//	DELETE {base}/store/cart/items/{id}
//
// baseURL example:
// - Cloud Run: https://xxxxx.asia-northeast1.run.app
// - local: http://localhost:8080
type StorefrontAPIClient struct {
	baseURL string
	apiKey  string
	tokens  TokenSource
	client  *http.Client
}

func NewStorefrontAPIClient(baseURL, apiKey string, tokens TokenSource) *StorefrontAPIClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &StorefrontAPIClient{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		tokens:  tokens,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

var _ cartdom.Gateway = (*StorefrontAPIClient)(nil)

// ----------------------------
// wire DTO
// ----------------------------

type cartItemWire struct {
	Medicine *medicineWire `json:"medicine"`
	Quantity int           `json:"quantity"`
}

type medicineWire struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	ThumbnailURL string   `json:"thumbnailUrl,omitempty"`
}

type cartListWire struct {
	Items []cartItemWire `json:"items"`
}

type cartAddWire struct {
	MedicineID string `json:"medicineId"`
	Quantity   int    `json:"quantity"`
}

// ----------------------------
// Gateway implementation
// ----------------------------

func (c *StorefrontAPIClient) List(ctx context.Context) ([]cartdom.LineItem, error) {
	res, err := c.do(ctx, http.MethodGet, "/store/cart", nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, statusError("cart list", res)
	}

	var wire cartListWire
	if err := json.NewDecoder(res.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("cart list: decode response: %w", err)
	}

	// mapping only — defensive filtering happens in the domain store
	out := make([]cartdom.LineItem, 0, len(wire.Items))
	for _, it := range wire.Items {
		if it.Medicine == nil {
			// missing medicine reference: keep the slot so normalization can
			// drop it with the rest of the malformed entries
			out = append(out, cartdom.LineItem{Quantity: it.Quantity})
			continue
		}
		out = append(out, cartdom.LineItem{
			Medicine: meddom.Medicine{
				ID:           it.Medicine.ID,
				Name:         it.Medicine.Name,
				Price:        it.Medicine.Price,
				ThumbnailURL: it.Medicine.ThumbnailURL,
			},
			Quantity: it.Quantity,
		})
	}
	return out, nil
}

func (c *StorefrontAPIClient) Add(ctx context.Context, medicineID string, qty int) error {
	id := strings.TrimSpace(medicineID)
	if id == "" {
		return fmt.Errorf("cart add: medicineID is empty")
	}

	body, _ := json.Marshal(cartAddWire{MedicineID: id, Quantity: qty})
	res, err := c.do(ctx, http.MethodPost, "/store/cart/items", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK || res.StatusCode == http.StatusCreated || res.StatusCode == http.StatusNoContent {
		return nil
	}
	return statusError("cart add", res)
}

func (c *StorefrontAPIClient) Remove(ctx context.Context, medicineID string) error {
	id := strings.TrimSpace(medicineID)
	if id == "" {
		return fmt.Errorf("cart remove: medicineID is empty")
	}

	res, err := c.do(ctx, http.MethodDelete, "/store/cart/items/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	// 404 is success here: removing what the server no longer has is fine
	if res.StatusCode == http.StatusOK || res.StatusCode == http.StatusNoContent || res.StatusCode == http.StatusNotFound {
		return nil
	}
	return statusError("cart remove", res)
}

// ----------------------------
// plumbing
// ----------------------------

func (c *StorefrontAPIClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("storefront api client is nil")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("storefront api client baseURL is empty")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if c.tokens != nil {
		if tok := strings.TrimSpace(c.tokens.IDToken()); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	return c.client.Do(req)
}

func statusError(op string, res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	return fmt.Errorf("%s failed status=%d body=%s", op, res.StatusCode, strings.TrimSpace(string(body)))
}
