// internal/domain/cart/store.go
package cart

import (
	"strings"
	"sync"

	meddom "medicart/internal/domain/medicine"
)

// Store is the Local Cart Store: the UI-authoritative, in-memory snapshot of
// cart contents for one customer session.
//
// Ownership:
// - exclusively owned by the cart engine; the UI layer only sees read
//   projections (Lines / ItemCount / TotalPrice / Err)
// - one Store per session, built by DI — no package-level singleton
//
// Every mutation is applied under the lock and is immediately visible to all
// readers, so the UI never observes a half-applied change.
type Store struct {
	mu     sync.RWMutex
	lines  []LineItem
	errMsg string // "could not refresh cart" 系のフラグ。空なら正常。
}

func NewStore() *Store {
	return &Store{lines: []LineItem{}}
}

// ----------------------------
// Read projections
// ----------------------------

// Lines returns a defensive copy of the current line items in insertion order.
func (s *Store) Lines() []LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLines(s.lines)
}

// ItemCount is the sum of all quantities.
func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// TotalPrice is the sum of all line subtotals. Lines with an unresolved unit
// price contribute 0; the result is always >= 0.
func (s *Store) TotalPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0.0
	for _, l := range s.lines {
		total += l.Subtotal()
	}
	return total
}

// Find returns the line for medicineID, if present.
func (s *Store) Find(medicineID string) (LineItem, bool) {
	id := strings.TrimSpace(medicineID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := findLineIndex(s.lines, id)
	if idx < 0 {
		return LineItem{}, false
	}
	return s.lines[idx], true
}

// Err returns the current error flag message ("" when healthy).
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

// ----------------------------
// Mutations (synchronous, engine-only)
// ----------------------------

// Replace overwrites the whole store with lines, after defensive
// normalization. Used by initialize / reconciliation / force-refresh.
func (s *Store) Replace(lines []LineItem) {
	normalized := normalizeLines(lines)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = normalized
}

// UpsertLine accumulates qty onto an existing line for med.ID, or appends a
// new line. qty <= 0 is ignored (callers validate first).
func (s *Store) UpsertLine(med meddom.Medicine, qty int) {
	med = med.Normalized()
	if !med.HasID() || qty <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := findLineIndex(s.lines, med.ID)
	if idx >= 0 {
		s.lines[idx].Quantity += qty
		return
	}
	s.lines = append(s.lines, LineItem{Medicine: med, Quantity: qty})
}

// SetLineQty overwrites the quantity of an existing line. It reports false
// (and changes nothing) when the line is absent. qty == 0 removes the line.
func (s *Store) SetLineQty(medicineID string, qty int) bool {
	id := strings.TrimSpace(medicineID)
	if id == "" || qty < 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := findLineIndex(s.lines, id)
	if idx < 0 {
		return false
	}
	if qty == 0 {
		s.lines = removeLineIndex(s.lines, idx)
		return true
	}
	s.lines[idx].Quantity = qty
	return true
}

// RemoveLine removes the matching line, returning it for the caller's
// notification message. Removing what is not there is a harmless no-op.
func (s *Store) RemoveLine(medicineID string) (LineItem, bool) {
	id := strings.TrimSpace(medicineID)

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := findLineIndex(s.lines, id)
	if idx < 0 {
		return LineItem{}, false
	}
	removed := s.lines[idx]
	s.lines = removeLineIndex(s.lines, idx)
	return removed, true
}

// Clear empties the store. The error flag is left as-is (see ResetErr).
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = []LineItem{}
}

// SetErr flags the store as possibly stale (reconciliation failed).
// Local state is deliberately kept: last-known optimistic state is better
// than no state.
func (s *Store) SetErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = strings.TrimSpace(msg)
}

// ResetErr clears the error flag.
func (s *Store) ResetErr() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
}
