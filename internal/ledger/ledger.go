package ledger

import (
	"errors"
	"sync"
	"time"

	"stock-reservation-service/internal/models"
)

var (
	// ErrInvalidQuantity is returned when a caller violates the qty > 0 precondition.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrInvalidBasket is returned when a basket id is missing.
	ErrInvalidBasket = errors.New("basket id is required")
	// ErrHoldNotFound is returned by Confirm/Cancel when no active hold exists
	// for the (item, basket) pair. Callers treat it as a no-op, not a retry.
	ErrHoldNotFound = errors.New("no active hold for item and basket")
	// ErrUnknownItem is returned by Restock lookups for items the ledger has
	// never seen and that the caller did not ask to create.
	ErrUnknownItem = errors.New("unknown item")
)

// hold is a temporary deduction of available stock tied to a basket.
type hold struct {
	quantity  int
	expiresAt time.Time
}

// itemStock is the per-item record. Its mutex serializes every compound
// check-and-update on the item, so concurrent reservations can never both
// pass the availability check against a stale value.
type itemStock struct {
	mu        sync.Mutex
	available int
	holds     map[string]hold // keyed by basket id, at most one hold per basket
}

func (s *itemStock) reservedLocked() int {
	total := 0
	for _, h := range s.holds {
		total += h.quantity
	}
	return total
}

// Ledger is the sole authority over available quantity and active holds.
// It holds no references to loggers, publishers or external services;
// observing mutations is the caller's responsibility.
type Ledger struct {
	mu           sync.RWMutex
	items        map[int]*itemStock
	holdDuration time.Duration
	now          func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source. Used by simulations and tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithSeed initializes available quantities per item id.
func WithSeed(seed map[int]int) Option {
	return func(l *Ledger) {
		for itemID, qty := range seed {
			l.items[itemID] = &itemStock{available: qty, holds: make(map[string]hold)}
		}
	}
}

// New creates a Ledger whose accepted reservations expire holdDuration
// after creation.
func New(holdDuration time.Duration, opts ...Option) *Ledger {
	l := &Ledger{
		items:        make(map[int]*itemStock),
		holdDuration: holdDuration,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ItemQuantities is the post-mutation view of a single item.
type ItemQuantities struct {
	AvailableQty int
	ReservedQty  int
}

// ReserveResult is the outcome of a Reserve call. Rejections carry the
// availability observed at decision time so callers can report it.
type ReserveResult struct {
	Accepted  bool
	Reason    string // set when rejected
	ExpiresAt time.Time
	ItemQuantities
}

// Reserve atomically checks availability and places (or replaces) the hold
// for the (itemID, basketID) pair. A later request for a pair that already
// holds the item is a replacement: the previous hold's quantity counts as
// available for the new check, so a redelivered request never
// double-decrements and a changed quantity never stacks.
func (l *Ledger) Reserve(itemID, quantity int, basketID string) (ReserveResult, error) {
	if quantity <= 0 {
		return ReserveResult{}, ErrInvalidQuantity
	}
	if basketID == "" {
		return ReserveResult{}, ErrInvalidBasket
	}

	item := l.item(itemID)
	if item == nil {
		return ReserveResult{
			Accepted: false,
			Reason:   models.RejectionReasonUnknownItem,
		}, nil
	}

	item.mu.Lock()
	defer item.mu.Unlock()

	effective := item.available
	if prev, ok := item.holds[basketID]; ok {
		effective += prev.quantity
	}

	if effective < quantity {
		return ReserveResult{
			Accepted: false,
			Reason:   models.RejectionReasonInsufficientStock,
			ItemQuantities: ItemQuantities{
				AvailableQty: item.available,
				ReservedQty:  item.reservedLocked(),
			},
		}, nil
	}

	expiresAt := l.now().Add(l.holdDuration)
	item.available = effective - quantity
	item.holds[basketID] = hold{quantity: quantity, expiresAt: expiresAt}

	return ReserveResult{
		Accepted:  true,
		ExpiresAt: expiresAt,
		ItemQuantities: ItemQuantities{
			AvailableQty: item.available,
			ReservedQty:  item.reservedLocked(),
		},
	}, nil
}

// Release describes one reservation returned to available stock.
type Release struct {
	ItemID    int
	BasketID  string
	Quantity  int
	ExpiresAt time.Time
	ItemQuantities
}

// ReleaseExpired returns every hold with expiresAt <= now to available
// stock and removes it. Safe to run concurrently with Reserve: each item
// is swept under its own lock, so a hold is released at most once.
func (l *Ledger) ReleaseExpired(now time.Time) []Release {
	var released []Release
	for itemID, item := range l.snapshotItems() {
		item.mu.Lock()
		for basketID, h := range item.holds {
			if h.expiresAt.After(now) {
				continue
			}
			item.available += h.quantity
			delete(item.holds, basketID)
			released = append(released, Release{
				ItemID:    itemID,
				BasketID:  basketID,
				Quantity:  h.quantity,
				ExpiresAt: h.expiresAt,
				ItemQuantities: ItemQuantities{
					AvailableQty: item.available,
					ReservedQty:  item.reservedLocked(),
				},
			})
		}
		item.mu.Unlock()
	}
	return released
}

// Confirm converts the hold for (itemID, basketID) into a permanent
// deduction: the hold is removed without returning its quantity.
func (l *Ledger) Confirm(itemID int, basketID string) (ItemQuantities, error) {
	return l.settleHold(itemID, basketID, false)
}

// Cancel removes the hold for (itemID, basketID) and returns its quantity
// to available stock, the same transition expiry performs.
func (l *Ledger) Cancel(itemID int, basketID string) (ItemQuantities, error) {
	return l.settleHold(itemID, basketID, true)
}

func (l *Ledger) settleHold(itemID int, basketID string, restore bool) (ItemQuantities, error) {
	item := l.item(itemID)
	if item == nil {
		return ItemQuantities{}, ErrHoldNotFound
	}

	item.mu.Lock()
	defer item.mu.Unlock()

	h, ok := item.holds[basketID]
	if !ok {
		return ItemQuantities{
			AvailableQty: item.available,
			ReservedQty:  item.reservedLocked(),
		}, ErrHoldNotFound
	}

	if restore {
		item.available += h.quantity
	}
	delete(item.holds, basketID)

	return ItemQuantities{
		AvailableQty: item.available,
		ReservedQty:  item.reservedLocked(),
	}, nil
}

// Restock increases an item's available quantity through the same atomic
// path release uses. Unknown items are created, which is how the
// administrative interface introduces new stock records.
func (l *Ledger) Restock(itemID, quantity int) (ItemQuantities, error) {
	if quantity <= 0 {
		return ItemQuantities{}, ErrInvalidQuantity
	}

	item := l.getOrCreate(itemID)
	item.mu.Lock()
	defer item.mu.Unlock()

	item.available += quantity
	return ItemQuantities{
		AvailableQty: item.available,
		ReservedQty:  item.reservedLocked(),
	}, nil
}

// HoldSnapshot is a read-only view of one active hold.
type HoldSnapshot struct {
	BasketID  string
	Quantity  int
	ExpiresAt time.Time
}

// ItemSnapshot is a read-only view of one item's stock record.
type ItemSnapshot struct {
	AvailableQty int
	ReservedQty  int
	Holds        []HoldSnapshot
}

// Snapshot returns a read-only copy of the whole ledger for diagnostics
// and testing.
func (l *Ledger) Snapshot() map[int]ItemSnapshot {
	out := make(map[int]ItemSnapshot)
	for itemID, item := range l.snapshotItems() {
		item.mu.Lock()
		snap := ItemSnapshot{
			AvailableQty: item.available,
			ReservedQty:  item.reservedLocked(),
			Holds:        make([]HoldSnapshot, 0, len(item.holds)),
		}
		for basketID, h := range item.holds {
			snap.Holds = append(snap.Holds, HoldSnapshot{
				BasketID:  basketID,
				Quantity:  h.quantity,
				ExpiresAt: h.expiresAt,
			})
		}
		item.mu.Unlock()
		out[itemID] = snap
	}
	return out
}

// Quantities returns the current quantities for a single item.
func (l *Ledger) Quantities(itemID int) (ItemQuantities, error) {
	item := l.item(itemID)
	if item == nil {
		return ItemQuantities{}, ErrUnknownItem
	}

	item.mu.Lock()
	defer item.mu.Unlock()
	return ItemQuantities{
		AvailableQty: item.available,
		ReservedQty:  item.reservedLocked(),
	}, nil
}

func (l *Ledger) item(itemID int) *itemStock {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.items[itemID]
}

func (l *Ledger) getOrCreate(itemID int) *itemStock {
	l.mu.Lock()
	defer l.mu.Unlock()
	item, ok := l.items[itemID]
	if !ok {
		item = &itemStock{holds: make(map[string]hold)}
		l.items[itemID] = item
	}
	return item
}

// snapshotItems copies the item map so iteration never holds the map lock
// while per-item locks are taken.
func (l *Ledger) snapshotItems() map[int]*itemStock {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[int]*itemStock, len(l.items))
	for id, item := range l.items {
		out[id] = item
	}
	return out
}
