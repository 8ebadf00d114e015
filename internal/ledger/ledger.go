// Package ledger holds a collector's card quantities and keeps them in step
// with the persistent store.
//
// A Ledger is single-writer: callers must not invoke its methods from more
// than one goroutine at a time. Every mutation writes to the store first and
// only touches the in-memory entries once that write has succeeded, so a
// failed write leaves the ledger exactly as it was.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/vbonduro/cardledger/internal/domain"
)

// DefaultCapacity is the maximum total quantity a ledger may hold.
const DefaultCapacity = 500

var (
	ErrCapacityExceeded = errors.New("inventory capacity exceeded")
	ErrEntryNotFound    = errors.New("inventory entry not found")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
)

// StoreError wraps a failed store write or read. The ledger state is unchanged
// whenever one is returned.
type StoreError struct {
	Op      string
	EntryID string
	Err     error
}

func (e *StoreError) Error() string {
	if e.EntryID == "" {
		return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s failed for entry %s: %v", e.Op, e.EntryID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks . Store

// Store is the write side of the persistent store that the ledger mediates.
type Store interface {
	Insert(ctx context.Context, entryID, ownerID, cardID string, quantity int) error
	UpdateQuantity(ctx context.Context, entryID string, quantity int) error
	DeleteEntry(ctx context.Context, entryID string) error
}

// ResolveFunc looks a card up in the catalog. It returns (nil, nil) when the
// card does not exist and a non-nil error when the lookup itself failed.
type ResolveFunc func(ctx context.Context, cardID string) (*domain.CardRef, error)

type Ledger struct {
	owner    string
	capacity int
	entries  []*domain.InventoryEntry
	store    Store
	newID    func() string
}

type Option func(*Ledger)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(l *Ledger) { l.capacity = n }
}

// WithIDGenerator replaces the uuid generator used for new entries.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) { l.newID = fn }
}

func New(owner string, store Store, opts ...Option) *Ledger {
	l := &Ledger{
		owner:    owner,
		capacity: DefaultCapacity,
		store:    store,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Owner() string { return l.owner }

func (l *Ledger) Capacity() int { return l.capacity }

func (l *Ledger) TotalQuantity() int {
	total := 0
	for _, e := range l.entries {
		total += e.Quantity
	}
	return total
}

// Remaining is the headroom left before the ledger is full.
func (l *Ledger) Remaining() int {
	return l.capacity - l.TotalQuantity()
}

// CanAdd reports whether qty more copies fit. qty is compared against the
// headroom and never summed with the total.
func (l *Ledger) CanAdd(qty int) bool {
	return qty <= l.Remaining()
}

// Entries returns a copy of the current entries in ledger order.
func (l *Ledger) Entries() []domain.InventoryEntry {
	out := make([]domain.InventoryEntry, len(l.entries))
	for i, e := range l.entries {
		out[i] = *e
	}
	return out
}

// Entry returns the entry with the given id.
func (l *Ledger) Entry(entryID string) (domain.InventoryEntry, bool) {
	if i := l.indexOf(entryID); i >= 0 {
		return *l.entries[i], true
	}
	return domain.InventoryEntry{}, false
}

// EntryForCard returns the entry holding cardID, if any.
func (l *Ledger) EntryForCard(cardID string) (domain.InventoryEntry, bool) {
	for _, e := range l.entries {
		if e.Card.ID == cardID {
			return *e, true
		}
	}
	return domain.InventoryEntry{}, false
}

// AddOrMerge adds qty copies of card. An existing entry for the same card id
// absorbs the quantity; otherwise a new entry is created. Exactly one store
// write is issued.
func (l *Ledger) AddOrMerge(ctx context.Context, card domain.CardRef, qty int) (domain.InventoryEntry, error) {
	if qty < 1 {
		return domain.InventoryEntry{}, ErrInvalidQuantity
	}
	if !l.CanAdd(qty) {
		return domain.InventoryEntry{}, fmt.Errorf("%w: adding %d to %d of %d", ErrCapacityExceeded, qty, l.TotalQuantity(), l.capacity)
	}

	for _, e := range l.entries {
		if e.Card.ID != card.ID {
			continue
		}
		newQty := e.Quantity + qty
		if err := l.store.UpdateQuantity(ctx, e.ID, newQty); err != nil {
			return domain.InventoryEntry{}, &StoreError{Op: "update", EntryID: e.ID, Err: err}
		}
		e.Quantity = newQty
		return *e, nil
	}

	entry := &domain.InventoryEntry{ID: l.newID(), Card: card, Quantity: qty}
	if err := l.store.Insert(ctx, entry.ID, l.owner, card.ID, qty); err != nil {
		return domain.InventoryEntry{}, &StoreError{Op: "insert", EntryID: entry.ID, Err: err}
	}
	l.entries = append(l.entries, entry)
	return *entry, nil
}

// Decrement lowers an entry's quantity by one, removing the entry when the
// quantity would reach zero. This is the only removal path.
func (l *Ledger) Decrement(ctx context.Context, entryID string) (DecrementOutcome, error) {
	i := l.indexOf(entryID)
	if i < 0 {
		return DecrementOutcome{}, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	e := l.entries[i]

	if e.Quantity > 1 {
		newQty := e.Quantity - 1
		if err := l.store.UpdateQuantity(ctx, e.ID, newQty); err != nil {
			return DecrementOutcome{}, &StoreError{Op: "update", EntryID: e.ID, Err: err}
		}
		e.Quantity = newQty
		return DecrementOutcome{Kind: Reduced, Quantity: newQty}, nil
	}

	if err := l.store.DeleteEntry(ctx, e.ID); err != nil {
		return DecrementOutcome{}, &StoreError{Op: "delete", EntryID: e.ID, Err: err}
	}
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	return DecrementOutcome{Kind: Removed}, nil
}

// LoadResult reports how a Load went. Skipped rows stay in the store.
type LoadResult struct {
	Loaded     int
	NotFound   []string
	Unresolved []string
}

// Skipped is the number of rows left out of the ledger.
func (r LoadResult) Skipped() int {
	return len(r.NotFound) + len(r.Unresolved)
}

// WasSkipped reports whether a stored row for cardID was left out.
func (r LoadResult) WasSkipped(cardID string) bool {
	return slices.Contains(r.NotFound, cardID) || slices.Contains(r.Unresolved, cardID)
}

// Load replaces the entries with rows whose card resolves. Rows whose card is
// unknown to the catalog (NotFound) or whose lookup failed (Unresolved) are
// skipped rather than reported as an error.
func (l *Ledger) Load(ctx context.Context, rows []domain.StoredEntry, resolve ResolveFunc) LoadResult {
	var res LoadResult
	entries := make([]*domain.InventoryEntry, 0, len(rows))

	for _, row := range rows {
		card, err := resolve(ctx, row.CardID)
		switch {
		case err != nil:
			res.Unresolved = append(res.Unresolved, row.CardID)
		case card == nil:
			res.NotFound = append(res.NotFound, row.CardID)
		default:
			entries = append(entries, &domain.InventoryEntry{ID: row.ID, Card: *card, Quantity: row.Quantity})
		}
	}

	l.entries = entries
	res.Loaded = len(entries)
	return res
}

func (l *Ledger) indexOf(entryID string) int {
	for i, e := range l.entries {
		if e.ID == entryID {
			return i
		}
	}
	return -1
}
