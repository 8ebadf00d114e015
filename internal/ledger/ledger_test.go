package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vbonduro/cardledger/internal/db"
	"github.com/vbonduro/cardledger/internal/domain"
	"github.com/vbonduro/cardledger/internal/ledger"
	"github.com/vbonduro/cardledger/internal/ledger/mocks"
	"github.com/vbonduro/cardledger/internal/store"
)

var (
	pikachu   = domain.CardRef{ID: "base1-58", Name: "Pikachu"}
	charizard = domain.CardRef{ID: "base1-4", Name: "Charizard"}
)

// memStore is an in-memory ledger.Store that can also list rows back out.
type memStore struct {
	rows  map[string]domain.StoredEntry
	order []string
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]domain.StoredEntry)}
}

func (m *memStore) Insert(_ context.Context, entryID, ownerID, cardID string, quantity int) error {
	m.rows[entryID] = domain.StoredEntry{ID: entryID, OwnerID: ownerID, CardID: cardID, Quantity: quantity}
	m.order = append(m.order, entryID)
	return nil
}

func (m *memStore) UpdateQuantity(_ context.Context, entryID string, quantity int) error {
	row, ok := m.rows[entryID]
	if !ok {
		return errors.New("no such row")
	}
	row.Quantity = quantity
	m.rows[entryID] = row
	return nil
}

func (m *memStore) DeleteEntry(_ context.Context, entryID string) error {
	if _, ok := m.rows[entryID]; !ok {
		return errors.New("no such row")
	}
	delete(m.rows, entryID)
	return nil
}

func (m *memStore) list(owner string) []domain.StoredEntry {
	var out []domain.StoredEntry
	for _, id := range m.order {
		if row, ok := m.rows[id]; ok && row.OwnerID == owner {
			out = append(out, row)
		}
	}
	return out
}

func resolverFor(cards ...domain.CardRef) ledger.ResolveFunc {
	byID := make(map[string]domain.CardRef, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}
	return func(_ context.Context, cardID string) (*domain.CardRef, error) {
		c, ok := byID[cardID]
		if !ok {
			return nil, nil
		}
		return &c, nil
	}
}

func sequentialIDs() ledger.Option {
	n := 0
	return ledger.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("entry-%d", n)
	})
}

func TestAddOrMerge_NewEntry(t *testing.T) {
	st := newMemStore()
	l := ledger.New("ash", st, sequentialIDs())

	entry, err := l.AddOrMerge(context.Background(), pikachu, 3)
	require.NoError(t, err)
	assert.Equal(t, "entry-1", entry.ID)
	assert.Equal(t, pikachu, entry.Card)
	assert.Equal(t, 3, entry.Quantity)

	assert.Equal(t, []domain.InventoryEntry{entry}, l.Entries())
	assert.Equal(t, []domain.StoredEntry{{ID: "entry-1", OwnerID: "ash", CardID: "base1-58", Quantity: 3}}, st.list("ash"))
}

func TestAddOrMerge_SameCardMergesIntoOneEntry(t *testing.T) {
	st := newMemStore()
	l := ledger.New("ash", st)
	ctx := context.Background()

	for _, qty := range []int{2, 3, 5, 1} {
		_, err := l.AddOrMerge(ctx, pikachu, qty)
		require.NoError(t, err)
	}

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 11, entries[0].Quantity)
	assert.Equal(t, 11, l.TotalQuantity())
	require.Len(t, st.list("ash"), 1)
	assert.Equal(t, 11, st.list("ash")[0].Quantity)
}

func TestAddOrMerge_KeepsInsertionOrder(t *testing.T) {
	l := ledger.New("ash", newMemStore())
	ctx := context.Background()

	_, err := l.AddOrMerge(ctx, pikachu, 1)
	require.NoError(t, err)
	_, err = l.AddOrMerge(ctx, charizard, 1)
	require.NoError(t, err)
	_, err = l.AddOrMerge(ctx, pikachu, 1)
	require.NoError(t, err)

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "base1-58", entries[0].Card.ID)
	assert.Equal(t, "base1-4", entries[1].Card.ID)
}

func TestAddOrMerge_CapacityExceeded(t *testing.T) {
	l := ledger.New("ash", newMemStore())
	ctx := context.Background()

	_, err := l.AddOrMerge(ctx, pikachu, 498)
	require.NoError(t, err)
	before := l.Entries()

	_, err = l.AddOrMerge(ctx, charizard, 3)
	assert.ErrorIs(t, err, ledger.ErrCapacityExceeded)
	_, err = l.AddOrMerge(ctx, pikachu, 3)
	assert.ErrorIs(t, err, ledger.ErrCapacityExceeded)

	assert.Equal(t, before, l.Entries())
	assert.Equal(t, 498, l.TotalQuantity())
}

func TestAddOrMerge_HugeQuantityRejected(t *testing.T) {
	l := ledger.New("ash", newMemStore())
	ctx := context.Background()

	_, err := l.AddOrMerge(ctx, pikachu, 1)
	require.NoError(t, err)
	before := l.Entries()

	assert.False(t, l.CanAdd(math.MaxInt))

	_, err = l.AddOrMerge(ctx, charizard, math.MaxInt)
	assert.ErrorIs(t, err, ledger.ErrCapacityExceeded)
	_, err = l.AddOrMerge(ctx, pikachu, math.MaxInt)
	assert.ErrorIs(t, err, ledger.ErrCapacityExceeded)

	assert.Equal(t, before, l.Entries())
	assert.Equal(t, 1, l.TotalQuantity())
	assert.True(t, l.CanAdd(1))
}

func TestAddOrMerge_CapacityRejectedBeforeStoreWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	// No expectations: any store call fails the test.
	l := ledger.New("ash", st, ledger.WithCapacity(10))

	_, err := l.AddOrMerge(context.Background(), pikachu, 11)
	assert.ErrorIs(t, err, ledger.ErrCapacityExceeded)
	assert.Empty(t, l.Entries())
}

func TestAddOrMerge_FillsExactlyToCapacity(t *testing.T) {
	l := ledger.New("ash", newMemStore())
	ctx := context.Background()

	_, err := l.AddOrMerge(ctx, pikachu, 250)
	require.NoError(t, err)
	_, err = l.AddOrMerge(ctx, charizard, 250)
	require.NoError(t, err)

	assert.Equal(t, ledger.DefaultCapacity, l.TotalQuantity())
	assert.Zero(t, l.Remaining())
	assert.False(t, l.CanAdd(1))
	assert.True(t, l.CanAdd(0))
}

func TestAddOrMerge_InvalidQuantity(t *testing.T) {
	l := ledger.New("ash", newMemStore())

	for _, qty := range []int{0, -1} {
		_, err := l.AddOrMerge(context.Background(), pikachu, qty)
		assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)
	}
	assert.Empty(t, l.Entries())
}

func TestAddOrMerge_ExactlyOneStoreWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	l := ledger.New("ash", st, sequentialIDs())
	ctx := context.Background()

	st.EXPECT().Insert(gomock.Any(), "entry-1", "ash", "base1-58", 2).Return(nil).Times(1)
	_, err := l.AddOrMerge(ctx, pikachu, 2)
	require.NoError(t, err)

	st.EXPECT().UpdateQuantity(gomock.Any(), "entry-1", 5).Return(nil).Times(1)
	entry, err := l.AddOrMerge(ctx, pikachu, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, entry.Quantity)
}

func TestAddOrMerge_InsertFailureLeavesLedgerUnchanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	l := ledger.New("ash", st)
	ioErr := errors.New("disk full")

	st.EXPECT().Insert(gomock.Any(), gomock.Any(), "ash", "base1-58", 2).Return(ioErr)

	_, err := l.AddOrMerge(context.Background(), pikachu, 2)

	var storeErr *ledger.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "insert", storeErr.Op)
	assert.ErrorIs(t, err, ioErr)
	assert.Empty(t, l.Entries())
	assert.Zero(t, l.TotalQuantity())
}

func TestAddOrMerge_UpdateFailureLeavesQuantityUnchanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	l := ledger.New("ash", st, sequentialIDs())
	ctx := context.Background()

	st.EXPECT().Insert(gomock.Any(), "entry-1", "ash", "base1-58", 4).Return(nil)
	_, err := l.AddOrMerge(ctx, pikachu, 4)
	require.NoError(t, err)

	st.EXPECT().UpdateQuantity(gomock.Any(), "entry-1", 6).Return(errors.New("locked"))
	_, err = l.AddOrMerge(ctx, pikachu, 2)

	var storeErr *ledger.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "entry-1", storeErr.EntryID)
	entry, ok := l.Entry("entry-1")
	require.True(t, ok)
	assert.Equal(t, 4, entry.Quantity)
}

func TestDecrement_Reduces(t *testing.T) {
	st := newMemStore()
	l := ledger.New("ash", st)
	ctx := context.Background()

	entry, err := l.AddOrMerge(ctx, pikachu, 3)
	require.NoError(t, err)

	outcome, err := l.Decrement(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.DecrementOutcome{Kind: ledger.Reduced, Quantity: 2}, outcome)

	got, ok := l.Entry(entry.ID)
	require.True(t, ok)
	assert.Equal(t, 2, got.Quantity)
	assert.Equal(t, 2, st.list("ash")[0].Quantity)
}

func TestDecrement_RemovesAtOne(t *testing.T) {
	st := newMemStore()
	l := ledger.New("ash", st)
	ctx := context.Background()

	keep, err := l.AddOrMerge(ctx, charizard, 2)
	require.NoError(t, err)
	entry, err := l.AddOrMerge(ctx, pikachu, 1)
	require.NoError(t, err)

	outcome, err := l.Decrement(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Removed, outcome.Kind)
	assert.Zero(t, outcome.Quantity)

	_, ok := l.Entry(entry.ID)
	assert.False(t, ok)
	assert.Equal(t, []domain.InventoryEntry{keep}, l.Entries())
	assert.Len(t, st.list("ash"), 1)
}

func TestDecrement_NotFound(t *testing.T) {
	l := ledger.New("ash", newMemStore())
	ctx := context.Background()
	_, err := l.AddOrMerge(ctx, pikachu, 2)
	require.NoError(t, err)
	before := l.Entries()

	_, err = l.Decrement(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
	assert.Equal(t, before, l.Entries())
}

func TestDecrement_StoreFailureLeavesLedgerUnchanged(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		qty    int
		expect func(st *mocks.MockStore)
		op     string
	}{
		{
			name: "update",
			qty:  3,
			expect: func(st *mocks.MockStore) {
				st.EXPECT().UpdateQuantity(gomock.Any(), "entry-1", 2).Return(errors.New("io"))
			},
			op: "update",
		},
		{
			name: "delete",
			qty:  1,
			expect: func(st *mocks.MockStore) {
				st.EXPECT().DeleteEntry(gomock.Any(), "entry-1").Return(errors.New("io"))
			},
			op: "delete",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			st := mocks.NewMockStore(ctrl)
			l := ledger.New("ash", st, sequentialIDs())

			st.EXPECT().Insert(gomock.Any(), "entry-1", "ash", "base1-58", tt.qty).Return(nil)
			_, err := l.AddOrMerge(ctx, pikachu, tt.qty)
			require.NoError(t, err)
			before := l.Entries()

			tt.expect(st)
			_, err = l.Decrement(ctx, "entry-1")

			var storeErr *ledger.StoreError
			require.ErrorAs(t, err, &storeErr)
			assert.Equal(t, tt.op, storeErr.Op)
			assert.Equal(t, before, l.Entries())
		})
	}
}

func TestLoad_SkipsUnresolvableCards(t *testing.T) {
	l := ledger.New("ash", newMemStore())
	rows := []domain.StoredEntry{
		{ID: "id1", OwnerID: "ash", CardID: "card-A", Quantity: 3},
		{ID: "id2", OwnerID: "ash", CardID: "card-B", Quantity: 2},
	}
	cardA := domain.CardRef{ID: "card-A", Name: "A"}

	res := l.Load(context.Background(), rows, resolverFor(cardA))

	assert.Equal(t, []domain.InventoryEntry{{ID: "id1", Card: cardA, Quantity: 3}}, l.Entries())
	assert.Equal(t, 1, res.Loaded)
	assert.Equal(t, []string{"card-B"}, res.NotFound)
	assert.Equal(t, 1, res.Skipped())
}

func TestLoad_DistinguishesLookupFailure(t *testing.T) {
	l := ledger.New("ash", newMemStore())
	rows := []domain.StoredEntry{
		{ID: "id1", CardID: "card-A", Quantity: 1},
		{ID: "id2", CardID: "card-B", Quantity: 1},
		{ID: "id3", CardID: "card-C", Quantity: 1},
	}
	resolve := func(_ context.Context, cardID string) (*domain.CardRef, error) {
		switch cardID {
		case "card-A":
			return &domain.CardRef{ID: cardID}, nil
		case "card-B":
			return nil, errors.New("timeout")
		default:
			return nil, nil
		}
	}

	res := l.Load(context.Background(), rows, resolve)

	assert.Equal(t, 1, res.Loaded)
	assert.Equal(t, []string{"card-B"}, res.Unresolved)
	assert.Equal(t, []string{"card-C"}, res.NotFound)
	assert.Equal(t, 1, l.TotalQuantity())
}

func TestLoad_ReplacesExistingEntries(t *testing.T) {
	l := ledger.New("ash", newMemStore())
	ctx := context.Background()
	_, err := l.AddOrMerge(ctx, charizard, 4)
	require.NoError(t, err)

	l.Load(ctx, []domain.StoredEntry{{ID: "id1", CardID: pikachu.ID, Quantity: 2}}, resolverFor(pikachu))

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, pikachu.ID, entries[0].Card.ID)
	assert.Equal(t, 2, l.TotalQuantity())
}

func TestRoundTrip_MemStore(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	l := ledger.New("ash", st)
	added, err := l.AddOrMerge(ctx, pikachu, 2)
	require.NoError(t, err)

	reloaded := ledger.New("ash", st)
	reloaded.Load(ctx, st.list("ash"), resolverFor(pikachu))

	assert.Equal(t, []domain.InventoryEntry{{ID: added.ID, Card: pikachu, Quantity: 2}}, reloaded.Entries())
}

func TestRoundTrip_SQLiteStore(t *testing.T) {
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	ctx := context.Background()

	collector, err := store.NewCollectorStore(d).Create(ctx, "Ash")
	require.NoError(t, err)
	inv := store.NewInventoryStore(d)

	l := ledger.New(collector.ID, inv)
	_, err = l.AddOrMerge(ctx, pikachu, 2)
	require.NoError(t, err)
	_, err = l.AddOrMerge(ctx, charizard, 1)
	require.NoError(t, err)
	_, err = l.Decrement(ctx, l.Entries()[1].ID)
	require.NoError(t, err)

	rows, err := inv.ListByOwner(ctx, collector.ID)
	require.NoError(t, err)

	reloaded := ledger.New(collector.ID, inv)
	reloaded.Load(ctx, rows, resolverFor(pikachu, charizard))

	assert.Equal(t, l.Entries(), reloaded.Entries())
	require.Len(t, reloaded.Entries(), 1)
	assert.Equal(t, pikachu, reloaded.Entries()[0].Card)
	assert.Equal(t, 2, reloaded.Entries()[0].Quantity)
}

func TestEntries_ReturnsCopy(t *testing.T) {
	l := ledger.New("ash", newMemStore())
	_, err := l.AddOrMerge(context.Background(), pikachu, 2)
	require.NoError(t, err)

	entries := l.Entries()
	entries[0].Quantity = 99

	assert.Equal(t, 2, l.Entries()[0].Quantity)
}

func TestEntryForCard(t *testing.T) {
	l := ledger.New("ash", newMemStore())
	_, err := l.AddOrMerge(context.Background(), pikachu, 2)
	require.NoError(t, err)

	got, ok := l.EntryForCard(pikachu.ID)
	require.True(t, ok)
	assert.Equal(t, 2, got.Quantity)

	_, ok = l.EntryForCard(charizard.ID)
	assert.False(t, ok)
}

func TestRemainingAndCanAdd(t *testing.T) {
	l := ledger.New("ash", newMemStore(), ledger.WithCapacity(5))
	assert.Equal(t, 5, l.Capacity())
	assert.Equal(t, 5, l.Remaining())

	_, err := l.AddOrMerge(context.Background(), pikachu, 3)
	require.NoError(t, err)

	assert.Equal(t, 2, l.Remaining())
	assert.True(t, l.CanAdd(2))
	assert.False(t, l.CanAdd(3))
	assert.Equal(t, "ash", l.Owner())
}

func TestOutcomeKindString(t *testing.T) {
	assert.Equal(t, "reduced", ledger.Reduced.String())
	assert.Equal(t, "removed", ledger.Removed.String())
	assert.Equal(t, "unknown", ledger.OutcomeKind(0).String())
}
