package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorStoreCreate(t *testing.T) {
	d := openTestDB(t)
	store := NewCollectorStore(d)

	c, err := store.Create(context.Background(), "Ash")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Ash", c.Name)
	assert.False(t, c.CreatedAt.IsZero())
}

func TestCollectorStoreCreate_DuplicateName(t *testing.T) {
	d := openTestDB(t)
	store := NewCollectorStore(d)
	ctx := context.Background()

	_, err := store.Create(ctx, "Ash")
	require.NoError(t, err)
	_, err = store.Create(ctx, "Ash")
	assert.Error(t, err)
}

func TestCollectorStoreGetByID_Missing(t *testing.T) {
	d := openTestDB(t)
	store := NewCollectorStore(d)

	c, err := store.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestCollectorStoreList(t *testing.T) {
	d := openTestDB(t)
	store := NewCollectorStore(d)
	ctx := context.Background()

	_, err := store.Create(ctx, "Misty")
	require.NoError(t, err)
	_, err = store.Create(ctx, "Brock")
	require.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Brock", list[0].Name)
	assert.Equal(t, "Misty", list[1].Name)
}

func TestCollectorStoreDelete_CascadesInventory(t *testing.T) {
	d := openTestDB(t)
	collectors := NewCollectorStore(d)
	inv := NewInventoryStore(d)
	ctx := context.Background()

	c, err := collectors.Create(ctx, "Gary")
	require.NoError(t, err)
	require.NoError(t, inv.Insert(ctx, "e1", c.ID, "base1-58", 2))

	require.NoError(t, collectors.Delete(ctx, c.ID))

	rows, err := inv.ListByOwner(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCollectorStoreDelete_NotFound(t *testing.T) {
	d := openTestDB(t)
	store := NewCollectorStore(d)

	err := store.Delete(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCollectorNotFound)
}
