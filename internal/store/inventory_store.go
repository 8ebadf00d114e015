package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"

	"github.com/vbonduro/cardledger/internal/domain"
)

// ErrEntryNotFound is returned when an update or delete names an inventory
// row that does not exist.
var ErrEntryNotFound = errors.New("inventory entry not found")

type InventoryStore struct {
	db *sql.DB
}

func NewInventoryStore(db *sql.DB) *InventoryStore {
	return &InventoryStore{db: db}
}

func (s *InventoryStore) Insert(ctx context.Context, entryID, ownerID, cardID string, quantity int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory (id, collector_id, card_id, quantity) VALUES (?, ?, ?, ?)
	`, entryID, ownerID, cardID, quantity)
	if err != nil {
		return fmt.Errorf("failed to insert inventory entry: %w", err)
	}
	return nil
}

func (s *InventoryStore) UpdateQuantity(ctx context.Context, entryID string, quantity int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE inventory SET quantity = ?, updated_at = datetime('now') WHERE id = ?
	`, quantity, entryID)
	if err != nil {
		return fmt.Errorf("failed to update inventory quantity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrEntryNotFound
	}

	return nil
}

func (s *InventoryStore) DeleteEntry(ctx context.Context, entryID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM inventory WHERE id = ?
	`, entryID)
	if err != nil {
		return fmt.Errorf("failed to delete inventory entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrEntryNotFound
	}

	return nil
}

// ListByOwner returns the owner's rows in insertion order.
func (s *InventoryStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.StoredEntry, error) {
	query, args, err := sq.Select("id", "collector_id", "card_id", "quantity").
		From("inventory").
		Where(sq.Eq{"collector_id": ownerID}).
		OrderBy("rowid ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build inventory query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var entries []domain.StoredEntry
	for rows.Next() {
		var e domain.StoredEntry
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.CardID, &e.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan inventory entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inventory: %w", err)
	}

	return entries, nil
}

// OwnerTotals aggregates row count and total quantity per collector, largest
// holdings first.
func (s *InventoryStore) OwnerTotals(ctx context.Context) ([]domain.OwnerTotal, error) {
	query, args, err := sq.Select("collector_id", "COUNT(*)", "COALESCE(SUM(quantity), 0)").
		From("inventory").
		GroupBy("collector_id").
		OrderBy("SUM(quantity) DESC", "collector_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build totals query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate inventory: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var totals []domain.OwnerTotal
	for rows.Next() {
		var t domain.OwnerTotal
		if err := rows.Scan(&t.OwnerID, &t.Entries, &t.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan inventory totals: %w", err)
		}
		totals = append(totals, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inventory totals: %w", err)
	}

	return totals, nil
}
