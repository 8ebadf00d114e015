package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vbonduro/cardledger/internal/domain"
)

var ErrCollectorNotFound = errors.New("collector not found")

type CollectorStore struct {
	db *sql.DB
}

func NewCollectorStore(db *sql.DB) *CollectorStore {
	return &CollectorStore{db: db}
}

func (s *CollectorStore) Create(ctx context.Context, name string) (*domain.Collector, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collectors (id, name) VALUES (?, ?)
	`, id, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create collector: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *CollectorStore) GetByID(ctx context.Context, id string) (*domain.Collector, error) {
	c := &domain.Collector{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM collectors WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &c.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collector: %w", err)
	}

	return c, nil
}

func (s *CollectorStore) List(ctx context.Context) ([]*domain.Collector, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at FROM collectors ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collectors: %w", err)
	}
	defer rows.Close()

	var collectors []*domain.Collector
	for rows.Next() {
		c := &domain.Collector{}
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan collector: %w", err)
		}
		collectors = append(collectors, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collectors: %w", err)
	}

	return collectors, nil
}

// Delete removes the collector; its inventory rows cascade.
func (s *CollectorStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM collectors WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete collector: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrCollectorNotFound
	}

	return nil
}
