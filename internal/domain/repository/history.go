package repository

import (
	"context"

	"appgen/internal/domain/entity"
)

// HistoryRepository is an append-only log of completed generations.
type HistoryRepository interface {
	Append(ctx context.Context, entry entity.HistoryEntry) error
	// List returns entries oldest first; limit <= 0 means all.
	List(ctx context.Context, limit int) ([]entity.HistoryEntry, error)
}
