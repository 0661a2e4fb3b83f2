package memory

import (
	"context"
	"sync"

	"appgen/internal/domain/entity"
	"appgen/internal/domain/repository"
)

// HistoryRepo keeps generation history in process memory. It is safe for concurrent use.
type HistoryRepo struct {
	mu      sync.RWMutex
	entries []entity.HistoryEntry
}

func NewHistoryRepo() *HistoryRepo {
	return &HistoryRepo{}
}

var _ repository.HistoryRepository = (*HistoryRepo)(nil)

func (r *HistoryRepo) Append(ctx context.Context, entry entity.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *HistoryRepo) List(ctx context.Context, limit int) ([]entity.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	start := 0
	if limit > 0 && limit < len(r.entries) {
		start = len(r.entries) - limit
	}
	out := make([]entity.HistoryEntry, len(r.entries)-start)
	copy(out, r.entries[start:])
	return out, nil
}
