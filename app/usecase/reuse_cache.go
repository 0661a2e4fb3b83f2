package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"appgen/internal/domain/entity"
	"appgen/internal/domain/repository"
	"appgen/internal/infrastructure/metrics"

	"github.com/google/uuid"
)

const DefaultSimilarityThreshold = 0.6

type cachedEntry struct {
	entry  entity.HistoryEntry
	tokens map[string]struct{}
}

// ReuseCache is the in-memory history log used for similarity lookups. Entries are only
// appended; a HistoryRepository, when set, receives every appended entry.
type ReuseCache struct {
	mu        sync.RWMutex
	entries   []cachedEntry
	repo      repository.HistoryRepository
	threshold float64
	now       func() time.Time
}

// Match is the best history entry for an input and its score.
type Match struct {
	Entry entity.HistoryEntry
	Score float64
}

func NewReuseCache(repo repository.HistoryRepository, threshold float64, now func() time.Time) *ReuseCache {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	if now == nil {
		now = time.Now
	}
	return &ReuseCache{
		repo:      repo,
		threshold: threshold,
		now:       now,
	}
}

// Load replaces the in-memory log with the last limit entries of the repository.
func (c *ReuseCache) Load(ctx context.Context, limit int) error {
	if c.repo == nil {
		return nil
	}
	entries, err := c.repo.List(ctx, limit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	cached := make([]cachedEntry, 0, len(entries))
	for _, e := range entries {
		cached = append(cached, cachedEntry{entry: e, tokens: tokenize(e.UserInput)})
	}

	c.mu.Lock()
	c.entries = cached
	c.mu.Unlock()

	metrics.SetHistoryEntries(len(cached))
	return nil
}

// FindSimilar returns the highest scoring entry whose score is strictly above the
// threshold. Ties go to the most recent entry.
func (c *ReuseCache) FindSimilar(userInput string) (Match, bool) {
	tokens := tokenize(userInput)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var best Match
	found := false
	for i := len(c.entries) - 1; i >= 0; i-- {
		score := jaccard(tokens, c.entries[i].tokens)
		if score > c.threshold && score > best.Score {
			best = Match{Entry: c.entries[i].entry, Score: score}
			found = true
		}
	}

	metrics.IncReuseLookup(found)
	if found {
		best.Entry.Structure = best.Entry.Structure.Clone()
	}
	return best, found
}

// Record appends an entry for a completed job. The in-memory append always happens;
// the returned error only reports a repository failure.
func (c *ReuseCache) Record(ctx context.Context, jobID, userInput string, structure entity.Structure) (entity.HistoryEntry, error) {
	entry := entity.HistoryEntry{
		ID:          uuid.NewString(),
		JobID:       jobID,
		GeneratedAt: c.now().UTC(),
		UserInput:   userInput,
		Structure:   structure.Clone(),
	}

	c.mu.Lock()
	c.entries = append(c.entries, cachedEntry{entry: entry, tokens: tokenize(userInput)})
	n := len(c.entries)
	c.mu.Unlock()

	metrics.SetHistoryEntries(n)

	if c.repo != nil {
		if err := c.repo.Append(ctx, entry); err != nil {
			return entry, fmt.Errorf("append history %s: %w", entry.ID, err)
		}
	}
	return entry, nil
}

// List returns a copy of the log, oldest first.
func (c *ReuseCache) List() []entity.HistoryEntry {
	return c.Recent(0)
}

// Recent returns up to n most recent entries, oldest first; n <= 0 means all.
func (c *ReuseCache) Recent(n int) []entity.HistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	start := 0
	if n > 0 && n < len(c.entries) {
		start = len(c.entries) - n
	}
	out := make([]entity.HistoryEntry, 0, len(c.entries)-start)
	for _, ce := range c.entries[start:] {
		out = append(out, ce.entry)
	}
	return out
}

func (c *ReuseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *ReuseCache) Threshold() float64 {
	return c.threshold
}
