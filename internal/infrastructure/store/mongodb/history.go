package mongodb

import (
	"context"
	"fmt"
	"log/slog"

	"appgen/internal/domain/entity"
	"appgen/internal/domain/repository"
	"appgen/internal/infrastructure/metrics"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const historyCollection = "generation_history"

type HistoryRepo struct {
	col *mongo.Collection
}

var _ repository.HistoryRepository = (*HistoryRepo)(nil)

func NewHistoryRepo(db *mongo.Database) *HistoryRepo {
	return &HistoryRepo{
		col: db.Collection(historyCollection),
	}
}

// EnsureIndexes creates the lookup indexes. Safe to call on every start.
func (r *HistoryRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{bson.E{Key: "generated_at", Value: 1}}},
		{Keys: bson.D{bson.E{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("create history indexes: %w", err)
	}
	return nil
}

func (r *HistoryRepo) Append(ctx context.Context, entry entity.HistoryEntry) error {
	metrics.IncStoreOp("mongo", "put")

	if _, err := r.col.InsertOne(ctx, entry); err != nil {
		metrics.IncError("mongo_history_repo", "append_error")
		return fmt.Errorf("insert history entry %s: %w", entry.ID, err)
	}
	return nil
}

// List returns the most recent limit entries, oldest first.
func (r *HistoryRepo) List(ctx context.Context, limit int) ([]entity.HistoryEntry, error) {
	metrics.IncStoreOp("mongo", "list")

	opts := options.Find().SetSort(bson.D{bson.E{Key: "generated_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := r.col.Find(ctx, bson.D{}, opts)
	if err != nil {
		metrics.IncError("mongo_history_repo", "list_error")
		return nil, fmt.Errorf("find history: %w", err)
	}
	defer func() {
		if err := cur.Close(ctx); err != nil {
			slog.Warn("close history cursor", "err", err)
		}
	}()

	var entries []entity.HistoryEntry
	for cur.Next(ctx) {
		var e entity.HistoryEntry
		if err := cur.Decode(&e); err != nil {
			metrics.IncError("mongo_history_repo", "list_decode_error")
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := cur.Err(); err != nil {
		metrics.IncError("mongo_history_repo", "list_cursor_error")
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
