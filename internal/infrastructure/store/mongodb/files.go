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

const filesCollection = "generated_files"

// fileDoc is one generated file keyed by its job.
type fileDoc struct {
	JobID string               `bson:"job_id"`
	File  entity.GeneratedFile `bson:",inline"`
}

// FileMirror copies generated files into Mongo so other instances can serve them.
type FileMirror struct {
	col *mongo.Collection
}

var (
	_ repository.FileWriter = (*FileMirror)(nil)
	_ repository.FileReader = (*FileMirror)(nil)
)

func NewFileMirror(db *mongo.Database) *FileMirror {
	return &FileMirror{
		col: db.Collection(filesCollection),
	}
}

func (r *FileMirror) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{bson.E{Key: "job_id", Value: 1}, bson.E{Key: "path", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create files index: %w", err)
	}
	return nil
}

func (r *FileMirror) WriteFiles(ctx context.Context, jobID string, files []*entity.GeneratedFile) error {
	if len(files) == 0 {
		return nil
	}

	metrics.IncStoreOp("mongo", "put")

	docs := make([]interface{}, len(files))
	for i, f := range files {
		docs[i] = fileDoc{JobID: jobID, File: *f}
	}

	if _, err := r.col.InsertMany(ctx, docs); err != nil {
		metrics.IncError("mongo_file_mirror", "save_error")
		return fmt.Errorf("insert files for job %s: %w", jobID, err)
	}
	return nil
}

func (r *FileMirror) GetFiles(ctx context.Context, jobID string) ([]*entity.GeneratedFile, error) {
	metrics.IncStoreOp("mongo", "get")

	opts := options.Find().SetSort(bson.D{bson.E{Key: "path", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"job_id": jobID}, opts)
	if err != nil {
		metrics.IncError("mongo_file_mirror", "get_error")
		return nil, fmt.Errorf("find files for job %s: %w", jobID, err)
	}
	defer func() {
		if err := cur.Close(ctx); err != nil {
			slog.Warn("close files cursor", "err", err)
		}
	}()

	var files []*entity.GeneratedFile
	for cur.Next(ctx) {
		var d fileDoc
		if err := cur.Decode(&d); err != nil {
			metrics.IncError("mongo_file_mirror", "get_decode_error")
			return nil, fmt.Errorf("decode file: %w", err)
		}
		f := d.File
		files = append(files, &f)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("job %s: %w", jobID, entity.ErrJobNotFound)
	}
	return files, nil
}
