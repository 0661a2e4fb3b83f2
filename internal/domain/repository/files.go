package repository

import (
	"context"

	"appgen/internal/domain/entity"
)

// FileWriter persists the files of a finished job.
type FileWriter interface {
	WriteFiles(ctx context.Context, jobID string, files []*entity.GeneratedFile) error
}

// FileReader reads back what a FileWriter stored.
type FileReader interface {
	GetFiles(ctx context.Context, jobID string) ([]*entity.GeneratedFile, error)
}
