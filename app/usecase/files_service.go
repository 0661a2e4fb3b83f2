package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"appgen/internal/domain/entity"
	"appgen/internal/domain/repository"
)

type FilesUseCase interface {
	GetFiles(ctx context.Context, jobID string) ([]*entity.GeneratedFile, error)
}

// FilesService reads a job's files from the first reader that knows the job.
type FilesService struct {
	readers []repository.FileReader
}

var _ FilesUseCase = (*FilesService)(nil)

func NewFilesService(readers ...repository.FileReader) *FilesService {
	return &FilesService{readers: readers}
}

func (s *FilesService) GetFiles(ctx context.Context, jobID string) ([]*entity.GeneratedFile, error) {
	if jobID == "" {
		return nil, &entity.ValidationError{Field: "id", Reason: "is required"}
	}
	for _, r := range s.readers {
		files, err := r.GetFiles(ctx, jobID)
		if err == nil {
			return files, nil
		}
		if !errors.Is(err, entity.ErrJobNotFound) {
			return nil, fmt.Errorf("get files for job %s: %w", jobID, err)
		}
	}
	return nil, fmt.Errorf("job %s: %w", jobID, entity.ErrJobNotFound)
}

// MirroredWriter writes to a primary store and copies to mirrors. Only the primary's
// errors fail the write.
type MirroredWriter struct {
	primary repository.FileWriter
	mirrors []repository.FileWriter
	logger  *slog.Logger
}

var _ repository.FileWriter = (*MirroredWriter)(nil)

func NewMirroredWriter(logger *slog.Logger, primary repository.FileWriter, mirrors ...repository.FileWriter) *MirroredWriter {
	return &MirroredWriter{primary: primary, mirrors: mirrors, logger: logger}
}

func (w *MirroredWriter) WriteFiles(ctx context.Context, jobID string, files []*entity.GeneratedFile) error {
	if err := w.primary.WriteFiles(ctx, jobID, files); err != nil {
		return err
	}
	for _, m := range w.mirrors {
		if err := m.WriteFiles(ctx, jobID, files); err != nil {
			w.logger.Error("mirror files failed", "job_id", jobID, "err", err)
		}
	}
	return nil
}
