package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"appgen/internal/domain/entity"
	"appgen/internal/domain/repository"
	"appgen/internal/infrastructure/metrics"
)

const metadataFile = "metadata.json"

// FileRepository writes each job's files under <basePath>/<jobID>/ with a metadata.json index.
type FileRepository struct {
	basePath string
}

var (
	_ repository.FileWriter = (*FileRepository)(nil)
	_ repository.FileReader = (*FileRepository)(nil)
)

func (r *FileRepository) GetBasePath() string {
	return r.basePath
}

func NewFileRepository(basePath string) (*FileRepository, error) {
	info, err := os.Stat(basePath)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(basePath, 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", basePath, mkErr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check directory %s: %w", basePath, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("path %s exists but is not a directory", basePath)
	}

	return &FileRepository{
		basePath: basePath,
	}, nil
}

type metadata struct {
	JobID      string                  `json:"job_id"`
	CreatedAt  time.Time               `json:"created_at"`
	FilesCount int                     `json:"files_count"`
	Files      []*entity.GeneratedFile `json:"files"`
}

func (r *FileRepository) WriteFiles(ctx context.Context, jobID string, files []*entity.GeneratedFile) error {
	jobDir, err := r.jobDir(jobID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}

	index := make([]*entity.GeneratedFile, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		filePath, err := safeJoin(jobDir, file.Path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", file.Path, err)
		}
		if err := os.WriteFile(filePath, []byte(file.Content), 0o644); err != nil {
			return fmt.Errorf("failed to write file %s: %w", file.Path, err)
		}
		entry := *file
		entry.Content = ""
		index = append(index, &entry)
	}

	meta := metadata{
		JobID:      jobID,
		CreatedAt:  time.Now().UTC(),
		FilesCount: len(files),
		Files:      index,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(jobDir, metadataFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	metrics.IncStoreOp("filesystem", "put")
	return nil
}

func (r *FileRepository) GetFiles(ctx context.Context, jobID string) ([]*entity.GeneratedFile, error) {
	jobDir, err := r.jobDir(jobID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(jobDir, metadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("job %s: %w", jobID, entity.ErrJobNotFound)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	for _, file := range meta.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		filePath, err := safeJoin(jobDir, file.Path)
		if err != nil {
			return nil, err
		}
		content, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", file.Path, err)
		}
		file.Content = string(content)
	}

	metrics.IncStoreOp("filesystem", "get")
	return meta.Files, nil
}

// ListJobs returns the IDs of every job directory holding a metadata index.
func (r *FileRepository) ListJobs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read base directory: %w", err)
	}

	var jobs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.basePath, e.Name(), metadataFile)); err == nil {
			jobs = append(jobs, e.Name())
		}
	}
	metrics.IncStoreOp("filesystem", "list")
	return jobs, nil
}

func (r *FileRepository) DeleteJob(ctx context.Context, jobID string) error {
	jobDir, err := r.jobDir(jobID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(jobDir); err != nil {
		return fmt.Errorf("failed to delete job directory: %w", err)
	}
	metrics.IncStoreOp("filesystem", "delete")
	return nil
}

func (r *FileRepository) jobDir(jobID string) (string, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}
	return filepath.Join(r.basePath, jobID), nil
}

// safeJoin resolves a generated relative path inside root, rejecting escapes.
func safeJoin(root, rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("invalid file path %q", rel)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("file path %q escapes job directory", rel)
	}
	return filepath.Join(root, clean), nil
}
