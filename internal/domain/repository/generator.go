package repository

import (
	"context"

	"appgen/internal/domain/entity"
)

// Generator is the natural-language and code-generation capability consulted by the pipeline.
type Generator interface {
	// AnalyzeIdea classifies free-text input and designs the application structure.
	AnalyzeIdea(ctx context.Context, userInput string) (entity.Structure, error)
	// SynthesizeApplication turns a structure into source files.
	SynthesizeApplication(ctx context.Context, structure entity.Structure, options map[string]any) (entity.Synthesis, error)
	// ValidateAndCorrect regenerates the files named by fatal findings.
	ValidateAndCorrect(ctx context.Context, files []*entity.GeneratedFile, findings []entity.ValidationFinding) ([]*entity.GeneratedFile, error)
}
