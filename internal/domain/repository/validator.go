package repository

import "appgen/internal/domain/entity"

// StaticValidator inspects generated files without executing them.
type StaticValidator interface {
	Analyze(files []*entity.GeneratedFile) []entity.ValidationFinding
}
