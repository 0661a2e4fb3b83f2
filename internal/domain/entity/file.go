package entity

import (
	"sort"
	"strconv"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// GeneratedFile is one synthesized source file, addressed by its project-relative path.
type GeneratedFile struct {
	Path     string             `json:"path" bson:"path"`
	Content  string             `json:"content" bson:"content"`
	Language string             `json:"language" bson:"language"` // typescript, javascript, json, hcl, css, markdown
	HasError bool               `json:"has_error" bson:"has_error"`
	Finding  *ValidationFinding `json:"finding,omitempty" bson:"finding,omitempty"`
}

type ValidationFinding struct {
	File     string   `json:"file" bson:"file"`
	Message  string   `json:"message" bson:"message"`
	Severity Severity `json:"severity" bson:"severity"`
	Line     int      `json:"line,omitempty" bson:"line,omitempty"`
	Column   int      `json:"column,omitempty" bson:"column,omitempty"`
}

func (f ValidationFinding) String() string {
	if f.Line > 0 {
		return f.File + ":" + strconv.Itoa(f.Line) + ": " + f.Message
	}
	return f.File + ": " + f.Message
}

// FileSet is the materialized path -> content view of a generation.
type FileSet map[string]string

// Paths returns the file paths in lexical order.
func (fs FileSet) Paths() []string {
	paths := make([]string, 0, len(fs))
	for p := range fs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
