package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"appgen/internal/domain/entity"
	"appgen/internal/domain/repository"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
)

const maxFileSize = 256 << 10

var SensitiveKeywords = []string{"password", "secret", "key", "token", "access_key", "secret_key"}

var (
	consoleLogRe  = regexp.MustCompile(`\bconsole\.log\s*\(`)
	explicitAnyRe = regexp.MustCompile(`(:\s*any\b)|(\bas\s+any\b)|(<any>)`)
)

// StaticAnalyzer checks generated sources per language without running them.
type StaticAnalyzer struct{}

var _ repository.StaticValidator = (*StaticAnalyzer)(nil)

func NewStaticAnalyzer() *StaticAnalyzer {
	return &StaticAnalyzer{}
}

// Fatal reports whether any finding has error severity.
func Fatal(findings []entity.ValidationFinding) bool {
	for _, f := range findings {
		if f.Severity == entity.SeverityError {
			return true
		}
	}
	return false
}

func (a *StaticAnalyzer) Analyze(files []*entity.GeneratedFile) []entity.ValidationFinding {
	var findings []entity.ValidationFinding

	parser := hclparse.NewParser()
	for _, file := range files {
		if strings.TrimSpace(file.Content) == "" {
			sev := entity.SeverityWarning
			msg := "file is empty"
			if path.Base(file.Path) == "package.json" {
				sev = entity.SeverityError
				msg = "package.json is empty"
			}
			findings = append(findings, entity.ValidationFinding{File: file.Path, Message: msg, Severity: sev})
			continue
		}
		if len(file.Content) > maxFileSize {
			findings = append(findings, warning(file.Path, fmt.Sprintf("file is %d bytes, larger than %d", len(file.Content), maxFileSize)))
		}

		switch ext := strings.ToLower(path.Ext(file.Path)); ext {
		case ".json":
			findings = append(findings, a.analyzeJSON(file)...)
		case ".tf", ".hcl":
			findings = append(findings, a.analyzeHCL(parser, file)...)
		case ".ts", ".tsx", ".js", ".jsx":
			findings = append(findings, a.analyzeScript(file, ext == ".ts" || ext == ".tsx")...)
		}
	}
	return findings
}

func (a *StaticAnalyzer) analyzeJSON(file *entity.GeneratedFile) []entity.ValidationFinding {
	var v any
	if err := json.Unmarshal([]byte(file.Content), &v); err != nil {
		f := entity.ValidationFinding{File: file.Path, Message: "invalid JSON: " + err.Error(), Severity: entity.SeverityError}
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			f.Line, f.Column = lineCol(file.Content, int(syn.Offset))
		}
		return []entity.ValidationFinding{f}
	}
	return nil
}

func (a *StaticAnalyzer) analyzeHCL(parser *hclparse.Parser, file *entity.GeneratedFile) []entity.ValidationFinding {
	hclFile, diags := parser.ParseHCL([]byte(file.Content), file.Path)
	if !diags.HasErrors() && strings.HasSuffix(file.Path, ".tf") {
		diags = append(diags, analyzeTerraformBody(hclFile.Body, file.Path)...)
	}

	findings := make([]entity.ValidationFinding, 0, len(diags))
	for _, diag := range diags {
		f := entity.ValidationFinding{
			File:     file.Path,
			Message:  strings.TrimSuffix(fmt.Sprintf("%s: %s", diag.Summary, diag.Detail), ": "),
			Severity: entity.SeverityWarning,
		}
		if diag.Severity == hcl.DiagError {
			f.Severity = entity.SeverityError
		}
		if diag.Subject != nil {
			f.Line = diag.Subject.Start.Line
			f.Column = diag.Subject.Start.Column
		}
		findings = append(findings, f)
	}
	return findings
}

// analyzeTerraformBody flags unpinned providers and literal secrets. All results are warnings.
func analyzeTerraformBody(body hcl.Body, fileName string) hcl.Diagnostics {
	var diags hcl.Diagnostics

	schema := &hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "terraform"},
			{Type: "resource", LabelNames: []string{"type", "name"}},
		},
	}
	content, _, _ := body.PartialContent(schema)

	for _, block := range content.Blocks.OfType("terraform") {
		tfContent, _, _ := block.Body.PartialContent(&hcl.BodySchema{
			Blocks: []hcl.BlockHeaderSchema{{Type: "required_providers"}},
		})
		for _, rp := range tfContent.Blocks.OfType("required_providers") {
			attrs, _ := rp.Body.JustAttributes()
			for name, attr := range attrs {
				val, valDiags := attr.Expr.Value(nil)
				if valDiags.HasErrors() || !val.Type().IsObjectType() {
					continue
				}
				if _, ok := val.AsValueMap()["version"]; !ok {
					diags = append(diags, &hcl.Diagnostic{
						Severity: hcl.DiagWarning,
						Summary:  fmt.Sprintf("Provider %s missing version constraint in %s", name, fileName),
						Subject:  attr.Range.Ptr(),
					})
				}
			}
		}
	}

	for _, block := range content.Blocks.OfType("resource") {
		attrs, _ := block.Body.JustAttributes()
		for name, attr := range attrs {
			if !sensitive(name) {
				continue
			}
			if _, valDiags := attr.Expr.Value(nil); !valDiags.HasErrors() {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagWarning,
					Summary:  fmt.Sprintf("Potential hardcoded sensitive value in attribute %s of resource %s.%s", name, block.Labels[0], block.Labels[1]),
					Subject:  attr.Range.Ptr(),
				})
			}
		}
	}
	return diags
}

func sensitive(attr string) bool {
	lower := strings.ToLower(attr)
	for _, kw := range SensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (a *StaticAnalyzer) analyzeScript(file *entity.GeneratedFile, typed bool) []entity.ValidationFinding {
	var findings []entity.ValidationFinding

	if f, ok := checkBrackets(file.Path, file.Content); !ok {
		findings = append(findings, f)
	}
	if loc := consoleLogRe.FindStringIndex(file.Content); loc != nil {
		w := warning(file.Path, "console.log left in source")
		w.Line, w.Column = lineCol(file.Content, loc[0])
		findings = append(findings, w)
	}
	if typed {
		if loc := explicitAnyRe.FindStringIndex(file.Content); loc != nil {
			w := warning(file.Path, "explicit any type")
			w.Line, w.Column = lineCol(file.Content, loc[0])
			findings = append(findings, w)
		}
	}
	return findings
}

func warning(file, msg string) entity.ValidationFinding {
	return entity.ValidationFinding{File: file, Message: msg, Severity: entity.SeverityWarning}
}

// lineCol converts a byte offset to 1-based line and column.
func lineCol(s string, off int) (int, int) {
	if off > len(s) {
		off = len(s)
	}
	line := 1 + strings.Count(s[:off], "\n")
	col := off - strings.LastIndex(s[:off], "\n")
	return line, col
}
