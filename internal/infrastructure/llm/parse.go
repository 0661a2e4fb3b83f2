package llm

import (
	"path"
	"strings"

	"appgen/internal/domain/entity"
)

// extractFilesFromContent collects every ```path fenced block. Blocks without a path-like
// name (bare or language-only fences) are skipped.
func extractFilesFromContent(content string) []*entity.GeneratedFile {
	var files []*entity.GeneratedFile

	var current *entity.GeneratedFile
	var body []string
	inBlock := false

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if inBlock {
				if current != nil {
					current.Content = strings.Join(body, "\n")
					files = append(files, current)
				}
				current, body, inBlock = nil, nil, false
				continue
			}
			inBlock = true
			if name := strings.TrimSpace(strings.TrimPrefix(trimmed, "```")); looksLikePath(name) {
				current = &entity.GeneratedFile{Path: name, Language: detectLanguage(name)}
			}
			continue
		}

		if inBlock && current != nil {
			body = append(body, line)
		}
	}

	// unterminated final block
	if inBlock && current != nil {
		current.Content = strings.Join(body, "\n")
		files = append(files, current)
	}

	return files
}

func looksLikePath(name string) bool {
	return name != "" && !strings.ContainsAny(name, " \t") && (strings.Contains(name, ".") || strings.Contains(name, "/"))
}

// extractJSONObject returns the outermost {...} span of s, tolerating fences and prose.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func detectLanguage(fileName string) string {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".ts", ".tsx":
		return "typescript"
	case ".js", ".jsx", ".mjs", ".cjs":
		return "javascript"
	case ".json":
		return "json"
	case ".tf", ".hcl":
		return "hcl"
	case ".css":
		return "css"
	case ".html":
		return "html"
	case ".md":
		return "markdown"
	}
	return "unknown"
}
