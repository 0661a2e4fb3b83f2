package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"appgen/internal/domain/entity"
	"appgen/internal/domain/repository"
	"appgen/internal/infrastructure/metrics"
)

// TemplateGenerator produces a small React + TypeScript project without calling a model.
// Output depends only on its inputs.
type TemplateGenerator struct{}

var _ repository.Generator = (*TemplateGenerator)(nil)

func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

var appKinds = []struct {
	keywords []string
	appType  string
	features []string
	screens  []string
	model    map[string]string
}{
	{
		keywords: []string{"todo", "task", "checklist"},
		appType:  "todo",
		features: []string{"add tasks", "complete tasks", "filter by status"},
		screens:  []string{"Task list", "Task editor"},
		model:    map[string]string{"Task": "title, done flag, due date"},
	},
	{
		keywords: []string{"note", "notes", "journal", "diary"},
		appType:  "notes",
		features: []string{"write notes", "search notes", "tag notes"},
		screens:  []string{"Notes list", "Note editor"},
		model:    map[string]string{"Note": "title, body, tags"},
	},
	{
		keywords: []string{"shop", "store", "marketplace", "ecommerce", "product", "products"},
		appType:  "marketplace",
		features: []string{"browse products", "cart", "checkout summary"},
		screens:  []string{"Catalog", "Cart"},
		model:    map[string]string{"Product": "name, price, stock"},
	},
	{
		keywords: []string{"flashcard", "flashcards", "quiz", "study", "exam"},
		appType:  "flashcards",
		features: []string{"create decks", "review cards", "track score"},
		screens:  []string{"Decks", "Review"},
		model:    map[string]string{"Card": "front, back, deck"},
	},
}

func (g *TemplateGenerator) AnalyzeIdea(ctx context.Context, userInput string) (entity.Structure, error) {
	if err := ctx.Err(); err != nil {
		return entity.Structure{}, err
	}
	metrics.IncLLMRequest("template", "analysis")

	words := strings.FieldsFunc(strings.ToLower(userInput), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return entity.Structure{}, fmt.Errorf("analyze idea: %w", entity.ErrMissingInput)
	}

	s := entity.Structure{
		AppType:     "app",
		Features:    []string{"home screen"},
		Screens:     []string{"Home"},
		DataModel:   map[string]string{"Item": "name, description"},
		SourceInput: userInput,
	}
kinds:
	for _, kind := range appKinds {
		for _, w := range words {
			for _, kw := range kind.keywords {
				if w == kw {
					s.AppType = kind.appType
					s.Features = append([]string(nil), kind.features...)
					s.Screens = append([]string(nil), kind.screens...)
					s.DataModel = make(map[string]string, len(kind.model))
					for k, v := range kind.model {
						s.DataModel[k] = v
					}
					break kinds
				}
			}
		}
	}

	s.AppName = appName(s.AppType)
	s.Summary = fmt.Sprintf("A %s application: %s", s.AppType, strings.TrimSpace(userInput))
	return s, nil
}

func (g *TemplateGenerator) SynthesizeApplication(ctx context.Context, structure entity.Structure, options map[string]any) (entity.Synthesis, error) {
	if err := ctx.Err(); err != nil {
		return entity.Synthesis{}, err
	}
	metrics.IncLLMRequest("template", "synthesis")

	name := structure.AppName
	if name == "" {
		name = appName(structure.AppType)
	}
	accent := "#3b82f6"
	if v, ok := options["accentColor"].(string); ok && v != "" {
		accent = v
	}

	pkg, err := json.MarshalIndent(map[string]any{
		"name":    slug(name),
		"private": true,
		"version": "0.1.0",
		"type":    "module",
		"scripts": map[string]string{"dev": "vite", "build": "tsc && vite build"},
		"dependencies": map[string]string{
			"react":     "^18.3.1",
			"react-dom": "^18.3.1",
		},
		"devDependencies": map[string]string{
			"@types/react":         "^18.3.3",
			"@types/react-dom":     "^18.3.0",
			"@vitejs/plugin-react": "^4.3.1",
			"typescript":           "^5.5.4",
			"vite":                 "^5.4.0",
		},
	}, "", "  ")
	if err != nil {
		return entity.Synthesis{}, fmt.Errorf("marshal package.json: %w", err)
	}

	files := []*entity.GeneratedFile{
		{Path: "package.json", Content: string(pkg) + "\n", Language: "json"},
		{Path: "tsconfig.json", Content: tsconfig, Language: "json"},
		{Path: "index.html", Content: fmt.Sprintf(indexHTML, name), Language: "html"},
		{Path: "src/main.tsx", Content: mainTSX, Language: "typescript"},
		{Path: "src/types.ts", Content: typesTS(structure.DataModel), Language: "typescript"},
		{Path: "src/App.tsx", Content: appTSX(name, structure.Features, structure.Screens), Language: "typescript"},
		{Path: "src/index.css", Content: fmt.Sprintf(indexCSS, accent), Language: "css"},
		{Path: "README.md", Content: fmt.Sprintf("# %s\n\n%s\n", name, structure.Summary), Language: "markdown"},
	}
	return entity.Synthesis{Files: files, Summary: structure.Summary}, nil
}

// ValidateAndCorrect has nothing to fix in template output; it clears error marks.
func (g *TemplateGenerator) ValidateAndCorrect(ctx context.Context, files []*entity.GeneratedFile, _ []entity.ValidationFinding) ([]*entity.GeneratedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]*entity.GeneratedFile, len(files))
	for i, f := range files {
		c := *f
		c.HasError = false
		c.Finding = nil
		out[i] = &c
	}
	return out, nil
}

var jsxText = strings.NewReplacer("{", "&#123;", "}", "&#125;", "<", "&lt;", ">", "&gt;")

func appName(appType string) string {
	if appType == "" {
		return "My App"
	}
	return strings.ToUpper(appType[:1]) + appType[1:] + " App"
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

func typesTS(model map[string]string) string {
	names := make([]string, 0, len(model))
	for k := range model {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "// %s\nexport interface %s {\n  id: string;\n  name: string;\n}\n\n", model[n], n)
	}
	if b.Len() == 0 {
		b.WriteString("export {};\n")
	}
	return b.String()
}

func appTSX(name string, features, screens []string) string {
	var items strings.Builder
	for _, f := range features {
		fmt.Fprintf(&items, "        <li>%s</li>\n", jsxText.Replace(f))
	}
	if len(screens) == 0 {
		screens = []string{"Home"}
	}
	tabs, _ := json.Marshal(screens)
	return fmt.Sprintf(`import { useState } from 'react';

const screens: string[] = %s;

export default function App() {
  const [active, setActive] = useState(screens[0] ?? 'Home');
  return (
    <main>
      <h1>%s</h1>
      <nav>
        {screens.map((s) => (
          <button key={s} onClick={() => setActive(s)} disabled={s === active}>
            {s}
          </button>
        ))}
      </nav>
      <ul>
%s      </ul>
    </main>
  );
}
`, tabs, jsxText.Replace(name), items.String())
}

const tsconfig = `{
  "compilerOptions": {
    "target": "ES2020",
    "module": "ESNext",
    "moduleResolution": "bundler",
    "jsx": "react-jsx",
    "strict": true,
    "noEmit": true
  },
  "include": ["src"]
}
`

const indexHTML = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="UTF-8" />
    <title>%s</title>
  </head>
  <body>
    <div id="root"></div>
    <script type="module" src="/src/main.tsx"></script>
  </body>
</html>
`

const mainTSX = `import { StrictMode } from 'react';
import { createRoot } from 'react-dom/client';
import App from './App';
import './index.css';

createRoot(document.getElementById('root')!).render(
  <StrictMode>
    <App />
  </StrictMode>,
);
`

const indexCSS = `:root {
  font-family: system-ui, sans-serif;
  --accent: %s;
}

button:disabled {
  color: var(--accent);
}
`
