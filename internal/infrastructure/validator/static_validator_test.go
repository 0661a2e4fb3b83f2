package validator

import (
	"strings"
	"testing"

	"appgen/internal/domain/entity"
)

func TestStaticAnalyzer_Analyze(t *testing.T) {
	tests := []struct {
		name      string
		file      entity.GeneratedFile
		wantFatal bool
		wantMsg   string
	}{
		{
			name: "valid tsx with apostrophe in jsx text",
			file: entity.GeneratedFile{Path: "src/App.tsx", Content: "export default function App() {\n  return (<p>Don't panic {count}</p>);\n}\n"},
		},
		{
			name: "template literal with substitution",
			file: entity.GeneratedFile{Path: "src/util.ts", Content: "export const greet = (n: string) => `hi ${n.trim()} {`;\n"},
		},
		{
			name:      "unclosed brace",
			file:      entity.GeneratedFile{Path: "src/App.tsx", Content: "function App() {\n  return null;\n"},
			wantFatal: true,
			wantMsg:   "unclosed",
		},
		{
			name:      "mismatched closer",
			file:      entity.GeneratedFile{Path: "index.js", Content: "foo(bar];"},
			wantFatal: true,
			wantMsg:   "mismatched",
		},
		{
			name: "brackets inside strings and comments",
			file: entity.GeneratedFile{Path: "index.js", Content: "const s = \"(\"; // )\n/* { */ const t = ')';\n"},
		},
		{
			name:      "invalid json",
			file:      entity.GeneratedFile{Path: "tsconfig.json", Content: `{"compilerOptions": }`},
			wantFatal: true,
			wantMsg:   "invalid JSON",
		},
		{
			name:      "empty package.json",
			file:      entity.GeneratedFile{Path: "package.json", Content: "  \n"},
			wantFatal: true,
			wantMsg:   "package.json is empty",
		},
		{
			name:    "empty file is a warning",
			file:    entity.GeneratedFile{Path: "src/index.css", Content: ""},
			wantMsg: "file is empty",
		},
		{
			name:    "console.log warning",
			file:    entity.GeneratedFile{Path: "src/main.ts", Content: "console.log('boot');\n"},
			wantMsg: "console.log",
		},
		{
			name:    "explicit any warning",
			file:    entity.GeneratedFile{Path: "src/api.ts", Content: "export function f(x: any) { return x; }\n"},
			wantMsg: "explicit any",
		},
		{
			name:      "hcl parse error",
			file:      entity.GeneratedFile{Path: "infra/main.tf", Content: "resource \"aws_s3_bucket\" \"b\" {\n  bucket = \n"},
			wantFatal: true,
		},
		{
			name:    "hcl hardcoded secret warning",
			file:    entity.GeneratedFile{Path: "infra/main.tf", Content: "resource \"aws_db_instance\" \"db\" {\n  password = \"hunter2\"\n}\n"},
			wantMsg: "sensitive value",
		},
		{
			name: "markdown is not checked",
			file: entity.GeneratedFile{Path: "README.md", Content: "# Todo ((("},
		},
	}

	a := NewStaticAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := tt.file
			findings := a.Analyze([]*entity.GeneratedFile{&file})

			if got := Fatal(findings); got != tt.wantFatal {
				t.Fatalf("Fatal = %v, want %v (findings: %v)", got, tt.wantFatal, findings)
			}
			if tt.wantMsg == "" {
				if !tt.wantFatal && len(findings) != 0 {
					t.Errorf("unexpected findings: %v", findings)
				}
				return
			}
			found := false
			for _, f := range findings {
				if strings.Contains(f.Message, tt.wantMsg) {
					found = true
				}
			}
			if !found {
				t.Errorf("no finding containing %q in %v", tt.wantMsg, findings)
			}
		})
	}
}

func TestStaticAnalyzer_OversizedFile(t *testing.T) {
	big := "// " + strings.Repeat("x", maxFileSize) + "\n"
	findings := NewStaticAnalyzer().Analyze([]*entity.GeneratedFile{{Path: "src/big.ts", Content: big}})

	if Fatal(findings) {
		t.Fatalf("oversized file must only warn: %v", findings)
	}
	if len(findings) != 1 || !strings.Contains(findings[0].Message, "larger than") {
		t.Fatalf("findings = %v", findings)
	}
}

func TestCheckBrackets_ReportsLine(t *testing.T) {
	f, ok := checkBrackets("a.ts", "const a = 1;\nconst b = [1, 2;\n")
	if ok {
		t.Fatal("expected failure")
	}
	if f.Line != 2 {
		t.Errorf("Line = %d, want 2", f.Line)
	}
}
