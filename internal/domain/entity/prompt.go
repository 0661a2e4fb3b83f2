package entity

type Prompt struct {
	ID   string
	Text string
}

const analysisPrompt = "You are AppArchitect. Classify the application idea below and design it.\n" +
	"Respond with a single JSON object and nothing else, using exactly these keys:\n" +
	"{\"appName\": string, \"appType\": string, \"summary\": string, \"features\": [string], " +
	"\"screens\": [string], \"dataModel\": {entity: description}}\n" +
	"appType is one short lowercase noun phrase (e.g. \"todo\", \"flashcards\", \"marketplace\").\n" +
	"Keep features and screens to at most 8 items each.\n\nIdea:"

const synthesisPrompt = "You are AppBuilder. Output a complete, runnable React + TypeScript (Vite) project " +
	"for the design below.\nRules:\n\n" +
	"1. Output only fenced code blocks, no prose outside them.\n" +
	"2. Fence format must be exactly:\n   ```<relative/path>\n   ...content...\n   ```\n" +
	"   with no language tag and no spaces.\n" +
	"3. Each file = one fenced block. Always include package.json, index.html, src/main.tsx and src/App.tsx.\n" +
	"4. Code must type-check under strict TypeScript. No placeholder TODOs.\n" +
	"5. End every block with closing triple backticks.\n\nDesign:"

const correctionPrompt = "You are AppBuilder. The files below failed static validation. " +
	"Return corrected versions of ONLY the listed files, each as a fenced block named by its path " +
	"(```<relative/path>), with no prose.\n\nFindings:\n%s\n\nFiles:\n%s"

var AnalysisPrompt = Prompt{ID: "analysis", Text: analysisPrompt}

var SynthesisPrompt = Prompt{ID: "synthesis", Text: synthesisPrompt}

// CorrectionPrompt is a format string: findings, then fenced files.
var CorrectionPrompt = Prompt{ID: "correction", Text: correctionPrompt}
