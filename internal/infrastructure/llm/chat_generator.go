package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"appgen/internal/domain/entity"
	"appgen/internal/domain/repository"
	"appgen/internal/infrastructure/metrics"
)

// ChatGenerator talks to an OpenAI-compatible chat completions endpoint.
type ChatGenerator struct {
	apiKey      string
	baseURL     string
	model       string
	client      *http.Client
	maxTokens   int
	temperature float64
}

var _ repository.Generator = (*ChatGenerator)(nil)

func NewChatGenerator(apiKey, baseURL, model string) *ChatGenerator {
	return &ChatGenerator{
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		client:      &http.Client{Timeout: 2 * time.Minute},
		maxTokens:   8000,
		temperature: 0.4,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *ChatGenerator) AnalyzeIdea(ctx context.Context, userInput string) (entity.Structure, error) {
	metrics.IncLLMRequest(g.model, "analysis")

	content, err := g.complete(ctx, entity.AnalysisPrompt.Text+" "+userInput)
	if err != nil {
		return entity.Structure{}, fmt.Errorf("analyze idea: %w", err)
	}

	var s entity.Structure
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &s); err != nil {
		metrics.IncError("llm", "parse_structure")
		return entity.Structure{}, fmt.Errorf("parse structure: %w", err)
	}
	if s.AppName == "" && s.AppType == "" {
		return entity.Structure{}, fmt.Errorf("parse structure: %w", entity.ErrEmptyResponse)
	}
	s.SourceInput = userInput
	return s, nil
}

func (g *ChatGenerator) SynthesizeApplication(ctx context.Context, structure entity.Structure, options map[string]any) (entity.Synthesis, error) {
	metrics.IncLLMRequest(g.model, "synthesis")

	design, err := json.MarshalIndent(structure, "", "  ")
	if err != nil {
		return entity.Synthesis{}, fmt.Errorf("marshal structure: %w", err)
	}
	prompt := entity.SynthesisPrompt.Text + "\n" + string(design)
	if len(options) > 0 {
		opts, err := json.Marshal(options)
		if err != nil {
			return entity.Synthesis{}, fmt.Errorf("marshal options: %w", err)
		}
		prompt += "\n\nOptions:\n" + string(opts)
	}

	content, err := g.complete(ctx, prompt)
	if err != nil {
		return entity.Synthesis{}, fmt.Errorf("synthesize application: %w", err)
	}

	files := extractFilesFromContent(content)
	if len(files) == 0 {
		metrics.IncError("llm", "no_fenced_files")
		return entity.Synthesis{}, fmt.Errorf("synthesize application: %w", entity.ErrNoFiles)
	}
	return entity.Synthesis{Files: files, Summary: structure.Summary}, nil
}

// ValidateAndCorrect re-sends only the files with fatal findings and splices the answers back.
func (g *ChatGenerator) ValidateAndCorrect(ctx context.Context, files []*entity.GeneratedFile, findings []entity.ValidationFinding) ([]*entity.GeneratedFile, error) {
	bad := make(map[string]bool)
	var report strings.Builder
	for _, f := range findings {
		if f.Severity != entity.SeverityError {
			continue
		}
		bad[f.File] = true
		report.WriteString("- " + f.String() + "\n")
	}
	if len(bad) == 0 {
		return files, nil
	}

	metrics.IncLLMRequest(g.model, "correction")

	var fenced strings.Builder
	for _, f := range files {
		if bad[f.Path] {
			fmt.Fprintf(&fenced, "```%s\n%s\n```\n", f.Path, f.Content)
		}
	}

	content, err := g.complete(ctx, fmt.Sprintf(entity.CorrectionPrompt.Text, report.String(), fenced.String()))
	if err != nil {
		return nil, fmt.Errorf("correct files: %w", err)
	}

	fixed := make(map[string]*entity.GeneratedFile)
	for _, f := range extractFilesFromContent(content) {
		if bad[f.Path] {
			fixed[f.Path] = f
		}
	}

	out := make([]*entity.GeneratedFile, 0, len(files))
	for _, f := range files {
		if nf, ok := fixed[f.Path]; ok {
			out = append(out, nf)
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (g *ChatGenerator) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		metrics.IncError("llm", "marshal_request")
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(body))
	if err != nil {
		metrics.IncError("llm", "create_request")
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		metrics.IncError("llm", "http_do")
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("close llm response body", "err", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.IncError("llm", fmt.Sprintf("api_error_%d", resp.StatusCode))
		return "", fmt.Errorf("llm api error: %d - %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.IncError("llm", "decode_response")
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", entity.ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}
