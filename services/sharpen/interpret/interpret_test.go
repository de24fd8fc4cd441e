// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for run interpretation prompts and the interpreter wrapper.

package interpret

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

// MockLLMClient captures prompts and returns a canned narrative.
type MockLLMClient struct {
	GenerateFunc func(ctx context.Context, prompt string, params GenerationParams) (string, error)
	LastPrompt   string
	LastParams   GenerationParams
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	m.LastPrompt = prompt
	m.LastParams = params
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, params)
	}
	return "canned narrative", nil
}

func testRecord() *store.RunRecord {
	return &store.RunRecord{
		ID:         "run-1",
		Label:      "lab panel",
		Source:     "api",
		Step:       0.001,
		Hypotheses: 7,
		PValues:    []float64{0.02, 0.01, 0.03, 0.08, 0.168, 0.168, 0.168},
		QValues:    []float64{0.076, 0.076, 0.076, 0.087, 0.107, 0.107, 0.107},
	}
}

func TestInterpreter_ExplainRun(t *testing.T) {
	mock := &MockLLMClient{}
	interp := NewInterpreter(mock, nil)

	narrative, err := interp.ExplainRun(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("ExplainRun failed: %v", err)
	}
	if narrative != "canned narrative" {
		t.Errorf("Expected canned narrative, got %q", narrative)
	}

	for _, want := range []string{
		"Run label: lab panel",
		"Hypotheses tested: 7",
		"Q-value grid step: 0.001",
		"q <= 0.05: 0",
		"q <= 0.10: 4",
		"Minimum q-value: 0.0760",
		"p=0.01 -> q=0.076",
	} {
		if !strings.Contains(mock.LastPrompt, want) {
			t.Errorf("Prompt missing %q:\n%s", want, mock.LastPrompt)
		}
	}

	if mock.LastParams.Temperature == nil || *mock.LastParams.Temperature != 0.3 {
		t.Errorf("Expected temperature 0.3, got %v", mock.LastParams.Temperature)
	}
	if mock.LastParams.MaxTokens == nil || *mock.LastParams.MaxTokens != 600 {
		t.Errorf("Expected max tokens 600, got %v", mock.LastParams.MaxTokens)
	}
}

func TestInterpreter_ExplainRun_NoClient(t *testing.T) {
	interp := NewInterpreter(nil, nil)
	if interp.Enabled() {
		t.Error("Interpreter without client must report disabled")
	}

	_, err := interp.ExplainRun(context.Background(), testRecord())
	if !errors.Is(err, ErrNoClient) {
		t.Fatalf("Expected ErrNoClient, got %v", err)
	}
}

func TestInterpreter_ExplainRun_NilRun(t *testing.T) {
	interp := NewInterpreter(&MockLLMClient{}, nil)

	_, err := interp.ExplainRun(context.Background(), nil)
	if !errors.Is(err, ErrNilRun) {
		t.Fatalf("Expected ErrNilRun, got %v", err)
	}
}

func TestInterpreter_ExplainRun_BackendError(t *testing.T) {
	mock := &MockLLMClient{
		GenerateFunc: func(ctx context.Context, prompt string, params GenerationParams) (string, error) {
			return "", errors.New("rate limited")
		},
	}
	interp := NewInterpreter(mock, nil)

	_, err := interp.ExplainRun(context.Background(), testRecord())
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("Expected wrapped backend error, got %v", err)
	}
}

func TestInterpreter_ExplainRun_TrimsWhitespace(t *testing.T) {
	mock := &MockLLMClient{
		GenerateFunc: func(ctx context.Context, prompt string, params GenerationParams) (string, error) {
			return "\n  The findings are promising.  \n\n", nil
		},
	}
	interp := NewInterpreter(mock, nil)

	narrative, err := interp.ExplainRun(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("ExplainRun failed: %v", err)
	}
	if narrative != "The findings are promising." {
		t.Errorf("Expected trimmed narrative, got %q", narrative)
	}
}

func TestBuildPrompt_BoundedForLargeRuns(t *testing.T) {
	n := 5000
	pvals := make([]float64, n)
	qvals := make([]float64, n)
	for i := 0; i < n; i++ {
		pvals[i] = float64(i+1) / float64(n+1)
		qvals[i] = pvals[i]
	}
	rec := &store.RunRecord{
		ID:         "big",
		Step:       0.001,
		Hypotheses: n,
		PValues:    pvals,
		QValues:    qvals,
	}

	prompt, err := BuildPrompt(rec)
	if err != nil {
		t.Fatalf("BuildPrompt failed: %v", err)
	}

	want := fmt.Sprintf("(and %d more not shown)", n-maxPromptPairs)
	if !strings.Contains(prompt, want) {
		t.Errorf("Prompt missing truncation marker %q", want)
	}
	if len(prompt) > 8192 {
		t.Errorf("Prompt for %d hypotheses is %d bytes; must stay bounded", n, len(prompt))
	}

	// Only maxPromptPairs entries may appear in the listing.
	listed := strings.Count(prompt, " -> q=")
	if listed != maxPromptPairs {
		t.Errorf("Expected %d listed pairs, got %d", maxPromptPairs, listed)
	}
}

func TestBuildPrompt_SortsByQValue(t *testing.T) {
	rec := &store.RunRecord{
		ID:         "sorted",
		Step:       0.001,
		Hypotheses: 3,
		PValues:    []float64{0.4, 0.001, 0.05},
		QValues:    []float64{0.6, 0.004, 0.09},
	}

	prompt, err := BuildPrompt(rec)
	if err != nil {
		t.Fatalf("BuildPrompt failed: %v", err)
	}

	first := strings.Index(prompt, "q=0.004")
	second := strings.Index(prompt, "q=0.09")
	third := strings.Index(prompt, "q=0.6")
	if first < 0 || second < 0 || third < 0 {
		t.Fatalf("Prompt missing expected q-values:\n%s", prompt)
	}
	if !(first < second && second < third) {
		t.Errorf("Pairs not listed in ascending q order:\n%s", prompt)
	}
}

func TestBuildPrompt_NilRun(t *testing.T) {
	_, err := BuildPrompt(nil)
	if !errors.Is(err, ErrNilRun) {
		t.Fatalf("Expected ErrNilRun, got %v", err)
	}
}
