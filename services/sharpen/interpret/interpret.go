// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package interpret turns a stored sharpening run into a plain-language
// narrative using an LLM backend.
package interpret

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianStats/services/sharpen/report"
	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

var (
	// ErrNoClient is returned when no LLM backend is configured.
	ErrNoClient = errors.New("no LLM backend configured")

	// ErrNilRun is returned when ExplainRun receives a nil record.
	ErrNilRun = errors.New("run record must not be nil")
)

// maxPromptPairs bounds the number of (p, q) pairs embedded in a prompt so
// large runs cannot blow past the model's context window.
const maxPromptPairs = 25

// GenerationParams tunes a single LLM generation.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// Interpreter explains sharpening runs through an LLM backend.
type Interpreter struct {
	client LLMClient
	logger *slog.Logger
}

// NewInterpreter wraps an LLM client. A nil client is allowed; ExplainRun
// then fails with ErrNoClient so callers can surface "not configured".
func NewInterpreter(client LLMClient, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{
		client: client,
		logger: logger.With(slog.String("component", "interpret")),
	}
}

// Enabled reports whether an LLM backend is configured.
func (i *Interpreter) Enabled() bool {
	return i.client != nil
}

// ExplainRun produces a short narrative describing what the sharpened
// q-values in rec mean.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - rec: A stored run with aligned PValues and QValues.
//
// Outputs:
//   - string: Two to three paragraphs of plain-language interpretation.
//   - error: ErrNoClient when no backend is configured, ErrNilRun for a
//     nil record, or the backend's error.
func (i *Interpreter) ExplainRun(ctx context.Context, rec *store.RunRecord) (string, error) {
	if i.client == nil {
		return "", ErrNoClient
	}
	if rec == nil {
		return "", ErrNilRun
	}

	prompt, err := BuildPrompt(rec)
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}

	temperature := float32(0.3)
	maxTokens := 600
	params := GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	i.logger.Debug("requesting run interpretation",
		slog.String("run_id", rec.ID),
		slog.Int("prompt_bytes", len(prompt)))

	narrative, err := i.client.Generate(ctx, prompt, params)
	if err != nil {
		return "", fmt.Errorf("generate interpretation: %w", err)
	}
	return strings.TrimSpace(narrative), nil
}

// BuildPrompt renders the LLM prompt for a run.
//
// The prompt embeds the threshold summary plus at most maxPromptPairs of
// the smallest q-values, so its size stays bounded regardless of how many
// hypotheses the run tested.
func BuildPrompt(rec *store.RunRecord) (string, error) {
	if rec == nil {
		return "", ErrNilRun
	}

	rep, err := report.Build(rec.PValues, rec.QValues, report.DefaultThresholds)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are given the results of a two-stage false discovery rate\n")
	b.WriteString("correction (Benjamini-Krieger-Yekutieli sharpened q-values) applied\n")
	b.WriteString("to a set of hypothesis tests.\n\n")

	if rec.Label != "" {
		fmt.Fprintf(&b, "Run label: %s\n", rec.Label)
	}
	fmt.Fprintf(&b, "Hypotheses tested: %d\n", rec.Hypotheses)
	fmt.Fprintf(&b, "Q-value grid step: %g\n\n", rec.Step)

	b.WriteString("Discoveries by q-value threshold:\n")
	for _, level := range rep.Levels {
		fmt.Fprintf(&b, "  q <= %.2f: %d\n", level.Level, level.Discoveries)
	}
	fmt.Fprintf(&b, "Minimum q-value: %.4f\n", rep.MinQ)
	fmt.Fprintf(&b, "Median q-value: %.4f\n\n", rep.MedianQ)

	// Order hypotheses by ascending q, then ascending p for stable ties.
	order := make([]int, len(rec.QValues))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if rec.QValues[order[a]] != rec.QValues[order[b]] {
			return rec.QValues[order[a]] < rec.QValues[order[b]]
		}
		return rec.PValues[order[a]] < rec.PValues[order[b]]
	})

	shown := len(order)
	if shown > maxPromptPairs {
		shown = maxPromptPairs
	}

	b.WriteString("Smallest sharpened q-values (p-value -> q-value):\n")
	for rank := 0; rank < shown; rank++ {
		idx := order[rank]
		fmt.Fprintf(&b, "  %d. p=%.4g -> q=%.4g\n", rank+1, rec.PValues[idx], rec.QValues[idx])
	}
	if remaining := len(order) - shown; remaining > 0 {
		fmt.Fprintf(&b, "  (and %d more not shown)\n", remaining)
	}

	b.WriteString("\nExplain in two or three short paragraphs what these results mean\n")
	b.WriteString("for a researcher deciding which findings to pursue. Mention how many\n")
	b.WriteString("hypotheses survive the conventional 0.05 level, whether the evidence\n")
	b.WriteString("is concentrated or spread out, and any caution warranted by q-values\n")
	b.WriteString("near the threshold. Do not use markdown headings or bullet lists.\n")

	return b.String(), nil
}
