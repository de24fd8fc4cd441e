// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package interpret

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// defaultPersona frames the model as a statistics explainer unless the
// deployment overrides it with ALEUTIAN_EXPLAIN_PERSONA.
const defaultPersona = "You are a biostatistician who explains multiple-testing " +
	"corrections to researchers in plain, careful language."

// defaultModel keeps short narratives cheap; override with OPENAI_MODEL.
const defaultModel = "gpt-4o-mini"

// openaiKeySecret is where compose deployments mount the API key when it
// is not passed through the environment.
const openaiKeySecret = "/run/secrets/openai_api_key"

// ErrNoAPIKey means neither the environment nor the secret mount supplied
// an OpenAI credential. The service treats this as "explanations off",
// not as a startup failure.
var ErrNoAPIKey = errors.New("no OpenAI API key configured")

// OpenAIClient generates run narratives through the OpenAI chat
// completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient configures a client from OPENAI_API_KEY and
// OPENAI_MODEL, falling back to the container secret mount for the key.
// Returns ErrNoAPIKey when both routes come up empty.
func NewOpenAIClient() (*OpenAIClient, error) {
	key, err := resolveAPIKey()
	if err != nil {
		return nil, err
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = defaultModel
	}
	slog.Info("Run interpretation backend ready", "model", model)

	return &OpenAIClient{
		client: openai.NewClient(key),
		model:  model,
	}, nil
}

// resolveAPIKey prefers the environment variable over the secret file.
func resolveAPIKey() (string, error) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key, nil
	}

	raw, err := os.ReadFile(openaiKeySecret)
	if err != nil {
		return "", fmt.Errorf("%w: OPENAI_API_KEY unset and %s unreadable", ErrNoAPIKey, openaiKeySecret)
	}
	key := strings.TrimSpace(string(raw))
	if key == "" {
		return "", fmt.Errorf("%w: secret file %s is empty", ErrNoAPIKey, openaiKeySecret)
	}
	slog.Info("OpenAI API key loaded from secret mount", "path", openaiKeySecret)
	return key, nil
}

// Generate satisfies LLMClient with one chat completion round trip.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	persona := os.Getenv("ALEUTIAN_EXPLAIN_PERSONA")
	if persona == "" {
		persona = defaultPersona
	}

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: persona},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	applyParams(&req, params)

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	slog.Debug("Interpretation generated",
		"model", o.model,
		"finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// applyParams copies the optional tuning fields onto the request. Nil
// pointers leave the API defaults in place.
func applyParams(req *openai.ChatCompletionRequest, params GenerationParams) {
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
}
