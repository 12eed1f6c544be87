// Package openai adapts the OpenAI chat completion API to the
// generation and classifier ports. The adapter is stateless per call;
// persona pinning travels inside each request.
package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/example/courier/internal/core/pipeline"
	"github.com/example/courier/internal/ports/secondary"
)

// completer is the slice of the OpenAI client the adapter uses,
// extracted so tests can substitute a fake.
type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds the generation backend settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

// Client implements secondary.GenerationClient and
// secondary.ClassifierClient over the OpenAI API.
type Client struct {
	api   completer
	model string
	temp  float32
	log   *zap.Logger
}

// New creates a client from config.
func New(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(clientCfg),
		model: model,
		temp:  cfg.Temperature,
		log:   log,
	}, nil
}

// newWithCompleter is the test seam.
func newWithCompleter(api completer, model string, log *zap.Logger) *Client {
	return &Client{api: api, model: model, log: log}
}

var stagePrompts = map[pipeline.Stage]string{
	pipeline.StageDraft: "You draft a reply to the user's message. " +
		"Respond with the reply text only, no preamble.",
	pipeline.StageRefine: "You refine a drafted reply for tone and brevity. " +
		"Respond with the improved reply text only.",
	pipeline.StageSafety: "You are a safety reviewer. If the candidate reply is acceptable, " +
		"return it unchanged. If it must be refused, return a single line starting with " +
		"REJECT: followed by the reason.",
}

// Generate runs one pipeline stage as a chat completion. Draft sees
// the inbound payload; refine and safety see the previous stage's
// output with the payload as context.
func (c *Client) Generate(ctx context.Context, req secondary.GenerationRequest) (string, error) {
	system, ok := stagePrompts[req.Stage]
	if !ok {
		return "", fmt.Errorf("unknown generation stage %q", req.Stage)
	}
	system += fmt.Sprintf(" Persona version: %s.", req.PersonaVersion)

	user := req.Payload
	if req.PriorOutput != "" {
		user = fmt.Sprintf("Original message:\n%s\n\nCandidate reply:\n%s", req.Payload, req.PriorOutput)
	}

	out, err := c.complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("stage %s generation failed: %w", req.Stage, err)
	}

	if req.Stage == pipeline.StageSafety {
		if reason, rejected := strings.CutPrefix(strings.TrimSpace(out), "REJECT:"); rejected {
			return "", &pipeline.Rejection{Reason: strings.TrimSpace(reason)}
		}
	}
	return out, nil
}

const classifierPrompt = "You check a proposed reply against the user's known commitments. " +
	"Respond with a single JSON object and nothing else, using exactly these fields: " +
	`"proposed_windows" (array of {"start": RFC3339, "duration_minutes": int}), ` +
	`"asserted_activity" (string), "asserted_time" (RFC3339 or null), ` +
	`"original_sentence" (string), "corrected_sentence" (string), ` +
	`"new_commitments" (array of {"activity": string, "time": RFC3339, "duration_minutes": int, "source_text": string}).`

// Classify returns the raw classifier output for the given context
// snapshot. Parsing and fail-open handling belong to the resolver.
func (c *Client) Classify(ctx context.Context, snapshot string) (string, error) {
	out, err := c.complete(ctx, classifierPrompt, snapshot)
	if err != nil {
		return "", fmt.Errorf("classification failed: %w", err)
	}
	return out, nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temp,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	c.log.Debug("completion received",
		zap.String("model", c.model),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)))
	return resp.Choices[0].Message.Content, nil
}
