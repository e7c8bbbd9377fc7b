// Package aiassist provides optional drafting suggestions for clinicians by
// calling an OpenAI-compatible chat completions endpoint. The feature is
// best-effort: when the client is not configured or the upstream call fails,
// callers fall back to the deterministic content templates.
package aiassist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

var (
	ErrNotConfigured = errors.New("ai assist is not configured")
	ErrEmptyPrompt   = errors.New("prompt context is empty")
)

const defaultBaseURL = "https://api.openai.com/v1"

// Suggester produces a suggested certificate body for a draft.
type Suggester interface {
	Suggest(ctx context.Context, req SuggestRequest) (string, error)
}

// SuggestRequest carries the clinical context used for drafting.
type SuggestRequest struct {
	FormType     string `json:"form_type"`
	PatientName  string `json:"patient_name"`
	Symptoms     string `json:"symptoms"`
	Instructions string `json:"instructions"`
}

// Client calls the chat completions API.
type Client struct {
	client *resty.Client
	model  string
	logger zerolog.Logger
}

// NewClient builds a suggester. apiKey may be empty, yielding a client whose
// Suggest always returns ErrNotConfigured — the handler maps that to 404 so
// the review UI hides the assist button.
func NewClient(apiKey, model, baseURL string, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	var client *resty.Client
	if apiKey != "" {
		client = resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second).
			SetAuthToken(apiKey).
			SetHeader("Content-Type", "application/json")
	}

	return &Client{
		client: client,
		model:  model,
		logger: logger.With().Str("component", "aiassist").Logger(),
	}
}

// Configured reports whether an API key was provided.
func (c *Client) Configured() bool { return c.client != nil }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Suggest asks the model for a certificate body paragraph. The prompt keeps
// the model on medical-certificate register and forbids inventing clinical
// findings beyond the supplied context.
func (c *Client) Suggest(ctx context.Context, req SuggestRequest) (string, error) {
	if c.client == nil {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(req.Symptoms) == "" && strings.TrimSpace(req.Instructions) == "" {
		return "", ErrEmptyPrompt
	}

	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: "system",
				Content: "You draft the body paragraph of a medical certificate for an Australian telehealth clinic. " +
					"Write one short formal paragraph in third person. Use only the clinical context provided; " +
					"do not invent diagnoses, dates, or durations.",
			},
			{
				Role: "user",
				Content: fmt.Sprintf("Certificate type: %s\nPatient: %s\nReported symptoms: %s\nClinician instructions: %s",
					req.FormType, req.PatientName, req.Symptoms, req.Instructions),
			},
		},
		Temperature: 0.4,
		MaxTokens:   300,
	}

	var out chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("calling chat completions: %w", err)
	}
	if resp.IsError() {
		if out.Error != nil {
			return "", fmt.Errorf("chat completions returned %d: %s", resp.StatusCode(), out.Error.Message)
		}
		return "", fmt.Errorf("chat completions returned %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat completions returned no choices")
	}

	suggestion := strings.TrimSpace(out.Choices[0].Message.Content)
	c.logger.Debug().Str("form_type", req.FormType).Int("length", len(suggestion)).Msg("suggestion generated")
	return suggestion, nil
}
