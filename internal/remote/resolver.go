// Package remote resolves utterances through a cloud language model.
// It prompts Gemini for a strict JSON (intent, action, parameters,
// confidence) object and parses the reply defensively: network failures map
// to ErrUnavailable, unparsable payloads to ErrMalformedResponse, and both
// are recoverable fall-through signals for the orchestrator.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/jarvis/pkg/types"
)

// MaxErrorBodySize limits how much error response body we read (1MB).
// Prevents memory exhaustion from malformed error responses.
const MaxErrorBodySize = 1 * 1024 * 1024

// DefaultTimeout bounds a resolution round trip when the caller's context
// carries no deadline of its own.
const DefaultTimeout = 4 * time.Second

// systemPrompt instructs the model to emit exactly one JSON object over the
// closed intent set. Anything else is treated as malformed.
const systemPrompt = `You are the intent resolver for a desktop voice assistant.
Given one spoken command, respond with EXACTLY one JSON object and nothing else:

{"intent": "<intent>", "action": "<action>", "parameters": {"<slot>": "<value>"}, "confidence": <0.0-1.0>}

Valid intents: app_launch, volume_control, brightness_control, system_time,
system_date, lock_screen, system_sleep, system_shutdown, help, exit,
general_knowledge, unknown.

Actions: open_app (parameter "app"), volume_up, volume_down, volume_mute,
brightness_up, brightness_down, tell_time, tell_date, lock_screen,
system_sleep, system_shutdown, show_help, exit_assistant,
answer_question (parameter "query").

Use intent "unknown" with confidence 0 when the command fits nothing.
Do not invent intents or actions outside these lists.`

// Config contains configuration for the remote resolver.
type Config struct {
	// Endpoint is the API base URL.
	Endpoint string

	// Model is the model identifier to request.
	Model string

	// APIKey authenticates the request. The resolver is never constructed
	// without one; the orchestrator skips the remote stage entirely when
	// no key is configured.
	APIKey string

	// MaxTokens limits the structured response length.
	MaxTokens int

	// Timeout bounds a resolution round trip.
	Timeout time.Duration
}

// applyDefaults fills unset fields.
func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	if c.Model == "" {
		c.Model = "gemini-1.5-flash"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 512
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Resolver sends utterances to the cloud model.
type Resolver struct {
	config Config
	client *http.Client
}

// New creates a remote resolver.
func New(cfg Config) *Resolver {
	cfg.applyDefaults()
	return &Resolver{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Resolve sends the utterance to the cloud model and parses the structured
// reply. The call is bounded by the resolver timeout and by ctx: session
// teardown cancels an in-flight request, whose eventual result is discarded.
func (r *Resolver) Resolve(ctx context.Context, text string) (types.Resolution, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	reqBody := geminiGenerateRequest{
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: systemPrompt}},
		},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: text}}},
		},
	}
	reqBody.GenerationConfig.MaxOutputTokens = r.config.MaxTokens
	reqBody.GenerationConfig.Temperature = 0 // deterministic structured output

	body, err := json.Marshal(reqBody)
	if err != nil {
		return types.Resolution{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", r.config.Endpoint, r.config.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return types.Resolution{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Key goes in a header, not the URL, to keep it out of logs.
	httpReq.Header.Set("x-goog-api-key", r.config.APIKey)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return types.Resolution{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return types.Resolution{}, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(errBody))
	}

	var geminiResp geminiGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return types.Resolution{}, fmt.Errorf("%w: decode response: %v", ErrMalformedResponse, err)
	}

	if len(geminiResp.Candidates) == 0 {
		return types.Resolution{}, fmt.Errorf("%w: no candidates", ErrMalformedResponse)
	}

	var content strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		content.WriteString(part.Text)
	}

	res, err := parseIntentPayload(content.String())
	if err != nil {
		return types.Resolution{}, err
	}

	res.Source = types.SourceRemote
	res.ResolvedAt = time.Now()
	res.Duration = time.Since(start)

	log.Debug().
		Str("intent", res.Intent).
		Str("action", res.Action).
		Float64("confidence", res.Confidence).
		Dur("duration", res.Duration).
		Msg("remote resolution")

	return res, nil
}

// intentPayload is the JSON shape the model is prompted to return.
type intentPayload struct {
	Intent     string            `json:"intent"`
	Action     string            `json:"action"`
	Parameters map[string]string `json:"parameters"`
	Confidence *float64          `json:"confidence"`
}

// parseIntentPayload validates the model's reply against the expected shape.
// Models wrap JSON in markdown fences often enough that stripping them is
// part of the contract.
func parseIntentPayload(raw string) (types.Resolution, error) {
	raw = stripCodeFence(raw)

	var payload intentPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return types.Resolution{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if payload.Intent == "" {
		return types.Resolution{}, fmt.Errorf("%w: missing intent", ErrMalformedResponse)
	}
	if payload.Confidence == nil {
		return types.Resolution{}, fmt.Errorf("%w: missing confidence", ErrMalformedResponse)
	}
	if math.IsNaN(*payload.Confidence) || math.IsInf(*payload.Confidence, 0) {
		return types.Resolution{}, fmt.Errorf("%w: confidence not a finite number", ErrMalformedResponse)
	}
	if payload.Intent != types.IntentUnknown && payload.Action == "" {
		return types.Resolution{}, fmt.Errorf("%w: missing action for intent %q", ErrMalformedResponse, payload.Intent)
	}
	if !types.IsKnownIntent(payload.Intent) {
		return types.Resolution{}, fmt.Errorf("%w: unknown intent %q", ErrMalformedResponse, payload.Intent)
	}

	return types.Resolution{
		Intent:     payload.Intent,
		Action:     payload.Action,
		Parameters: payload.Parameters,
		// Clamped defensively even on successful parse.
		Confidence: types.ClampConfidence(*payload.Confidence),
	}, nil
}

// stripCodeFence removes a surrounding ```json … ``` block, if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Gemini API types.
type geminiGenerateRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}
