// Package llm implements the Generator and Refiner ports over an
// OpenAI-compatible chat-completions endpoint.
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

	"golang.org/x/time/rate"

	"sqlpilot/internal/domain"
)

const (
	defaultTimeout = 60 * time.Second
	defaultRPS     = 2
	defaultBurst   = 4
)

// Config holds connection settings for the completion endpoint.
type Config struct {
	BaseURL string // e.g. https://api.openai.com/v1
	APIKey  string
	Model   string
	Timeout time.Duration // per-request timeout (default 60s)

	// Client-side rate limit across Generate and Refine calls.
	RPS   float64
	Burst int
}

// Client is a chat-completions client implementing domain.Generator and
// domain.Refiner. It holds no per-question state; concurrent use from
// batch workers is safe.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	httpc   *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm base url is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RPS <= 0 {
		cfg.RPS = defaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		logger:  logger,
	}, nil
}

var _ domain.Generator = (*Client)(nil)
var _ domain.Refiner = (*Client)(nil)

// Generate produces a candidate SQL statement for the question.
func (c *Client) Generate(ctx context.Context, question, systemInstruction string) (string, error) {
	reply, err := c.complete(ctx, systemInstruction, question)
	if err != nil {
		return "", domain.ErrGeneration("generate sql: %v", err)
	}
	sqlText := stripFences(reply)
	if sqlText == "" {
		return "", domain.ErrGeneration("generate sql: model returned an empty completion")
	}
	return sqlText, nil
}

const refineInstruction = `You are a SQL repair assistant. The SQL statement below failed against the target database. Using the original question and the database error, produce a corrected statement. Reply with a JSON object: {"sql": "<corrected statement>", "confidence": <0.0-1.0>}.`

// Refine corrects a previously failed SQL candidate using the execution
// error. The model's self-reported confidence is carried through when it
// supplies one.
func (c *Client) Refine(ctx context.Context, failedSQL, question, executionError string) (*domain.Refinement, error) {
	prompt := fmt.Sprintf("Question: %s\n\nFailed SQL:\n%s\n\nDatabase error:\n%s", question, failedSQL, executionError)

	reply, err := c.complete(ctx, refineInstruction, prompt)
	if err != nil {
		return nil, domain.ErrRefinement("refine sql: %v", err)
	}

	refinement := parseRefinement(reply)
	if refinement.SQL == "" {
		return nil, domain.ErrRefinement("refine sql: model returned an empty completion")
	}
	return refinement, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// complete performs one chat-completion round trip and returns the first
// choice's content.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	c.logger.Debug("completion round trip",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode completion response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("completion endpoint: %s (status %d)", parsed.Error.Message, resp.StatusCode)
		}
		return "", fmt.Errorf("completion endpoint returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response carried no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// parseRefinement reads the refiner's JSON reply. Models occasionally
// ignore the JSON instruction, in which case the whole reply is taken as
// the corrected SQL with no confidence.
func parseRefinement(reply string) *domain.Refinement {
	cleaned := stripFences(reply)

	var structured struct {
		SQL        string   `json:"sql"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleaned), &structured); err == nil && structured.SQL != "" {
		conf := structured.Confidence
		if conf != nil && (*conf < 0 || *conf > 1) {
			conf = nil
		}
		return &domain.Refinement{SQL: strings.TrimSpace(structured.SQL), Confidence: conf}
	}
	return &domain.Refinement{SQL: cleaned}
}

// stripFences removes a surrounding markdown code fence from a completion.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop a language tag like "sql" or "json" on the fence line.
		first := strings.TrimSpace(s[:i])
		if len(first) <= 10 && !strings.ContainsAny(first, " \t") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
