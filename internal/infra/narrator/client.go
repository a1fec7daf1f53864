// Package narrator produces the flavor text shown next to game events.
//
// Client talks to any OpenAI-compatible chat completions endpoint with one
// fixed prompt per call. Static answers from canned templates and never
// fails; it is used when no endpoint is configured.
package narrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tutu-network/rivals/internal/domain"
	"github.com/tutu-network/rivals/internal/infra/metrics"
)

// Config locates the completions endpoint.
type Config struct {
	BaseURL   string // e.g. http://localhost:11434; /v1/chat/completions is appended
	Model     string
	APIKey    string // sent as a bearer token when set
	MaxTokens int
}

// Client is an OpenAI-compatible narrator.
type Client struct {
	cfg    Config
	http   *http.Client
	tracer trace.Tracer
}

// NewClient creates a Client. A nil httpClient uses a client with a 30s
// timeout; callers bound individual calls through their context.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("narrator base url is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("narrator model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 80
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		tracer: otel.Tracer("github.com/tutu-network/rivals/internal/infra/narrator"),
	}, nil
}

// RivalReason explains in one sentence how a rival earned its XP.
func (c *Client) RivalReason(ctx context.Context, name string, behavior domain.RivalBehavior, xpGained float64) (string, error) {
	prompt := fmt.Sprintf(
		"Write one short, humorous sentence explaining how the rival %s gained %.0f XP today. "+
			"Their play style is %s; the reason should match it. Reply with the sentence only.",
		name, xpGained, behavior)
	return c.complete(ctx, "rival_reason", prompt)
}

// NotificationText writes a push-style nudge under 50 characters.
func (c *Client) NotificationText(ctx context.Context, streak int, rivalName string, rivalXP, userXP float64) (string, error) {
	prompt := fmt.Sprintf(
		"Write a single push notification for a daily quest game, under 50 characters, casual tone. "+
			"Player streak: %d days. Rival %s has %.0f XP; the player has %.0f XP. Reply with the message only.",
		streak, rivalName, rivalXP, userXP)
	return c.complete(ctx, "notification_text", prompt)
}

// AntiCheatJustification explains why a completion was blocked, or that it
// looks legitimate when checksPassed is true.
func (c *Client) AntiCheatJustification(ctx context.Context, userActions string, checksPassed bool) (string, error) {
	prompt := fmt.Sprintf(
		"A player tried to complete a task. User actions: %s Security checks passed: %t. "+
			"In two sentences or fewer, explain to the player why the completion was blocked, "+
			"or confirm the actions look legitimate if the checks passed.",
		userActions, checksPassed)
	return c.complete(ctx, "anti_cheat", prompt)
}

// ─── Wire ───────────────────────────────────────────────────────────────────

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = "You write flavor text for PokeQuest, a light-hearted daily quest game. Never use more than one sentence unless asked."

func (c *Client) complete(ctx context.Context, call, prompt string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "narrator."+call, trace.WithAttributes(attribute.String("model", c.cfg.Model)))
	defer span.End()
	start := time.Now()
	defer func() { metrics.NarratorLatency.Observe(time.Since(start).Seconds()) }()

	text, err := c.post(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}

func (c *Client) post(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0.9,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, err := io.ReadAll(io.LimitReader(res.Body, 4096))
		if err != nil {
			return "", fmt.Errorf("read chat error body: %w", err)
		}
		return "", fmt.Errorf("chat request status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}

	var payload chatResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	for _, ch := range payload.Choices {
		if text := cleanText(ch.Message.Content); text != "" {
			return text, nil
		}
	}
	return "", errors.New("chat response missing text")
}

// cleanText strips whitespace and the quotes models like to wrap answers in.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"“”")
	return strings.TrimSpace(s)
}

var _ domain.Narrator = (*Client)(nil)
