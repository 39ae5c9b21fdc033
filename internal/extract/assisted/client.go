// Package assisted implements the extraction strategy that delegates field
// parsing to an external chat-completion service, walking a ranked list of
// candidate models and falling back transparently when one is unavailable.
package assisted

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/painel-fiscal/nfse-importer/internal/common"
	"github.com/painel-fiscal/nfse-importer/internal/entity"
)

const defaultBaseURL = "https://api.openai.com/v1"

// fallback candidates when neither an explicit model nor an environment
// default resolves. Local endpoints get the self-hosted models first.
var (
	hostedFallbacks = []string{"gpt-4o-mini-fast", "gpt-4o-mini", "gpt-3.5-turbo"}
	localFallbacks  = []string{"llama3.2", "mistral:7b-instruct"}
)

type Config struct {
	APIKey   string
	Model    string // explicit override, highest priority
	EnvModel string // environment default
	BaseURL  string // custom completion endpoint; empty means the hosted API
	Timeout  time.Duration
}

type Client struct {
	cfg        Config
	candidates []string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg:        cfg,
		candidates: modelCandidates(cfg),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// modelCandidates ranks candidate models: explicit override, environment
// default, then the hard-coded fallback list, deduplicated.
func modelCandidates(cfg Config) []string {
	defaults := hostedFallbacks
	if cfg.BaseURL != "" {
		defaults = append(append([]string{}, localFallbacks...), hostedFallbacks...)
	}

	var out []string
	seen := make(map[string]struct{})
	for _, m := range append([]string{cfg.Model, cfg.EnvModel}, defaults...) {
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	if len(out) == 0 {
		out = []string{"gpt-4o-mini"}
	}
	return out
}

// Candidates exposes the ranked model list for logging and tests.
func (c *Client) Candidates() []string {
	return append([]string{}, c.candidates...)
}

// Extract implements extract.Strategy via the completion service.
func (c *Client) Extract(ctx context.Context, text, fileName string) (*entity.Invoice, error) {
	rid := uuid.New().String()
	start := time.Now()

	clean := FilterRelevant(text)
	prompt := buildUserPrompt(clean, fileName)

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"file", fileName,
		"text_len", len(text),
		"prompt_len", len(prompt),
		"candidates", len(c.candidates),
	)

	content, model, err := c.requestCompletion(ctx, rid, prompt)
	if err != nil {
		return nil, err
	}

	raw := []byte(stripFences(content))
	schema := BuildInvoiceJSONSchema()
	if err := ValidateJSONAgainstSchema(schema, raw); err != nil {
		c.logger.Error("llm.extract.schema_validation_failed",
			"req_id", rid, "model", model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("completion response rejected: %w", err)
	}

	var payload invoicePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal completion response: %w", err)
	}

	inv, err := payload.toInvoice(fileName)
	if err != nil {
		return nil, err
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"model", model,
		"access_key", inv.AccessKey,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return inv, nil
}

// requestCompletion walks the candidate list. A model-unavailable error
// advances to the next candidate; an invalid credential aborts immediately;
// anything else is a hard failure for this document.
func (c *Client) requestCompletion(ctx context.Context, rid, prompt string) (content, model string, err error) {
	body := map[string]any{
		"temperature": 0,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
	}

	var lastErr error
	for _, candidate := range c.candidates {
		body["model"] = candidate
		content, err := c.post(ctx, body)
		if err == nil {
			if candidate != c.candidates[0] {
				c.logger.Warn("llm.model.fallback", "req_id", rid, "model", candidate)
			}
			return content, candidate, nil
		}
		if errors.Is(err, common.ErrInvalidCredential) {
			return "", "", common.NewAppError("CONFIG_ERROR",
				"invalid completion-service API key; update OPENAI_API_KEY or the custom endpoint", err)
		}
		if !errors.Is(err, common.ErrModelUnavailable) {
			return "", "", err
		}
		c.logger.Warn("llm.model.unavailable", "req_id", rid, "model", candidate, "error", err)
		lastErr = err
	}
	if lastErr != nil {
		return "", "", fmt.Errorf("all model candidates exhausted: %w", lastErr)
	}
	return "", "", fmt.Errorf("no model candidate available")
}

func (c *Client) post(ctx context.Context, body map[string]any) (string, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	base := c.cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	endpoint := strings.TrimRight(base, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion http error: %w", err)
	}
	defer func(rc io.ReadCloser) {
		if cerr := rc.Close(); cerr != nil {
			c.logger.Warn("completion response body close error", "error", cerr)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyAPIError(resp.StatusCode, raw)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}
	return cc.Choices[0].Message.Content, nil
}

// classifyAPIError maps a completion-service error payload onto the local
// taxonomy: credential problems, unavailable models, everything else.
func classifyAPIError(status int, raw []byte) error {
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(raw, &payload)

	code := payload.Error.Code
	message := strings.ToLower(payload.Error.Message)

	switch {
	case code == "invalid_api_key",
		strings.Contains(message, "invalid api key"),
		strings.Contains(message, "incorrect api key"):
		return fmt.Errorf("%w: status %d", common.ErrInvalidCredential, status)
	case code == "model_not_found",
		strings.Contains(message, "model_not_found"),
		strings.Contains(message, "does not exist"):
		return fmt.Errorf("%w: status %d", common.ErrModelUnavailable, status)
	default:
		return fmt.Errorf("completion service status %d: %s", status, truncate(string(raw), 512))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
