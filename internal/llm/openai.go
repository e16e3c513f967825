package llm

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

	"viaductecho/internal/config"
	"viaductecho/internal/ports"
	"viaductecho/internal/retry"
)

// ErrNothingToSummarize signals that the provider answered successfully but
// had no substantive input to work with. Retrying the same input yields the
// same answer, so this is permanent for the cycle; the defect is upstream in
// extraction.
var ErrNothingToSummarize = errors.New("provider reports nothing to summarize")

const maxSummaryTokens = 250

// Summarizer calls an OpenAI-compatible chat-completions endpoint.
type Summarizer struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
	policy       retry.Policy
	logger       *slog.Logger
}

var _ ports.Summarizer = (*Summarizer)(nil)

// NewSummarizer builds a client from configuration.
func NewSummarizer(cfg config.OpenAIConfig, client *http.Client, logger *slog.Logger) *Summarizer {
	return &Summarizer{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient:   client,
		policy:       retry.Default,
		logger:       logger,
	}
}

// Summarize posts the extracted text as a user message and returns the
// completion. Transient failures are retried; an explicit
// nothing-to-summarize answer is not.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	if s.apiKey == "" || s.endpoint == "" || s.model == "" {
		return "", fmt.Errorf("summarizer misconfigured")
	}

	var summary string
	err := s.policy.Do(ctx, func() error {
		result, callErr := s.complete(ctx, text)
		if callErr != nil {
			return callErr
		}
		summary = result
		return nil
	})
	if err != nil {
		return "", err
	}

	if s.logger != nil {
		s.logger.Info("summary generated", "length", len(summary))
	}
	return summary, nil
}

func (s *Summarizer) complete(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "system", "content": s.systemPrompt},
			{"role": "user", "content": text},
		},
		"max_tokens": maxSummaryTokens,
	})
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		statusErr := fmt.Errorf("completion error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
		if retry.RetryableStatus(resp.StatusCode) {
			return "", statusErr
		}
		return "", retry.Permanent(statusErr)
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", retry.Permanent(fmt.Errorf("decode completion: %w", err))
	}
	if len(completion.Choices) == 0 {
		return "", retry.Permanent(fmt.Errorf("completion has no choices"))
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if isNothingToSummarize(content) {
		return "", retry.Permanent(ErrNothingToSummarize)
	}

	return content, nil
}

// isNothingToSummarize detects the provider's semantic refusal: a successful
// response whose content says there was no input worth summarizing.
func isNothingToSummarize(content string) bool {
	if content == "" {
		return true
	}
	lowered := strings.ToLower(content)
	for _, marker := range []string{
		"nothing to summarize",
		"nothing to summarise",
		"no text provided",
		"no content provided",
		"there is no text",
	} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
