package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mmcdole/gofeed"

	"viaductecho/internal/domain"
	"viaductecho/internal/ports"
	"viaductecho/internal/retry"
)

// FeedSource fetches candidates from a single RSS/Atom feed. Full-content
// extraction is delegated to the shared page extractor.
type FeedSource struct {
	name      string
	feedURL   string
	client    *http.Client
	extractor ports.Extractor
	policy    retry.Policy
	logger    *slog.Logger
}

var _ ports.Source = (*FeedSource)(nil)

// NewFeedSource wires a bounded HTTP client and the page extractor.
func NewFeedSource(name, feedURL string, client *http.Client, extractor ports.Extractor, logger *slog.Logger) *FeedSource {
	return &FeedSource{
		name:      name,
		feedURL:   feedURL,
		client:    client,
		extractor: extractor,
		policy:    retry.Default,
		logger:    logger,
	}
}

// Name identifies the source in config and run reports.
func (s *FeedSource) Name() string {
	return s.name
}

// Fetch parses the feed and maps entries to candidates. A malformed feed is
// a recoverable per-source error: the caller gets an empty slice plus the
// error and moves on to the next source.
func (s *FeedSource) Fetch(ctx context.Context) ([]domain.Candidate, error) {
	var feed *gofeed.Feed

	err := s.policy.Do(ctx, func() error {
		parser := gofeed.NewParser()
		parser.Client = s.client

		parsed, parseErr := parser.ParseURLWithContext(s.feedURL, ctx)
		if parseErr != nil {
			return classifyFeedError(parseErr)
		}
		feed = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", s.name, err)
	}

	candidates := make([]domain.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || item.Link == "" {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			Title:       item.Title,
			Link:        item.Link,
			Summary:     item.Description,
			Source:      s.name,
			SourceType:  "RSS News",
			PublishedAt: item.PublishedParsed,
		})
	}

	if s.logger != nil {
		s.logger.Info("feed fetched", "source", s.name, "items", len(candidates))
	}
	return candidates, nil
}

// Extract delegates to the per-source page extractor.
func (s *FeedSource) Extract(ctx context.Context, candidate domain.Candidate) (domain.Extraction, error) {
	return s.extractor.Extract(ctx, candidate)
}

// classifyFeedError keeps transient HTTP failures retryable and treats parse
// failures (malformed XML, unexpected payload) as permanent input errors.
func classifyFeedError(err error) error {
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		if retry.RetryableStatus(httpErr.StatusCode) {
			return err
		}
		return retry.Permanent(err)
	}
	if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		return retry.Permanent(err)
	}
	return err
}
