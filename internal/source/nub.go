package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"

	"viaductecho/internal/domain"
	"viaductecho/internal/ports"
	"viaductecho/internal/retry"
)

const nubDateLayout = "2006-01-02 15:04:05"

// Nub News embeds raw CMS output in its ld+json block; strip control
// characters before unmarshalling.
var controlChars = regexp.MustCompile(`[\x00-\x1F\x7F]`)

// NubSource scrapes the Nub News index page, enumerating articles from the
// embedded structured-data block rather than the rendered DOM.
type NubSource struct {
	name      string
	indexURL  string
	client    *http.Client
	extractor ports.Extractor
	policy    retry.Policy
	logger    *slog.Logger
}

var _ ports.Source = (*NubSource)(nil)

// NewNubSource wires a bounded HTTP client and the page extractor.
func NewNubSource(name, indexURL string, client *http.Client, extractor ports.Extractor, logger *slog.Logger) *NubSource {
	return &NubSource{
		name:      name,
		indexURL:  indexURL,
		client:    client,
		extractor: extractor,
		policy:    retry.Default,
		logger:    logger,
	}
}

// Name identifies the source in config and run reports.
func (s *NubSource) Name() string {
	return s.name
}

// Fetch downloads the index page and parses the ld+json article listing.
func (s *NubSource) Fetch(ctx context.Context) ([]domain.Candidate, error) {
	var doc *goquery.Document

	err := s.policy.Do(ctx, func() error {
		fetched, fetchErr := fetchDocument(ctx, s.client, s.indexURL)
		if fetchErr != nil {
			return fetchErr
		}
		doc = fetched
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch index %s: %w", s.name, err)
	}

	raw := doc.Find(`script[type="application/ld+json"]`).First().Text()
	if raw == "" {
		return nil, nil
	}

	var entries []struct {
		Headline      string `json:"headline"`
		URL           string `json:"url"`
		DatePublished string `json:"datePublished"`
	}
	cleaned := controlChars.ReplaceAllString(raw, " ")
	if err := json.Unmarshal([]byte(cleaned), &entries); err != nil {
		return nil, fmt.Errorf("parse ld+json for %s: %w", s.name, err)
	}

	candidates := make([]domain.Candidate, 0, len(entries))
	for _, entry := range entries {
		if entry.URL == "" || entry.Headline == "" {
			continue
		}

		var publishedAt *time.Time
		if parsed, parseErr := time.Parse(nubDateLayout, entry.DatePublished); parseErr == nil {
			publishedAt = &parsed
		}

		candidates = append(candidates, domain.Candidate{
			Title: entry.Headline,
			Link:  entry.URL,
			// The listing carries no excerpt; the headline stands in so the
			// relevance filter has text to match.
			Summary:     entry.Headline,
			Source:      s.name,
			SourceType:  "Web scraping",
			PublishedAt: publishedAt,
		})
	}

	if s.logger != nil {
		s.logger.Info("index scraped", "source", s.name, "items", len(candidates))
	}
	return candidates, nil
}

// Extract delegates to the per-source page extractor.
func (s *NubSource) Extract(ctx context.Context, candidate domain.Candidate) (domain.Extraction, error) {
	return s.extractor.Extract(ctx, candidate)
}

// fetchDocument downloads and parses an HTML page. Non-2xx statuses are
// classified for the retry policy.
func fetchDocument(ctx context.Context, client *http.Client, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ViaductBot/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if err := retry.CheckStatus(resp); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("parse document: %w", err))
	}

	return doc, nil
}
