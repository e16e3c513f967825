package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"viaductecho/internal/config"
	"viaductecho/internal/domain"
	"viaductecho/internal/ports"
	"viaductecho/internal/retry"
)

const (
	skiddlePageSize  = 100 // API maximum
	skiddleOffsetCap = 1000
	skiddleDateOnly  = "2006-01-02"
)

// SkiddleSource queries the Skiddle events API bounded by a lat/lon center
// and radius. The API already supplies full event detail, so Extract is a
// no-op passthrough of the description.
type SkiddleSource struct {
	name    string
	baseURL string
	cfg     config.SkiddleConfig
	client  *http.Client
	policy  retry.Policy
	logger  *slog.Logger
	now     func() time.Time
}

var _ ports.Source = (*SkiddleSource)(nil)

// NewSkiddleSource wires the API credentials and geo bounds from config.
func NewSkiddleSource(name, baseURL string, cfg config.SkiddleConfig, client *http.Client, logger *slog.Logger) *SkiddleSource {
	return &SkiddleSource{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		cfg:     cfg,
		client:  client,
		policy:  retry.Default,
		logger:  logger,
		now:     time.Now,
	}
}

// Name identifies the source in config and run reports.
func (s *SkiddleSource) Name() string {
	return s.name
}

type skiddleEvent struct {
	ID          json.Number `json:"id"`
	EventName   string      `json:"eventname"`
	Description string      `json:"description"`
	Link        string      `json:"link"`
	Date        string      `json:"date"`
	EntryPrice  string      `json:"entryprice"`
	ImageURL    string      `json:"largeimageurl"`
	Venue       struct {
		Name     string `json:"name"`
		Town     string `json:"town"`
		Postcode string `json:"postcode"`
	} `json:"venue"`
}

type skiddlePage struct {
	Results []skiddleEvent `json:"results"`
}

// Fetch walks the paginated search endpoint until a short page or the safety
// cap, mapping events to candidates.
func (s *SkiddleSource) Fetch(ctx context.Context) ([]domain.Candidate, error) {
	if s.cfg.APIKey == "" {
		return nil, fmt.Errorf("skiddle source %s: api key not configured", s.name)
	}

	minDate := s.now().Format(skiddleDateOnly)
	maxDate := s.now().AddDate(0, 0, s.cfg.DaysAhead).Format(skiddleDateOnly)

	var candidates []domain.Candidate
	for offset := 0; offset < skiddleOffsetCap; offset += skiddlePageSize {
		page, err := s.fetchPage(ctx, minDate, maxDate, offset)
		if err != nil {
			return nil, fmt.Errorf("fetch events %s (offset %d): %w", s.name, offset, err)
		}
		if len(page.Results) == 0 {
			break
		}

		for _, event := range page.Results {
			candidate, ok := mapEvent(event, s.name)
			if !ok {
				continue
			}
			candidates = append(candidates, candidate)
		}

		if len(page.Results) < skiddlePageSize {
			break
		}
	}

	if s.logger != nil {
		s.logger.Info("events fetched", "source", s.name, "items", len(candidates))
	}
	return candidates, nil
}

// Extract is a no-op: the API response already carries the full description,
// so it is returned as the extracted body along with the event image.
func (s *SkiddleSource) Extract(_ context.Context, candidate domain.Candidate) (domain.Extraction, error) {
	return domain.Extraction{Text: candidate.Summary}, nil
}

func (s *SkiddleSource) fetchPage(ctx context.Context, minDate, maxDate string, offset int) (skiddlePage, error) {
	params := url.Values{}
	params.Set("api_key", s.cfg.APIKey)
	params.Set("latitude", strconv.FormatFloat(s.cfg.Latitude, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(s.cfg.Longitude, 'f', 4, 64))
	params.Set("radius", strconv.Itoa(s.cfg.RadiusMiles))
	params.Set("minDate", minDate)
	params.Set("maxDate", maxDate)
	params.Set("limit", strconv.Itoa(skiddlePageSize))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("description", "1")

	endpoint := fmt.Sprintf("%s/events/search/?%s", s.baseURL, params.Encode())

	var page skiddlePage
	err := s.policy.Do(ctx, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if reqErr != nil {
			return retry.Permanent(fmt.Errorf("build request: %w", reqErr))
		}

		resp, doErr := s.client.Do(req)
		if doErr != nil {
			return fmt.Errorf("request events: %w", doErr)
		}
		defer resp.Body.Close()

		if checkErr := retry.CheckStatus(resp); checkErr != nil {
			return checkErr
		}

		if decodeErr := json.NewDecoder(resp.Body).Decode(&page); decodeErr != nil {
			return retry.Permanent(fmt.Errorf("decode events: %w", decodeErr))
		}
		return nil
	})

	return page, err
}

// mapEvent flattens an API event into a candidate. Venue and price details
// are folded into the summary so they survive the shared Record shape.
func mapEvent(event skiddleEvent, sourceName string) (domain.Candidate, bool) {
	if event.Link == "" || event.EventName == "" {
		return domain.Candidate{}, false
	}

	var publishedAt *time.Time
	if event.Date != "" {
		if parsed, err := time.Parse(skiddleDateOnly, event.Date); err == nil {
			publishedAt = &parsed
		}
	}

	var parts []string
	if event.Description != "" {
		parts = append(parts, event.Description)
	}
	if event.Venue.Name != "" {
		venue := event.Venue.Name
		if event.Venue.Town != "" {
			venue += ", " + event.Venue.Town
		}
		parts = append(parts, "Venue: "+venue)
	}
	if event.EntryPrice != "" {
		parts = append(parts, "Entry: "+event.EntryPrice)
	}

	return domain.Candidate{
		Title:       event.EventName,
		Link:        event.Link,
		Summary:     strings.Join(parts, "\n\n"),
		Source:      sourceName,
		SourceType:  "Events API",
		PublishedAt: publishedAt,
	}, true
}
