package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viaductecho/internal/config"
	"viaductecho/internal/domain"
)

func skiddleTestConfig() config.SkiddleConfig {
	return config.SkiddleConfig{
		APIKey:      "test-key",
		Latitude:    53.4084,
		Longitude:   -2.1496,
		RadiusMiles: 10,
		DaysAhead:   30,
	}
}

func TestSkiddleSourceFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "10", r.URL.Query().Get("radius"))

		_, _ = w.Write([]byte(`{"results": [
			{"id": 1, "eventname": "Stockport Beer Festival",
			 "description": "Two days of local ales.",
			 "link": "https://www.skiddle.com/e/1",
			 "date": "2026-09-05",
			 "entryprice": "£12.50",
			 "venue": {"name": "Market Hall", "town": "Stockport", "postcode": "SK1 1EU"}},
			{"id": 2, "eventname": "", "link": "https://www.skiddle.com/e/2"}
		]}`))
	}))
	defer server.Close()

	src := NewSkiddleSource("Skiddle", server.URL, skiddleTestConfig(), server.Client(), nil)

	candidates, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1, "events without a name are dropped")

	c := candidates[0]
	assert.Equal(t, "Stockport Beer Festival", c.Title)
	assert.Equal(t, "https://www.skiddle.com/e/1", c.Link)
	assert.Equal(t, "Events API", c.SourceType)
	assert.Contains(t, c.Summary, "Two days of local ales.")
	assert.Contains(t, c.Summary, "Venue: Market Hall, Stockport")
	assert.Contains(t, c.Summary, "Entry: £12.50")
	require.NotNil(t, c.PublishedAt)
	assert.Equal(t, 5, c.PublishedAt.Day())
}

func TestSkiddleSourcePagination(t *testing.T) {
	t.Parallel()

	pages := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		var results []map[string]any
		count := skiddlePageSize
		if offset >= skiddlePageSize {
			count = 3 // short page ends the walk
		}
		for i := 0; i < count; i++ {
			results = append(results, map[string]any{
				"id":        offset + i,
				"eventname": fmt.Sprintf("Event %d", offset+i),
				"link":      fmt.Sprintf("https://www.skiddle.com/e/%d", offset+i),
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer server.Close()

	src := NewSkiddleSource("Skiddle", server.URL, skiddleTestConfig(), server.Client(), nil)

	candidates, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	assert.Len(t, candidates, skiddlePageSize+3)
}

func TestSkiddleSourceRequiresAPIKey(t *testing.T) {
	t.Parallel()

	cfg := skiddleTestConfig()
	cfg.APIKey = ""
	src := NewSkiddleSource("Skiddle", "https://www.skiddle.com/api/v1", cfg, http.DefaultClient, nil)

	_, err := src.Fetch(context.Background())
	require.Error(t, err)
}

func TestSkiddleExtractIsNoOp(t *testing.T) {
	t.Parallel()

	src := NewSkiddleSource("Skiddle", "https://www.skiddle.com/api/v1", skiddleTestConfig(), http.DefaultClient, nil)

	candidate := domain.Candidate{Summary: "Full event detail from the API."}
	extraction, err := src.Extract(context.Background(), candidate)
	require.NoError(t, err)
	assert.Equal(t, candidate.Summary, extraction.Text)
}
