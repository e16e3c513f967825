package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nubIndexPage = `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
[
  {"headline": "Stockport bridge repairs announced",
   "url": "https://stockport.nub.news/news/bridge-repairs",
   "datePublished": "2026-08-20 09:30:00"},
  {"headline": "Viaduct lights switched on",
   "url": "https://stockport.nub.news/news/viaduct-lights",
   "datePublished": "not a date"},
  {"headline": "", "url": "https://stockport.nub.news/news/empty"}
]
</script>
</head><body></body></html>`

func TestNubSourceFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(nubIndexPage))
	}))
	defer server.Close()

	src := NewNubSource("Stockport Nub News", server.URL, server.Client(), nil, nil)

	candidates, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 2, "entries without a headline are dropped")

	first := candidates[0]
	assert.Equal(t, "Stockport bridge repairs announced", first.Title)
	assert.Equal(t, "https://stockport.nub.news/news/bridge-repairs", first.Link)
	assert.Equal(t, first.Title, first.Summary, "headline stands in for the missing excerpt")
	assert.Equal(t, "Web scraping", first.SourceType)
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, 20, first.PublishedAt.Day())

	assert.Nil(t, candidates[1].PublishedAt, "unparseable dates are left unset")
}

func TestNubSourceScrubsControlChars(t *testing.T) {
	t.Parallel()

	page := "<html><head><script type=\"application/ld+json\">" +
		"[{\"headline\": \"Raw\x0bCMS output\", \"url\": \"https://stockport.nub.news/news/raw\"}]" +
		"</script></head></html>"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	src := NewNubSource("Stockport Nub News", server.URL, server.Client(), nil, nil)

	candidates, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Raw CMS output", candidates[0].Title)
}

func TestNubSourceMissingBlock(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>no structured data</body></html>"))
	}))
	defer server.Close()

	src := NewNubSource("Stockport Nub News", server.URL, server.Client(), nil, nil)

	candidates, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
