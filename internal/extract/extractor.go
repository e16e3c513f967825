package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"viaductecho/internal/domain"
	"viaductecho/internal/ports"
	"viaductecho/internal/retry"
)

// roundupTitle matches digest/aggregate headlines whose body is a list of
// links to other articles rather than substantive content. Summarizing those
// produces a useless "nothing to summarize" AI call, so they are rejected
// before any page fetch.
var roundupTitle = regexp.MustCompile(`(?i)(what you need to know|news briefing|weekly round-?up|in the headlines|top stories this week)`)

// Extractor downloads an article page and dispatches to a source-specific
// parser. Extractions below the confidence threshold come back with empty
// text; callers must check Extraction.Confident before summarizing.
type Extractor struct {
	client *http.Client
	policy retry.Policy
	logger *slog.Logger
}

var _ ports.Extractor = (*Extractor)(nil)

// New wires a bounded HTTP client.
func New(client *http.Client, logger *slog.Logger) *Extractor {
	return &Extractor{client: client, policy: retry.Default, logger: logger}
}

// Extract fetches the candidate's page and pulls out plain body text plus
// the og:image URL. Roundup articles and below-threshold extractions return
// an unconfident result without error.
func (e *Extractor) Extract(ctx context.Context, candidate domain.Candidate) (domain.Extraction, error) {
	if roundupTitle.MatchString(candidate.Title) {
		if e.logger != nil {
			e.logger.Info("skipping roundup article", "title", candidate.Title)
		}
		return domain.Extraction{}, nil
	}

	var doc *goquery.Document
	err := e.policy.Do(ctx, func() error {
		fetched, fetchErr := e.fetchDocument(ctx, candidate.Link)
		if fetchErr != nil {
			return fetchErr
		}
		doc = fetched
		return nil
	})
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("extract %s: %w", candidate.Link, err)
	}

	extraction := domain.Extraction{
		Text:     bodyText(doc, candidate.Link),
		ImageURL: ogImage(doc),
	}

	if !extraction.Confident() {
		if e.logger != nil {
			e.logger.Warn("low-confidence extraction",
				"link", candidate.Link, "length", len(extraction.Text))
		}
		// Below threshold is a failed extraction: clear the text so a
		// partial fragment never masquerades as article content.
		extraction.Text = ""
	}

	return extraction, nil
}

func (e *Extractor) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if err := retry.CheckStatus(resp); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("parse page: %w", err))
	}
	return doc, nil
}

// bodyText dispatches on the link host: markup structure varies per source.
func bodyText(doc *goquery.Document, link string) string {
	switch {
	case strings.Contains(link, "bbc.co.uk") || strings.Contains(link, "bbc.com"):
		return bbcBody(doc)
	case strings.Contains(link, "manchestereveningnews.co.uk"):
		return menBody(doc)
	case strings.Contains(link, "nub.news"):
		return nubBody(doc)
	default:
		return genericBody(doc)
	}
}

// bbcBody joins the paragraphs of BBC's text-block components.
func bbcBody(doc *goquery.Document) string {
	var paragraphs []string
	doc.Find(`div[data-component="text-block"]`).Each(func(_ int, block *goquery.Selection) {
		text := strings.TrimSpace(block.Find("p").First().Text())
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	return strings.Join(paragraphs, "\n\n")
}

var htmlTags = regexp.MustCompile(`<[^>]+>`)

// menBody reads the articleBody field of MEN's ld+json metadata, which is
// more reliable than their ad-laden DOM.
func menBody(doc *goquery.Document) string {
	raw := doc.Find(`script[type="application/ld+json"]`).First().Text()
	if raw == "" {
		return ""
	}

	var payload struct {
		ArticleBody string `json:"articleBody"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		// Some pages wrap the object in an array.
		var list []struct {
			ArticleBody string `json:"articleBody"`
		}
		if err := json.Unmarshal([]byte(raw), &list); err != nil || len(list) == 0 {
			return ""
		}
		payload.ArticleBody = list[0].ArticleBody
	}

	body := strings.ReplaceAll(payload.ArticleBody, `\"`, `"`)
	body = strings.ReplaceAll(body, `\n`, "\n")
	return strings.TrimSpace(htmlTags.ReplaceAllString(body, ""))
}

func nubBody(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("div.prose").First().Text())
}

// genericBody is the fallback for unknown hosts: first five paragraphs.
func genericBody(doc *goquery.Document) string {
	var paragraphs []string
	doc.Find("p").EachWithBreak(func(i int, p *goquery.Selection) bool {
		if i >= 5 {
			return false
		}
		text := strings.TrimSpace(p.Text())
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
		return true
	})
	return strings.Join(paragraphs, "\n\n")
}

func ogImage(doc *goquery.Document) string {
	image, _ := doc.Find(`meta[property="og:image"]`).First().Attr("content")
	return image
}
