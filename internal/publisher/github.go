package publisher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"viaductecho/internal/config"
	"viaductecho/internal/domain"
	"viaductecho/internal/ports"
)

const (
	githubAPIBase = "https://api.github.com"
	maxSlugLength = 100
)

// GitHub renders a record into a Jekyll post and pushes it through the
// contents API. Rendering is deterministic and the file path is stable, so a
// repeated publish of the same record overwrites the same file.
type GitHub struct {
	apiBase string
	token   string
	repo    string
	branch  string
	author  string
	client  *http.Client
	logger  *slog.Logger
}

var _ ports.Publisher = (*GitHub)(nil)

// NewGitHub builds a publisher from configuration.
func NewGitHub(cfg config.GitHubConfig, client *http.Client, logger *slog.Logger) *GitHub {
	return &GitHub{
		apiBase: githubAPIBase,
		token:   cfg.Token,
		repo:    cfg.Repo,
		branch:  cfg.Branch,
		author:  cfg.Author,
		client:  client,
		logger:  logger,
	}
}

// Publish pushes the rendered post. A failure leaves the record unpublished;
// the next scheduled run retries it via the publish sweep, never this one.
func (g *GitHub) Publish(ctx context.Context, rec domain.Record) error {
	if g.token == "" || g.repo == "" {
		return fmt.Errorf("github publisher misconfigured")
	}

	path := g.PostPath(rec)
	content := g.RenderPost(rec)

	payload := map[string]any{
		"message": "Auto-post: " + rec.Title,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"branch":  g.branch,
	}

	// If the file already exists (a crash between push and state update, or
	// a re-run), the contents API requires its blob sha to overwrite it.
	if sha, err := g.existingSHA(ctx, path); err != nil {
		return fmt.Errorf("check existing post: %w", err)
	} else if sha != "" {
		payload["sha"] = sha
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal contents payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, g.contentsURL(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("push post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("github publish failed: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	if g.logger != nil {
		g.logger.Info("published", "title", rec.Title, "path", path)
	}
	return nil
}

// existingSHA returns the blob sha of the post if it is already in the repo,
// or "" if the path is absent.
func (g *GitHub) existingSHA(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.contentsURL(path)+"?ref="+g.branch, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get contents: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get contents: %s", resp.Status)
	}

	var contents struct {
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&contents); err != nil {
		return "", fmt.Errorf("decode contents: %w", err)
	}
	return contents.SHA, nil
}

func (g *GitHub) contentsURL(path string) string {
	return fmt.Sprintf("%s/repos/%s/contents/%s", g.apiBase, g.repo, path)
}

func (g *GitHub) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "token "+g.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
}

// PostPath returns the stable repo path for the record's post.
func (g *GitHub) PostPath(rec domain.Record) string {
	return fmt.Sprintf("_posts/%s-%s.md", postDate(rec).Format("2006-01-02"), Slug(rec.Title))
}

// RenderPost produces the Jekyll markdown for the record. The AI summary is
// preferred; records processed without one fall back to the original feed
// summary.
func (g *GitHub) RenderPost(rec domain.Record) string {
	summary := rec.AISummary
	if strings.TrimSpace(summary) == "" {
		summary = rec.Summary
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("layout: post\n")
	fmt.Fprintf(&b, "title: %q\n", rec.Title)
	fmt.Fprintf(&b, "author: %s\n", g.author)
	b.WriteString("categories: news\n")
	fmt.Fprintf(&b, "image: %s\n", rec.ImageURL)
	b.WriteString("---\n")
	b.WriteString(summary)
	b.WriteString("\n\n")
	if rec.ImageURL != "" {
		fmt.Fprintf(&b, "![Article Image](%s)\n\n", rec.ImageURL)
	}
	fmt.Fprintf(&b, "[Read the full article at %s](%s)\n\n---\n", rec.Source, rec.Link)
	return b.String()
}

func postDate(rec domain.Record) time.Time {
	if rec.PublishedAt != nil {
		return *rec.PublishedAt
	}
	if !rec.CreatedAt.IsZero() {
		return rec.CreatedAt
	}
	return time.Now()
}

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapse = regexp.MustCompile(`[-\s]+`)
)

// Slug builds a URL-safe slug from a title, capped for filesystem sanity.
func Slug(title string) string {
	slug := slugStrip.ReplaceAllString(strings.ToLower(title), "")
	slug = slugCollapse.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLength {
		slug = strings.Trim(slug[:maxSlugLength], "-")
	}
	return slug
}
