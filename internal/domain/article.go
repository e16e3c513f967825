package domain

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// Candidate is an unfiltered, unpersisted item fetched from a source.
type Candidate struct {
	Title       string
	Link        string
	Summary     string
	Source      string
	SourceType  string
	PublishedAt *time.Time
}

// URLHash returns the dedup key for the candidate's link.
func (c Candidate) URLHash() string {
	return HashLink(c.Link)
}

// HashLink computes the stable hash of a canonicalized URL. The existing
// schema stores md5 hexdigests, so the hash must match what the database
// already holds.
func HashLink(link string) string {
	link = strings.TrimSpace(link)
	link = strings.TrimSuffix(link, "/")
	sum := md5.Sum([]byte(link))
	return hex.EncodeToString(sum[:])
}

// PublishState tracks whether a record has been pushed to the static site.
type PublishState string

const (
	StateUnpublished PublishState = "unpublished"
	StatePublished   PublishState = "published"
)

// Record is the persisted form of a candidate plus processing results.
// Processed means extraction+summarization was attempted; it does not imply
// AISummary is set.
type Record struct {
	ID               int64
	Title            string
	Link             string
	Summary          string
	Source           string
	SourceType       string
	PublishedAt      *time.Time
	URLHash          string
	ExtractedContent string
	AISummary        string
	ImageURL         string
	Processed        bool
	PublishState     PublishState
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewRecord builds the initial record for a retained candidate.
func NewRecord(c Candidate) Record {
	return Record{
		Title:        c.Title,
		Link:         c.Link,
		Summary:      c.Summary,
		Source:       c.Source,
		SourceType:   c.SourceType,
		PublishedAt:  c.PublishedAt,
		URLHash:      c.URLHash(),
		PublishState: StateUnpublished,
	}
}

// Extraction is the output of the content-extraction stage.
type Extraction struct {
	Text     string
	ImageURL string
}

// MinContentLength is the confidence threshold: anything shorter is a failed
// extraction and must not reach the summarizer.
const MinContentLength = 100

// Confident reports whether the extraction is substantial enough to summarize.
func (e Extraction) Confident() bool {
	return len(strings.TrimSpace(e.Text)) >= MinContentLength
}
