package ports

import (
	"context"

	"viaductecho/internal/domain"
)

// Source pulls candidate items from one upstream provider and extracts full
// content for a given candidate. Implementations form a closed set registered
// by name.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.Candidate, error)
	Extract(ctx context.Context, candidate domain.Candidate) (domain.Extraction, error)
}

// Extractor turns an article page into confidence-checked plain text.
type Extractor interface {
	Extract(ctx context.Context, candidate domain.Candidate) (domain.Extraction, error)
}

// Summarizer generates AI summaries of extracted article bodies.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Store persists records with dedup-on-write semantics.
type Store interface {
	Upsert(ctx context.Context, rec domain.Record) (inserted bool, err error)
	MarkProcessed(ctx context.Context, urlHash string, extracted, aiSummary, imageURL string) error
	MarkPublished(ctx context.Context, urlHash string) error
	UnpublishedProcessed(ctx context.Context) ([]domain.Record, error)
	Ping(ctx context.Context) error
}

// Publisher renders a processed record and pushes it to the static site.
type Publisher interface {
	Publish(ctx context.Context, rec domain.Record) error
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(context.Context)) error
	Stop()
}
