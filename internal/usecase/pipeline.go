package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"viaductecho/internal/domain"
	"viaductecho/internal/filter"
	"viaductecho/internal/llm"
	"viaductecho/internal/ports"
)

// ErrRunInProgress is returned when a trigger arrives while a run holds the
// run-lock.
var ErrRunInProgress = errors.New("aggregation run already in progress")

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Sources    []ports.Source
	Filter     *filter.Filter
	Summarizer ports.Summarizer
	Store      ports.Store
	Publisher  ports.Publisher
	ItemDelay  time.Duration
	Logger     *slog.Logger
}

// Pipeline implements one aggregation-and-publish run. Per-source failures
// are isolated; only an unreachable store fails the whole run.
type Pipeline struct {
	sources    []ports.Source
	filter     *filter.Filter
	summarizer ports.Summarizer
	store      ports.Store
	publisher  ports.Publisher
	itemDelay  time.Duration
	logger     *slog.Logger
	runLock    sync.Mutex
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		sources:    deps.Sources,
		filter:     deps.Filter,
		summarizer: deps.Summarizer,
		store:      deps.Store,
		publisher:  deps.Publisher,
		itemDelay:  deps.ItemDelay,
		logger:     deps.Logger,
	}
}

// SourceResult captures the outcome of one source within a run.
type SourceResult struct {
	Source        string
	Fetched       int
	Retained      int
	Inserted      int
	Processed     int
	WriteFailures int
	Failure       string
}

// Report aggregates a run for logging and the admin trigger. It never
// carries raw stack traces, only per-source counts and failure reasons.
type Report struct {
	Sources         []SourceResult
	Published       int
	PublishFailures int
	SweepFailure    string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Failures counts sources that reported an error.
func (r Report) Failures() int {
	failures := 0
	for _, src := range r.Sources {
		if src.Failure != "" {
			failures++
		}
	}
	return failures
}

// Summary renders the run outcome as one line per source.
func (r Report) Summary() string {
	var b strings.Builder
	for _, src := range r.Sources {
		if src.Failure != "" {
			fmt.Fprintf(&b, "%s: failed (%s)\n", src.Source, src.Failure)
			continue
		}
		fmt.Fprintf(&b, "%s: %d fetched, %d retained, %d new, %d processed\n",
			src.Source, src.Fetched, src.Retained, src.Inserted, src.Processed)
	}
	fmt.Fprintf(&b, "published: %d, publish failures: %d\n", r.Published, r.PublishFailures)
	return b.String()
}

// Run executes one full aggregation pass: every source in turn, then the
// publish sweep. A concurrent trigger gets ErrRunInProgress.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	if !p.runLock.TryLock() {
		return Report{}, ErrRunInProgress
	}
	defer p.runLock.Unlock()

	report := Report{StartedAt: time.Now()}

	// A dead store is the only run-level failure: nothing downstream can
	// make progress without it.
	if err := p.store.Ping(ctx); err != nil {
		return report, fmt.Errorf("store unreachable: %w", err)
	}

	p.info("aggregation run started", "sources", len(p.sources))

	for _, src := range p.sources {
		result := p.runSource(ctx, src)
		report.Sources = append(report.Sources, result)
	}

	p.publishSweep(ctx, &report)

	report.FinishedAt = time.Now()
	p.info("aggregation run completed",
		"failures", report.Failures(), "published", report.Published)
	return report, nil
}

// runSource executes fetch -> filter -> ingest for one source. Its error
// never propagates past the returned result.
func (p *Pipeline) runSource(ctx context.Context, src ports.Source) SourceResult {
	result := SourceResult{Source: src.Name()}

	candidates, err := src.Fetch(ctx)
	if err != nil {
		p.error("source fetch failed", "source", src.Name(), "error", err)
		result.Failure = err.Error()
		return result
	}
	result.Fetched = len(candidates)

	retained := p.filter.Apply(candidates)
	result.Retained = len(retained)

	for _, candidate := range retained {
		inserted, err := p.store.Upsert(ctx, domain.NewRecord(candidate))
		if err != nil {
			// Reported, not swallowed: the run report carries the count and
			// the item is retried naturally on the next fetch.
			p.error("upsert failed", "link", candidate.Link, "error", err)
			result.WriteFailures++
			continue
		}
		if !inserted {
			// Already known from a previous run; ingestion is idempotent.
			continue
		}
		result.Inserted++

		p.process(ctx, src, candidate)
		result.Processed++

		if p.itemDelay > 0 {
			select {
			case <-time.After(p.itemDelay):
			case <-ctx.Done():
				result.Failure = ctx.Err().Error()
				return result
			}
		}
	}

	return result
}

// process runs extraction and summarization for one newly ingested
// candidate. The record always ends up processed: low-confidence extraction
// and AI semantic failures leave the AI summary unset rather than eligible
// for endless reprocessing.
func (p *Pipeline) process(ctx context.Context, src ports.Source, candidate domain.Candidate) {
	urlHash := candidate.URLHash()

	extraction, err := src.Extract(ctx, candidate)
	if err != nil {
		p.error("extraction failed", "link", candidate.Link, "error", err)
		p.markProcessed(ctx, urlHash, "", "", "")
		return
	}

	if !extraction.Confident() {
		// The gate: garbage input must not reach the paid summarizer.
		p.info("extraction below confidence threshold, skipping AI",
			"link", candidate.Link)
		p.markProcessed(ctx, urlHash, "", "", extraction.ImageURL)
		return
	}

	summary, err := p.summarizer.Summarize(ctx, extraction.Text)
	if err != nil {
		if errors.Is(err, llm.ErrNothingToSummarize) {
			p.error("provider had nothing to summarize, extraction defect upstream",
				"link", candidate.Link)
		} else {
			p.error("summarization failed", "link", candidate.Link, "error", err)
		}
		p.markProcessed(ctx, urlHash, extraction.Text, "", extraction.ImageURL)
		return
	}

	p.markProcessed(ctx, urlHash, extraction.Text, summary, extraction.ImageURL)
}

func (p *Pipeline) markProcessed(ctx context.Context, urlHash, extracted, summary, imageURL string) {
	if err := p.store.MarkProcessed(ctx, urlHash, extracted, summary, imageURL); err != nil {
		p.error("mark processed failed", "url_hash", urlHash, "error", err)
	}
}

// publishSweep pushes every processed-but-unpublished record. A failed push
// stays unpublished for the next run; it is never retried within this one.
func (p *Pipeline) publishSweep(ctx context.Context, report *Report) {
	if p.publisher == nil {
		return
	}

	records, err := p.store.UnpublishedProcessed(ctx)
	if err != nil {
		p.error("publish sweep query failed", "error", err)
		report.SweepFailure = err.Error()
		return
	}

	for _, rec := range records {
		if err := p.publisher.Publish(ctx, rec); err != nil {
			p.error("publish failed", "link", rec.Link, "error", err)
			report.PublishFailures++
			continue
		}
		if err := p.store.MarkPublished(ctx, rec.URLHash); err != nil {
			// The push succeeded; the record will be re-published next run
			// and overwrite the same file path.
			p.error("mark published failed", "url_hash", rec.URLHash, "error", err)
			report.PublishFailures++
			continue
		}
		report.Published++
	}
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) error(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Error(msg, args...)
	}
}
