// Package storage persists records into the rss_articles table. The table
// carries a unique constraint on url_hash, which is what makes Upsert safe
// to call redundantly.
package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"viaductecho/internal/domain"
	"viaductecho/internal/ports"
)

const articlesTable = "rss_articles"

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Postgres implements ports.Store on database/sql with lib/pq.
type Postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ ports.Store = (*Postgres)(nil)

// NewPostgres wires an open connection pool.
func NewPostgres(db *sql.DB, logger *slog.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

// Open dials Postgres and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgres(db, logger), nil
}

// Ping reports whether the store is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close releases the pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Upsert inserts the record unless its url_hash already exists. The second
// fetch of the same link is a no-op write, making ingestion idempotent.
func (p *Postgres) Upsert(ctx context.Context, rec domain.Record) (bool, error) {
	query, args, err := builder.
		Insert(articlesTable).
		Columns("original_title", "original_link", "original_summary",
			"original_source", "source_type", "original_pubdate",
			"url_hash", "publish_state").
		Values(rec.Title, rec.Link, rec.Summary,
			rec.Source, rec.SourceType, nullableTime(rec.PublishedAt),
			rec.URLHash, domain.StateUnpublished).
		Suffix("ON CONFLICT (url_hash) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build upsert: %w", err)
	}

	var inserted bool
	err = p.withReconnect(ctx, func() error {
		result, execErr := p.db.ExecContext(ctx, query, args...)
		if execErr != nil {
			return execErr
		}
		affected, _ := result.RowsAffected()
		inserted = affected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("upsert %s: %w", rec.URLHash, err)
	}
	return inserted, nil
}

// MarkProcessed records that extraction+summarization was attempted. Empty
// extracted/aiSummary values are stored as NULL so "has an AI summary" stays
// a meaningful query.
func (p *Postgres) MarkProcessed(ctx context.Context, urlHash string, extracted, aiSummary, imageURL string) error {
	query, args, err := builder.
		Update(articlesTable).
		Set("processed", true).
		Set("extracted_content", nullableString(extracted)).
		Set("ai_summary", nullableString(aiSummary)).
		Set("image_url", nullableString(imageURL)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"url_hash": urlHash}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark processed: %w", err)
	}

	err = p.withReconnect(ctx, func() error {
		_, execErr := p.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", urlHash, err)
	}
	return nil
}

// MarkPublished transitions unpublished -> published. Called only after a
// confirmed successful push.
func (p *Postgres) MarkPublished(ctx context.Context, urlHash string) error {
	query, args, err := builder.
		Update(articlesTable).
		Set("publish_state", domain.StatePublished).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"url_hash": urlHash, "publish_state": domain.StateUnpublished}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark published: %w", err)
	}

	err = p.withReconnect(ctx, func() error {
		_, execErr := p.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("mark published %s: %w", urlHash, err)
	}
	return nil
}

// UnpublishedProcessed returns the records eligible for the publish sweep.
func (p *Postgres) UnpublishedProcessed(ctx context.Context) ([]domain.Record, error) {
	query, args, err := builder.
		Select("id", "original_title", "original_link", "original_summary",
			"original_source", "source_type", "original_pubdate", "url_hash",
			"extracted_content", "ai_summary", "image_url",
			"processed", "publish_state", "created_at", "updated_at").
		From(articlesTable).
		Where(sq.Eq{"processed": true, "publish_state": domain.StateUnpublished}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build unpublished query: %w", err)
	}

	var records []domain.Record
	err = p.withReconnect(ctx, func() error {
		rows, queryErr := p.db.QueryContext(ctx, query, args...)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		records = records[:0]
		for rows.Next() {
			rec, scanErr := scanRecord(rows)
			if scanErr != nil {
				return scanErr
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query unpublished processed: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (domain.Record, error) {
	var (
		rec       domain.Record
		pubdate   sql.NullTime
		extracted sql.NullString
		aiSummary sql.NullString
		imageURL  sql.NullString
		state     string
		createdAt sql.NullTime
		updatedAt sql.NullTime
	)
	err := rows.Scan(&rec.ID, &rec.Title, &rec.Link, &rec.Summary,
		&rec.Source, &rec.SourceType, &pubdate, &rec.URLHash,
		&extracted, &aiSummary, &imageURL,
		&rec.Processed, &state, &createdAt, &updatedAt)
	if err != nil {
		return domain.Record{}, fmt.Errorf("scan record: %w", err)
	}

	if pubdate.Valid {
		t := pubdate.Time
		rec.PublishedAt = &t
	}
	rec.CreatedAt = createdAt.Time
	rec.UpdatedAt = updatedAt.Time
	rec.ExtractedContent = extracted.String
	rec.AISummary = aiSummary.String
	rec.ImageURL = imageURL.String
	rec.PublishState = domain.PublishState(state)
	return rec, nil
}

// withReconnect runs a single statement; on a connection-class failure it
// pings (forcing lib/pq to re-dial) and retries the statement once. A second
// failure is reported to the caller, never swallowed.
func (p *Postgres) withReconnect(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !isConnError(err) {
		return err
	}

	if p.logger != nil {
		p.logger.Warn("storage connection lost, reconnecting", "error", err)
	}
	if pingErr := p.db.PingContext(ctx); pingErr != nil {
		return fmt.Errorf("reconnect: %w", pingErr)
	}
	return op()
}

func isConnError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 covers connection exceptions.
		return strings.HasPrefix(string(pqErr.Code), "08")
	}

	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset")
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return *value
}
