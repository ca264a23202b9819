package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/hypeindex/enhancement/internal/config"
	"github.com/hypeindex/enhancement/internal/domain"
	"github.com/hypeindex/enhancement/internal/logger"
)

// Postgres implements Store against the platform's content database.
type Postgres struct {
	db     *sqlx.DB
	logger logger.Logger
}

// NewPostgres connects to Postgres and verifies the connection.
func NewPostgres(cfg config.DatabaseConfig, log logger.Logger) (*Postgres, error) {
	if log == nil {
		log = logger.NewNop()
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Postgres{db: db, logger: log}, nil
}

// Ping checks database connectivity, for health endpoints.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

type contentRow struct {
	ID              string         `db:"id"`
	Title           string         `db:"title"`
	Body            string         `db:"body"`
	SourceURL       sql.NullString `db:"source_url"`
	CompanyName     sql.NullString `db:"company_name"`
	CompanyIndustry sql.NullString `db:"company_industry"`
	CompanyWebsite  sql.NullString `db:"company_website"`
}

// FetchContent reads one content item by ID.
func (p *Postgres) FetchContent(ctx context.Context, contentID string) (*domain.ContentItem, error) {
	const query = `
		SELECT c.id, c.title, c.body, c.source_url,
		       co.name AS company_name,
		       co.industry AS company_industry,
		       co.website AS company_website
		FROM contents c
		LEFT JOIN companies co ON co.id = c.company_id
		WHERE c.id = $1`

	var row contentRow
	if err := p.db.GetContext(ctx, &row, query, contentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("content %s: %w", contentID, ErrNotFound)
		}
		return nil, fmt.Errorf("fetching content %s: %w", contentID, err)
	}

	item := &domain.ContentItem{
		ID:        row.ID,
		Title:     row.Title,
		Body:      row.Body,
		SourceURL: row.SourceURL.String,
	}
	if row.CompanyName.Valid {
		item.CompanyContext = &domain.CompanyContext{
			Name:     row.CompanyName.String,
			Industry: row.CompanyIndustry.String,
			Website:  row.CompanyWebsite.String,
		}
	}
	return item, nil
}

// SaveScores upserts the score result for a content item. The previous
// result is replaced wholesale.
func (p *Postgres) SaveScores(ctx context.Context, contentID string, result *domain.ScoreResult) error {
	const query = `
		INSERT INTO content_scores
			(content_id, hype_score, ethics_score, impact_tags,
			 reality_check, eli5_summary, enhanced, scored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (content_id) DO UPDATE SET
			hype_score    = EXCLUDED.hype_score,
			ethics_score  = EXCLUDED.ethics_score,
			impact_tags   = EXCLUDED.impact_tags,
			reality_check = EXCLUDED.reality_check,
			eli5_summary  = EXCLUDED.eli5_summary,
			enhanced      = EXCLUDED.enhanced,
			scored_at     = EXCLUDED.scored_at`

	res, err := p.db.ExecContext(ctx, query,
		contentID,
		result.HypeScore,
		result.EthicsScore,
		pq.Array(result.ImpactTags),
		result.RealityCheck,
		result.ELI5Summary,
		result.Enhanced,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving scores for %s: %w", contentID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		p.logger.Warn("score upsert affected no rows", logger.String("content_id", contentID))
	}
	return nil
}
