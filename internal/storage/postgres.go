package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const mentionsSchema = `
CREATE TABLE IF NOT EXISTS mentions (
    id          TEXT        NOT NULL,
    brand       TEXT        NOT NULL,
    type        TEXT        NOT NULL,
    title       TEXT,
    body        TEXT,
    permalink   TEXT        NOT NULL,
    created_utc TIMESTAMPTZ NOT NULL,
    subreddit   TEXT,
    author      TEXT,
    score       INTEGER     NOT NULL DEFAULT 0,
    sentiment   TEXT,
    source      TEXT        NOT NULL,
    inserted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (id, brand)
);
CREATE INDEX IF NOT EXISTS mentions_created_idx ON mentions (created_utc DESC);
CREATE INDEX IF NOT EXISTS mentions_brand_idx ON mentions (brand);`

// upsertMentionSQL refreshes score and sentiment on conflict. NULLIF turns an
// empty incoming sentiment into NULL so COALESCE keeps the stored label.
const upsertMentionSQL = `
INSERT INTO mentions (id, brand, type, title, body, permalink, created_utc, subreddit, author, score, sentiment, source)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12)
ON CONFLICT (id, brand) DO UPDATE
SET score = EXCLUDED.score,
    sentiment = COALESCE(NULLIF(EXCLUDED.sentiment, ''), mentions.sentiment)`

var mentionColumns = []string{
	"id", "brand", "type", "title", "body", "permalink", "created_utc",
	"subreddit", "author", "score", "COALESCE(sentiment, '')", "source",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore is the durable MentionStore
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ MentionStore = (*PostgresStore)(nil)

// NewPostgresStore opens a pool and creates the schema if needed
func NewPostgresStore(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, mentionsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logrus.Info("Connected to Postgres mention store")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) UpsertBatch(ctx context.Context, mentions []models.Mention) error {
	if len(mentions) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, m := range mentions {
		b.Queue(upsertMentionSQL,
			m.ID, m.Brand, string(m.Kind), m.Title, m.Body, m.Permalink, m.CreatedAt.UTC(),
			m.Community, m.Author, m.Score, string(m.Sentiment), string(m.Source),
		)
	}

	br := s.pool.SendBatch(ctx, b)
	for range mentions {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("upsert mention: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetAllIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT id FROM mentions`)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan ids: %w", err)
	}

	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *PostgresStore) DeleteByID(ctx context.Context, id string) (int64, error) {
	query, args, err := psql.Delete("mentions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete mention %s: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) QueryMentions(ctx context.Context, filter models.MentionFilter, page models.Page) (*models.MentionPage, error) {
	countSQL, countArgs, err := countQuery(filter).ToSql()
	if err != nil {
		return nil, err
	}

	var total int
	if err := s.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count mentions: %w", err)
	}

	selectSQL, selectArgs, err := selectQuery(filter, page).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, selectSQL, selectArgs...)
	if err != nil {
		return nil, fmt.Errorf("query mentions: %w", err)
	}
	defer rows.Close()

	result := &models.MentionPage{
		Results: []models.Mention{},
		Page:    page.Number,
		PerPage: page.PerPage,
		Total:   total,
	}
	for rows.Next() {
		var (
			m                    models.Mention
			kind, sentiment, src string
			title, body          *string
			community, author    *string
		)
		if err := rows.Scan(&m.ID, &m.Brand, &kind, &title, &body, &m.Permalink, &m.CreatedAt,
			&community, &author, &m.Score, &sentiment, &src); err != nil {
			return nil, fmt.Errorf("scan mention: %w", err)
		}
		m.Kind = models.Kind(kind)
		m.Sentiment = models.Sentiment(sentiment)
		m.Source = models.SourceKind(src)
		m.Title = deref(title)
		m.Body = deref(body)
		m.Community = deref(community)
		m.Author = deref(author)
		m.CreatedAt = m.CreatedAt.UTC()
		result.Results = append(result.Results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return result, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func filterClause(f models.MentionFilter) sq.And {
	where := sq.And{}
	if f.Brand != "" {
		where = append(where, sq.Eq{"brand": f.Brand})
	}
	if f.Kind != "" {
		where = append(where, sq.Eq{"type": string(f.Kind)})
	}
	if f.Source != "" {
		where = append(where, sq.Eq{"source": string(f.Source)})
	}
	if f.Community != "" {
		where = append(where, sq.Eq{"subreddit": f.Community})
	}
	if f.Sentiment != "" {
		where = append(where, sq.Eq{"sentiment": string(f.Sentiment)})
	}
	if !f.Since.IsZero() {
		where = append(where, sq.GtOrEq{"created_utc": f.Since.UTC()})
	}
	if !f.Until.IsZero() {
		where = append(where, sq.Lt{"created_utc": f.Until.UTC()})
	}
	return where
}

func countQuery(f models.MentionFilter) sq.SelectBuilder {
	q := psql.Select("COUNT(*)").From("mentions")
	if where := filterClause(f); len(where) > 0 {
		q = q.Where(where)
	}
	return q
}

func selectQuery(f models.MentionFilter, page models.Page) sq.SelectBuilder {
	q := psql.Select(mentionColumns...).From("mentions")
	if where := filterClause(f); len(where) > 0 {
		q = q.Where(where)
	}
	return q.OrderBy("created_utc DESC", "id", "brand").
		Limit(uint64(page.PerPage)).
		Offset(uint64(page.Offset()))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
