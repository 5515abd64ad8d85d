package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore persists dedup entries and alert rules. It backs both the
// DedupStore and AlertRepository ports.
type PostgresStore struct {
	db        *sql.DB
	retention time.Duration
	claimTTL  time.Duration
}

var _ ports.DedupStore = (*PostgresStore)(nil)
var _ ports.AlertRepository = (*PostgresStore)(nil)

// Open connects to Postgres and ensures the schema exists.
func Open(ctx context.Context, dsn string, retention, claimTTL time.Duration) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: db, retention: retention, claimTTL: claimTTL}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS dedup_entries (
    source_id     TEXT NOT NULL,
    external_id   TEXT NOT NULL,
    content_hash  TEXT NOT NULL,
    title         TEXT NOT NULL DEFAULT '',
    url           TEXT NOT NULL DEFAULT '',
    outcome       TEXT NOT NULL,
    reason        TEXT NOT NULL DEFAULT '',
    summary       TEXT NOT NULL DEFAULT '',
    post_id       TEXT NOT NULL DEFAULT '',
    post_url      TEXT NOT NULL DEFAULT '',
    first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (source_id, external_id)
);
CREATE INDEX IF NOT EXISTS dedup_entries_hash_idx ON dedup_entries (content_hash);
CREATE TABLE IF NOT EXISTS alert_rules (
    id                 TEXT PRIMARY KEY,
    symbol             TEXT NOT NULL,
    threshold          DOUBLE PRECISION NOT NULL,
    direction          TEXT NOT NULL,
    cooldown_seconds   BIGINT NOT NULL,
    last_triggered_at  TIMESTAMPTZ,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// blockingCond matches entries that prevent (re-)admission of a key: fresh
// active claims and succeeded entries inside the retention window. Failed
// entries never block.
func (s *PostgresStore) blockingCond() sq.Sqlizer {
	return sq.Or{
		sq.And{
			sq.Eq{"outcome": string(domain.OutcomeActive)},
			sq.Expr("updated_at > NOW() - make_interval(secs => ?)", s.claimTTL.Seconds()),
		},
		sq.And{
			sq.Eq{"outcome": string(domain.OutcomeSucceeded)},
			sq.Expr("updated_at > NOW() - make_interval(secs => ?)", s.retention.Seconds()),
		},
	}
}

// Seen reports whether the key or content hash is blocked from re-admission.
func (s *PostgresStore) Seen(ctx context.Context, key domain.DedupKey, contentHash string) (bool, error) {
	identity := sq.Or{
		sq.Eq{"source_id": key.SourceID, "external_id": key.ExternalID},
	}
	if contentHash != "" {
		identity = append(identity, sq.Eq{"content_hash": contentHash})
	}

	query, args, err := psql.
		Select("1").
		From("dedup_entries").
		Where(identity).
		Where(s.blockingCond()).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build seen query: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query seen: %w", err)
	}
	return true, nil
}

// Claim reserves the key for one task. The upsert's WHERE clause makes it a
// single atomic check-and-set: it only overwrites failed entries and stale
// claims, so two concurrent cycles cannot both win the same key.
func (s *PostgresStore) Claim(ctx context.Context, item domain.NewsItem) (bool, error) {
	// Cross-source near-duplicates share a hash but not a key; check first.
	if item.ContentHash != "" {
		blocked, err := s.hashBlocked(ctx, item)
		if err != nil {
			return false, err
		}
		if blocked {
			return false, nil
		}
	}

	query, args, err := psql.
		Insert("dedup_entries").
		Columns("source_id", "external_id", "content_hash", "title", "url", "outcome").
		Values(item.SourceID, item.ExternalID, item.ContentHash, item.Title, item.URL, string(domain.OutcomeActive)).
		Suffix(`ON CONFLICT (source_id, external_id) DO UPDATE
SET outcome = EXCLUDED.outcome, reason = '', updated_at = NOW()
WHERE dedup_entries.outcome = ?
   OR (dedup_entries.outcome = ? AND dedup_entries.updated_at <= NOW() - make_interval(secs => ?))
   OR (dedup_entries.outcome = ? AND dedup_entries.updated_at <= NOW() - make_interval(secs => ?))`,
			string(domain.OutcomeFailed),
			string(domain.OutcomeActive), s.claimTTL.Seconds(),
			string(domain.OutcomeSucceeded), s.retention.Seconds()).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build claim query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("claim entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *PostgresStore) hashBlocked(ctx context.Context, item domain.NewsItem) (bool, error) {
	query, args, err := psql.
		Select("1").
		From("dedup_entries").
		Where(sq.Eq{"content_hash": item.ContentHash}).
		Where(sq.Or{
			sq.NotEq{"source_id": item.SourceID},
			sq.NotEq{"external_id": item.ExternalID},
		}).
		Where(s.blockingCond()).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build hash query: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query hash: %w", err)
	}
	return true, nil
}

// Release drops an active claim, restoring the key to never-attempted.
func (s *PostgresStore) Release(ctx context.Context, key domain.DedupKey) error {
	query, args, err := psql.
		Delete("dedup_entries").
		Where(sq.Eq{
			"source_id":   key.SourceID,
			"external_id": key.ExternalID,
			"outcome":     string(domain.OutcomeActive),
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build release query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// MarkFailed downgrades the entry so a later cycle may re-attempt it. The
// reason is kept for operator visibility.
func (s *PostgresStore) MarkFailed(ctx context.Context, key domain.DedupKey, reason string) error {
	query, args, err := psql.
		Update("dedup_entries").
		Set("outcome", string(domain.OutcomeFailed)).
		Set("reason", reason).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"source_id": key.SourceID, "external_id": key.ExternalID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build fail query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Finalize records a successful publish with its reference.
func (s *PostgresStore) Finalize(ctx context.Context, key domain.DedupKey, summary string, ref domain.PublishedRef) error {
	query, args, err := psql.
		Update("dedup_entries").
		Set("outcome", string(domain.OutcomeSucceeded)).
		Set("reason", "").
		Set("summary", summary).
		Set("post_id", ref.PostID).
		Set("post_url", ref.URL).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"source_id": key.SourceID, "external_id": key.ExternalID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build finalize query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("finalize entry: %w", err)
	}
	return nil
}

// RecentCompleted lists the latest succeeded entries, newest first.
func (s *PostgresStore) RecentCompleted(ctx context.Context, limit int) ([]domain.CompletedPost, error) {
	query, args, err := psql.
		Select("title", "summary", "url", "post_id", "post_url", "updated_at").
		From("dedup_entries").
		Where(sq.Eq{"outcome": string(domain.OutcomeSucceeded)}).
		OrderBy("updated_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var posts []domain.CompletedPost
	for rows.Next() {
		var p domain.CompletedPost
		if err := rows.Scan(&p.Title, &p.Summary, &p.SourceURL, &p.Published.PostID, &p.Published.URL, &p.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan recent row: %w", err)
		}
		p.Published.PostedAt = p.CompletedAt
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return posts, nil
}

// List returns all alert rules ordered by creation time.
func (s *PostgresStore) List(ctx context.Context) ([]domain.AlertRule, error) {
	query, args, err := psql.
		Select("id", "symbol", "threshold", "direction", "cooldown_seconds", "last_triggered_at", "created_at").
		From("alert_rules").
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build alert list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alert rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.AlertRule
	for rows.Next() {
		var (
			r         domain.AlertRule
			direction string
			cooldown  int64
			triggered sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Threshold, &direction, &cooldown, &triggered, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert rule: %w", err)
		}
		r.Direction = domain.AlertDirection(direction)
		r.Cooldown = time.Duration(cooldown) * time.Second
		if triggered.Valid {
			r.LastTriggeredAt = triggered.Time
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return rules, nil
}

// Add stores a new alert rule.
func (s *PostgresStore) Add(ctx context.Context, rule domain.AlertRule) error {
	query, args, err := psql.
		Insert("alert_rules").
		Columns("id", "symbol", "threshold", "direction", "cooldown_seconds", "created_at").
		Values(rule.ID, rule.Symbol, rule.Threshold, string(rule.Direction), int64(rule.Cooldown.Seconds()), rule.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build alert insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert alert rule: %w", err)
	}
	return nil
}

// MarkTriggered updates the cooldown anchor for a fired rule.
func (s *PostgresStore) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	query, args, err := psql.
		Update("alert_rules").
		Set("last_triggered_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build trigger update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark triggered: %w", err)
	}
	return nil
}
