package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/funnel-optimizer/internal/config"
	"github.com/sells-group/funnel-optimizer/internal/db"
	"github.com/sells-group/funnel-optimizer/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection for the
// hot paths of a run: window fetches and the rebalancer's variant upsert.
var preparedStatements = map[string]string{
	"list_attempts":  `SELECT id, lead_id, last_attempt_at, outcome, duration_secs, opener_variant, gatekeeper_encountered, decision_maker_reached, qualifying_answers, objections, lead_source, industry, region, next_follow_up_at FROM call_attempts WHERE last_attempt_at >= $1 AND last_attempt_at < $2 ORDER BY last_attempt_at`,
	"list_variants":  `SELECT tag, weight, paused, calls, answered, engagement_rate, discovery_rate, close_rate, updated_at FROM opener_variants ORDER BY weight DESC, tag`,
	"upsert_variant": `INSERT INTO opener_variants (tag, weight, paused, calls, answered, engagement_rate, discovery_rate, close_rate, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (tag) DO UPDATE SET weight = $2, paused = $3, calls = $4, answered = $5, engagement_rate = $6, discovery_rate = $7, close_rate = $8, updated_at = $9`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, cfg config.StoreConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if cfg.MaxConns > 0 {
		maxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		minConns = cfg.MinConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS call_attempts (
	id                     TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lead_id                TEXT NOT NULL,
	last_attempt_at        TIMESTAMPTZ NOT NULL,
	outcome                TEXT NOT NULL DEFAULT '',
	duration_secs          INTEGER NOT NULL DEFAULT 0,
	opener_variant         TEXT NOT NULL DEFAULT '',
	gatekeeper_encountered BOOLEAN NOT NULL DEFAULT FALSE,
	decision_maker_reached BOOLEAN NOT NULL DEFAULT FALSE,
	qualifying_answers     JSONB,
	objections             JSONB,
	lead_source            TEXT NOT NULL DEFAULT '',
	industry               TEXT NOT NULL DEFAULT '',
	region                 TEXT NOT NULL DEFAULT '',
	next_follow_up_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_call_attempts_attempt_at ON call_attempts(last_attempt_at);
CREATE INDEX IF NOT EXISTS idx_call_attempts_variant ON call_attempts(opener_variant);
CREATE INDEX IF NOT EXISTS idx_call_attempts_lead_source ON call_attempts(lead_source);

CREATE TABLE IF NOT EXISTS orders (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lead_id    TEXT NOT NULL,
	amount     NUMERIC NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);

CREATE TABLE IF NOT EXISTS transcript_insights (
	call_id          TEXT PRIMARY KEY,
	sentiment        TEXT NOT NULL DEFAULT '',
	compliance_flags JSONB,
	topics           JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcript_insights_created_at ON transcript_insights(created_at);

CREATE TABLE IF NOT EXISTS opener_variants (
	tag             TEXT PRIMARY KEY,
	weight          INTEGER NOT NULL DEFAULT 0,
	paused          BOOLEAN NOT NULL DEFAULT FALSE,
	calls           INTEGER NOT NULL DEFAULT 0,
	answered        INTEGER NOT NULL DEFAULT 0,
	engagement_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	discovery_rate  DOUBLE PRECISION NOT NULL DEFAULT 0,
	close_rate      DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS changelog_entries (
	id               TEXT PRIMARY KEY,
	category         TEXT NOT NULL,
	change_type      TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'pending',
	title            TEXT NOT NULL,
	rationale        TEXT NOT NULL DEFAULT '',
	before_json      JSONB,
	after_json       JSONB,
	metrics_snapshot JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	approved_at      TIMESTAMPTZ,
	rolled_back_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_changelog_status ON changelog_entries(status);
CREATE INDEX IF NOT EXISTS idx_changelog_created_at ON changelog_entries(created_at);

CREATE TABLE IF NOT EXISTS orchestrator_reports (
	id           TEXT NOT NULL,
	cadence      TEXT NOT NULL,
	report_date  TEXT NOT NULL,
	body         JSONB NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (cadence, report_date)
);

CREATE TABLE IF NOT EXISTS lead_source_allocations (
	source              TEXT PRIMARY KEY,
	current_pct         DOUBLE PRECISION NOT NULL DEFAULT 0,
	min_pct             DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_pct             DOUBLE PRECISION NOT NULL DEFAULT 0,
	trailing_close_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	trailing_calls      INTEGER NOT NULL DEFAULT 0,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ListCallAttempts(ctx context.Context, from, to time.Time) ([]model.CallAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, lead_id, last_attempt_at, outcome, duration_secs, opener_variant,
		        gatekeeper_encountered, decision_maker_reached, qualifying_answers,
		        objections, lead_source, industry, region, next_follow_up_at
		 FROM call_attempts
		 WHERE last_attempt_at >= $1 AND last_attempt_at < $2
		 ORDER BY last_attempt_at`,
		from, to,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list call attempts")
	}
	defer rows.Close()

	var attempts []model.CallAttempt
	for rows.Next() {
		var a model.CallAttempt
		var answersJSON, objectionsJSON []byte
		if err := rows.Scan(&a.ID, &a.LeadID, &a.LastAttemptAt, &a.Outcome, &a.DurationSecs,
			&a.OpenerVariant, &a.GatekeeperEncountered, &a.DecisionMakerReached,
			&answersJSON, &objectionsJSON, &a.LeadSource, &a.Industry, &a.Region,
			&a.NextFollowUpAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan call attempt")
		}
		if len(answersJSON) > 0 {
			if err := json.Unmarshal(answersJSON, &a.QualifyingAnswers); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal qualifying answers %s", a.ID)
			}
		}
		if len(objectionsJSON) > 0 {
			if err := json.Unmarshal(objectionsJSON, &a.Objections); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal objections %s", a.ID)
			}
		}
		attempts = append(attempts, a)
	}
	return attempts, eris.Wrap(rows.Err(), "postgres: list call attempts iterate")
}

func (s *PostgresStore) ListOrders(ctx context.Context, from, to time.Time) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, lead_id, amount, status, created_at FROM orders
		 WHERE created_at >= $1 AND created_at < $2
		 ORDER BY created_at`,
		from, to,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list orders")
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.LeadID, &o.Amount, &o.Status, &o.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan order")
		}
		orders = append(orders, o)
	}
	return orders, eris.Wrap(rows.Err(), "postgres: list orders iterate")
}

func (s *PostgresStore) ListTranscriptInsights(ctx context.Context, from, to time.Time) ([]model.TranscriptInsight, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT call_id, sentiment, compliance_flags, topics, created_at FROM transcript_insights
		 WHERE created_at >= $1 AND created_at < $2
		 ORDER BY created_at`,
		from, to,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list transcript insights")
	}
	defer rows.Close()

	var insights []model.TranscriptInsight
	for rows.Next() {
		var ti model.TranscriptInsight
		var flagsJSON, topicsJSON []byte
		if err := rows.Scan(&ti.CallID, &ti.Sentiment, &flagsJSON, &topicsJSON, &ti.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan transcript insight")
		}
		if len(flagsJSON) > 0 {
			if err := json.Unmarshal(flagsJSON, &ti.ComplianceFlags); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal compliance flags %s", ti.CallID)
			}
		}
		if len(topicsJSON) > 0 {
			if err := json.Unmarshal(topicsJSON, &ti.Topics); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal topics %s", ti.CallID)
			}
		}
		insights = append(insights, ti)
	}
	return insights, eris.Wrap(rows.Err(), "postgres: list transcript insights iterate")
}

func (s *PostgresStore) ListOpenerVariants(ctx context.Context) ([]model.OpenerVariant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tag, weight, paused, calls, answered, engagement_rate, discovery_rate, close_rate, updated_at
		 FROM opener_variants ORDER BY weight DESC, tag`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list opener variants")
	}
	defer rows.Close()

	var variants []model.OpenerVariant
	for rows.Next() {
		var v model.OpenerVariant
		if err := rows.Scan(&v.Tag, &v.Weight, &v.Paused, &v.Calls, &v.Answered,
			&v.EngagementRate, &v.DiscoveryRate, &v.CloseRate, &v.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan opener variant")
		}
		variants = append(variants, v)
	}
	return variants, eris.Wrap(rows.Err(), "postgres: list opener variants iterate")
}

// UpsertOpenerVariant writes one variant row atomically, keyed by tag. Only
// the engine-owned allocation and counter fields are touched, so overlapping
// runs degrade to last-writer-wins without corrupting unrelated columns.
func (s *PostgresStore) UpsertOpenerVariant(ctx context.Context, v model.OpenerVariant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO opener_variants (tag, weight, paused, calls, answered, engagement_rate, discovery_rate, close_rate, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (tag) DO UPDATE SET
		   weight = $2, paused = $3, calls = $4, answered = $5,
		   engagement_rate = $6, discovery_rate = $7, close_rate = $8, updated_at = $9`,
		v.Tag, v.Weight, v.Paused, v.Calls, v.Answered,
		v.EngagementRate, v.DiscoveryRate, v.CloseRate, v.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert opener variant %s", v.Tag)
}

func (s *PostgresStore) CreateChangelogEntry(ctx context.Context, e model.ChangelogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO changelog_entries
		 (id, category, change_type, status, title, rationale, before_json, after_json, metrics_snapshot, created_at, approved_at, rolled_back_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, string(e.Category), e.ChangeType, string(e.Status), e.Title, e.Rationale,
		[]byte(e.Before), []byte(e.After), []byte(e.MetricsSnapshot),
		e.CreatedAt, e.ApprovedAt, e.RolledBackAt,
	)
	return eris.Wrapf(err, "postgres: create changelog entry %s", e.ID)
}

// UpdateChangelogStatus flips an entry's status and stamps the matching
// timestamp column. History rows are never deleted.
func (s *PostgresStore) UpdateChangelogStatus(ctx context.Context, id string, status model.ChangeStatus, at time.Time) error {
	var query string
	args := []any{string(status), at, id}
	switch status {
	case model.ChangeStatusApproved:
		query = `UPDATE changelog_entries SET status = $1, approved_at = $2 WHERE id = $3`
	case model.ChangeStatusRolledBack:
		query = `UPDATE changelog_entries SET status = $1, rolled_back_at = $2 WHERE id = $3`
	default:
		query = `UPDATE changelog_entries SET status = $1 WHERE id = $2`
		args = []any{string(status), id}
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update changelog status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("changelog entry not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) GetChangelogEntry(ctx context.Context, id string) (*model.ChangelogEntry, error) {
	var e model.ChangelogEntry
	var before, after, snapshot []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, category, change_type, status, title, rationale, before_json, after_json, metrics_snapshot, created_at, approved_at, rolled_back_at
		 FROM changelog_entries WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Category, &e.ChangeType, &e.Status, &e.Title, &e.Rationale,
		&before, &after, &snapshot, &e.CreatedAt, &e.ApprovedAt, &e.RolledBackAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get changelog entry %s", id)
	}
	e.Before = before
	e.After = after
	e.MetricsSnapshot = snapshot
	return &e, nil
}

func (s *PostgresStore) ListChangelogEntries(ctx context.Context, filter ChangelogFilter) ([]model.ChangelogEntry, error) {
	query := `SELECT id, category, change_type, status, title, rationale, before_json, after_json, metrics_snapshot, created_at, approved_at, rolled_back_at
	          FROM changelog_entries WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.From.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.From)
		argIdx++
	}
	if !filter.To.IsZero() {
		query += fmt.Sprintf(` AND created_at < $%d`, argIdx)
		args = append(args, filter.To)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list changelog entries")
	}
	defer rows.Close()

	var entries []model.ChangelogEntry
	for rows.Next() {
		var e model.ChangelogEntry
		var before, after, snapshot []byte
		if err := rows.Scan(&e.ID, &e.Category, &e.ChangeType, &e.Status, &e.Title, &e.Rationale,
			&before, &after, &snapshot, &e.CreatedAt, &e.ApprovedAt, &e.RolledBackAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan changelog entry")
		}
		e.Before = before
		e.After = after
		e.MetricsSnapshot = snapshot
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list changelog entries iterate")
}

// UpsertReport writes one report row keyed by (cadence, date) so a re-run
// overwrites instead of duplicating.
func (s *PostgresStore) UpsertReport(ctx context.Context, r model.OrchestratorReport) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	body, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO orchestrator_reports (id, cadence, report_date, body, generated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (cadence, report_date) DO UPDATE SET body = $4, generated_at = $5`,
		r.ID, string(r.Cadence), r.Date, body, r.GeneratedAt,
	)
	return eris.Wrapf(err, "postgres: upsert report %s/%s", r.Cadence, r.Date)
}

func (s *PostgresStore) GetReport(ctx context.Context, cadence model.Cadence, date string) (*model.OrchestratorReport, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM orchestrator_reports WHERE cadence = $1 AND report_date = $2`,
		string(cadence), date,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get report %s/%s", cadence, date)
	}
	var r model.OrchestratorReport
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal report")
	}
	return &r, nil
}

func (s *PostgresStore) ListLeadSourceAllocations(ctx context.Context) ([]model.LeadSourceAllocation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source, current_pct, min_pct, max_pct, trailing_close_rate, trailing_calls, updated_at
		 FROM lead_source_allocations ORDER BY source`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list lead source allocations")
	}
	defer rows.Close()

	var allocs []model.LeadSourceAllocation
	for rows.Next() {
		var a model.LeadSourceAllocation
		if err := rows.Scan(&a.Source, &a.CurrentPct, &a.MinPct, &a.MaxPct,
			&a.TrailingCloseRate, &a.TrailingCalls, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead source allocation")
		}
		allocs = append(allocs, a)
	}
	return allocs, eris.Wrap(rows.Err(), "postgres: list lead source allocations iterate")
}

func (s *PostgresStore) UpsertLeadSourceAllocation(ctx context.Context, a model.LeadSourceAllocation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lead_source_allocations (source, current_pct, min_pct, max_pct, trailing_close_rate, trailing_calls, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (source) DO UPDATE SET
		   current_pct = $2, min_pct = $3, max_pct = $4,
		   trailing_close_rate = $5, trailing_calls = $6, updated_at = $7`,
		a.Source, a.CurrentPct, a.MinPct, a.MaxPct, a.TrailingCloseRate, a.TrailingCalls, a.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert lead source allocation %s", a.Source)
}
