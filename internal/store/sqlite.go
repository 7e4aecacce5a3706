package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/funnel-optimizer/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// development and single-box deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS call_attempts (
	id                     TEXT PRIMARY KEY,
	lead_id                TEXT NOT NULL,
	last_attempt_at        DATETIME NOT NULL,
	outcome                TEXT NOT NULL DEFAULT '',
	duration_secs          INTEGER NOT NULL DEFAULT 0,
	opener_variant         TEXT NOT NULL DEFAULT '',
	gatekeeper_encountered INTEGER NOT NULL DEFAULT 0,
	decision_maker_reached INTEGER NOT NULL DEFAULT 0,
	qualifying_answers     TEXT,
	objections             TEXT,
	lead_source            TEXT NOT NULL DEFAULT '',
	industry               TEXT NOT NULL DEFAULT '',
	region                 TEXT NOT NULL DEFAULT '',
	next_follow_up_at      DATETIME
);

CREATE INDEX IF NOT EXISTS idx_call_attempts_attempt_at ON call_attempts(last_attempt_at);

CREATE TABLE IF NOT EXISTS orders (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL,
	amount     REAL NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS transcript_insights (
	call_id          TEXT PRIMARY KEY,
	sentiment        TEXT NOT NULL DEFAULT '',
	compliance_flags TEXT,
	topics           TEXT,
	created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS opener_variants (
	tag             TEXT PRIMARY KEY,
	weight          INTEGER NOT NULL DEFAULT 0,
	paused          INTEGER NOT NULL DEFAULT 0,
	calls           INTEGER NOT NULL DEFAULT 0,
	answered        INTEGER NOT NULL DEFAULT 0,
	engagement_rate REAL NOT NULL DEFAULT 0,
	discovery_rate  REAL NOT NULL DEFAULT 0,
	close_rate      REAL NOT NULL DEFAULT 0,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS changelog_entries (
	id               TEXT PRIMARY KEY,
	category         TEXT NOT NULL,
	change_type      TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'pending',
	title            TEXT NOT NULL,
	rationale        TEXT NOT NULL DEFAULT '',
	before_json      TEXT,
	after_json       TEXT,
	metrics_snapshot TEXT,
	created_at       DATETIME NOT NULL,
	approved_at      DATETIME,
	rolled_back_at   DATETIME
);

CREATE INDEX IF NOT EXISTS idx_changelog_status ON changelog_entries(status);

CREATE TABLE IF NOT EXISTS orchestrator_reports (
	id           TEXT NOT NULL,
	cadence      TEXT NOT NULL,
	report_date  TEXT NOT NULL,
	body         TEXT NOT NULL,
	generated_at DATETIME NOT NULL,
	PRIMARY KEY (cadence, report_date)
);

CREATE TABLE IF NOT EXISTS lead_source_allocations (
	source              TEXT PRIMARY KEY,
	current_pct         REAL NOT NULL DEFAULT 0,
	min_pct             REAL NOT NULL DEFAULT 0,
	max_pct             REAL NOT NULL DEFAULT 0,
	trailing_close_rate REAL NOT NULL DEFAULT 0,
	trailing_calls      INTEGER NOT NULL DEFAULT 0,
	updated_at          DATETIME NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertCallAttempt exists for seeding development databases; production
// rows are written by the calling subsystem.
func (s *SQLiteStore) InsertCallAttempt(ctx context.Context, a model.CallAttempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	answersJSON, err := json.Marshal(a.QualifyingAnswers)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal qualifying answers")
	}
	objectionsJSON, err := json.Marshal(a.Objections)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal objections")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO call_attempts
		 (id, lead_id, last_attempt_at, outcome, duration_secs, opener_variant,
		  gatekeeper_encountered, decision_maker_reached, qualifying_answers,
		  objections, lead_source, industry, region, next_follow_up_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.LeadID, a.LastAttemptAt.UTC(), string(a.Outcome), a.DurationSecs, a.OpenerVariant,
		a.GatekeeperEncountered, a.DecisionMakerReached, string(answersJSON),
		string(objectionsJSON), a.LeadSource, a.Industry, a.Region, a.NextFollowUpAt,
	)
	return eris.Wrapf(err, "sqlite: insert call attempt %s", a.ID)
}

func (s *SQLiteStore) ListCallAttempts(ctx context.Context, from, to time.Time) ([]model.CallAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_id, last_attempt_at, outcome, duration_secs, opener_variant,
		        gatekeeper_encountered, decision_maker_reached, qualifying_answers,
		        objections, lead_source, industry, region, next_follow_up_at
		 FROM call_attempts
		 WHERE last_attempt_at >= ? AND last_attempt_at < ?
		 ORDER BY last_attempt_at`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list call attempts")
	}
	defer rows.Close()

	var attempts []model.CallAttempt
	for rows.Next() {
		var a model.CallAttempt
		var outcome string
		var answersJSON, objectionsJSON sql.NullString
		var followUp sql.NullTime
		if err := rows.Scan(&a.ID, &a.LeadID, &a.LastAttemptAt, &outcome, &a.DurationSecs,
			&a.OpenerVariant, &a.GatekeeperEncountered, &a.DecisionMakerReached,
			&answersJSON, &objectionsJSON, &a.LeadSource, &a.Industry, &a.Region,
			&followUp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan call attempt")
		}
		a.Outcome = model.Outcome(outcome)
		if answersJSON.Valid && answersJSON.String != "" && answersJSON.String != "null" {
			if err := json.Unmarshal([]byte(answersJSON.String), &a.QualifyingAnswers); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal qualifying answers %s", a.ID)
			}
		}
		if objectionsJSON.Valid && objectionsJSON.String != "" && objectionsJSON.String != "null" {
			if err := json.Unmarshal([]byte(objectionsJSON.String), &a.Objections); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal objections %s", a.ID)
			}
		}
		if followUp.Valid {
			t := followUp.Time
			a.NextFollowUpAt = &t
		}
		attempts = append(attempts, a)
	}
	return attempts, eris.Wrap(rows.Err(), "sqlite: list call attempts iterate")
}

func (s *SQLiteStore) ListOrders(ctx context.Context, from, to time.Time) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_id, amount, status, created_at FROM orders
		 WHERE created_at >= ? AND created_at < ? ORDER BY created_at`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list orders")
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.LeadID, &o.Amount, &o.Status, &o.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan order")
		}
		orders = append(orders, o)
	}
	return orders, eris.Wrap(rows.Err(), "sqlite: list orders iterate")
}

func (s *SQLiteStore) ListTranscriptInsights(ctx context.Context, from, to time.Time) ([]model.TranscriptInsight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT call_id, sentiment, compliance_flags, topics, created_at FROM transcript_insights
		 WHERE created_at >= ? AND created_at < ? ORDER BY created_at`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list transcript insights")
	}
	defer rows.Close()

	var insights []model.TranscriptInsight
	for rows.Next() {
		var ti model.TranscriptInsight
		var flagsJSON, topicsJSON sql.NullString
		if err := rows.Scan(&ti.CallID, &ti.Sentiment, &flagsJSON, &topicsJSON, &ti.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan transcript insight")
		}
		if flagsJSON.Valid && flagsJSON.String != "" && flagsJSON.String != "null" {
			if err := json.Unmarshal([]byte(flagsJSON.String), &ti.ComplianceFlags); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal compliance flags %s", ti.CallID)
			}
		}
		if topicsJSON.Valid && topicsJSON.String != "" && topicsJSON.String != "null" {
			if err := json.Unmarshal([]byte(topicsJSON.String), &ti.Topics); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal topics %s", ti.CallID)
			}
		}
		insights = append(insights, ti)
	}
	return insights, eris.Wrap(rows.Err(), "sqlite: list transcript insights iterate")
}

func (s *SQLiteStore) ListOpenerVariants(ctx context.Context) ([]model.OpenerVariant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag, weight, paused, calls, answered, engagement_rate, discovery_rate, close_rate, updated_at
		 FROM opener_variants ORDER BY weight DESC, tag`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list opener variants")
	}
	defer rows.Close()

	var variants []model.OpenerVariant
	for rows.Next() {
		var v model.OpenerVariant
		if err := rows.Scan(&v.Tag, &v.Weight, &v.Paused, &v.Calls, &v.Answered,
			&v.EngagementRate, &v.DiscoveryRate, &v.CloseRate, &v.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan opener variant")
		}
		variants = append(variants, v)
	}
	return variants, eris.Wrap(rows.Err(), "sqlite: list opener variants iterate")
}

func (s *SQLiteStore) UpsertOpenerVariant(ctx context.Context, v model.OpenerVariant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO opener_variants (tag, weight, paused, calls, answered, engagement_rate, discovery_rate, close_rate, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tag) DO UPDATE SET
		   weight = excluded.weight, paused = excluded.paused, calls = excluded.calls,
		   answered = excluded.answered, engagement_rate = excluded.engagement_rate,
		   discovery_rate = excluded.discovery_rate, close_rate = excluded.close_rate,
		   updated_at = excluded.updated_at`,
		v.Tag, v.Weight, v.Paused, v.Calls, v.Answered,
		v.EngagementRate, v.DiscoveryRate, v.CloseRate, v.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert opener variant %s", v.Tag)
}

func (s *SQLiteStore) CreateChangelogEntry(ctx context.Context, e model.ChangelogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO changelog_entries
		 (id, category, change_type, status, title, rationale, before_json, after_json, metrics_snapshot, created_at, approved_at, rolled_back_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Category), e.ChangeType, string(e.Status), e.Title, e.Rationale,
		nullableJSON(e.Before), nullableJSON(e.After), nullableJSON(e.MetricsSnapshot),
		e.CreatedAt.UTC(), e.ApprovedAt, e.RolledBackAt,
	)
	return eris.Wrapf(err, "sqlite: create changelog entry %s", e.ID)
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (s *SQLiteStore) UpdateChangelogStatus(ctx context.Context, id string, status model.ChangeStatus, at time.Time) error {
	var query string
	args := []any{string(status), at.UTC(), id}
	switch status {
	case model.ChangeStatusApproved:
		query = `UPDATE changelog_entries SET status = ?, approved_at = ? WHERE id = ?`
	case model.ChangeStatusRolledBack:
		query = `UPDATE changelog_entries SET status = ?, rolled_back_at = ? WHERE id = ?`
	default:
		query = `UPDATE changelog_entries SET status = ? WHERE id = ?`
		args = []any{string(status), id}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update changelog status %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("changelog entry not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) GetChangelogEntry(ctx context.Context, id string) (*model.ChangelogEntry, error) {
	var e model.ChangelogEntry
	var category, status string
	var before, after, snapshot sql.NullString
	var approvedAt, rolledBackAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, category, change_type, status, title, rationale, before_json, after_json, metrics_snapshot, created_at, approved_at, rolled_back_at
		 FROM changelog_entries WHERE id = ?`,
		id,
	).Scan(&e.ID, &category, &e.ChangeType, &status, &e.Title, &e.Rationale,
		&before, &after, &snapshot, &e.CreatedAt, &approvedAt, &rolledBackAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get changelog entry %s", id)
	}
	e.Category = model.ChangeCategory(category)
	e.Status = model.ChangeStatus(status)
	if before.Valid {
		e.Before = json.RawMessage(before.String)
	}
	if after.Valid {
		e.After = json.RawMessage(after.String)
	}
	if snapshot.Valid {
		e.MetricsSnapshot = json.RawMessage(snapshot.String)
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		e.ApprovedAt = &t
	}
	if rolledBackAt.Valid {
		t := rolledBackAt.Time
		e.RolledBackAt = &t
	}
	return &e, nil
}

func (s *SQLiteStore) ListChangelogEntries(ctx context.Context, filter ChangelogFilter) ([]model.ChangelogEntry, error) {
	query := `SELECT id FROM changelog_entries WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, filter.To.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list changelog entries")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan changelog id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list changelog entries iterate")
	}

	entries := make([]model.ChangelogEntry, 0, len(ids))
	for _, id := range ids {
		e, err := s.GetChangelogEntry(ctx, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

func (s *SQLiteStore) UpsertReport(ctx context.Context, r model.OrchestratorReport) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	body, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orchestrator_reports (id, cadence, report_date, body, generated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (cadence, report_date) DO UPDATE SET body = excluded.body, generated_at = excluded.generated_at`,
		r.ID, string(r.Cadence), r.Date, string(body), r.GeneratedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert report %s/%s", r.Cadence, r.Date)
}

func (s *SQLiteStore) GetReport(ctx context.Context, cadence model.Cadence, date string) (*model.OrchestratorReport, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM orchestrator_reports WHERE cadence = ? AND report_date = ?`,
		string(cadence), date,
	).Scan(&body)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get report %s/%s", cadence, date)
	}
	var r model.OrchestratorReport
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal report")
	}
	return &r, nil
}

func (s *SQLiteStore) ListLeadSourceAllocations(ctx context.Context) ([]model.LeadSourceAllocation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, current_pct, min_pct, max_pct, trailing_close_rate, trailing_calls, updated_at
		 FROM lead_source_allocations ORDER BY source`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list lead source allocations")
	}
	defer rows.Close()

	var allocs []model.LeadSourceAllocation
	for rows.Next() {
		var a model.LeadSourceAllocation
		if err := rows.Scan(&a.Source, &a.CurrentPct, &a.MinPct, &a.MaxPct,
			&a.TrailingCloseRate, &a.TrailingCalls, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead source allocation")
		}
		allocs = append(allocs, a)
	}
	return allocs, eris.Wrap(rows.Err(), "sqlite: list lead source allocations iterate")
}

func (s *SQLiteStore) UpsertLeadSourceAllocation(ctx context.Context, a model.LeadSourceAllocation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lead_source_allocations (source, current_pct, min_pct, max_pct, trailing_close_rate, trailing_calls, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source) DO UPDATE SET
		   current_pct = excluded.current_pct, min_pct = excluded.min_pct, max_pct = excluded.max_pct,
		   trailing_close_rate = excluded.trailing_close_rate, trailing_calls = excluded.trailing_calls,
		   updated_at = excluded.updated_at`,
		a.Source, a.CurrentPct, a.MinPct, a.MaxPct, a.TrailingCloseRate, a.TrailingCalls, a.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert lead source allocation %s", a.Source)
}
