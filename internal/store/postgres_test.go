package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/funnel-optimizer/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_ListCallAttempts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	from := time.Date(2025, 6, 15, 5, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	attemptAt := from.Add(2 * time.Hour)

	mock.ExpectQuery(`SELECT id, lead_id, last_attempt_at, outcome`).
		WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "lead_id", "last_attempt_at", "outcome", "duration_secs", "opener_variant",
			"gatekeeper_encountered", "decision_maker_reached", "qualifying_answers",
			"objections", "lead_source", "industry", "region", "next_follow_up_at",
		}).AddRow(
			"call-1", "lead-1", attemptAt, "engaged", 120, "value_first",
			true, true, []byte(`{"budget":"500","lines":"4"}`),
			[]byte(`["price"]`), "organic", "hvac", "tx", (*time.Time)(nil),
		))

	attempts, err := s.ListCallAttempts(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, model.OutcomeEngaged, attempts[0].Outcome)
	assert.Equal(t, "value_first", attempts[0].OpenerVariant)
	assert.Equal(t, map[string]string{"budget": "500", "lines": "4"}, attempts[0].QualifyingAnswers)
	assert.Equal(t, []string{"price"}, attempts[0].Objections)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertOpenerVariant(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO opener_variants .* ON CONFLICT \(tag\) DO UPDATE`).
		WithArgs("value_first", 40, false, 120, 55, 38.2, 20.0, 4.5, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertOpenerVariant(context.Background(), model.OpenerVariant{
		Tag: "value_first", Weight: 40, Calls: 120, Answered: 55,
		EngagementRate: 38.2, DiscoveryRate: 20.0, CloseRate: 4.5,
		UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetChangelogEntry_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, category, change_type, status`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	e, err := s.GetChangelogEntry(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateChangelogStatus_Approved(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE changelog_entries SET status = \$1, approved_at = \$2 WHERE id = \$3`).
		WithArgs("approved", at, "entry-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateChangelogStatus(context.Background(), "entry-1", model.ChangeStatusApproved, at)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateChangelogStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE changelog_entries SET status = \$1 WHERE id = \$2`).
		WithArgs("rejected", "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateChangelogStatus(context.Background(), "gone", model.ChangeStatusRejected, time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertReport(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO orchestrator_reports .* ON CONFLICT \(cadence, report_date\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), "daily", "2025-06-15", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertReport(context.Background(), model.OrchestratorReport{
		Cadence: model.CadenceDaily, Date: "2025-06-15", GeneratedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetReport_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT body FROM orchestrator_reports`).
		WithArgs("weekly", "2025-06-15").
		WillReturnError(pgx.ErrNoRows)

	r, err := s.GetReport(context.Background(), model.CadenceWeekly, "2025-06-15")
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListChangelogEntries_StatusFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, category, change_type, status .* AND status = \$1`).
		WithArgs("pending", 100).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "category", "change_type", "status", "title", "rationale",
			"before_json", "after_json", "metrics_snapshot", "created_at", "approved_at", "rolled_back_at",
		}).AddRow(
			"entry-1", "approval", "script_patch", "pending", "Rework opener", "early hangups rising",
			[]byte(`{"weight":40}`), []byte(`{"weight":0}`), []byte(`{}`),
			created, (*time.Time)(nil), (*time.Time)(nil),
		))

	entries, err := s.ListChangelogEntries(context.Background(), ChangelogFilter{Status: model.ChangeStatusPending})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ChangeStatusPending, entries[0].Status)
	assert.Equal(t, "Rework opener", entries[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}
