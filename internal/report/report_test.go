package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/funnel-optimizer/internal/model"
)

type memReportStore struct {
	reports map[string]model.OrchestratorReport
}

func (m *memReportStore) UpsertReport(_ context.Context, r model.OrchestratorReport) error {
	m.reports[string(r.Cadence)+"/"+r.Date] = r
	return nil
}

type memArtifacts struct {
	written map[string]string
	fail    bool
}

func (m *memArtifacts) Write(_ context.Context, cadence model.Cadence, date string, _ []byte, rendered string) error {
	if m.fail {
		return errors.New("bucket unavailable")
	}
	m.written[string(cadence)+"/"+date] = rendered
	return nil
}

func sampleReport() model.OrchestratorReport {
	return model.OrchestratorReport{
		ID:      "run-1",
		Cadence: model.CadenceDaily,
		Date:    "2026-03-02",
		Scoreboard: model.Scoreboard{
			Dialed: 100, Answered: 40, Engaged: 10, DiscoveryComplete: 5,
			ComparisonsSent: 2, OrdersClosed: 1,
			AnsweredRate: 40.0, EngagementRate: 25.0,
			DiscoveryCompletionRate: 12.5, ComparisonSentRate: 5.0, CloseRate: 2.5,
		},
		Bottleneck: model.BottleneckResult{Stage: "close_rate", DeltaPct: 3.0, Significant: true},
		AutoApplied: []model.ChangelogRef{
			{ID: "c1", Title: `Set opener "direct" weight to 40%`, Status: model.ChangeStatusApplied},
		},
		PendingApproval: []model.ChangelogRef{
			{ID: "c2", Title: "Rewrite opening line", Status: model.ChangeStatusPending},
		},
		Summary: model.Summary{
			Bullets:           []string{"100 calls dialed, 40 answered (40.0%)."},
			BiggestBottleneck: "close rate",
			BiggestWin:        "answer rate",
			RecommendedFocus:  "Tighten the comparison-to-close handoff.",
			Deltas: []model.StageDelta{
				{Stage: "close_rate", Today: 2.5, Trailing: 5.5, DeltaPct: -3.0},
			},
			Source: "fallback",
		},
		GeneratedAt: time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC),
	}
}

func TestPersist_WritesArtifactsThenRow(t *testing.T) {
	st := &memReportStore{reports: map[string]model.OrchestratorReport{}}
	art := &memArtifacts{written: map[string]string{}}
	b := New(st, art)

	require.NoError(t, b.Persist(context.Background(), sampleReport()))

	assert.Contains(t, art.written, "daily/2026-03-02")
	assert.Contains(t, st.reports, "daily/2026-03-02")
}

func TestPersist_ArtifactFailureLeavesNoRow(t *testing.T) {
	st := &memReportStore{reports: map[string]model.OrchestratorReport{}}
	art := &memArtifacts{written: map[string]string{}, fail: true}
	b := New(st, art)

	err := b.Persist(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Empty(t, st.reports)
}

func TestFormatReport_Sections(t *testing.T) {
	out := FormatReport(sampleReport())

	assert.Contains(t, out, "# Daily Funnel Report: 2026-03-02")
	assert.Contains(t, out, "- Answered: 40 (40.0%)")
	assert.Contains(t, out, "**close_rate** degraded 3.0 points")
	assert.Contains(t, out, "| close_rate | 2.5% | 5.5% | -3.0 |")
	assert.Contains(t, out, "[applied] Set opener")
	assert.Contains(t, out, "[awaiting approval] Rewrite opening line")
	assert.Contains(t, out, "Narrative source: fallback.")
}

func TestFormatReport_InsufficientData(t *testing.T) {
	r := sampleReport()
	r.Scoreboard = model.Scoreboard{}
	r.Bottleneck = model.BottleneckResult{InsufficientData: true}
	r.AutoApplied = nil
	r.PendingApproval = nil

	out := FormatReport(r)
	assert.Contains(t, out, "Insufficient data")
	assert.Contains(t, out, "No configuration changes this run.")
}
