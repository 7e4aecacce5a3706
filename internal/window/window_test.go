package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/funnel-optimizer/internal/model"
)

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver("America/Chicago", 7)
	require.NoError(t, err)
	return r
}

func TestNewResolver_BadTimezone(t *testing.T) {
	_, err := NewResolver("Not/AZone", 7)
	require.Error(t, err)
}

func TestFor_Daily(t *testing.T) {
	r := newResolver(t)
	// 02:30 UTC on June 16 is still June 15 in Chicago.
	ref := time.Date(2025, 6, 16, 2, 30, 0, 0, time.UTC)

	w, err := r.For(model.CadenceDaily, ref)
	require.NoError(t, err)

	assert.Equal(t, "2025-06-15", r.DateLabel(w.Start))
	assert.Equal(t, 1, w.Days())
	assert.True(t, w.Contains(ref))
	assert.False(t, w.Contains(w.End))
}

func TestFor_Weekly(t *testing.T) {
	r := newResolver(t)
	ref := time.Date(2025, 6, 15, 12, 0, 0, 0, r.Location())

	w, err := r.For(model.CadenceWeekly, ref)
	require.NoError(t, err)
	assert.Equal(t, 7, w.Days())
	assert.Equal(t, "2025-06-09", r.DateLabel(w.Start))
	assert.True(t, w.Contains(ref))
}

func TestFor_Monthly(t *testing.T) {
	r := newResolver(t)
	ref := time.Date(2025, 6, 15, 12, 0, 0, 0, r.Location())

	w, err := r.For(model.CadenceMonthly, ref)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", r.DateLabel(w.Start))
	assert.Equal(t, "2025-07-01", r.DateLabel(w.End))
}

func TestTrailing(t *testing.T) {
	r := newResolver(t)
	ref := time.Date(2025, 6, 15, 12, 0, 0, 0, r.Location())

	primary, err := r.For(model.CadenceDaily, ref)
	require.NoError(t, err)

	trailing := r.Trailing(primary)
	assert.Equal(t, 7, trailing.Days())
	assert.Equal(t, primary.Start, trailing.End)
	assert.Equal(t, "2025-06-08", r.DateLabel(trailing.Start))
}

func TestParseDate(t *testing.T) {
	r := newResolver(t)
	d, err := r.ParseDate("2025-06-15")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15", r.DateLabel(d))

	_, err = r.ParseDate("June 15")
	require.Error(t, err)
}
