// Package window computes civil-date query windows in one named timezone.
// Boundaries run local-midnight to local-midnight and convert to the
// datastore's UTC representation through time.Time itself.
package window

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/funnel-optimizer/internal/model"
)

// Window is a half-open [Start, End) time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Days returns the window length in civil days.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours() / 24)
}

// Resolver computes cadence windows for a fixed timezone.
type Resolver struct {
	loc          *time.Location
	trailingDays int
}

// NewResolver loads the IANA timezone once. All window arithmetic for a run
// uses this single location.
func NewResolver(tz string, trailingDays int) (*Resolver, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, eris.Wrapf(err, "window: load timezone %s", tz)
	}
	if trailingDays <= 0 {
		trailingDays = 7
	}
	return &Resolver{loc: loc, trailingDays: trailingDays}, nil
}

// Location returns the resolver's timezone.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// DateLabel formats a time as the engine's civil date key.
func (r *Resolver) DateLabel(t time.Time) string {
	return t.In(r.loc).Format("2006-01-02")
}

// midnight truncates t to local midnight.
func (r *Resolver) midnight(t time.Time) time.Time {
	lt := t.In(r.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, r.loc)
}

// For resolves the primary window for a cadence ending at the civil date of
// ref. Daily covers that single day; weekly the trailing 7 days; monthly the
// calendar month containing ref.
func (r *Resolver) For(cadence model.Cadence, ref time.Time) (Window, error) {
	day := r.midnight(ref)
	switch cadence {
	case model.CadenceDaily:
		return Window{Start: day, End: day.AddDate(0, 0, 1)}, nil
	case model.CadenceWeekly:
		return Window{Start: day.AddDate(0, 0, -6), End: day.AddDate(0, 0, 1)}, nil
	case model.CadenceMonthly:
		lt := ref.In(r.loc)
		start := time.Date(lt.Year(), lt.Month(), 1, 0, 0, 0, 0, r.loc)
		return Window{Start: start, End: start.AddDate(0, 1, 0)}, nil
	}
	return Window{}, eris.Errorf("window: unknown cadence %q", cadence)
}

// Trailing resolves the baseline window: the configured number of civil days
// immediately before the primary window.
func (r *Resolver) Trailing(primary Window) Window {
	return Window{
		Start: primary.Start.AddDate(0, 0, -r.trailingDays),
		End:   primary.Start,
	}
}

// ParseDate parses an explicit YYYY-MM-DD date in the resolver's timezone.
func (r *Resolver) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, r.loc)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "window: parse date %s", s)
	}
	return t, nil
}
