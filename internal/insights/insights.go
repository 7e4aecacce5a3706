// Package insights derives leaderboards and segment views from the same
// call-attempt records the scoreboard is computed from. All functions are
// pure; low-sample flags are advisory and never suppress the numbers.
package insights

import (
	"sort"

	"github.com/sells-group/funnel-optimizer/internal/config"
	"github.com/sells-group/funnel-optimizer/internal/metrics"
	"github.com/sells-group/funnel-optimizer/internal/model"
)

// openerAgg accumulates per-variant tallies in first-seen order.
type openerAgg struct {
	calls     int
	answered  int
	engaged   int
	discovery int
	closed    int
}

// OpenerLeaderboard ranks opener variants by engagement rate descending.
// Ties keep first-seen record order. Variants below the opener sample floor
// are flagged low-sample.
func OpenerLeaderboard(attempts []model.CallAttempt, policy config.PolicyConfig) []model.OpenerStanding {
	aggs := map[string]*openerAgg{}
	var order []string

	for _, a := range attempts {
		if a.OpenerVariant == "" {
			continue
		}
		agg, ok := aggs[a.OpenerVariant]
		if !ok {
			agg = &openerAgg{}
			aggs[a.OpenerVariant] = agg
			order = append(order, a.OpenerVariant)
		}
		agg.calls++
		if a.Answered() {
			agg.answered++
		}
		if a.Engaged() {
			agg.engaged++
		}
		if a.DiscoveryComplete() {
			agg.discovery++
		}
		if a.Outcome == model.OutcomeOrderClosed {
			agg.closed++
		}
	}

	standings := make([]model.OpenerStanding, 0, len(order))
	for _, tag := range order {
		agg := aggs[tag]
		standings = append(standings, model.OpenerStanding{
			Tag:            tag,
			Calls:          agg.calls,
			Answered:       agg.answered,
			AnsweredRate:   metrics.Rate(agg.answered, agg.calls),
			EngagementRate: metrics.Rate(agg.engaged, agg.answered),
			DiscoveryRate:  metrics.Rate(agg.discovery, agg.answered),
			CloseRate:      metrics.Rate(agg.closed, agg.answered),
			LowSample:      agg.calls < policy.OpenerSampleFloor,
		})
	}

	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].EngagementRate > standings[j].EngagementRate
	})
	return standings
}

// ObjectionLeaderboard counts detected objection tags, most frequent first.
// Share is relative to answered calls.
func ObjectionLeaderboard(attempts []model.CallAttempt) []model.ObjectionCount {
	counts := map[string]int{}
	var order []string
	answered := 0

	for _, a := range attempts {
		if a.Answered() {
			answered++
		}
		for _, obj := range a.Objections {
			if _, ok := counts[obj]; !ok {
				order = append(order, obj)
			}
			counts[obj]++
		}
	}

	out := make([]model.ObjectionCount, 0, len(order))
	for _, obj := range order {
		out = append(out, model.ObjectionCount{
			Objection: obj,
			Count:     counts[obj],
			Share:     metrics.Rate(counts[obj], answered),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// GatekeeperAnalysis summarizes pass-through performance: how often a
// gatekeeper was cleared, and how the cleared calls converted.
func GatekeeperAnalysis(attempts []model.CallAttempt) model.GatekeeperStats {
	var stats model.GatekeeperStats
	for _, a := range attempts {
		if !a.GatekeeperEncountered {
			continue
		}
		stats.Encounters++
		if a.GatekeeperPassed() {
			stats.Passes++
			if a.Outcome == model.OutcomeOrderClosed {
				stats.DecisionMakerCloses++
			}
		}
	}
	stats.PassRate = metrics.Rate(stats.Passes, stats.Encounters)
	stats.DecisionMakerCloseRate = metrics.Rate(stats.DecisionMakerCloses, stats.Passes)
	return stats
}

// LeadSourceBreakdown computes per-source funnel rates, best close rate
// first. Sources below the opener sample floor are flagged low-sample.
func LeadSourceBreakdown(attempts []model.CallAttempt, policy config.PolicyConfig) []model.LeadSourcePerformance {
	type srcAgg struct {
		calls    int
		answered int
		engaged  int
		closed   int
	}
	aggs := map[string]*srcAgg{}
	var order []string

	for _, a := range attempts {
		if a.LeadSource == "" {
			continue
		}
		agg, ok := aggs[a.LeadSource]
		if !ok {
			agg = &srcAgg{}
			aggs[a.LeadSource] = agg
			order = append(order, a.LeadSource)
		}
		agg.calls++
		if a.Answered() {
			agg.answered++
		}
		if a.Engaged() {
			agg.engaged++
		}
		if a.Outcome == model.OutcomeOrderClosed {
			agg.closed++
		}
	}

	out := make([]model.LeadSourcePerformance, 0, len(order))
	for _, src := range order {
		agg := aggs[src]
		out = append(out, model.LeadSourcePerformance{
			Source:         src,
			Calls:          agg.calls,
			Answered:       agg.answered,
			AnsweredRate:   metrics.Rate(agg.answered, agg.calls),
			EngagementRate: metrics.Rate(agg.engaged, agg.answered),
			CloseRate:      metrics.Rate(agg.closed, agg.answered),
			LowSample:      agg.calls < policy.OpenerSampleFloor,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CloseRate > out[j].CloseRate })
	return out
}

// SegmentBreakdown computes industry×region win analysis, best close rate
// first. Segments below the segment sample floor are flagged low-sample; the
// tighter geographic floor applies when a segment has no industry tag and is
// purely regional.
func SegmentBreakdown(attempts []model.CallAttempt, policy config.PolicyConfig) []model.SegmentPerformance {
	type key struct{ industry, region string }
	type segAgg struct {
		calls    int
		answered int
		engaged  int
		closed   int
	}
	aggs := map[key]*segAgg{}
	var order []key

	for _, a := range attempts {
		if a.Industry == "" && a.Region == "" {
			continue
		}
		k := key{a.Industry, a.Region}
		agg, ok := aggs[k]
		if !ok {
			agg = &segAgg{}
			aggs[k] = agg
			order = append(order, k)
		}
		agg.calls++
		if a.Answered() {
			agg.answered++
		}
		if a.Engaged() {
			agg.engaged++
		}
		if a.Outcome == model.OutcomeOrderClosed {
			agg.closed++
		}
	}

	out := make([]model.SegmentPerformance, 0, len(order))
	for _, k := range order {
		agg := aggs[k]
		floor := policy.SegmentSampleFloor
		if k.industry == "" {
			floor = policy.GeoSampleFloor
		}
		out = append(out, model.SegmentPerformance{
			Industry:       k.industry,
			Region:         k.region,
			Calls:          agg.calls,
			OrdersClosed:   agg.closed,
			CloseRate:      metrics.Rate(agg.closed, agg.answered),
			EngagementRate: metrics.Rate(agg.engaged, agg.answered),
			LowSample:      agg.calls < floor,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CloseRate > out[j].CloseRate })
	return out
}
