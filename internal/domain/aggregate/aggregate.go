// Package aggregate computes derived metrics and rankings from snapshots.
//
// Everything here is a pure function of an immutable snapshot plus the
// catalog, so repeated calls on the same inputs return identical output.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/okian/epiwatch/internal/domain/model"
	"github.com/okian/epiwatch/internal/domain/region"
)

// Totals is a cross-region sum. Complete is false whenever an unknown field
// was excluded from any sum, so callers can warn rather than present a
// partial figure as exact.
type Totals struct {
	Confirmed int64
	Deaths    int64
	Recovered int64
	Active    int64
	Countries int
	Complete  bool
}

// MetricsFor returns the metric set recorded for a region.
func MetricsFor(snap *model.Snapshot, r model.Region) (model.MetricSet, error) {
	m, ok := snap.Metrics(r)
	if !ok {
		return model.MetricSet{}, fmt.Errorf("%w: %s", ErrNotFound, r)
	}
	return m, nil
}

// countryFigure is a per-country rollup used by totals and rankings.
type countryFigure struct {
	country  string
	metrics  model.MetricSet
	complete bool
}

// rollup collapses the snapshot to one figure per country. A country-level
// row wins outright; otherwise province rows are summed, excluding unknown
// fields from the sums and clearing the complete flag when they occur.
func rollup(snap *model.Snapshot, cat *region.Catalog) []countryFigure {
	type acc struct {
		countryRow *model.MetricSet
		sum        model.MetricSet
		sawUnknown bool
		sawAny     bool
	}
	accs := make(map[string]*acc)

	// Sums start unknown and only become known once a known value
	// contributes, so a field no province reports stays unknown instead
	// of collapsing to a known zero.
	addField := func(dst, src model.Metric, unknown *bool) model.Metric {
		if !src.Known {
			*unknown = true
			return dst
		}
		if !dst.Known {
			return model.Count(src.Value)
		}
		return model.Count(dst.Value + src.Value)
	}

	for _, r := range snap.Regions() {
		m, _ := snap.Metrics(r)
		a := accs[r.Country]
		if a == nil {
			a = &acc{}
			accs[r.Country] = a
		}
		if !cat.IsSubEntry(r) {
			row := m
			a.countryRow = &row
			continue
		}
		a.sawAny = true
		a.sum.Confirmed = addField(a.sum.Confirmed, m.Confirmed, &a.sawUnknown)
		a.sum.Deaths = addField(a.sum.Deaths, m.Deaths, &a.sawUnknown)
		a.sum.Recovered = addField(a.sum.Recovered, m.Recovered, &a.sawUnknown)
		a.sum.Active = addField(a.sum.Active, m.Active, &a.sawUnknown)
		if m.AsOf.After(a.sum.AsOf) {
			a.sum.AsOf = m.AsOf
		}
	}

	out := make([]countryFigure, 0, len(accs))
	for country, a := range accs {
		f := countryFigure{country: country}
		switch {
		case a.countryRow != nil:
			f.metrics = *a.countryRow
			f.complete = a.countryRow.Confirmed.Known &&
				a.countryRow.Deaths.Known && a.countryRow.Recovered.Known
		case a.sawAny:
			f.metrics = a.sum
			f.complete = !a.sawUnknown
		default:
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].country < out[j].country })
	return out
}

// CountryMetrics returns the rolled-up figure for one country: the
// country-level row when the snapshot has one, else the sum of its
// province rows.
func CountryMetrics(snap *model.Snapshot, cat *region.Catalog, country string) (model.MetricSet, error) {
	for _, f := range rollup(snap, cat) {
		if f.country == country {
			return f.metrics, nil
		}
	}
	return model.MetricSet{}, fmt.Errorf("%w: %s", ErrNotFound, country)
}

// GlobalTotals sums all country-level rollups. Province rows that roll up
// into their country are never double-counted.
func GlobalTotals(snap *model.Snapshot, cat *region.Catalog) Totals {
	t := Totals{Complete: true}
	for _, f := range rollup(snap, cat) {
		t.Countries++
		if !f.complete {
			t.Complete = false
		}
		if f.metrics.Confirmed.Known {
			t.Confirmed += f.metrics.Confirmed.Value
		} else {
			t.Complete = false
		}
		if f.metrics.Deaths.Known {
			t.Deaths += f.metrics.Deaths.Value
		}
		if f.metrics.Recovered.Known {
			t.Recovered += f.metrics.Recovered.Value
		}
		if f.metrics.Active.Known {
			t.Active += f.metrics.Active.Value
		}
	}
	return t
}

// Rank returns country-level ranking entries ordered by confirmed count
// descending, ties broken by country name ascending. Pagination is 1-based:
// start names the first rank to return. Countries whose confirmed count is
// wholly unknown are excluded.
func Rank(snap *model.Snapshot, cat *region.Catalog, start, limit int) ([]model.RankingEntry, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	if start < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStart, start)
	}

	figures := rollup(snap, cat)
	ranked := figures[:0]
	for _, f := range figures {
		if f.metrics.Confirmed.Known {
			ranked = append(ranked, f)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.metrics.Confirmed.Value != b.metrics.Confirmed.Value {
			return a.metrics.Confirmed.Value > b.metrics.Confirmed.Value
		}
		return a.country < b.country
	})

	if start > len(ranked) {
		return []model.RankingEntry{}, nil
	}
	end := start - 1 + limit
	if end > len(ranked) {
		end = len(ranked)
	}
	out := make([]model.RankingEntry, 0, end-start+1)
	for i := start - 1; i < end; i++ {
		out = append(out, model.RankingEntry{
			Region:    model.Region{Country: ranked[i].country},
			Confirmed: ranked[i].metrics.Confirmed.Value,
			Rank:      i + 1,
		})
	}
	return out, nil
}

// RankProvinces ranks province-level rows by confirmed count descending,
// ties broken by region key ascending. Provinces with unknown confirmed
// counts are excluded.
func RankProvinces(snap *model.Snapshot, cat *region.Catalog, limit int) ([]model.RankingEntry, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	var provs []struct {
		region    model.Region
		confirmed int64
	}
	for _, r := range snap.Regions() {
		if !cat.IsSubEntry(r) {
			continue
		}
		m, _ := snap.Metrics(r)
		if !m.Confirmed.Known {
			continue
		}
		provs = append(provs, struct {
			region    model.Region
			confirmed int64
		}{r, m.Confirmed.Value})
	}
	sort.SliceStable(provs, func(i, j int) bool {
		if provs[i].confirmed != provs[j].confirmed {
			return provs[i].confirmed > provs[j].confirmed
		}
		return provs[i].region.Key() < provs[j].region.Key()
	})
	if limit > len(provs) {
		limit = len(provs)
	}
	out := make([]model.RankingEntry, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, model.RankingEntry{
			Region:    provs[i].region,
			Confirmed: provs[i].confirmed,
			Rank:      i + 1,
		})
	}
	return out, nil
}

// CountryRank returns the 1-based rank position of a country, or ErrNotFound
// when the country is absent or its confirmed count is unknown.
func CountryRank(snap *model.Snapshot, cat *region.Catalog, country string) (int, error) {
	entries, err := Rank(snap, cat, 1, snap.Len())
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.Region.Country == country {
			return e.Rank, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrNotFound, country)
}
