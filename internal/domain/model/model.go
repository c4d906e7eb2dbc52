// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Region identifies a tracked country or a province/state within one.
// An empty Province denotes the country-level aggregate.
type Region struct {
	Country  string
	Province string
}

// Key returns a stable sort key unique per (country, province) pair.
func (r Region) Key() string {
	return r.Country + "|" + r.Province
}

// IsCountry reports whether the region is a country-level entry.
func (r Region) IsCountry() bool {
	return r.Province == ""
}

func (r Region) String() string {
	if r.Province == "" {
		return r.Country
	}
	return fmt.Sprintf("%s, %s", r.Province, r.Country)
}

// Metric is a single non-negative count with an explicit unknown sentinel.
// The zero value is "unknown", never zero-the-number.
type Metric struct {
	Value int64
	Known bool
}

// Count returns a known metric.
func Count(v int64) Metric {
	return Metric{Value: v, Known: true}
}

// Unknown returns an unknown metric.
func Unknown() Metric {
	return Metric{}
}

// Rate is a non-negative rational metric with an unknown sentinel.
type Rate struct {
	Value float64
	Known bool
}

// MetricSet holds one region's figures as of a snapshot timestamp.
type MetricSet struct {
	Confirmed    Metric
	Deaths       Metric
	Recovered    Metric
	Active       Metric
	IncidentRate Rate
	AsOf         time.Time
}

// DeriveActive fills Active from confirmed - deaths - recovered when the
// source reported all three but no active count of its own. Negative results
// are left unknown rather than clamped.
func (m *MetricSet) DeriveActive() {
	if m.Active.Known {
		return
	}
	if !m.Confirmed.Known || !m.Deaths.Known || !m.Recovered.Known {
		return
	}
	if v := m.Confirmed.Value - m.Deaths.Value - m.Recovered.Value; v >= 0 {
		m.Active = Count(v)
	}
}

// Equal compares field-wise on values and known-ness. AsOf is excluded so a
// re-published identical row does not count as a change.
func (m MetricSet) Equal(other MetricSet) bool {
	return m.Confirmed == other.Confirmed &&
		m.Deaths == other.Deaths &&
		m.Recovered == other.Recovered &&
		m.Active == other.Active &&
		m.IncidentRate == other.IncidentRate
}

// Snapshot is one fetched-and-parsed dataset. It is immutable after
// construction and superseded, never mutated, by the next fetch.
type Snapshot struct {
	timestamp time.Time
	regions   map[Region]MetricSet
	warnings  []string
}

// NewSnapshot builds a snapshot from a region map. The map is copied; the
// caller keeps no handle into the snapshot's state.
func NewSnapshot(ts time.Time, regions map[Region]MetricSet, warnings []string) *Snapshot {
	rs := make(map[Region]MetricSet, len(regions))
	for r, m := range regions {
		rs[r] = m
	}
	return &Snapshot{
		timestamp: ts,
		regions:   rs,
		warnings:  append([]string(nil), warnings...),
	}
}

// Timestamp returns when the snapshot's data is as-of.
func (s *Snapshot) Timestamp() time.Time {
	return s.timestamp
}

// Metrics returns the metric set for a region, if present.
func (s *Snapshot) Metrics(r Region) (MetricSet, bool) {
	m, ok := s.regions[r]
	return m, ok
}

// Regions returns all regions in the snapshot ordered by key.
func (s *Snapshot) Regions() []Region {
	out := make([]Region, 0, len(s.regions))
	for r := range s.regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Len returns the number of regions carried by the snapshot.
func (s *Snapshot) Len() int {
	return len(s.regions)
}

// Warnings returns parse warnings recorded while building the snapshot.
func (s *Snapshot) Warnings() []string {
	return append([]string(nil), s.warnings...)
}

// RankingEntry is a derived row of a confirmed-count ranking. Never stored.
type RankingEntry struct {
	Region    Region
	Confirmed int64
	Rank      int
}

// Subscription is a durable (subscriber, region) watch with the metric set
// the subscriber was last notified about, or nil before the first delivery.
type Subscription struct {
	SubscriberID string
	Region       Region
	LastNotified *MetricSet
	NotifiedAt   time.Time
}

// NormalizeName lowercases and collapses whitespace for alias lookups.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}
