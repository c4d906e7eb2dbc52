// Package snapshot turns raw tabular feed bytes into immutable snapshots.
//
// The upstream source drifts: columns move around and appear or disappear
// between publications. Columns are therefore identified by header name,
// never by position, and every numeric cell that fails to parse degrades to
// an unknown metric instead of aborting the snapshot.
package snapshot

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/okian/epiwatch/internal/domain/model"
	"github.com/okian/epiwatch/internal/domain/region"
)

// Header spellings accepted per column, normalized via canonHeader.
var (
	countryHeaders   = []string{"country_region", "country", "region"}
	provinceHeaders  = []string{"province_state", "province", "state"}
	confirmedHeaders = []string{"confirmed", "cases", "total_cases"}
	deathsHeaders    = []string{"deaths", "total_deaths"}
	recoveredHeaders = []string{"recovered", "total_recovered"}
	activeHeaders    = []string{"active"}
	rateHeaders      = []string{"incident_rate", "incidence_rate"}
	updatedHeaders   = []string{"last_update", "last_updated", "updated"}
)

// Parser builds snapshots, resolving each row's region via the catalog.
type Parser struct {
	catalog *region.Catalog
	now     func() time.Time
}

// NewParser creates a parser bound to a region catalog.
func NewParser(catalog *region.Catalog, opts ...Option) *Parser {
	p := &Parser{
		catalog: catalog,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type columns struct {
	country   int
	province  int
	confirmed int
	deaths    int
	recovered int
	active    int
	rate      int
	updated   int
}

// Parse decodes one CSV publication. A returned snapshot always carries at
// least one valid region; structurally broken input fails with ErrParse and
// input whose every row is unusable fails with ErrEmptySnapshot.
func (p *Parser) Parse(raw []byte) (*model.Snapshot, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing header row: %v", ErrParse, err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	regions := make(map[model.Region]model.MetricSet)
	var warnings []string
	var latest time.Time

	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		reg, err := p.catalog.ResolveRow(cell(record, cols.country), cell(record, cols.province))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		m := model.MetricSet{
			Confirmed:    parseCount(cell(record, cols.confirmed)),
			Deaths:       parseCount(cell(record, cols.deaths)),
			Recovered:    parseCount(cell(record, cols.recovered)),
			Active:       parseCount(cell(record, cols.active)),
			IncidentRate: parseRate(cell(record, cols.rate)),
		}
		if ts, ok := parseUpdated(cell(record, cols.updated)); ok {
			m.AsOf = ts
			if ts.After(latest) {
				latest = ts
			}
		}
		m.DeriveActive()

		if _, dup := regions[reg]; dup {
			warnings = append(warnings, fmt.Sprintf("line %d: duplicate region %s, keeping last row", line, reg))
		}
		regions[reg] = m
	}

	if len(regions) == 0 {
		return nil, fmt.Errorf("%w: %d rows skipped", ErrEmptySnapshot, len(warnings))
	}
	ts := latest
	if ts.IsZero() {
		ts = p.now()
	}
	return model.NewSnapshot(ts, regions, warnings), nil
}

func mapColumns(header []string) (columns, error) {
	cols := columns{
		country: -1, province: -1, confirmed: -1, deaths: -1,
		recovered: -1, active: -1, rate: -1, updated: -1,
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := canonHeader(h)
		if _, ok := index[key]; !ok {
			index[key] = i
		}
	}
	find := func(names []string) int {
		for _, n := range names {
			if i, ok := index[n]; ok {
				return i
			}
		}
		return -1
	}
	cols.country = find(countryHeaders)
	cols.province = find(provinceHeaders)
	cols.confirmed = find(confirmedHeaders)
	cols.deaths = find(deathsHeaders)
	cols.recovered = find(recoveredHeaders)
	cols.active = find(activeHeaders)
	cols.rate = find(rateHeaders)
	cols.updated = find(updatedHeaders)

	if cols.country < 0 {
		return cols, fmt.Errorf("%w: no country column in header %v", ErrParse, header)
	}
	if cols.confirmed < 0 && cols.deaths < 0 && cols.recovered < 0 {
		return cols, fmt.Errorf("%w: no metric columns in header %v", ErrParse, header)
	}
	return cols, nil
}

// canonHeader folds the header spelling variants the feed has shipped:
// case, surrounding space, and slash/space/dash separators.
func canonHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.Map(func(r rune) rune {
		switch r {
		case '/', ' ', '-':
			return '_'
		}
		return r
	}, h)
	return strings.Trim(h, "_")
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// parseCount reads a non-negative integer cell. The feed publishes counts
// both as integers and as floats ("1234.0"); anything else is unknown.
func parseCount(s string) model.Metric {
	if s == "" {
		return model.Unknown()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return model.Unknown()
	}
	return model.Count(int64(f))
}

func parseRate(s string) model.Rate {
	if s == "" {
		return model.Rate{}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return model.Rate{}
	}
	return model.Rate{Value: f, Known: true}
}

// parseUpdated accepts epoch milliseconds (the feed's native format) or
// RFC3339 timestamps.
func parseUpdated(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), true
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), true
	}
	return time.Time{}, false
}
