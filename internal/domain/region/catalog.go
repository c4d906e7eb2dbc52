// Package region provides the canonical region catalog and alias resolution.
//
// The catalog defines the universe of tracked regions: canonical country
// names, their provinces/states, and the raw spellings that map onto them.
// It is built once from the embedded default table plus any configured
// overrides and is read-only afterwards.
package region

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/okian/epiwatch/internal/domain/model"
)

//go:embed aliases.yaml
var defaultTable []byte

// Table is the on-disk shape of an alias table.
type Table struct {
	Regions []CountryEntry `yaml:"regions"`
}

// CountryEntry declares one canonical country, its aliases, and provinces.
type CountryEntry struct {
	Country   string          `yaml:"country"`
	Aliases   []string        `yaml:"aliases"`
	Provinces []ProvinceEntry `yaml:"provinces"`
}

// ProvinceEntry declares one canonical province under a country.
type ProvinceEntry struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

type builder struct {
	tables []Table
	files  []string
}

// Catalog resolves raw region names to canonical regions. Read-only after
// construction; safe for concurrent use.
type Catalog struct {
	countries map[string]model.Region   // normalized canonical country -> region
	aliases   map[string]model.Region   // normalized alias -> region
	provinces map[string][]model.Region // canonical country -> sorted provinces
}

// NewCatalog builds a catalog from the embedded defaults plus any options.
// Later tables merge over earlier ones: new countries are added, aliases and
// provinces of already-known countries are appended.
func NewCatalog(opts ...Option) (*Catalog, error) {
	var b builder
	for _, opt := range opts {
		opt(&b)
	}

	var base Table
	if err := yaml.Unmarshal(defaultTable, &base); err != nil {
		return nil, fmt.Errorf("%w: embedded defaults: %v", ErrBadAliasTable, err)
	}
	tables := []Table{base}

	for _, path := range b.files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadAliasTable, path, err)
		}
		var t Table
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadAliasTable, path, err)
		}
		tables = append(tables, t)
	}
	tables = append(tables, b.tables...)

	c := &Catalog{
		countries: make(map[string]model.Region),
		aliases:   make(map[string]model.Region),
		provinces: make(map[string][]model.Region),
	}
	for _, t := range tables {
		if err := c.merge(t); err != nil {
			return nil, err
		}
	}
	for country := range c.provinces {
		provs := c.provinces[country]
		sort.Slice(provs, func(i, j int) bool { return provs[i].Province < provs[j].Province })
	}
	return c, nil
}

func (c *Catalog) merge(t Table) error {
	for _, entry := range t.Regions {
		if entry.Country == "" {
			return fmt.Errorf("%w: entry with empty country name", ErrBadAliasTable)
		}
		country := model.Region{Country: entry.Country}
		key := model.NormalizeName(entry.Country)
		c.countries[key] = country
		// Canonical country spellings always resolve to the country, even
		// if an earlier province alias claimed the same key.
		c.aliases[key] = country
		for _, alias := range entry.Aliases {
			c.addAlias(alias, country)
		}
		for _, p := range entry.Provinces {
			if p.Name == "" {
				return fmt.Errorf("%w: empty province under %q", ErrBadAliasTable, entry.Country)
			}
			prov := model.Region{Country: entry.Country, Province: p.Name}
			if !c.hasProvince(entry.Country, p.Name) {
				c.provinces[entry.Country] = append(c.provinces[entry.Country], prov)
			}
			c.addAlias(p.Name, prov)
			for _, alias := range p.Aliases {
				c.addAlias(alias, prov)
			}
		}
	}
	return nil
}

func (c *Catalog) addAlias(raw string, r model.Region) {
	key := model.NormalizeName(raw)
	if key == "" {
		return
	}
	// First registration wins; collisions across tables are operator error
	// and resolving them deterministically beats silently flip-flopping.
	if _, ok := c.aliases[key]; ok {
		return
	}
	c.aliases[key] = r
}

func (c *Catalog) hasProvince(country, province string) bool {
	for _, p := range c.provinces[country] {
		if p.Province == province {
			return true
		}
	}
	return false
}

// Resolve maps a raw user-supplied name to a canonical region.
// Returns ErrUnknownRegion when no alias matches.
func (c *Catalog) Resolve(raw string) (model.Region, error) {
	key := model.NormalizeName(raw)
	if key == "" {
		return model.Region{}, fmt.Errorf("%w: empty name", ErrUnknownRegion)
	}
	if r, ok := c.aliases[key]; ok {
		return r, nil
	}
	return model.Region{}, fmt.Errorf("%w: %q", ErrUnknownRegion, raw)
}

// ResolveRow maps a feed row's country and optional province cells to a
// canonical region. Countries must be catalogued; province spellings are
// canonicalized when aliased and otherwise kept verbatim under the resolved
// country, since upstream province lists churn faster than any alias table.
func (c *Catalog) ResolveRow(countryRaw, provinceRaw string) (model.Region, error) {
	key := model.NormalizeName(countryRaw)
	if key == "" {
		return model.Region{}, fmt.Errorf("%w: row without country", ErrUnknownRegion)
	}
	country, ok := c.aliases[key]
	if !ok || !country.IsCountry() {
		return model.Region{}, fmt.Errorf("%w: %q", ErrUnknownRegion, countryRaw)
	}
	if provinceRaw == "" {
		return country, nil
	}
	if r, ok := c.aliases[model.NormalizeName(provinceRaw)]; ok && r.Country == country.Country && !r.IsCountry() {
		return r, nil
	}
	return model.Region{Country: country.Country, Province: provinceRaw}, nil
}

// List returns the regions under a country: the country-level entry first,
// then catalogued provinces in lexical order.
func (c *Catalog) List(country string) ([]model.Region, error) {
	r, err := c.Resolve(country)
	if err != nil {
		return nil, err
	}
	if !r.IsCountry() {
		r = model.Region{Country: r.Country}
	}
	out := []model.Region{r}
	out = append(out, c.provinces[r.Country]...)
	return out, nil
}

// IsSubEntry reports whether a region rolls up into a country-level
// aggregate and must therefore be excluded from country rankings and
// global totals when a country-level row exists.
func (c *Catalog) IsSubEntry(r model.Region) bool {
	return !r.IsCountry()
}

// Countries returns all canonical country names in lexical order.
func (c *Catalog) Countries() []string {
	out := make([]string, 0, len(c.countries))
	for _, r := range c.countries {
		out = append(out, r.Country)
	}
	sort.Strings(out)
	return out
}
