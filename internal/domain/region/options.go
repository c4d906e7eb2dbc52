package region

// Option applies a configuration option to the Catalog builder.
type Option func(*builder)

// WithTable merges an alias table over the built-in defaults.
func WithTable(t Table) Option {
	return func(b *builder) {
		b.tables = append(b.tables, t)
	}
}

// WithTableFile queues a YAML alias-table file to merge over the defaults.
func WithTableFile(path string) Option {
	return func(b *builder) {
		if path != "" {
			b.files = append(b.files, path)
		}
	}
}
