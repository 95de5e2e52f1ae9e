package changetrail

import (
	"fmt"
	"maps"
	"slices"
)

// Summary maps a field key to a human-readable description of how it changed.
type Summary map[string]string

// Fields returns the changed field keys in sorted order.
func (s Summary) Fields() []string {
	return slices.Sorted(maps.Keys(s))
}

// Lines returns the descriptions ordered by field key.
func (s Summary) Lines() []string {
	out := make([]string, 0, len(s))
	for _, k := range s.Fields() {
		out = append(out, s[k])
	}
	return out
}

// Builder produces change summaries from an old record and a partial update.
// A Builder is immutable once created and safe for concurrent use.
type Builder struct {
	equal   EqualFunc
	display DisplayFunc
	redact  RedactMap
	strict  bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithEqual sets the comparison used to decide whether a field changed.
func WithEqual(fn EqualFunc) Option {
	return func(b *Builder) {
		if fn != nil {
			b.equal = fn
		}
	}
}

// WithDisplay sets how values are rendered in descriptions.
func WithDisplay(fn DisplayFunc) Option {
	return func(b *Builder) {
		if fn != nil {
			b.display = fn
		}
	}
}

// WithRedact masks values of the given keys in descriptions.
// Comparison still uses the raw values.
func WithRedact(m RedactMap) Option {
	return func(b *Builder) {
		b.redact = m
	}
}

// Strict makes the builder reject patch keys missing from the old record.
func Strict() Option {
	return func(b *Builder) {
		b.strict = true
	}
}

// NewBuilder creates a Builder. By default values are compared with DeepEqual,
// rendered with DisplayString, and unknown patch keys are skipped.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		equal:   DeepEqual,
		display: DisplayString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var defaultBuilder = NewBuilder()

// Build returns the summary of fields in patch whose values differ from old.
// Keys absent from old are skipped.
func Build(old, patch map[string]any) Summary {
	s, _ := defaultBuilder.Build(old, patch)
	return s
}

// BuildFrom is Build for structs, pointers to structs, or maps with string keys.
func BuildFrom(old, patch any) (Summary, error) {
	return defaultBuilder.BuildFrom(old, patch)
}

// Build returns the summary of fields in patch whose values differ from old.
func (b *Builder) Build(old, patch map[string]any) (Summary, error) {
	out := make(Summary)
	if len(patch) == 0 {
		return out, nil
	}
	for _, key := range slices.Sorted(maps.Keys(patch)) {
		before, ok := old[key]
		if !ok {
			if b.strict {
				return nil, &UnknownFieldError{Field: key}
			}
			continue
		}
		after := patch[key]
		if b.equal(before, after) {
			continue
		}
		out[key] = b.describe(key, before, after)
	}
	return out, nil
}

// BuildFrom extracts fields from old and patch and builds their summary.
// Struct fields are keyed by their json tag name, or the Go field name when
// untagged. Nil pointer, map, slice and interface fields of patch are absent.
func (b *Builder) BuildFrom(old, patch any) (Summary, error) {
	oldFields, err := fieldsOf("old", old, false)
	if err != nil {
		return nil, err
	}
	patchFields, err := fieldsOf("patch", patch, true)
	if err != nil {
		return nil, err
	}
	return b.Build(oldFields, patchFields)
}

func (b *Builder) describe(key string, before, after any) string {
	if fn, ok := b.redact[key]; ok && fn != nil {
		before, after = fn(key, before), fn(key, after)
	}
	return fmt.Sprintf(`%s was updated from "%s" to "%s"`, capitalize(key), b.display(before), b.display(after))
}
