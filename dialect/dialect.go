// Package dialect compiles builder state into query text for a specific
// query language. The builder only records clauses; a Grammar decides how
// they are quoted, how placeholders look and in which order clauses appear.
package dialect

import (
	"github.com/cockroachdb/errors"
)

// ----------------------------------------------------------------------------
// QueryBuilder Interface (breaks the import cycle with the root package)
// ----------------------------------------------------------------------------

// QueryBuilder is the read side of a builder, as seen by a Grammar.
type QueryBuilder interface {
	GetKeyspace() Keyspace
	GetColumns() []string
	IsDistinct() bool
	GetWheres() []WhereClause
	GetLimit() *int
	GetOffset() *int
}

// ----------------------------------------------------------------------------
// Grammar Interface
// ----------------------------------------------------------------------------

// Grammar turns builder state into a statement and its positional bindings.
type Grammar interface {
	// Name identifies the grammar ("n1ql").
	Name() string

	// Wrap quotes a column reference when the language requires it.
	Wrap(column string) string

	// WrapKeyspace renders a fully resolved keyspace path.
	WrapKeyspace(ks Keyspace) (string, error)

	// Placeholder returns the marker for the binding at index (1-based).
	Placeholder(index int) string

	// CompileSelect compiles a SELECT statement. ks is the resolved keyspace.
	CompileSelect(b QueryBuilder, ks Keyspace) (string, []any, error)
}

// ----------------------------------------------------------------------------
// Keyspace
// ----------------------------------------------------------------------------

// DefaultName is the name of the default scope and the default collection.
const DefaultName = "_default"

// Keyspace addresses documents: bucket ⊃ scope ⊃ collection.
// Empty parts are unset.
type Keyspace struct {
	Bucket     string
	Scope      string
	Collection string
}

// Resolve fills every unset part of k from fallback.
func (k Keyspace) Resolve(fallback Keyspace) Keyspace {
	if k.Bucket == "" {
		k.Bucket = fallback.Bucket
	}
	if k.Scope == "" {
		k.Scope = fallback.Scope
	}
	if k.Collection == "" {
		k.Collection = fallback.Collection
	}
	return k
}

// IsDefaultCollection reports whether scope and collection both address the
// default collection of the bucket.
func (k Keyspace) IsDefaultCollection() bool {
	return isDefault(k.Scope) && isDefault(k.Collection)
}

func isDefault(name string) bool {
	return name == "" || name == DefaultName
}

// ----------------------------------------------------------------------------
// WHERE Clause Types
// ----------------------------------------------------------------------------

// WhereBoolean joins a predicate to the one before it.
type WhereBoolean int

const (
	WhereBooleanAnd WhereBoolean = iota
	WhereBooleanOr
)

// String returns the keyword.
func (b WhereBoolean) String() string {
	if b == WhereBooleanOr {
		return "OR"
	}
	return "AND"
}

// WhereClause is one predicate. Fragment is caller text such as "city=" and
// is emitted verbatim, followed by a placeholder bound to Value.
type WhereClause struct {
	Boolean  WhereBoolean
	Fragment string
	Value    any
}

// ----------------------------------------------------------------------------
// Sentinel Errors
// ----------------------------------------------------------------------------

// ErrNoBucket is returned when neither the builder nor its defaults name a bucket.
var ErrNoBucket = errors.New("dialect: no bucket specified")
