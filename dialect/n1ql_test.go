package dialect_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biyonik/go-couch-helper/dialect"
)

// mockBuilder implements dialect.QueryBuilder for testing.
type mockBuilder struct {
	keyspace dialect.Keyspace
	columns  []string
	distinct bool
	wheres   []dialect.WhereClause
	limit    *int
	offset   *int
}

func (m *mockBuilder) GetKeyspace() dialect.Keyspace    { return m.keyspace }
func (m *mockBuilder) GetColumns() []string             { return m.columns }
func (m *mockBuilder) IsDistinct() bool                 { return m.distinct }
func (m *mockBuilder) GetWheres() []dialect.WhereClause { return m.wheres }
func (m *mockBuilder) GetLimit() *int                   { return m.limit }
func (m *mockBuilder) GetOffset() *int                  { return m.offset }

func intPtr(n int) *int { return &n }

func TestN1QLGrammar_Name(t *testing.T) {
	assert.Equal(t, "n1ql", dialect.N1QL().Name())
}

func TestN1QLGrammar_Wrap(t *testing.T) {
	g := dialect.N1QL()

	tests := []struct {
		name   string
		column string
		want   string
	}{
		{"plain", "callsign", "callsign"},
		{"star", "*", "*"},
		{"reserved", "value", "`value`"},
		{"dash", "first-name", "`first-name`"},
		{"dotted", "geo.lat", "geo.lat"},
		{"dotted reserved", "meta.path", "meta.`path`"},
		{"alias star", "a.*", "a.*"},
		{"expression", "COUNT(*) AS total", "COUNT(*) AS total"},
		{"already escaped", "`type`", "`type`"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Wrap(tt.column))
		})
	}
}

func TestN1QLGrammar_WrapKeyspace(t *testing.T) {
	g := dialect.N1QL()

	tests := []struct {
		name string
		ks   dialect.Keyspace
		want string
	}{
		{"bucket only", dialect.Keyspace{Bucket: "travel-sample"}, "`travel-sample`"},
		{"explicit defaults", dialect.Keyspace{Bucket: "b", Scope: "_default", Collection: "_default"}, "`b`"},
		{"full path", dialect.Keyspace{Bucket: "travel-sample", Scope: "inventory", Collection: "airport"}, "`travel-sample`.`inventory`.`airport`"},
		{"scope only", dialect.Keyspace{Bucket: "b", Scope: "inventory"}, "`b`.`inventory`.`_default`"},
		{"collection only", dialect.Keyspace{Bucket: "b", Collection: "airport"}, "`b`.`_default`.`airport`"},
		{"backtick in name", dialect.Keyspace{Bucket: "a`b"}, "`a``b`"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.WrapKeyspace(tt.ks)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := g.WrapKeyspace(dialect.Keyspace{Scope: "inventory"})
	assert.ErrorIs(t, err, dialect.ErrNoBucket)
}

func TestN1QLGrammar_Placeholder(t *testing.T) {
	g := dialect.N1QL()
	assert.Equal(t, "$1", g.Placeholder(1))
	assert.Equal(t, "$12", g.Placeholder(12))
}

func TestN1QLGrammar_CompileSelect(t *testing.T) {
	g := dialect.N1QL()
	travel := dialect.Keyspace{Bucket: "travel-sample"}

	tests := []struct {
		name     string
		builder  *mockBuilder
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "select all",
			builder:  &mockBuilder{},
			wantSQL:  "SELECT * FROM `travel-sample`",
			wantArgs: []any{},
		},
		{
			name:     "columns",
			builder:  &mockBuilder{columns: []string{"callsign", "value"}},
			wantSQL:  "SELECT callsign, `value` FROM `travel-sample`",
			wantArgs: []any{},
		},
		{
			name:     "distinct",
			builder:  &mockBuilder{columns: []string{"country"}, distinct: true},
			wantSQL:  "SELECT DISTINCT country FROM `travel-sample`",
			wantArgs: []any{},
		},
		{
			name: "single where",
			builder: &mockBuilder{wheres: []dialect.WhereClause{
				{Boolean: dialect.WhereBooleanAnd, Fragment: "city=", Value: "San Jose"},
			}},
			wantSQL:  "SELECT * FROM `travel-sample` WHERE city=$1",
			wantArgs: []any{"San Jose"},
		},
		{
			name: "first combinator is never rendered",
			builder: &mockBuilder{wheres: []dialect.WhereClause{
				{Boolean: dialect.WhereBooleanOr, Fragment: "city=", Value: "San Jose"},
			}},
			wantSQL:  "SELECT * FROM `travel-sample` WHERE city=$1",
			wantArgs: []any{"San Jose"},
		},
		{
			name: "flat chain keeps call order",
			builder: &mockBuilder{wheres: []dialect.WhereClause{
				{Boolean: dialect.WhereBooleanAnd, Fragment: "a=", Value: 1},
				{Boolean: dialect.WhereBooleanAnd, Fragment: "b=", Value: 2},
				{Boolean: dialect.WhereBooleanOr, Fragment: "c=", Value: 3},
			}},
			wantSQL:  "SELECT * FROM `travel-sample` WHERE a=$1 AND b=$2 OR c=$3",
			wantArgs: []any{1, 2, 3},
		},
		{
			name: "fragment with spaces is verbatim",
			builder: &mockBuilder{wheres: []dialect.WhereClause{
				{Boolean: dialect.WhereBooleanAnd, Fragment: "geo.alt >= ", Value: 100},
			}},
			wantSQL:  "SELECT * FROM `travel-sample` WHERE geo.alt >= $1",
			wantArgs: []any{100},
		},
		{
			name:     "limit and offset",
			builder:  &mockBuilder{limit: intPtr(10), offset: intPtr(20)},
			wantSQL:  "SELECT * FROM `travel-sample` LIMIT 10 OFFSET 20",
			wantArgs: []any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := g.CompileSelect(tt.builder, travel)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			if diff := cmp.Diff(tt.wantArgs, args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestN1QLGrammar_CompileSelect_NoBucket(t *testing.T) {
	_, _, err := dialect.N1QL().CompileSelect(&mockBuilder{}, dialect.Keyspace{})
	assert.ErrorIs(t, err, dialect.ErrNoBucket)
}

func TestKeyspace_Resolve(t *testing.T) {
	session := dialect.Keyspace{Bucket: "travel-sample", Scope: "inventory", Collection: "route"}

	got := dialect.Keyspace{Collection: "airport"}.Resolve(session)
	assert.Equal(t, dialect.Keyspace{Bucket: "travel-sample", Scope: "inventory", Collection: "airport"}, got)

	got = dialect.Keyspace{Bucket: "beer-sample"}.Resolve(session)
	assert.Equal(t, dialect.Keyspace{Bucket: "beer-sample", Scope: "inventory", Collection: "route"}, got)
}
