package couchhelper

import (
	"context"
	"strings"

	"github.com/biyonik/go-couch-helper/dialect"
)

// Builder, N1QL SELECT sorgularını akıcı bir arayüz (fluent interface) ile
// oluşturup bir kez çalıştırmak için kullanılan ana yapıdır.
//
// Zincirdeki her metot aynı builder'ı değiştirir ve aynı işaretçiyi döndürür;
// zincir kopyalar dizisi değil, paylaşılan değişken durumdur. Builder örnekleri
// **concurrent-safe** değildir; her sorgu için yeni bir builder oluşturulmalıdır.
//
// Genel kullanım örneği:
//
//	rows, err := session.Query().
//	    Select("callsign").
//	    From("travel-sample", "inventory", "airport").
//	    Where("city=", "San Jose").
//	    OrWhere("city=", "New York").
//	    Rows(ctx)
//
// "city=" gibi predicate parçaları çağıranın metnidir: ayrıştırılmadan olduğu
// gibi yazılır ve ardından değere bağlanan konumsal bir parametre gelir.
// Predicate'ler çağrı sırasını korur ve gruplama olmadan soldan sağa birleşir.
//
// @author Ahmet ALTUN
// @github github.com/biyonik
// @linkedin linkedin.com/in/biyonik
// @email ahmet.altun60@gmail.com
type Builder struct {
	executor QueryExecutor
	grammar  dialect.Grammar

	target   dialect.Keyspace
	columns  []string
	distinct bool
	wheres   []dialect.WhereClause
	limit    *int
	offset   *int

	consumed bool
}

var _ dialect.QueryBuilder = (*Builder)(nil)

// NewBuilder, verilen executor ve grammar ile yeni bir Builder oluşturur.
// Yalnızca ToN1QL kullanılacaksa executor nil olabilir.
func NewBuilder(executor QueryExecutor, grammar dialect.Grammar) *Builder {
	if grammar == nil {
		grammar = dialect.N1QL()
	}
	return &Builder{
		executor: executor,
		grammar:  grammar,
	}
}

// Select sets the projected columns, replacing any earlier Select. With no
// columns the query selects *. A single argument containing commas is split,
// so Select("a, b") equals Select("a", "b").
func (b *Builder) Select(columns ...string) *Builder {
	if len(columns) == 1 && strings.Contains(columns[0], ",") && !strings.Contains(columns[0], "(") {
		columns = strings.Split(columns[0], ",")
	}

	b.columns = make([]string, 0, len(columns))
	for _, c := range columns {
		if c = strings.TrimSpace(c); c != "" {
			b.columns = append(b.columns, c)
		}
	}
	return b
}

// Distinct toggles SELECT DISTINCT.
func (b *Builder) Distinct(distinct bool) *Builder {
	b.distinct = distinct
	return b
}

// From sets the bucket and optionally the scope and collection. Omitted parts
// fall back to the session's selection at render time; the session itself is
// never changed.
func (b *Builder) From(bucket string, path ...string) *Builder {
	b.target = dialect.Keyspace{Bucket: bucket}
	if len(path) > 0 {
		b.target.Scope = path[0]
	}
	if len(path) > 1 {
		b.target.Collection = path[1]
	}
	return b
}

// Where appends a predicate. After the first predicate it joins with AND.
func (b *Builder) Where(fragment string, value any) *Builder {
	return b.addWhere(dialect.WhereBooleanAnd, fragment, value)
}

// AndWhere appends a predicate joined with AND.
func (b *Builder) AndWhere(fragment string, value any) *Builder {
	return b.addWhere(dialect.WhereBooleanAnd, fragment, value)
}

// OrWhere appends a predicate joined with OR.
func (b *Builder) OrWhere(fragment string, value any) *Builder {
	return b.addWhere(dialect.WhereBooleanOr, fragment, value)
}

func (b *Builder) addWhere(boolean dialect.WhereBoolean, fragment string, value any) *Builder {
	b.wheres = append(b.wheres, dialect.WhereClause{
		Boolean:  boolean,
		Fragment: fragment,
		Value:    value,
	})
	return b
}

// Limit sets LIMIT.
func (b *Builder) Limit(n int) *Builder {
	b.limit = &n
	return b
}

// Offset sets OFFSET.
func (b *Builder) Offset(n int) *Builder {
	b.offset = &n
	return b
}

// Skip is an alias for Offset.
func (b *Builder) Skip(n int) *Builder {
	return b.Offset(n)
}

// When applies fn when condition is true.
func (b *Builder) When(condition bool, fn func(*Builder)) *Builder {
	if condition {
		fn(b)
	}
	return b
}

// Unless is the inverse of When.
func (b *Builder) Unless(condition bool, fn func(*Builder)) *Builder {
	return b.When(!condition, fn)
}

// Keyspace returns the target after falling back to the session selection.
func (b *Builder) Keyspace() dialect.Keyspace {
	if b.executor == nil {
		return b.target
	}
	return b.target.Resolve(b.executor.DefaultKeyspace())
}

// ToN1QL renders the statement and its positional parameters. It has no
// side effects and returns the same output on every call.
func (b *Builder) ToN1QL() (string, []any, error) {
	ks := b.Keyspace()
	if ks.Bucket == "" {
		return "", nil, ErrBucketNotSet
	}
	return b.grammar.CompileSelect(b, ks)
}

// Rows renders the statement and executes it. A builder runs at most once:
// later calls return ErrBuilderConsumed without reaching the client. Client
// errors are returned unmodified.
func (b *Builder) Rows(ctx context.Context) (*Rows, error) {
	if b.consumed {
		return nil, ErrBuilderConsumed
	}
	if b.executor == nil {
		return nil, ErrNoExecutor
	}

	statement, args, err := b.ToN1QL()
	if err != nil {
		return nil, err
	}
	b.consumed = true

	rows, err := b.executor.QueryContext(ctx, statement, args)
	if err != nil {
		return nil, err
	}
	return newRows(rows), nil
}

// All executes the query and collects every row.
func (b *Builder) All(ctx context.Context) ([]map[string]any, error) {
	rows, err := b.Rows(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for row, err := range rows.All() {
		if err != nil {
			return out, err
		}
		out = append(out, row)
	}
	return out, nil
}

// GetKeyspace returns the unresolved target set by From.
func (b *Builder) GetKeyspace() dialect.Keyspace {
	return b.target
}

// GetColumns returns the projected columns.
func (b *Builder) GetColumns() []string {
	return b.columns
}

// IsDistinct reports whether DISTINCT is set.
func (b *Builder) IsDistinct() bool {
	return b.distinct
}

// GetWheres returns the predicates in call order.
func (b *Builder) GetWheres() []dialect.WhereClause {
	return b.wheres
}

// GetLimit returns the LIMIT value, or nil.
func (b *Builder) GetLimit() *int {
	return b.limit
}

// GetOffset returns the OFFSET value, or nil.
func (b *Builder) GetOffset() *int {
	return b.offset
}
