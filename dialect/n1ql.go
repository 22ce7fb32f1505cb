package dialect

import (
	"strconv"
	"strings"

	"github.com/biyonik/go-couch-helper/internal/validation"
)

// N1QLGrammar, Couchbase SQL++ (N1QL) için Grammar arayüzünü uygular.
//
// Sütunları ve keyspace adlarını backtick ile kaçırır, parametreleri $1..$n
// konumsal yer tutucuları olarak üretir. Predicate parçaları ayrıştırılmaz,
// olduğu gibi yazılır.
//
// @author Ahmet ALTUN
// @github github.com/biyonik
// @linkedin linkedin.com/in/biyonik
// @email ahmet.altun60@gmail.com
type N1QLGrammar struct{}

// N1QL returns the N1QL grammar.
func N1QL() *N1QLGrammar {
	return &N1QLGrammar{}
}

var _ Grammar = (*N1QLGrammar)(nil)

// Name returns "n1ql".
func (g *N1QLGrammar) Name() string {
	return "n1ql"
}

// Wrap escapes a projected column. "*" and expressions are returned as is;
// dotted paths are escaped element by element, and only the elements that
// are reserved words or not plain identifiers get backticks.
func (g *N1QLGrammar) Wrap(column string) string {
	if column == "*" || validation.IsExpression(column) {
		return column
	}

	parts := strings.Split(column, ".")
	for i, part := range parts {
		if part != "*" && validation.NeedsEscape(part) {
			parts[i] = escape(part)
		}
	}
	return strings.Join(parts, ".")
}

// WrapKeyspace renders `bucket` or `bucket`.`scope`.`collection`.
// N1QL has no two-part keyspace, so a half-specified scope/collection pair
// is completed with _default.
func (g *N1QLGrammar) WrapKeyspace(ks Keyspace) (string, error) {
	if ks.Bucket == "" {
		return "", ErrNoBucket
	}
	if ks.IsDefaultCollection() {
		return escape(ks.Bucket), nil
	}

	scope, collection := ks.Scope, ks.Collection
	if scope == "" {
		scope = DefaultName
	}
	if collection == "" {
		collection = DefaultName
	}
	return escape(ks.Bucket) + "." + escape(scope) + "." + escape(collection), nil
}

// Placeholder returns the positional parameter $index.
func (g *N1QLGrammar) Placeholder(index int) string {
	return "$" + strconv.Itoa(index)
}

// CompileSelect compiles a SELECT statement. Clauses are emitted in call
// order and joined strictly left to right; no grouping is added.
func (g *N1QLGrammar) CompileSelect(b QueryBuilder, ks Keyspace) (string, []any, error) {
	from, err := g.WrapKeyspace(ks)
	if err != nil {
		return "", nil, err
	}

	var sql strings.Builder
	args := make([]any, 0, len(b.GetWheres()))

	sql.WriteString("SELECT ")
	if b.IsDistinct() {
		sql.WriteString("DISTINCT ")
	}

	columns := b.GetColumns()
	if len(columns) == 0 {
		sql.WriteString("*")
	} else {
		wrapped := make([]string, len(columns))
		for i, col := range columns {
			wrapped[i] = g.Wrap(col)
		}
		sql.WriteString(strings.Join(wrapped, ", "))
	}

	sql.WriteString(" FROM ")
	sql.WriteString(from)

	if wheres := b.GetWheres(); len(wheres) > 0 {
		whereSQL, whereArgs := g.compileWheres(wheres)
		sql.WriteString(" WHERE ")
		sql.WriteString(whereSQL)
		args = append(args, whereArgs...)
	}

	if limit := b.GetLimit(); limit != nil {
		sql.WriteString(" LIMIT ")
		sql.WriteString(strconv.Itoa(*limit))
	}
	if offset := b.GetOffset(); offset != nil {
		sql.WriteString(" OFFSET ")
		sql.WriteString(strconv.Itoa(*offset))
	}

	return sql.String(), args, nil
}

func (g *N1QLGrammar) compileWheres(wheres []WhereClause) (string, []any) {
	var sql strings.Builder
	args := make([]any, 0, len(wheres))

	for i, where := range wheres {
		if i > 0 {
			sql.WriteString(" ")
			sql.WriteString(where.Boolean.String())
			sql.WriteString(" ")
		}
		args = append(args, where.Value)
		sql.WriteString(where.Fragment)
		sql.WriteString(g.Placeholder(len(args)))
	}

	return sql.String(), args
}

func escape(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
