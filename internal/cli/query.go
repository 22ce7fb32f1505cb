package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	couchhelper "github.com/biyonik/go-couch-helper"
)

// queryFlags describe a builder chain on the command line.
type queryFlags struct {
	columns  []string
	from     string
	distinct bool
	limit    int
	offset   int
}

func (q *queryFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceVarP(&q.columns, "select", "s", nil, "projected columns (default *)")
	f.StringVarP(&q.from, "from", "f", "", "keyspace as bucket[.scope[.collection]]")
	f.BoolVar(&q.distinct, "distinct", false, "SELECT DISTINCT")
	f.IntVar(&q.limit, "limit", 0, "LIMIT (0 for none)")
	f.IntVar(&q.offset, "offset", 0, "OFFSET (0 for none)")
}

const predicateUsage = `Predicates are given as words after the flags:

  where FRAGMENT VALUE   first predicate, or AND after it
  and   FRAGMENT VALUE
  or    FRAGMENT VALUE

FRAGMENT is emitted verbatim (for example "city=" or "geo.alt >"). VALUE is
parsed as JSON when possible and taken as a string otherwise.`

// apply configures b from the flags and the predicate words.
func (q *queryFlags) apply(b *couchhelper.Builder, args []string) error {
	preds, err := parsePredicates(args)
	if err != nil {
		return err
	}

	if len(q.columns) > 0 {
		b.Select(q.columns...)
	}
	if q.from != "" {
		parts := strings.SplitN(q.from, ".", 3)
		b.From(parts[0], parts[1:]...)
	}
	b.Distinct(q.distinct)
	if q.limit > 0 {
		b.Limit(q.limit)
	}
	if q.offset > 0 {
		b.Offset(q.offset)
	}

	for _, p := range preds {
		switch p.combinator {
		case "or":
			b.OrWhere(p.fragment, p.value)
		case "and":
			b.AndWhere(p.fragment, p.value)
		default:
			b.Where(p.fragment, p.value)
		}
	}
	return nil
}

type predicate struct {
	combinator string
	fragment   string
	value      any
}

// parsePredicates reads (combinator, fragment, value) triples.
func parsePredicates(args []string) ([]predicate, error) {
	if len(args)%3 != 0 {
		return nil, errors.Newf("predicates come in triples (where|and|or FRAGMENT VALUE), got %d words", len(args))
	}

	preds := make([]predicate, 0, len(args)/3)
	for i := 0; i < len(args); i += 3 {
		comb := strings.ToLower(args[i])
		switch comb {
		case "where", "and", "or":
		default:
			return nil, errors.Newf("unknown combinator %q at word %d", args[i], i+1)
		}
		preds = append(preds, predicate{
			combinator: comb,
			fragment:   args[i+1],
			value:      parseValue(args[i+2]),
		})
	}
	return preds, nil
}

func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func newRenderCmd() *cobra.Command {
	q := &queryFlags{}
	cmd := &cobra.Command{
		Use:     "render [where|and|or FRAGMENT VALUE]...",
		Short:   "Print a N1QL statement and its parameters without running it",
		Long:    "Print a N1QL statement and its parameters without running it.\n\n" + predicateUsage,
		Example: `  couchq render -s callsign -f travel-sample.inventory.airport where city= "San Jose" or city= "New York"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b := couchhelper.New()
			if err := q.apply(b, args); err != nil {
				return err
			}
			statement, params, err := b.ToN1QL()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), statement)
			return printJSON(cmd.OutOrStdout(), params)
		},
	}
	q.register(cmd)
	return cmd
}

func newQueryCmd(opts *globalOptions) *cobra.Command {
	q := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query [where|and|or FRAGMENT VALUE]...",
		Short: "Run a N1QL SELECT and print rows as JSON lines",
		Long:  "Run a N1QL SELECT and print rows as JSON lines.\n\n" + predicateUsage,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.session(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = s.Disconnect(ctx) }()

			b := s.Query()
			if err := q.apply(b, args); err != nil {
				return err
			}
			rows, err := b.Rows(ctx)
			if err != nil {
				return err
			}
			for row, err := range rows.All() {
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), row); err != nil {
					return err
				}
			}
			return nil
		},
	}
	q.register(cmd)
	return cmd
}
