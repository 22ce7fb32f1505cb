// Package couchhelper reduces boilerplate around a Couchbase cluster: a
// Session that holds connection parameters and the selected keyspace, a
// Helper for single- and multi-document CRUD, and a small chainable builder
// for N1QL SELECT statements.
//
// # Sessions
//
// A Session is created from a Config and connected explicitly:
//
//	cfg, err := couchhelper.LoadConfig("couchq.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	s, err := couchhelper.Connect(ctx, cfg, couchhelper.WithLogger(logger))
//
// Timeouts are configured once on the session (Timeout.Connect, Timeout.KV,
// Timeout.Query) and apply to every operation issued through it.
//
// # Queries
//
// Builders accumulate a projection, a target keyspace and predicates:
//
//	rows, err := s.Query().
//	    Select("callsign").
//	    From("travel-sample", "inventory", "airport").
//	    Where("city=", "San Jose").
//	    OrWhere("city=", "New York").
//	    Rows(ctx)
//	if err != nil {
//	    return err
//	}
//	for row, err := range rows.All() {
//	    ...
//	}
//
// renders
//
//	SELECT callsign FROM `travel-sample`.`inventory`.`airport` WHERE city=$1 OR city=$2
//
// with ["San Jose", "New York"] as positional parameters. Predicate text is
// never parsed or reordered; values are never spliced into the statement.
// A builder executes once: a second Rows call returns ErrBuilderConsumed.
// ToN1QL renders without executing and may be called any number of times.
//
// # Documents
//
//	h, err := couchhelper.NewHelper(ctx, s)
//	_, err = h.Insert(ctx, "airline_10", doc, couchhelper.WithExpiry(time.Hour))
//	var got Airline
//	err = h.Get(ctx, "airline_10", &got)
//
// Multi-key helpers run with bounded concurrency and report per-key failures
// as a *BatchError.
//
// # Thread Safety
//
// Session and Helper are safe for concurrent use. Builder instances are NOT;
// create one per goroutine or query.
//
// # Drivers
//
// The root package talks to the cluster through the interfaces in package
// driver. gocbdriver adapts the Couchbase Go SDK and is the default;
// memdriver is an in-memory cluster for tests and offline use.
package couchhelper
