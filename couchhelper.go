package couchhelper

import (
	"context"

	"github.com/biyonik/go-couch-helper/dialect"
)

// Version is the library version.
const Version = "0.1.0-alpha"

// Connect creates a session from cfg and connects it.
//
// Example:
//
//	s, err := couchhelper.Connect(ctx, &couchhelper.Config{
//	    Host:     "localhost",
//	    Username: "Administrator",
//	    Password: "password",
//	    Bucket:   "travel-sample",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Disconnect(ctx)
func Connect(ctx context.Context, cfg *Config, opts ...Option) (*Session, error) {
	s, err := NewSession(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// New returns a builder with no session, for rendering only. Rows on it
// fails with ErrNoExecutor and the bucket must be given with From.
//
//	stmt, args, err := couchhelper.New().
//	    From("travel-sample").
//	    Where("city=", "San Jose").
//	    ToN1QL()
func New() *Builder {
	return NewBuilder(nil, dialect.N1QL())
}
