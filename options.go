package couchhelper

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/biyonik/go-couch-helper/dialect"
	"github.com/biyonik/go-couch-helper/driver"
)

// Option configures a Session.
type Option func(*Session)

// WithConnector sets the client used to open the cluster. The default is the
// Couchbase SDK adapter; tests pass an in-memory cluster's connector.
//
// Example:
//
//	mem := memdriver.New()
//	s, err := couchhelper.NewSession(cfg, couchhelper.WithConnector(mem.Connector()))
func WithConnector(c driver.Connector) Option {
	return func(s *Session) {
		s.connector = c
	}
}

// WithGrammar replaces the query grammar used by builders from this session.
func WithGrammar(g dialect.Grammar) Option {
	return func(s *Session) {
		s.grammar = g
	}
}

// WithLogger sets the session logger. Builders and helpers created from the
// session inherit it.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithDebug logs every executed statement with its parameters and duration
// at debug level.
func WithDebug(enabled bool) Option {
	return func(s *Session) {
		s.debug = enabled
	}
}

// WithTimeout overrides the timeouts from the configuration.
func WithTimeout(t Timeout) Option {
	return func(s *Session) {
		s.cfg.Timeout = t
	}
}

func applyOptions(s *Session, opts []Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
}

// HelperOption configures a Helper.
type HelperOption func(*Helper)

// WithDryRun makes mutations write <dir>/<key>.json instead of reaching the
// cluster. Reads still go to the cluster.
func WithDryRun(dir string) HelperOption {
	return func(h *Helper) {
		h.dryRun = true
		h.outputDir = dir
	}
}

// WithBatchConcurrency bounds the number of in-flight operations of the
// multi-key helpers. Values below one mean sequential.
func WithBatchConcurrency(n int) HelperOption {
	return func(h *Helper) {
		h.concurrency = max(n, 1)
	}
}

// WithHelperLogger sets the helper logger instead of inheriting the session's.
func WithHelperLogger(logger zerolog.Logger) HelperOption {
	return func(h *Helper) {
		h.logger = logger
	}
}

// MutationOption adjusts a single write.
type MutationOption func(*driver.MutationOptions)

// WithExpiry sets the document time-to-live.
func WithExpiry(d time.Duration) MutationOption {
	return func(o *driver.MutationOptions) {
		o.Expiry = d
	}
}

// WithMutationTimeout overrides the session key-value timeout for one call.
func WithMutationTimeout(d time.Duration) MutationOption {
	return func(o *driver.MutationOptions) {
		o.Timeout = d
	}
}

func buildMutationOptions(timeout time.Duration, opts []MutationOption) driver.MutationOptions {
	mo := driver.MutationOptions{Timeout: timeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&mo)
		}
	}
	return mo
}
