package couchhelper

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/biyonik/go-couch-helper/driver"
)

// Sentinel errors for go-couch-helper.
// These errors can be checked using errors.Is().
var (
	// ErrClusterNotSet is returned when a bucket is selected before Connect.
	ErrClusterNotSet = errors.New("couchhelper: cluster not set")

	// ErrBucketNotSet is returned when an operation needs a bucket and none is
	// selected, or when a query names no bucket and the session has none.
	ErrBucketNotSet = errors.New("couchhelper: bucket not set")

	// ErrScopeNotSet is returned when a collection is selected without a scope.
	ErrScopeNotSet = errors.New("couchhelper: scope not set")

	// ErrNotConnected is returned by operations that need an open cluster.
	ErrNotConnected = errors.New("couchhelper: not connected")

	// ErrNoExecutor is returned when Rows is called on a builder created by New.
	ErrNoExecutor = errors.New("couchhelper: builder has no executor")

	// ErrBuilderConsumed is returned by a second Rows call on the same builder.
	ErrBuilderConsumed = errors.New("couchhelper: builder already executed")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("couchhelper: invalid config")
)

// Driver sentinels, re-exported so callers need not import the driver package.
var (
	ErrDocumentExists   = driver.ErrDocumentExists
	ErrDocumentNotFound = driver.ErrDocumentNotFound
	ErrTimeout          = driver.ErrTimeout
)

// WrapError annotates err with the failed operation. It returns nil for nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "couchhelper: %s", op)
}

// QueryError wraps a failed statement issued by the session helpers.
type QueryError struct {
	Op        string
	Statement string
	Args      []any
	Err       error
}

// NewQueryError creates a new QueryError with context.
func NewQueryError(op, statement string, args []any, err error) *QueryError {
	return &QueryError{
		Op:        op,
		Statement: statement,
		Args:      args,
		Err:       err,
	}
}

func (e *QueryError) Error() string {
	return "couchhelper: " + e.Op + " failed: " + e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// BatchError collects the per-key failures of a multi-key helper call.
// Keys missing from Failed succeeded.
type BatchError struct {
	Op     string
	Failed map[string]error
}

func (e *BatchError) Error() string {
	keys := e.Keys()
	if len(keys) > 3 {
		keys = append(keys[:3], "...")
	}
	return "couchhelper: " + e.Op + " failed for " + strconv.Itoa(len(e.Failed)) + " key(s): " + strings.Join(keys, ", ")
}

// Unwrap returns the individual failures so errors.Is matches any of them.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, k := range e.Keys() {
		errs = append(errs, e.Failed[k])
	}
	return errs
}

// Keys returns the failed keys in sorted order.
func (e *BatchError) Keys() []string {
	keys := make([]string, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsDocumentNotFound reports whether err is, or wraps, ErrDocumentNotFound.
func IsDocumentNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}

// IsDocumentExists reports whether err is, or wraps, ErrDocumentExists.
func IsDocumentExists(err error) bool {
	return errors.Is(err, ErrDocumentExists)
}
