// Package memdriver is an in-memory implementation of the driver contract.
// It keeps documents per bucket/scope/collection, records every query it is
// asked to run and answers them through a pluggable handler. Tests and the
// couchq --memory mode use it in place of a live cluster.
package memdriver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/biyonik/go-couch-helper/driver"
)

const defaultName = "_default"

// QueryHandler answers a N1QL statement. Each returned value becomes one row.
type QueryHandler func(ctx context.Context, statement string, opts driver.QueryOptions) ([]any, error)

// ViewHandler answers a view query.
type ViewHandler func(ctx context.Context, bucket, designDoc, view string, opts driver.ViewOptions) ([]driver.ViewRow, error)

// RecordedQuery is a statement the cluster was asked to execute.
type RecordedQuery struct {
	Statement string
	Options   driver.QueryOptions
}

// Option configures a Cluster.
type Option func(*Cluster)

// WithQueryHandler sets the function answering queries.
func WithQueryHandler(h QueryHandler) Option {
	return func(c *Cluster) { c.queryHandler = h }
}

// WithViewHandler sets the function answering view queries.
func WithViewHandler(h ViewHandler) Option {
	return func(c *Cluster) { c.viewHandler = h }
}

// WithClock overrides the time source used for document expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cluster) { c.now = now }
}

// WithReadyError makes WaitUntilReady fail with err.
func WithReadyError(err error) Option {
	return func(c *Cluster) { c.readyErr = err }
}

// StaticRows returns a handler that answers every query with rows.
func StaticRows(rows ...any) QueryHandler {
	return func(context.Context, string, driver.QueryOptions) ([]any, error) {
		return rows, nil
	}
}

// Cluster is an in-memory cluster. It is safe for concurrent use.
type Cluster struct {
	mu      sync.RWMutex
	buckets map[string]*bucketData
	queries []RecordedQuery
	closed  bool
	cas     uint64

	connStr  string
	connOpts driver.ConnectOptions

	queryHandler QueryHandler
	viewHandler  ViewHandler
	readyErr     error
	now          func() time.Time
}

var _ driver.Cluster = (*Cluster)(nil)

// New creates an empty cluster.
func New(opts ...Option) *Cluster {
	c := &Cluster{
		buckets: make(map[string]*bucketData),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connector returns a connector that always hands out c.
func (c *Cluster) Connector() driver.Connector {
	return driver.ConnectorFunc(func(_ context.Context, connStr string, opts driver.ConnectOptions) (driver.Cluster, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.closed = false
		c.connStr = connStr
		c.connOpts = opts
		return c, nil
	})
}

// ConnectionString returns the connection string of the last Connect.
func (c *Cluster) ConnectionString() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connStr
}

// ConnectOptions returns the options of the last Connect.
func (c *Cluster) ConnectOptions() driver.ConnectOptions {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connOpts
}

// Queries returns the statements executed so far.
func (c *Cluster) Queries() []RecordedQuery {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]RecordedQuery, len(c.queries))
	copy(out, c.queries)
	return out
}

// Len returns the number of live documents in a collection.
func (c *Cluster) Len(bucket, scope, collection string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.buckets[bucket]
	if !ok {
		return 0
	}
	docs := b.scopes[scope][collection]
	n := 0
	for _, e := range docs {
		if !e.expired(c.now()) {
			n++
		}
	}
	return n
}

// Bucket returns the named bucket, creating it on first use.
func (c *Cluster) Bucket(name string) driver.Bucket {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bucketLocked(name)
	return &bucket{c: c, name: name}
}

func (c *Cluster) bucketLocked(name string) *bucketData {
	b, ok := c.buckets[name]
	if !ok {
		b = newBucketData()
		c.buckets[name] = b
	}
	return b
}

// Query records the statement and answers it through the query handler.
func (c *Cluster) Query(ctx context.Context, statement string, opts driver.QueryOptions) (driver.Rows, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, driver.ErrClosed
	}
	c.queries = append(c.queries, RecordedQuery{Statement: statement, Options: opts})
	h := c.queryHandler
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h == nil {
		return &rows{}, nil
	}
	values, err := h(ctx, statement, opts)
	if err != nil {
		return nil, err
	}
	r := &rows{}
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, "encode row")
		}
		r.data = append(r.data, raw)
	}
	return r, nil
}

// WaitUntilReady returns the configured readiness error, if any.
func (c *Cluster) WaitUntilReady(ctx context.Context, _ time.Duration, _ ...driver.ServiceType) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return driver.ErrClosed
	}
	return c.readyErr
}

// CreateBucket creates an empty bucket.
func (c *Cluster) CreateBucket(_ context.Context, settings driver.BucketSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.buckets[settings.Name]; ok {
		return driver.ErrBucketExists
	}
	c.buckets[settings.Name] = newBucketData()
	return nil
}

// Connected reports whether the cluster is open.
func (c *Cluster) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Close marks the cluster closed. Data is kept for the next Connect.
func (c *Cluster) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type entry struct {
	raw     []byte
	cas     uint64
	expires time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

type bucketData struct {
	scopes map[string]map[string]map[string]entry
}

func newBucketData() *bucketData {
	return &bucketData{
		scopes: map[string]map[string]map[string]entry{
			defaultName: {defaultName: {}},
		},
	}
}

type bucket struct {
	c    *Cluster
	name string
}

func (b *bucket) Name() string { return b.name }

func (b *bucket) Scope(name string) driver.Scope {
	return &scope{c: b.c, bucket: b.name, name: name}
}

func (b *bucket) DefaultScope() driver.Scope {
	return b.Scope(defaultName)
}

func (b *bucket) DefaultCollection() driver.Collection {
	return b.DefaultScope().Collection(defaultName)
}

func (b *bucket) CreateScope(_ context.Context, name string) error {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	data := b.c.bucketLocked(b.name)
	if _, ok := data.scopes[name]; ok {
		return driver.ErrScopeExists
	}
	data.scopes[name] = map[string]map[string]entry{}
	return nil
}

func (b *bucket) CreateCollection(_ context.Context, scopeName, name string) error {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	data := b.c.bucketLocked(b.name)
	s, ok := data.scopes[scopeName]
	if !ok {
		s = map[string]map[string]entry{}
		data.scopes[scopeName] = s
	}
	if _, ok := s[name]; ok {
		return driver.ErrCollectionExists
	}
	s[name] = map[string]entry{}
	return nil
}

func (b *bucket) Ping(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return b.c.Connected(), nil
}

func (b *bucket) ViewQuery(ctx context.Context, designDoc, view string, opts driver.ViewOptions) (driver.ViewResult, error) {
	b.c.mu.RLock()
	h := b.c.viewHandler
	b.c.mu.RUnlock()

	res := &viewResult{}
	if h == nil {
		return res, nil
	}
	all, err := h(ctx, b.name, designDoc, view, opts)
	if err != nil {
		return nil, err
	}
	res.total = uint64(len(all))
	start := min(int(opts.Skip), len(all))
	end := len(all)
	if opts.Limit > 0 {
		end = min(start+int(opts.Limit), end)
	}
	res.rows = all[start:end]
	return res, nil
}

type viewResult struct {
	rows  []driver.ViewRow
	total uint64
}

func (v *viewResult) TotalRows() (uint64, bool) { return v.total, true }
func (v *viewResult) Rows() []driver.ViewRow    { return v.rows }

type scope struct {
	c      *Cluster
	bucket string
	name   string
}

func (s *scope) Name() string { return s.name }

func (s *scope) Collection(name string) driver.Collection {
	return &collection{c: s.c, bucket: s.bucket, scope: s.name, name: name}
}

type collection struct {
	c      *Cluster
	bucket string
	scope  string
	name   string
}

func (c *collection) Name() string { return c.name }

// docsLocked returns the document map of the collection, creating the
// keyspace on first use. Callers hold c.c.mu.
func (c *collection) docsLocked() map[string]entry {
	data := c.c.bucketLocked(c.bucket)
	s, ok := data.scopes[c.scope]
	if !ok {
		s = map[string]map[string]entry{}
		data.scopes[c.scope] = s
	}
	docs, ok := s[c.name]
	if !ok {
		docs = map[string]entry{}
		s[c.name] = docs
	}
	return docs
}

func (c *collection) Get(ctx context.Context, key string, _ driver.GetOptions) (driver.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.c.mu.Lock()
	defer c.c.mu.Unlock()
	docs := c.docsLocked()
	e, ok := docs[key]
	if !ok || e.expired(c.c.now()) {
		delete(docs, key)
		return nil, errors.Wrapf(driver.ErrDocumentNotFound, "key %q", key)
	}
	return &document{key: key, e: e}, nil
}

func (c *collection) Insert(ctx context.Context, key string, value any, opts driver.MutationOptions) (driver.MutationResult, error) {
	return c.write(ctx, key, value, opts, func(exists bool) error {
		if exists {
			return errors.Wrapf(driver.ErrDocumentExists, "key %q", key)
		}
		return nil
	})
}

func (c *collection) Upsert(ctx context.Context, key string, value any, opts driver.MutationOptions) (driver.MutationResult, error) {
	return c.write(ctx, key, value, opts, func(bool) error { return nil })
}

func (c *collection) Replace(ctx context.Context, key string, value any, opts driver.MutationOptions) (driver.MutationResult, error) {
	return c.write(ctx, key, value, opts, func(exists bool) error {
		if !exists {
			return errors.Wrapf(driver.ErrDocumentNotFound, "key %q", key)
		}
		return nil
	})
}

func (c *collection) write(ctx context.Context, key string, value any, opts driver.MutationOptions, check func(exists bool) error) (driver.MutationResult, error) {
	if err := ctx.Err(); err != nil {
		return driver.MutationResult{}, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return driver.MutationResult{}, errors.Wrapf(err, "encode %q", key)
	}

	c.c.mu.Lock()
	defer c.c.mu.Unlock()
	docs := c.docsLocked()
	now := c.c.now()
	old, ok := docs[key]
	if err := check(ok && !old.expired(now)); err != nil {
		return driver.MutationResult{}, err
	}

	c.c.cas++
	e := entry{raw: raw, cas: c.c.cas}
	if opts.Expiry > 0 {
		e.expires = now.Add(opts.Expiry)
	}
	docs[key] = e
	return driver.MutationResult{Cas: e.cas}, nil
}

func (c *collection) Remove(ctx context.Context, key string, _ driver.MutationOptions) (driver.MutationResult, error) {
	if err := ctx.Err(); err != nil {
		return driver.MutationResult{}, err
	}
	c.c.mu.Lock()
	defer c.c.mu.Unlock()
	docs := c.docsLocked()
	e, ok := docs[key]
	if !ok || e.expired(c.c.now()) {
		delete(docs, key)
		return driver.MutationResult{}, errors.Wrapf(driver.ErrDocumentNotFound, "key %q", key)
	}
	delete(docs, key)
	c.c.cas++
	return driver.MutationResult{Cas: c.c.cas}, nil
}

type document struct {
	key string
	e   entry
}

func (d *document) Key() string { return d.key }
func (d *document) Cas() uint64 { return d.e.cas }

func (d *document) Content(valuePtr any) error {
	return json.Unmarshal(d.e.raw, valuePtr)
}

type rows struct {
	data [][]byte
	pos  int
	cur  []byte
	done bool
}

func (r *rows) Next() bool {
	if r.done || r.pos >= len(r.data) {
		r.done = true
		r.cur = nil
		return false
	}
	r.cur = r.data[r.pos]
	r.pos++
	return true
}

func (r *rows) Row(valuePtr any) error {
	if r.cur == nil {
		return errors.New("memdriver: Row called without a successful Next")
	}
	return json.Unmarshal(r.cur, valuePtr)
}

func (r *rows) Err() error { return nil }

func (r *rows) Close() error {
	r.done = true
	r.cur = nil
	return nil
}
