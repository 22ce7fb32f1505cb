// Package gocbdriver adapts the Couchbase Go SDK (gocb v2) to the driver
// contract.
package gocbdriver

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/couchbase/gocb/v2"

	"github.com/biyonik/go-couch-helper/driver"
)

// Connector opens gocb clusters.
type Connector struct{}

var _ driver.Connector = Connector{}

// Connect builds gocb cluster options and connects. gocb connects lazily;
// callers are expected to WaitUntilReady before the first operation.
func (Connector) Connect(_ context.Context, connStr string, o driver.ConnectOptions) (driver.Cluster, error) {
	opts := gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: o.Username,
			Password: o.Password,
		},
		TimeoutsConfig: gocb.TimeoutsConfig{
			ConnectTimeout: o.ConnectTimeout,
			KVTimeout:      o.KVTimeout,
			QueryTimeout:   o.QueryTimeout,
			ViewTimeout:    o.QueryTimeout,
		},
	}
	if o.WANDevelopment {
		if err := opts.ApplyProfile(gocb.ClusterConfigProfileWanDevelopment); err != nil {
			return nil, errors.Wrap(err, "apply wan_development profile")
		}
	}

	c, err := gocb.Connect(connStr, opts)
	if err != nil {
		return nil, mapError(err)
	}
	return &cluster{c: c}, nil
}

type cluster struct {
	c      *gocb.Cluster
	closed atomic.Bool
}

func (c *cluster) Bucket(name string) driver.Bucket {
	return &bucket{b: c.c.Bucket(name)}
}

func (c *cluster) Query(ctx context.Context, statement string, o driver.QueryOptions) (driver.Rows, error) {
	if c.closed.Load() {
		return nil, driver.ErrClosed
	}
	opts := &gocb.QueryOptions{
		PositionalParameters: o.PositionalParameters,
		NamedParameters:      o.NamedParameters,
		Timeout:              o.Timeout,
		ClientContextID:      o.ClientContextID,
		Readonly:             o.Readonly,
		Context:              ctx,
	}
	if o.ScanConsistency == driver.RequestPlus {
		opts.ScanConsistency = gocb.QueryScanConsistencyRequestPlus
	}

	res, err := c.c.Query(statement, opts)
	if err != nil {
		return nil, mapError(err)
	}
	return res, nil
}

func (c *cluster) WaitUntilReady(ctx context.Context, timeout time.Duration, services ...driver.ServiceType) error {
	opts := &gocb.WaitUntilReadyOptions{Context: ctx}
	for _, s := range services {
		opts.ServiceTypes = append(opts.ServiceTypes, serviceType(s))
	}
	return mapError(c.c.WaitUntilReady(timeout, opts))
}

func (c *cluster) CreateBucket(ctx context.Context, s driver.BucketSettings) error {
	err := c.c.Buckets().CreateBucket(gocb.CreateBucketSettings{
		BucketSettings: gocb.BucketSettings{
			Name:         s.Name,
			RAMQuotaMB:   s.RAMQuotaMB,
			NumReplicas:  s.NumReplicas,
			FlushEnabled: s.FlushEnabled,
			BucketType:   gocb.CouchbaseBucketType,
		},
	}, &gocb.CreateBucketOptions{Context: ctx})
	return mapError(err)
}

func (c *cluster) Connected() bool {
	return !c.closed.Load()
}

func (c *cluster) Close(context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.c.Close(nil)
}

type bucket struct {
	b *gocb.Bucket
}

func (b *bucket) Name() string { return b.b.Name() }

func (b *bucket) Scope(name string) driver.Scope {
	return &scope{s: b.b.Scope(name)}
}

func (b *bucket) DefaultScope() driver.Scope {
	return &scope{s: b.b.DefaultScope()}
}

func (b *bucket) DefaultCollection() driver.Collection {
	return &collection{c: b.b.DefaultCollection()}
}

func (b *bucket) CreateScope(ctx context.Context, name string) error {
	return mapError(b.b.Collections().CreateScope(name, &gocb.CreateScopeOptions{Context: ctx}))
}

func (b *bucket) CreateCollection(ctx context.Context, scopeName, name string) error {
	spec := gocb.CollectionSpec{Name: name, ScopeName: scopeName}
	return mapError(b.b.Collections().CreateCollection(spec, &gocb.CreateCollectionOptions{Context: ctx}))
}

func (b *bucket) Ping(ctx context.Context) (bool, error) {
	res, err := b.b.Ping(&gocb.PingOptions{Context: ctx})
	if err != nil {
		return false, mapError(err)
	}
	for _, reports := range res.Services {
		for _, r := range reports {
			if r.State != gocb.PingStateOk {
				return false, nil
			}
		}
	}
	return true, nil
}

func (b *bucket) ViewQuery(ctx context.Context, designDoc, view string, o driver.ViewOptions) (driver.ViewResult, error) {
	res, err := b.b.ViewQuery(designDoc, view, &gocb.ViewOptions{
		Limit:   o.Limit,
		Skip:    o.Skip,
		Timeout: o.Timeout,
		Context: ctx,
	})
	if err != nil {
		return nil, mapError(err)
	}

	out := &viewResult{}
	for res.Next() {
		row := res.Row()
		vr := driver.ViewRow{ID: row.ID}
		// keys and values are arbitrary JSON; a decode failure leaves them nil
		_ = row.Key(&vr.Key)
		_ = row.Value(&vr.Value)
		out.rows = append(out.rows, vr)
	}
	if err := res.Err(); err != nil {
		return nil, mapError(err)
	}
	// metadata is only readable once every row has been consumed
	if md, err := res.MetaData(); err == nil && md != nil {
		out.total, out.hasTotal = md.TotalRows, true
	}
	return out, nil
}

type viewResult struct {
	rows     []driver.ViewRow
	total    uint64
	hasTotal bool
}

func (v *viewResult) TotalRows() (uint64, bool) { return v.total, v.hasTotal }
func (v *viewResult) Rows() []driver.ViewRow    { return v.rows }

type scope struct {
	s *gocb.Scope
}

func (s *scope) Name() string { return s.s.Name() }

func (s *scope) Collection(name string) driver.Collection {
	return &collection{c: s.s.Collection(name)}
}

type collection struct {
	c *gocb.Collection
}

func (c *collection) Name() string { return c.c.Name() }

func (c *collection) Get(ctx context.Context, key string, o driver.GetOptions) (driver.Document, error) {
	res, err := c.c.Get(key, &gocb.GetOptions{Timeout: o.Timeout, Context: ctx})
	if err != nil {
		return nil, mapError(err)
	}
	return &document{key: key, res: res}, nil
}

func (c *collection) Insert(ctx context.Context, key string, value any, o driver.MutationOptions) (driver.MutationResult, error) {
	res, err := c.c.Insert(key, value, &gocb.InsertOptions{Expiry: o.Expiry, Timeout: o.Timeout, Context: ctx})
	return mutation(res, err)
}

func (c *collection) Upsert(ctx context.Context, key string, value any, o driver.MutationOptions) (driver.MutationResult, error) {
	res, err := c.c.Upsert(key, value, &gocb.UpsertOptions{Expiry: o.Expiry, Timeout: o.Timeout, Context: ctx})
	return mutation(res, err)
}

func (c *collection) Replace(ctx context.Context, key string, value any, o driver.MutationOptions) (driver.MutationResult, error) {
	res, err := c.c.Replace(key, value, &gocb.ReplaceOptions{Expiry: o.Expiry, Timeout: o.Timeout, Context: ctx})
	return mutation(res, err)
}

func (c *collection) Remove(ctx context.Context, key string, o driver.MutationOptions) (driver.MutationResult, error) {
	res, err := c.c.Remove(key, &gocb.RemoveOptions{Timeout: o.Timeout, Context: ctx})
	return mutation(res, err)
}

type document struct {
	key string
	res *gocb.GetResult
}

func (d *document) Key() string                { return d.key }
func (d *document) Cas() uint64                { return uint64(d.res.Cas()) }
func (d *document) Content(valuePtr any) error { return d.res.Content(valuePtr) }

func mutation(res *gocb.MutationResult, err error) (driver.MutationResult, error) {
	if err != nil {
		return driver.MutationResult{}, mapError(err)
	}
	return driver.MutationResult{Cas: uint64(res.Cas())}, nil
}

func serviceType(s driver.ServiceType) gocb.ServiceType {
	switch s {
	case driver.ServiceQuery:
		return gocb.ServiceTypeQuery
	case driver.ServiceViews:
		return gocb.ServiceTypeViews
	case driver.ServiceManagement:
		return gocb.ServiceTypeManagement
	default:
		return gocb.ServiceTypeKeyValue
	}
}

// mapError tags gocb errors with the matching driver sentinel. The gocb
// error stays intact, so its message and its own errors.Is targets survive.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gocb.ErrDocumentExists):
		return driver.WithSentinel(err, driver.ErrDocumentExists)
	case errors.Is(err, gocb.ErrDocumentNotFound):
		return driver.WithSentinel(err, driver.ErrDocumentNotFound)
	case errors.Is(err, gocb.ErrBucketExists):
		return driver.WithSentinel(err, driver.ErrBucketExists)
	case errors.Is(err, gocb.ErrBucketNotFound):
		return driver.WithSentinel(err, driver.ErrBucketNotFound)
	case errors.Is(err, gocb.ErrScopeExists):
		return driver.WithSentinel(err, driver.ErrScopeExists)
	case errors.Is(err, gocb.ErrCollectionExists):
		return driver.WithSentinel(err, driver.ErrCollectionExists)
	case errors.Is(err, gocb.ErrTimeout):
		return driver.WithSentinel(err, driver.ErrTimeout)
	}
	return err
}
