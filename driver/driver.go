// Package driver defines the contract between couchhelper and a Couchbase
// client. The root package only talks to these interfaces, so the real SDK
// adapter (gocbdriver) and the in-memory cluster (memdriver) are
// interchangeable.
//
// The shapes follow the SDK closely: a Cluster hands out Buckets, a Bucket
// hands out Scopes, a Scope hands out Collections, and N1QL queries run at
// the cluster level with positional parameters.
package driver

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// Sentinel errors every driver maps its native failures onto.
var (
	ErrDocumentExists   = errors.New("driver: document already exists")
	ErrDocumentNotFound = errors.New("driver: document not found")
	ErrBucketExists     = errors.New("driver: bucket already exists")
	ErrScopeExists      = errors.New("driver: scope already exists")
	ErrCollectionExists = errors.New("driver: collection already exists")
	ErrBucketNotFound   = errors.New("driver: bucket not found")
	ErrTimeout          = errors.New("driver: operation timed out")
	ErrClosed           = errors.New("driver: cluster closed")
)

// ServiceType names a cluster service a caller can wait on.
type ServiceType int

const (
	ServiceKeyValue ServiceType = iota
	ServiceQuery
	ServiceViews
	ServiceManagement
)

// String returns the service name.
func (s ServiceType) String() string {
	switch s {
	case ServiceKeyValue:
		return "kv"
	case ServiceQuery:
		return "query"
	case ServiceViews:
		return "views"
	case ServiceManagement:
		return "mgmt"
	default:
		return "unknown"
	}
}

// ScanConsistency controls index consistency for a query.
type ScanConsistency int

const (
	NotBounded ScanConsistency = iota
	RequestPlus
)

// ConnectOptions is everything needed to open a cluster.
type ConnectOptions struct {
	Username       string
	Password       string
	TLS            bool
	WANDevelopment bool
	ConnectTimeout time.Duration
	KVTimeout      time.Duration
	QueryTimeout   time.Duration
	ShowQueries    bool
}

// QueryOptions carries per-statement options.
type QueryOptions struct {
	PositionalParameters []any
	NamedParameters      map[string]any
	ScanConsistency      ScanConsistency
	Timeout              time.Duration
	ClientContextID      string
	Readonly             bool
}

// MutationOptions applies to Insert, Upsert, Replace and Remove.
type MutationOptions struct {
	Expiry  time.Duration
	Timeout time.Duration
}

// GetOptions applies to Get.
type GetOptions struct {
	Timeout time.Duration
}

// ViewOptions applies to map/reduce view queries.
type ViewOptions struct {
	Limit   uint32
	Skip    uint32
	Timeout time.Duration
}

// BucketSettings describes a bucket to create.
type BucketSettings struct {
	Name         string
	RAMQuotaMB   uint64
	NumReplicas  uint32
	FlushEnabled bool
}

// MutationResult is returned by every write.
type MutationResult struct {
	Cas uint64
}

// Connector opens clusters.
type Connector interface {
	Connect(ctx context.Context, connStr string, opts ConnectOptions) (Cluster, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, connStr string, opts ConnectOptions) (Cluster, error)

// Connect calls f.
func (f ConnectorFunc) Connect(ctx context.Context, connStr string, opts ConnectOptions) (Cluster, error) {
	return f(ctx, connStr, opts)
}

// Cluster is an open connection to a Couchbase cluster.
type Cluster interface {
	Bucket(name string) Bucket
	Query(ctx context.Context, statement string, opts QueryOptions) (Rows, error)
	WaitUntilReady(ctx context.Context, timeout time.Duration, services ...ServiceType) error
	CreateBucket(ctx context.Context, settings BucketSettings) error
	Connected() bool
	Close(ctx context.Context) error
}

// Bucket is a named bucket on a cluster.
type Bucket interface {
	Name() string
	Scope(name string) Scope
	DefaultScope() Scope
	DefaultCollection() Collection
	CreateScope(ctx context.Context, name string) error
	CreateCollection(ctx context.Context, scope, name string) error
	Ping(ctx context.Context) (bool, error)
	ViewQuery(ctx context.Context, designDoc, view string, opts ViewOptions) (ViewResult, error)
}

// Scope is a namespace inside a bucket.
type Scope interface {
	Name() string
	Collection(name string) Collection
}

// Collection holds documents addressed by key.
type Collection interface {
	Name() string
	Get(ctx context.Context, key string, opts GetOptions) (Document, error)
	Insert(ctx context.Context, key string, value any, opts MutationOptions) (MutationResult, error)
	Upsert(ctx context.Context, key string, value any, opts MutationOptions) (MutationResult, error)
	Replace(ctx context.Context, key string, value any, opts MutationOptions) (MutationResult, error)
	Remove(ctx context.Context, key string, opts MutationOptions) (MutationResult, error)
}

// Document is a fetched document.
type Document interface {
	Key() string
	Cas() uint64
	Content(valuePtr any) error
}

// Rows is a forward-only query result cursor.
type Rows interface {
	Next() bool
	Row(valuePtr any) error
	Err() error
	Close() error
}

// ViewRow is a single row of a view query.
type ViewRow struct {
	ID    string
	Key   any
	Value any
}

// ViewResult is the result of a view query.
type ViewResult interface {
	TotalRows() (uint64, bool)
	Rows() []ViewRow
}
