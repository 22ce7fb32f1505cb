package couchhelper

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/biyonik/go-couch-helper/dialect"
	"github.com/biyonik/go-couch-helper/driver"
	"github.com/biyonik/go-couch-helper/driver/gocbdriver"
	"github.com/biyonik/go-couch-helper/internal/validation"
)

// QueryExecutor runs rendered statements for a Builder and supplies the
// keyspace a builder falls back to when From is not called.
type QueryExecutor interface {
	QueryContext(ctx context.Context, statement string, args []any) (driver.Rows, error)
	DefaultKeyspace() dialect.Keyspace
}

var _ QueryExecutor = (*Session)(nil)

// Session, bir Couchbase cluster'ının bağlantı parametrelerini ve o an seçili
// bucket, scope ve collection'ı tutar.
//
// Session eşzamanlı kullanım için güvenlidir; ürettiği Builder'lar değildir.
// NewSession hiçbir I/O yapmaz, bağlantı Connect ile açılır.
//
//	s, err := couchhelper.Connect(ctx, cfg, couchhelper.WithDebug(true))
//	if err != nil {
//	    return err
//	}
//	defer s.Disconnect(ctx)
//
// @author Ahmet ALTUN
// @github github.com/biyonik
// @linkedin linkedin.com/in/biyonik
// @email ahmet.altun60@gmail.com
type Session struct {
	mu sync.RWMutex

	cfg       Config
	connector driver.Connector
	grammar   dialect.Grammar
	logger    zerolog.Logger
	debug     bool

	cluster    driver.Cluster
	bucket     driver.Bucket
	scope      driver.Scope
	collection driver.Collection
	connected  bool

	bucketName     string
	scopeName      string
	collectionName string
}

// NewSession validates cfg and creates a session. No I/O is performed until
// Connect.
func NewSession(cfg *Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:            *cfg,
		logger:         zerolog.Nop(),
		bucketName:     cfg.Bucket,
		scopeName:      cfg.Scope,
		collectionName: cfg.Collection,
	}
	applyOptions(s, opts)

	if s.connector == nil {
		s.connector = gocbdriver.Connector{}
	}
	if s.grammar == nil {
		s.grammar = dialect.N1QL()
	}
	s.cfg.Timeout = s.cfg.Timeout.withDefaults()
	s.logger = s.logger.With().Str("component", "session").Logger()

	return s, nil
}

// ConnectionString returns couchbase://host, or couchbases://host with TLS.
func (s *Session) ConnectionString() string {
	return s.cfg.ConnectionString()
}

// Timeout returns the session timeouts.
func (s *Session) Timeout() Timeout {
	return s.cfg.Timeout
}

// Logger returns the session logger.
func (s *Session) Logger() zerolog.Logger {
	return s.logger
}

// Grammar returns the query grammar.
func (s *Session) Grammar() dialect.Grammar {
	return s.grammar
}

// IsDebug reports whether statements are logged.
func (s *Session) IsDebug() bool {
	return s.debug
}

// Connect opens the cluster (unless one was set with UseCluster), selects the
// configured bucket, scope and collection, and waits until the cluster is
// ready.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Session) connectLocked(ctx context.Context) error {
	s.logger.Debug().Str("conn_str", s.ConnectionString()).Msg("Connecting to cluster")

	if s.cluster == nil {
		cluster, err := s.connector.Connect(ctx, s.ConnectionString(), s.cfg.connectOptions())
		if err != nil {
			return WrapError("connect", err)
		}
		s.cluster = cluster
	}

	if s.bucketName != "" {
		if err := s.useBucketLocked(s.bucketName); err != nil {
			return err
		}
	}
	if s.scopeName != "" && s.bucket != nil {
		if err := s.useScopeLocked(s.scopeName); err != nil {
			return err
		}
	}
	if s.collectionName != "" && s.scope != nil {
		if err := s.useCollectionLocked(s.collectionName); err != nil {
			return err
		}
	}

	if err := s.cluster.WaitUntilReady(ctx, s.cfg.Timeout.Connect); err != nil {
		return WrapError("wait until ready", err)
	}
	s.connected = true

	s.logger.Info().
		Str("bucket", s.bucketName).
		Str("scope", s.scopeName).
		Str("collection", s.collectionName).
		Msg("Connected")
	return nil
}

// Disconnect closes the cluster. The selected names are kept so a later
// Connect restores the same keyspace.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectLocked(ctx)
}

func (s *Session) disconnectLocked(ctx context.Context) error {
	var err error
	if s.cluster != nil {
		err = s.cluster.Close(ctx)
	}
	s.cluster = nil
	s.bucket = nil
	s.scope = nil
	s.collection = nil
	s.connected = false
	return WrapError("disconnect", err)
}

// Connected reports whether Connect succeeded and the cluster is still open.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected && s.cluster != nil && s.cluster.Connected()
}

// Cluster returns the cluster, or nil before Connect.
func (s *Session) Cluster() driver.Cluster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cluster
}

// UseCluster replaces the cluster. A connected session is disconnected from
// the old cluster and reconnected to the new one.
func (s *Session) UseCluster(ctx context.Context, cluster driver.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reconnect := s.connected
	if reconnect {
		if err := s.disconnectLocked(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Closing previous cluster failed")
		}
	}
	s.cluster = cluster
	if reconnect {
		return s.connectLocked(ctx)
	}
	return nil
}

// UseBucket selects the bucket.
func (s *Session) UseBucket(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.useBucketLocked(name)
}

func (s *Session) useBucketLocked(name string) error {
	if s.cluster == nil {
		return ErrClusterNotSet
	}
	if err := validation.ValidateBucket(name); err != nil {
		return err
	}
	s.bucket = s.cluster.Bucket(name)
	s.bucketName = name
	return nil
}

// UseScope selects the scope of the current bucket.
func (s *Session) UseScope(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.useScopeLocked(name)
}

func (s *Session) useScopeLocked(name string) error {
	if s.bucket == nil {
		return ErrBucketNotSet
	}
	if err := validation.ValidateScope(name); err != nil {
		return err
	}
	s.scope = s.bucket.Scope(name)
	s.scopeName = name
	return nil
}

// UseCollection selects the collection of the current scope.
func (s *Session) UseCollection(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.useCollectionLocked(name)
}

func (s *Session) useCollectionLocked(name string) error {
	if s.scope == nil {
		return ErrScopeNotSet
	}
	if err := validation.ValidateCollection(name); err != nil {
		return err
	}
	s.collection = s.scope.Collection(name)
	s.collectionName = name
	return nil
}

// UseDefaultCollection selects the default scope and collection of the bucket.
func (s *Session) UseDefaultCollection() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bucket == nil {
		return ErrBucketNotSet
	}
	s.scope = s.bucket.DefaultScope()
	s.scopeName = s.scope.Name()
	s.collection = s.bucket.DefaultCollection()
	s.collectionName = s.collection.Name()
	return nil
}

// BucketName returns the name of the selected bucket.
func (s *Session) BucketName() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bucket == nil {
		return "", ErrBucketNotSet
	}
	return s.bucketName, nil
}

// Bucket returns the selected bucket, or nil.
func (s *Session) Bucket() driver.Bucket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bucket
}

// Scope returns the selected scope, or nil.
func (s *Session) Scope() driver.Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scope
}

// Collection returns the selected collection, or nil.
func (s *Session) Collection() driver.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection
}

// DefaultKeyspace returns the configured or selected keyspace names. It is
// available before Connect.
func (s *Session) DefaultKeyspace() dialect.Keyspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return dialect.Keyspace{
		Bucket:     s.bucketName,
		Scope:      s.scopeName,
		Collection: s.collectionName,
	}
}

// CreateBucket creates a bucket. An existing bucket is not an error.
func (s *Session) CreateBucket(ctx context.Context, settings driver.BucketSettings) error {
	cluster := s.Cluster()
	if cluster == nil {
		return ErrClusterNotSet
	}
	if err := validation.ValidateBucket(settings.Name); err != nil {
		return err
	}
	err := cluster.CreateBucket(ctx, settings)
	if errors.Is(err, driver.ErrBucketExists) {
		return nil
	}
	return WrapError("create bucket "+settings.Name, err)
}

// CreateScope creates a scope in the selected bucket. _default and existing
// scopes are no-ops.
func (s *Session) CreateScope(ctx context.Context, name string) error {
	if name == dialect.DefaultName {
		return nil
	}
	bucket := s.Bucket()
	if bucket == nil {
		return ErrBucketNotSet
	}
	if err := validation.ValidateScope(name); err != nil {
		return err
	}
	err := bucket.CreateScope(ctx, name)
	if errors.Is(err, driver.ErrScopeExists) {
		return nil
	}
	return WrapError("create scope "+name, err)
}

// CreateCollection creates a collection in scope of the selected bucket.
// _default and existing collections are no-ops.
func (s *Session) CreateCollection(ctx context.Context, scope, name string) error {
	if name == dialect.DefaultName {
		return nil
	}
	bucket := s.Bucket()
	if bucket == nil {
		return ErrBucketNotSet
	}
	if err := validation.ValidateCollection(name); err != nil {
		return err
	}
	err := bucket.CreateCollection(ctx, scope, name)
	if errors.Is(err, driver.ErrCollectionExists) {
		return nil
	}
	return WrapError("create collection "+scope+"."+name, err)
}

// Ping reports whether every endpoint of the selected bucket answered.
func (s *Session) Ping(ctx context.Context) (bool, error) {
	bucket := s.Bucket()
	if bucket == nil {
		return false, ErrBucketNotSet
	}
	return bucket.Ping(ctx)
}

// Query returns a new builder bound to the session.
//
// Example:
//
//	rows, err := s.Query().
//	    Select("callsign").
//	    From("travel-sample", "inventory", "airline").
//	    Where("country=", "France").
//	    Rows(ctx)
func (s *Session) Query() *Builder {
	return NewBuilder(s, s.grammar)
}

// QueryContext executes statement with args as positional parameters. Client
// errors are returned unmodified.
func (s *Session) QueryContext(ctx context.Context, statement string, args []any) (driver.Rows, error) {
	return s.query(ctx, statement, driver.QueryOptions{PositionalParameters: args})
}

func (s *Session) query(ctx context.Context, statement string, opts driver.QueryOptions) (driver.Rows, error) {
	cluster := s.Cluster()
	if cluster == nil {
		return nil, ErrNotConnected
	}
	if opts.Timeout == 0 {
		opts.Timeout = s.cfg.Timeout.Query
	}
	if opts.ClientContextID == "" {
		opts.ClientContextID = uuid.NewString()
	}

	start := time.Now()
	rows, err := cluster.Query(ctx, statement, opts)
	if s.debug {
		ev := s.logger.Debug()
		if err != nil {
			ev = s.logger.Error().Err(err)
		}
		ev.Str("statement", statement).
			Interface("args", opts.PositionalParameters).
			Interface("named", opts.NamedParameters).
			Str("client_context_id", opts.ClientContextID).
			Dur("duration", time.Since(start)).
			Msg("Query")
	}
	return rows, err
}

// waitUntilReady waits for the given service using the key-value timeout.
func (s *Session) waitUntilReady(ctx context.Context, service driver.ServiceType) error {
	cluster := s.Cluster()
	if cluster == nil {
		return ErrNotConnected
	}
	return cluster.WaitUntilReady(ctx, s.cfg.Timeout.KV, service)
}
