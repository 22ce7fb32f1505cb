package couchhelper

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/biyonik/go-couch-helper/dialect"
	"github.com/biyonik/go-couch-helper/driver"
)

const defaultBatchConcurrency = 8

// Helper, CRUD çağrılarını session'da seçili collection'a birebir aktarır.
//
// Her çağrı önce ilgili servisin hazır olmasını session'ın key-value
// timeout'u ile bekler. Çoklu anahtar işlemleri sınırlı eşzamanlılıkla çalışır
// ve başarısız anahtarları tek bir *BatchError içinde döndürür.
//
// @author Ahmet ALTUN
// @github github.com/biyonik
// @linkedin linkedin.com/in/biyonik
// @email ahmet.altun60@gmail.com
type Helper struct {
	session     *Session
	logger      zerolog.Logger
	dryRun      bool
	outputDir   string
	concurrency int
}

// NewHelper creates a helper over s, connecting it first if needed.
func NewHelper(ctx context.Context, s *Session, opts ...HelperOption) (*Helper, error) {
	h := &Helper{
		session:     s,
		logger:      s.Logger(),
		concurrency: defaultBatchConcurrency,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.logger = h.logger.With().Str("component", "helper").Logger()

	if h.dryRun {
		if err := os.MkdirAll(h.outputDir, 0o755); err != nil {
			return nil, WrapError("create dry run directory", err)
		}
		h.logger.Info().Str("dir", h.outputDir).Msg("Running in dry run mode")
	}

	if !s.Connected() {
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Session returns the underlying session.
func (h *Helper) Session() *Session {
	return h.session
}

// Query returns a new builder bound to the session.
func (h *Helper) Query() *Builder {
	return h.session.Query()
}

func (h *Helper) collection(ctx context.Context) (driver.Collection, error) {
	if err := h.session.waitUntilReady(ctx, driver.ServiceKeyValue); err != nil {
		return nil, WrapError("wait for key-value service", err)
	}
	coll := h.session.Collection()
	if coll == nil {
		return nil, ErrScopeNotSet
	}
	return coll, nil
}

// ----------------------------------------------------------------------------
// Single document operations
// ----------------------------------------------------------------------------

// Insert creates a document. It fails with ErrDocumentExists if key is taken.
func (h *Helper) Insert(ctx context.Context, key string, value any, opts ...MutationOption) (driver.MutationResult, error) {
	return h.mutate(ctx, "insert", key, value, opts, driver.Collection.Insert)
}

// Upsert creates or replaces a document.
func (h *Helper) Upsert(ctx context.Context, key string, value any, opts ...MutationOption) (driver.MutationResult, error) {
	return h.mutate(ctx, "upsert", key, value, opts, driver.Collection.Upsert)
}

// Replace overwrites an existing document. It fails with ErrDocumentNotFound
// if key is absent.
func (h *Helper) Replace(ctx context.Context, key string, value any, opts ...MutationOption) (driver.MutationResult, error) {
	return h.mutate(ctx, "replace", key, value, opts, driver.Collection.Replace)
}

type writeFunc func(driver.Collection, context.Context, string, any, driver.MutationOptions) (driver.MutationResult, error)

func (h *Helper) mutate(ctx context.Context, op, key string, value any, opts []MutationOption, write writeFunc) (driver.MutationResult, error) {
	mo := buildMutationOptions(h.session.Timeout().KV, opts)

	if h.dryRun {
		h.logger.Info().Str("op", op).Str("key", key).Msg("Dry run: document not written")
		return driver.MutationResult{}, h.saveDryRun(key, value, mo)
	}

	coll, err := h.collection(ctx)
	if err != nil {
		return driver.MutationResult{}, err
	}
	res, err := write(coll, ctx, key, value, mo)
	if err != nil {
		return res, WrapError(op+" "+key, err)
	}
	return res, nil
}

// Get decodes the document at key into dest.
func (h *Helper) Get(ctx context.Context, key string, dest any) error {
	doc, err := h.GetRaw(ctx, key)
	if err != nil {
		return err
	}
	return WrapError("decode "+key, doc.Content(dest))
}

// GetRaw returns the document at key with its metadata.
func (h *Helper) GetRaw(ctx context.Context, key string) (driver.Document, error) {
	coll, err := h.collection(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := coll.Get(ctx, key, driver.GetOptions{Timeout: h.session.Timeout().KV})
	if err != nil {
		return nil, WrapError("get "+key, err)
	}
	return doc, nil
}

// Remove deletes the document at key.
func (h *Helper) Remove(ctx context.Context, key string) (driver.MutationResult, error) {
	if h.dryRun {
		h.logger.Info().Str("key", key).Msg("Dry run: document not removed")
		return driver.MutationResult{}, nil
	}

	coll, err := h.collection(ctx)
	if err != nil {
		return driver.MutationResult{}, err
	}
	res, err := coll.Remove(ctx, key, driver.MutationOptions{Timeout: h.session.Timeout().KV})
	if err != nil {
		return res, WrapError("remove "+key, err)
	}
	return res, nil
}

// Delete is an alias for Remove.
func (h *Helper) Delete(ctx context.Context, key string) (driver.MutationResult, error) {
	return h.Remove(ctx, key)
}

// ----------------------------------------------------------------------------
// Multi-key operations
// ----------------------------------------------------------------------------

// InsertMulti inserts every document. Per-key failures are reported together
// as a *BatchError; the other documents are still written.
func (h *Helper) InsertMulti(ctx context.Context, docs map[string]any, opts ...MutationOption) error {
	return h.mutateMulti(ctx, "insert", docs, opts, h.Insert)
}

// UpsertMulti upserts every document.
func (h *Helper) UpsertMulti(ctx context.Context, docs map[string]any, opts ...MutationOption) error {
	return h.mutateMulti(ctx, "upsert", docs, opts, h.Upsert)
}

// ReplaceMulti replaces every document.
func (h *Helper) ReplaceMulti(ctx context.Context, docs map[string]any, opts ...MutationOption) error {
	return h.mutateMulti(ctx, "replace", docs, opts, h.Replace)
}

func (h *Helper) mutateMulti(
	ctx context.Context,
	op string,
	docs map[string]any,
	opts []MutationOption,
	fn func(context.Context, string, any, ...MutationOption) (driver.MutationResult, error),
) error {
	return h.forEachKey(ctx, op, sortedKeys(docs), func(ctx context.Context, key string) error {
		_, err := fn(ctx, key, docs[key], opts...)
		return err
	})
}

// GetMulti fetches every key as a map. Keys that fail are absent from the
// result and reported in the returned *BatchError.
func (h *Helper) GetMulti(ctx context.Context, keys []string) (map[string]map[string]any, error) {
	var mu sync.Mutex
	out := make(map[string]map[string]any, len(keys))

	err := h.forEachKey(ctx, "get", keys, func(ctx context.Context, key string) error {
		var doc map[string]any
		if err := h.Get(ctx, key, &doc); err != nil {
			return err
		}
		mu.Lock()
		out[key] = doc
		mu.Unlock()
		return nil
	})
	return out, err
}

// RemoveMulti removes every key.
func (h *Helper) RemoveMulti(ctx context.Context, keys []string) error {
	if h.dryRun {
		h.logger.Info().Str("keys", strings.Join(keys, ", ")).Msg("Dry run: documents not removed")
		return nil
	}
	return h.forEachKey(ctx, "remove", keys, func(ctx context.Context, key string) error {
		_, err := h.Remove(ctx, key)
		return err
	})
}

// DeleteMulti is an alias for RemoveMulti.
func (h *Helper) DeleteMulti(ctx context.Context, keys []string) error {
	return h.RemoveMulti(ctx, keys)
}

// forEachKey runs fn for every key with bounded concurrency and collects the
// failures. One failing key does not stop the others.
func (h *Helper) forEachKey(ctx context.Context, op string, keys []string, fn func(context.Context, string) error) error {
	var (
		mu     sync.Mutex
		failed = make(map[string]error)
		g      errgroup.Group
	)
	g.SetLimit(h.concurrency)

	for _, key := range keys {
		g.Go(func() error {
			if err := fn(ctx, key); err != nil {
				h.logger.Error().Err(err).Str("op", op).Str("key", key).Msg("Batch operation failed")
				mu.Lock()
				failed[key] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		return &BatchError{Op: op, Failed: failed}
	}
	return nil
}

// ----------------------------------------------------------------------------
// Views and N1QL
// ----------------------------------------------------------------------------

// ViewQuery runs a map/reduce view of the selected bucket. limit and skip of
// zero are unset. It also returns the total row count the server reported.
func (h *Helper) ViewQuery(ctx context.Context, designDoc, view string, limit, skip uint32) ([]driver.ViewRow, uint64, error) {
	if err := h.session.waitUntilReady(ctx, driver.ServiceViews); err != nil {
		return nil, 0, WrapError("wait for views service", err)
	}
	bucket := h.session.Bucket()
	if bucket == nil {
		return nil, 0, ErrBucketNotSet
	}

	res, err := bucket.ViewQuery(ctx, designDoc, view, driver.ViewOptions{
		Limit:   limit,
		Skip:    skip,
		Timeout: h.session.Timeout().KV,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("design_doc", designDoc).Str("view", view).Msg("View query failed")
		return nil, 0, WrapError("view query "+designDoc+"/"+view, err)
	}

	total, _ := res.TotalRows()
	return res.Rows(), total, nil
}

// N1QL selects from the session bucket where every field path of where equals
// its value. Conditions are joined with AND in key order and bound as named
// parameters $p1..$pn; the query waits for indexes to catch up with prior
// mutations.
//
//	rows, err := h.N1QL(ctx, "name, country", map[string]any{"type": "airline"})
//	// SELECT name, country FROM `travel-sample` WHERE type=$p1
func (h *Helper) N1QL(ctx context.Context, selectExpr string, where map[string]any) ([]map[string]any, error) {
	if err := h.session.waitUntilReady(ctx, driver.ServiceQuery); err != nil {
		return nil, WrapError("wait for query service", err)
	}
	bucketName, err := h.session.BucketName()
	if err != nil {
		return nil, err
	}
	from, err := h.session.Grammar().WrapKeyspace(dialect.Keyspace{Bucket: bucketName})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(selectExpr) == "" {
		selectExpr = "*"
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(selectExpr)
	sb.WriteString(" FROM ")
	sb.WriteString(from)
	named := make(map[string]any, len(where))
	for i, col := range sortedKeys(where) {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		name := "p" + strconv.Itoa(i+1)
		named[name] = where[col]
		sb.WriteString(h.session.Grammar().Wrap(col) + "=$" + name)
	}
	statement := sb.String()

	rows, err := h.session.query(ctx, statement, driver.QueryOptions{
		NamedParameters: named,
		ScanConsistency: driver.RequestPlus,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("statement", statement).Msg("N1QL query failed")
		return nil, NewQueryError("n1ql", statement, []any{named}, err)
	}

	r := newRows(rows)
	var out []map[string]any
	for row, err := range r.All() {
		if err != nil {
			return out, NewQueryError("n1ql", statement, []any{named}, err)
		}
		out = append(out, row)
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// Dry run
// ----------------------------------------------------------------------------

type dryRunRecord struct {
	Key   string         `json:"key"`
	Value any            `json:"value"`
	Opts  map[string]any `json:"opts"`
}

func (h *Helper) saveDryRun(key string, value any, mo driver.MutationOptions) error {
	rec := dryRunRecord{
		Key:   key,
		Value: value,
		Opts: map[string]any{
			"timeout": mo.Timeout.Seconds(),
		},
	}
	if mo.Expiry > 0 {
		rec.Opts["expiry"] = mo.Expiry.Seconds()
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode dry run document %s", key)
	}

	path := filepath.Join(h.outputDir, dryRunFileName(key))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		h.logger.Error().Err(err).Str("path", path).Msg("Unable to save dry run file")
		return errors.Wrapf(err, "write dry run file %s", path)
	}
	return nil
}

// dryRunFileName maps a document key to a single file name inside the output
// directory. Path separators are escaped, so "airline/10" becomes
// "airline%2F10.json" and "../x" cannot leave the directory.
func dryRunFileName(key string) string {
	return url.PathEscape(key) + ".json"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
