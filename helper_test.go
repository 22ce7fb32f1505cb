package couchhelper_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	couchhelper "github.com/biyonik/go-couch-helper"
	"github.com/biyonik/go-couch-helper/driver"
	"github.com/biyonik/go-couch-helper/driver/memdriver"
)

type airline struct {
	Name     string `json:"name"`
	Callsign string `json:"callsign"`
	Country  string `json:"country"`
}

func newTestHelper(t *testing.T, mem *memdriver.Cluster, opts ...couchhelper.HelperOption) *couchhelper.Helper {
	t.Helper()
	s, err := couchhelper.NewSession(testConfig(), couchhelper.WithConnector(mem.Connector()))
	require.NoError(t, err)
	h, err := couchhelper.NewHelper(context.Background(), s, opts...)
	require.NoError(t, err)
	return h
}

func TestNewHelper_Connects(t *testing.T) {
	h := newTestHelper(t, memdriver.New())
	assert.True(t, h.Session().Connected())
}

func TestHelper_CRUD(t *testing.T) {
	mem := memdriver.New()
	h := newTestHelper(t, mem)
	ctx := context.Background()

	doc := airline{Name: "40-Mile Air", Callsign: "MILE-AIR", Country: "United States"}

	res, err := h.Insert(ctx, "airline_10", doc)
	require.NoError(t, err)
	assert.NotZero(t, res.Cas)

	_, err = h.Insert(ctx, "airline_10", doc)
	assert.ErrorIs(t, err, couchhelper.ErrDocumentExists)
	assert.True(t, couchhelper.IsDocumentExists(err))

	var got airline
	require.NoError(t, h.Get(ctx, "airline_10", &got))
	assert.Equal(t, doc, got)

	doc.Country = "USA"
	_, err = h.Replace(ctx, "airline_10", doc)
	require.NoError(t, err)

	raw, err := h.GetRaw(ctx, "airline_10")
	require.NoError(t, err)
	assert.Equal(t, "airline_10", raw.Key())
	require.NoError(t, raw.Content(&got))
	assert.Equal(t, "USA", got.Country)

	_, err = h.Replace(ctx, "airline_11", doc)
	assert.ErrorIs(t, err, couchhelper.ErrDocumentNotFound)

	_, err = h.Upsert(ctx, "airline_11", doc)
	require.NoError(t, err)
	assert.Equal(t, 2, mem.Len("travel-sample", "_default", "_default"))

	_, err = h.Remove(ctx, "airline_10")
	require.NoError(t, err)
	_, err = h.Delete(ctx, "airline_10")
	assert.True(t, couchhelper.IsDocumentNotFound(err))

	err = h.Get(ctx, "airline_10", &got)
	assert.ErrorIs(t, err, couchhelper.ErrDocumentNotFound)
}

func TestHelper_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mem := memdriver.New(memdriver.WithClock(func() time.Time { return now }))
	h := newTestHelper(t, mem)
	ctx := context.Background()

	_, err := h.Upsert(ctx, "session::1", map[string]any{"user": "a"}, couchhelper.WithExpiry(time.Minute))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, h.Get(ctx, "session::1", &doc))

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, h.Get(ctx, "session::1", &doc), couchhelper.ErrDocumentNotFound)
}

func TestHelper_NotReady(t *testing.T) {
	mem := memdriver.New()
	h := newTestHelper(t, mem)

	// A cancelled context fails the readiness wait before any write.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Upsert(ctx, "k", 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, mem.Len("travel-sample", "_default", "_default"))
}

func TestHelper_Multi(t *testing.T) {
	mem := memdriver.New()
	h := newTestHelper(t, mem, couchhelper.WithBatchConcurrency(2))
	ctx := context.Background()

	docs := map[string]any{
		"airline_1": map[string]any{"name": "A"},
		"airline_2": map[string]any{"name": "B"},
		"airline_3": map[string]any{"name": "C"},
	}
	require.NoError(t, h.InsertMulti(ctx, docs))
	assert.Equal(t, 3, mem.Len("travel-sample", "_default", "_default"))

	err := h.InsertMulti(ctx, map[string]any{
		"airline_1": map[string]any{"name": "dup"},
		"airline_4": map[string]any{"name": "D"},
	})
	var batch *couchhelper.BatchError
	require.True(t, errors.As(err, &batch))
	assert.Equal(t, "insert", batch.Op)
	assert.Equal(t, []string{"airline_1"}, batch.Keys())
	assert.ErrorIs(t, batch.Failed["airline_1"], couchhelper.ErrDocumentExists)
	assert.Equal(t, 4, mem.Len("travel-sample", "_default", "_default"), "other keys are still written")

	require.NoError(t, h.UpsertMulti(ctx, map[string]any{"airline_1": map[string]any{"name": "A2"}}))
	require.NoError(t, h.ReplaceMulti(ctx, map[string]any{"airline_2": map[string]any{"name": "B2"}}))

	got, err := h.GetMulti(ctx, []string{"airline_1", "airline_2", "missing"})
	require.True(t, errors.As(err, &batch))
	assert.Equal(t, []string{"missing"}, batch.Keys())
	assert.Equal(t, "A2", got["airline_1"]["name"])
	assert.Equal(t, "B2", got["airline_2"]["name"])
	assert.NotContains(t, got, "missing")

	require.NoError(t, h.RemoveMulti(ctx, []string{"airline_1", "airline_2"}))
	err = h.DeleteMulti(ctx, []string{"airline_3", "airline_3x"})
	require.True(t, errors.As(err, &batch))
	assert.Equal(t, []string{"airline_3x"}, batch.Keys())
	assert.Equal(t, 1, mem.Len("travel-sample", "_default", "_default"))
}

func TestHelper_DryRun(t *testing.T) {
	mem := memdriver.New()
	dir := filepath.Join(t.TempDir(), "output")
	h := newTestHelper(t, mem, couchhelper.WithDryRun(dir))
	ctx := context.Background()

	_, err := h.Insert(ctx, "airline_10", map[string]any{"name": "40-Mile Air"}, couchhelper.WithExpiry(time.Hour))
	require.NoError(t, err)
	require.NoError(t, h.UpsertMulti(ctx, map[string]any{"airline_11": 1, "airline_12": 2}))
	_, err = h.Remove(ctx, "airline_10")
	require.NoError(t, err)
	require.NoError(t, h.RemoveMulti(ctx, []string{"airline_11"}))

	assert.Zero(t, mem.Len("travel-sample", "_default", "_default"))

	data, err := os.ReadFile(filepath.Join(dir, "airline_10.json"))
	require.NoError(t, err)

	var rec struct {
		Key   string             `json:"key"`
		Value map[string]any     `json:"value"`
		Opts  map[string]float64 `json:"opts"`
	}
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "airline_10", rec.Key)
	assert.Equal(t, "40-Mile Air", rec.Value["name"])
	assert.Equal(t, 3600.0, rec.Opts["expiry"])
	assert.Equal(t, 5.0, rec.Opts["timeout"])

	for _, key := range []string{"airline_11", "airline_12"} {
		_, err := os.Stat(filepath.Join(dir, key+".json"))
		assert.NoError(t, err, key)
	}
}

func TestHelper_DryRunKeysStayInDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "output")
	h := newTestHelper(t, memdriver.New(), couchhelper.WithDryRun(dir))
	ctx := context.Background()

	tests := []struct {
		key  string
		file string
	}{
		{"airline/10", "airline%2F10.json"},
		{"../escaped", "..%2Fescaped.json"},
		{"route::1", "route::1.json"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			_, err := h.Upsert(ctx, tt.key, map[string]any{"id": 1})
			require.NoError(t, err)

			data, err := os.ReadFile(filepath.Join(dir, tt.file))
			require.NoError(t, err)
			var rec struct {
				Key string `json:"key"`
			}
			require.NoError(t, json.Unmarshal(data, &rec))
			assert.Equal(t, tt.key, rec.Key)
		})
	}

	_, err := os.Stat(filepath.Join(root, "escaped.json"))
	assert.True(t, os.IsNotExist(err), "no file outside the dry run directory")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, e.IsDir(), e.Name())
	}
}

func TestHelper_ViewQuery(t *testing.T) {
	all := []driver.ViewRow{
		{ID: "beer_1", Key: "a", Value: 1.0},
		{ID: "beer_2", Key: "b", Value: 2.0},
		{ID: "beer_3", Key: "c", Value: 3.0},
	}
	var gotDesign, gotView string
	mem := memdriver.New(memdriver.WithViewHandler(
		func(_ context.Context, _ string, design, view string, _ driver.ViewOptions) ([]driver.ViewRow, error) {
			gotDesign, gotView = design, view
			return all, nil
		},
	))
	h := newTestHelper(t, mem)

	rows, total, err := h.ViewQuery(context.Background(), "beer", "by_name", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "beer", gotDesign)
	assert.Equal(t, "by_name", gotView)
	assert.Equal(t, uint64(3), total)
	assert.Equal(t, []driver.ViewRow{all[1]}, rows)
}

func TestHelper_N1QL(t *testing.T) {
	mem := memdriver.New(memdriver.WithQueryHandler(memdriver.StaticRows(
		map[string]any{"name": "Air France"},
	)))
	h := newTestHelper(t, mem)

	rows, err := h.N1QL(context.Background(), "name", map[string]any{"type": "airline", "country": "France"})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"name": "Air France"}}, rows)

	queries := mem.Queries()
	require.Len(t, queries, 1)
	q := queries[0]
	assert.Equal(t, "SELECT name FROM `travel-sample` WHERE country=$p1 AND type=$p2", q.Statement)
	assert.Equal(t, map[string]any{"p1": "France", "p2": "airline"}, q.Options.NamedParameters)
	assert.Equal(t, driver.RequestPlus, q.Options.ScanConsistency)
}

func TestHelper_N1QLFieldPaths(t *testing.T) {
	mem := memdriver.New()
	h := newTestHelper(t, mem)

	_, err := h.N1QL(context.Background(), "", map[string]any{
		"geo.alt": 12,
		"value":   "x",
		"my-id":   7,
	})
	require.NoError(t, err)

	queries := mem.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, "SELECT * FROM `travel-sample` WHERE geo.alt=$p1 AND `my-id`=$p2 AND `value`=$p3", queries[0].Statement)
	assert.Equal(t, map[string]any{"p1": 12, "p2": 7, "p3": "x"}, queries[0].Options.NamedParameters)
}

func TestHelper_N1QLError(t *testing.T) {
	denied := errors.New("user does not have credentials to run SELECT queries")
	mem := memdriver.New(memdriver.WithQueryHandler(
		func(context.Context, string, driver.QueryOptions) ([]any, error) { return nil, denied },
	))
	h := newTestHelper(t, mem)

	_, err := h.N1QL(context.Background(), "", nil)
	var qe *couchhelper.QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "SELECT * FROM `travel-sample`", qe.Statement)
	assert.ErrorIs(t, err, denied)
}

func TestHelper_Query(t *testing.T) {
	h := newTestHelper(t, memdriver.New())
	sql, _, err := h.Query().Select("name").ToN1QL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM `travel-sample`", sql)
}
