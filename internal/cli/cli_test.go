package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	couchhelper "github.com/biyonik/go-couch-helper"
	"github.com/biyonik/go-couch-helper/driver/memdriver"
)

func run(t *testing.T, opts *globalOptions, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()
	require.NotNil(t, cmd)
	assert.Equal(t, "couchq", cmd.Use)

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"render", "query", "get", "upsert", "remove", "ping", "version"} {
		assert.Contains(t, names, want)
	}

	for _, flag := range []string{"config", "host", "username", "password", "bucket", "scope", "collection", "tls", "log-level", "debug", "memory"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "--%s", flag)
	}
}

func TestParsePredicates(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []predicate
		wantErr string
	}{
		{
			name: "empty",
			args: nil,
			want: []predicate{},
		},
		{
			name: "json and string values",
			args: []string{"where", "city=", "San Jose", "OR", "alt >", "100", "and", "open=", "true"},
			want: []predicate{
				{combinator: "where", fragment: "city=", value: "San Jose"},
				{combinator: "or", fragment: "alt >", value: float64(100)},
				{combinator: "and", fragment: "open=", value: true},
			},
		},
		{
			name: "quoted json string",
			args: []string{"where", "id=", `"42"`},
			want: []predicate{{combinator: "where", fragment: "id=", value: "42"}},
		},
		{
			name:    "incomplete triple",
			args:    []string{"where", "city="},
			wantErr: "triples",
		},
		{
			name:    "unknown combinator",
			args:    []string{"xor", "a=", "1"},
			wantErr: `unknown combinator "xor"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePredicates(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(predicate{})); diff != "" {
				t.Errorf("parsePredicates() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderCmd(t *testing.T) {
	out, err := run(t, &globalOptions{},
		"render",
		"-s", "callsign",
		"-f", "travel-sample.inventory.airport",
		"--limit", "5",
		"where", "city=", "San Jose",
		"or", "city=", "New York",
	)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "SELECT callsign FROM `travel-sample`.`inventory`.`airport` WHERE city=$1 OR city=$2 LIMIT 5", lines[0])
	assert.Equal(t, `["San Jose","New York"]`, lines[1])
}

func TestRenderCmd_NoFrom(t *testing.T) {
	_, err := run(t, &globalOptions{}, "render")
	assert.ErrorIs(t, err, couchhelper.ErrBucketNotSet)
}

func TestRenderCmd_BadPredicates(t *testing.T) {
	_, err := run(t, &globalOptions{}, "render", "-f", "b", "where", "a=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "triples")
}

func TestQueryCmd_Memory(t *testing.T) {
	mem := memdriver.New(memdriver.WithQueryHandler(memdriver.StaticRows(
		map[string]any{"callsign": "AF"},
		map[string]any{"callsign": "BA"},
	)))
	opts := &globalOptions{mem: mem}

	out, err := run(t, opts, "query", "--memory", "-b", "travel-sample", "-s", "callsign", "where", "city=", "Paris")
	require.NoError(t, err)
	assert.Equal(t, "{\"callsign\":\"AF\"}\n{\"callsign\":\"BA\"}\n", out)

	queries := mem.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, "SELECT callsign FROM `travel-sample` WHERE city=$1", queries[0].Statement)
	assert.Equal(t, []any{"Paris"}, queries[0].Options.PositionalParameters)
}

func TestDocumentCmds_Memory(t *testing.T) {
	opts := &globalOptions{mem: memdriver.New()}

	out, err := run(t, opts, "upsert", "--memory", "-b", "app", "user::1", `{"name":"ada"}`)
	require.NoError(t, err)
	var res struct {
		Key string `json:"key"`
		Cas uint64 `json:"cas"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "user::1", res.Key)
	assert.NotZero(t, res.Cas)

	out, err = run(t, opts, "get", "--memory", "-b", "app", "user::1")
	require.NoError(t, err)
	assert.Equal(t, "{\"name\":\"ada\"}\n", out)

	_, err = run(t, opts, "remove", "--memory", "-b", "app", "user::1")
	require.NoError(t, err)

	_, err = run(t, opts, "get", "--memory", "-b", "app", "user::1")
	assert.True(t, couchhelper.IsDocumentNotFound(err))
}

func TestUpsertCmd_GeneratedKey(t *testing.T) {
	mem := memdriver.New()
	opts := &globalOptions{mem: mem}

	out, err := run(t, opts, "upsert", "--memory", "-b", "app", `{"n":1}`)
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res["key"], 36)
	assert.Equal(t, 1, mem.Len("app", "_default", "_default"))
}

func TestUpsertCmd_InvalidJSON(t *testing.T) {
	_, err := run(t, &globalOptions{mem: memdriver.New()}, "upsert", "--memory", "-b", "app", "k", "{nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestPingCmd_Memory(t *testing.T) {
	out, err := run(t, &globalOptions{mem: memdriver.New()}, "ping", "--memory", "-b", "app")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, &globalOptions{}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, couchhelper.Version)
}
