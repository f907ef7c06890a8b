package runtime

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSourceDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "tok-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"records": []any{"a", "b"}})
	}))
	defer srv.Close()

	h := &HTTPRuntime{}
	cfg := map[string]any{
		"url":     srv.URL,
		"headers": map[string]any{"Authorization": "tok-123"},
	}
	out, err := h.Execute(context.Background(), request(nil, cfg, nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"records": []any{"a", "b"}}, out)
}

func TestHTTPSourcePlainTextBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "pong")
	}))
	defer srv.Close()

	h := &HTTPRuntime{}
	out, err := h.Execute(context.Background(), request(nil, map[string]any{"url": srv.URL}, nil))
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
}

func TestHTTPSinkPostsInput(t *testing.T) {
	var gotMethod, gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	h := &HTTPRuntime{sink: true}
	input := map[string]any{"count": 3}
	_, err := h.Execute(context.Background(), request(nil, map[string]any{"url": srv.URL}, input))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"count":3}`, gotBody)
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	h := &HTTPRuntime{}
	_, err := h.Execute(context.Background(), request(nil, map[string]any{"url": srv.URL}, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestHTTPRequiresURL(t *testing.T) {
	h := &HTTPRuntime{}
	_, err := h.Execute(context.Background(), request(nil, nil, nil))
	require.Error(t, err)
}

func TestDBSinkAndSource(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	_, err := dbSink(ctx, request(nil, map[string]any{
		"dsn":       dsn,
		"statement": `CREATE TABLE events (id INTEGER PRIMARY KEY, name TEXT)`,
	}, nil))
	require.NoError(t, err)

	out, err := dbSink(ctx, request(nil, map[string]any{
		"dsn":       dsn,
		"statement": `INSERT INTO events (id, name) VALUES (?, ?), (?, ?)`,
		"args":      []any{1, "start", 2, "finish"},
	}, nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"rowsAffected": int64(2)}, out)

	rows, err := dbSource(ctx, request(nil, map[string]any{
		"dsn":   dsn,
		"query": `SELECT name FROM events ORDER BY id`,
	}, nil))
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"name": "start"},
		map[string]any{"name": "finish"},
	}, rows)
}

func TestDBConfigErrors(t *testing.T) {
	ctx := context.Background()

	_, err := dbSource(ctx, request(nil, map[string]any{"driver": "oracle", "dsn": "x", "query": "SELECT 1"}, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported db driver")

	_, err = dbSource(ctx, request(nil, map[string]any{"query": "SELECT 1"}, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn")

	_, err = dbSource(ctx, request(nil, map[string]any{"dsn": ":memory:"}, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query")
}
