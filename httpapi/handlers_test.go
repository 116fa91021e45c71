package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jacentio/grove/forest"
	"github.com/jacentio/grove/metrics"
	"github.com/jacentio/grove/store/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *metrics.Collector) {
	t.Helper()
	c := metrics.NewCollector("grove")
	svc := forest.NewService(metrics.NewInstrumentedStore(memory.New(), c))
	srv := httptest.NewServer(NewRouter(svc, Options{Metrics: c}))
	t.Cleanup(srv.Close)
	return srv, c
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, respBody
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	code, body := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestGetForest_Empty(t *testing.T) {
	srv, _ := newTestServer(t)
	code, body := do(t, srv, http.MethodGet, "/api/tree", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))
}

func TestCreateAndRead(t *testing.T) {
	srv, _ := newTestServer(t)

	code, body := do(t, srv, http.MethodPost, "/api/tree", `{"label":"root"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.JSONEq(t, `{"id":1,"label":"root","parentId":null}`, string(body))

	code, body = do(t, srv, http.MethodPost, "/api/tree", `{"label":"  child  ","parentId":1}`)
	require.Equal(t, http.StatusCreated, code)
	assert.JSONEq(t, `{"id":2,"label":"child","parentId":1}`, string(body))

	code, body = do(t, srv, http.MethodGet, "/api/tree", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"id":1,"label":"root","children":[{"id":2,"label":"child","children":[]}]}]`, string(body))

	code, body = do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `grove_http_requests_total{method="POST",route="/api/tree`)
	assert.Contains(t, string(body), "grove_nodes_created_total 2")
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		error  string
	}{
		{"empty label", `{"label":""}`, http.StatusBadRequest, "invalid label"},
		{"whitespace label", `{"label":"   "}`, http.StatusBadRequest, "invalid label"},
		{"long label", `{"label":"` + strings.Repeat("x", 256) + `"}`, http.StatusBadRequest, "invalid label"},
		{"missing parent", `{"label":"a","parentId":42}`, http.StatusBadRequest, "parent not found"},
		{"zero parent", `{"label":"a","parentId":0}`, http.StatusBadRequest, "parent not found"},
		{"malformed", `{"label":`, http.StatusBadRequest, "invalid request body"},
		{"empty body", ``, http.StatusBadRequest, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t)
			code, body := do(t, srv, http.MethodPost, "/api/tree", tt.body)
			assert.Equal(t, tt.status, code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(body, &resp))
			assert.Equal(t, tt.error, resp.Error)
			assert.NotNil(t, resp.Details)

			_, forestBody := do(t, srv, http.MethodGet, "/api/tree", "")
			assert.JSONEq(t, `[]`, string(forestBody))
		})
	}
}

func TestClone(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/tree", `{"label":"A"}`)
	do(t, srv, http.MethodPost, "/api/tree", `{"label":"B","parentId":1}`)
	do(t, srv, http.MethodPost, "/api/tree", `{"label":"C"}`)

	code, body := do(t, srv, http.MethodPost, "/api/tree/clone", `{"parentId":3,"targetId":1}`)
	require.Equal(t, http.StatusCreated, code)
	assert.JSONEq(t, `{"id":4,"label":"A","parentId":3}`, string(body))

	_, body = do(t, srv, http.MethodGet, "/api/tree", "")
	assert.JSONEq(t, `[
		{"id":1,"label":"A","children":[{"id":2,"label":"B","children":[]}]},
		{"id":3,"label":"C","children":[
			{"id":4,"label":"A","children":[{"id":5,"label":"B","children":[]}]}
		]}
	]`, string(body))

	code, _ = do(t, srv, http.MethodPost, "/api/tree/clone", `{"parentId":3,"targetId":99}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, srv, http.MethodPost, "/api/tree/clone", `{"parentId":99,"targetId":1}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, srv, http.MethodPost, "/api/tree/clone", `{"targetId":1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(body), "ParentID")
}

func TestCreate_IgnoresUnknownFields(t *testing.T) {
	srv, _ := newTestServer(t)
	code, body := do(t, srv, http.MethodPost, "/api/tree", `{"label":"a","color":"green"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.JSONEq(t, `{"id":1,"label":"a","parentId":null}`, string(body))
}

type failingForest struct{ err error }

func (f failingForest) CreateNode(context.Context, string, *int64) (forest.Node, error) {
	return forest.Node{}, f.err
}

func (f failingForest) GetForest(context.Context) ([]*forest.View, error) { return nil, f.err }

func (f failingForest) CloneSubtree(context.Context, int64, int64) (forest.Node, error) {
	return forest.Node{}, f.err
}

func TestCancelledRequests(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"deadline", forest.Unavailable("scan", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"cancelled", forest.Unavailable("scan", context.Canceled), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			h := NewRouter(failingForest{err: tt.err}, Options{Logger: zap.New(core)})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tree", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, 1, logs.FilterMessage("request cancelled").Len())
			assert.Equal(t, 0, logs.FilterLevelExact(zap.ErrorLevel).Len())
		})
	}
}

func TestServerErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"corrupt", &forest.CorruptTreeError{NodeID: 3, Reason: "dangling parent reference"}, "integrity violation"},
		{"unavailable", &forest.StoreUnavailableError{Op: "scan", Err: errors.New("timeout")}, "request failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.ErrorLevel)
			h := NewRouter(failingForest{err: tt.err}, Options{Logger: zap.New(core)})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tree", nil))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
			assert.Equal(t, 1, logs.FilterMessage(tt.message).Len())
		})
	}
}
