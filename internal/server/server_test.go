package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankumardubey/Structure-threader/pkg/ledger"
)

type stubSource struct {
	progress ledger.Progress
}

func (s stubSource) Progress() ledger.Progress { return s.progress }

func TestServer_Health(t *testing.T) {
	srv := New("127.0.0.1", 0, "batch-1", stubSource{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "batch-1", resp.BatchID)
}

func TestServer_Progress(t *testing.T) {
	src := stubSource{progress: ledger.Progress{Total: 6, Pending: 2, InFlight: 2, Completed: 2}}
	srv := New("127.0.0.1", 0, "batch-1", src)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/progress", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ProgressResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, src.progress, resp.Progress)
	assert.Equal(t, "batch-1", resp.BatchID)
	assert.NotEmpty(t, resp.Elapsed)
}

func TestServer_UnknownRoute(t *testing.T) {
	srv := New("127.0.0.1", 0, "batch-1", stubSource{})

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Addr(t *testing.T) {
	tests := []struct {
		name string
		host string
		port int
		want string
	}{
		{"default port", "localhost", 8750, "localhost:8750"},
		{"custom port", "0.0.0.0", 9000, "0.0.0.0:9000"},
		{"zero port", "127.0.0.1", 0, "127.0.0.1:0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(tt.host, tt.port, "b", nil)
			assert.Equal(t, tt.want, srv.Addr())
			assert.Equal(t, tt.port, srv.Port())
		})
	}
}
