package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewHTTP_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewHTTP(reg, "console")
	require.NoError(t, err)
	_, err = NewHTTP(reg, "console")
	require.Error(t, err)

	_, err = NewHTTP(reg, "devserver")
	require.NoError(t, err)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	h, err := NewHTTP(prometheus.NewRegistry(), "test")
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(h.Middleware)
	r.Get("/test", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/notfound", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/test", "/notfound"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.InDelta(t, 1, testutil.ToFloat64(h.requestsTotal.WithLabelValues("GET", "200")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(h.requestsTotal.WithLabelValues("GET", "404")), 0)
	require.Equal(t, 2, testutil.CollectAndCount(h.requestDuration))
}

func TestInstrumentTransport(t *testing.T) {
	t.Parallel()

	h, err := NewHTTP(prometheus.NewRegistry(), "test")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	client := &http.Client{Transport: h.InstrumentTransport(nil)}
	resp, err := client.Post(srv.URL, "application/json", nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.InDelta(t, 1, testutil.ToFloat64(h.remoteTotal.WithLabelValues("post", "202")), 0)
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	h, err := NewHTTP(reg, "console")
	require.NoError(t, err)
	h.ObserveRequest(http.MethodGet, "/healthz", http.StatusOK, 0)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "console_http_requests_total"))
}
