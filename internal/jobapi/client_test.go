package jobapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapectl/internal/job"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Config{BaseURL: srv.URL + "/api", Timeout: time.Second})
	require.NoError(t, err)
	return client
}

func TestNew_RejectsRelativeBase(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseURL: "/api"})
	require.Error(t, err)
	_, err = New(Config{BaseURL: "  "})
	require.Error(t, err)
}

func TestClient_URL(t *testing.T) {
	t.Parallel()

	client, err := New(Config{BaseURL: "http://127.0.0.1:8000/api/"})
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8000/api/status", client.URL(RouteStatus))
	require.Equal(t, "http://127.0.0.1:8000/api/download/excel", client.DownloadURL("excel"))
}

func TestClient_PutFilters_SendsJSON(t *testing.T) {
	t.Parallel()

	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/filters", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.PutFilters(context.Background(), map[string]any{"participants_from": 1000, "links": []string{"a"}})
	require.NoError(t, err)
	require.Equal(t, float64(1000), got["participants_from"])
	require.Equal(t, []any{"a"}, got["links"])
}

func TestClient_CommandErrorCarriesBody(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"detail":"Parser already running"}`)
	})

	err := client.Start(context.Background())
	se, ok := AsStatusError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusConflict, se.StatusCode)
	require.Equal(t, `{"detail":"Parser already running"}`, se.Body)
	require.Equal(t, http.MethodPost, se.Method)
	require.Equal(t, "/start", se.Path)
	require.Contains(t, err.Error(), "409")
}

func TestClient_StartIgnoresSuccessBody(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/start", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"msg":"started"}`)
	})

	require.NoError(t, client.Start(context.Background()))
}

func TestClient_Status(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"running":true,"error":null,"progress":{"current_page":2,"end_page":5}}`)
	})

	st, err := client.Status(context.Background())
	require.NoError(t, err)
	require.True(t, st.Running)
	require.Nil(t, st.Error)
	require.Equal(t, 2, *st.Progress.CurrentPage)
	require.Equal(t, 5, *st.Progress.EndPage)
	require.Nil(t, st.Progress.StartPage)
}

func TestClient_StatusErrorOmitsBody(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "upstream down")
	})

	_, err := client.Status(context.Background())
	se, ok := AsStatusError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	require.Empty(t, se.Body)
}

func TestClient_StatusTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	client, err := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.Status(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_Limits_AcceptsArrayAndObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "array", body: `[{"name":"search","description":"searches","current":5,"maximum":100,"severity":"gate"}]`},
		{name: "object", body: `{"limits":[{"name":"search","description":"searches","current":5,"maximum":100,"severity":"gate"}]}`},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, tc.body)
			})
			limits, err := client.Limits(context.Background())
			require.NoError(t, err)
			require.Equal(t, job.Limits{{
				Name:        "search",
				Description: "searches",
				Current:     5,
				Maximum:     100,
				Severity:    job.SeverityGate,
			}}, limits)
		})
	}
}

func TestClient_FilesInfo(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/files-info", r.URL.Path)
		_, _ = io.WriteString(w, `{"excel":{"exists":true,"size":42},"json":{"exists":false,"size":0}}`)
	})

	info, err := client.FilesInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, job.FileInfo{Exists: true, Size: 42}, info["excel"])
	require.False(t, info["json"].Exists)
}

func TestClient_Download(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/download/json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `[{"channel":"a"}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"detail":"File not found"}`)
		}
	})

	body, contentType, err := client.Download(context.Background(), "json")
	require.NoError(t, err)
	defer body.Close()
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, `[{"channel":"a"}]`, string(raw))
	require.Equal(t, "application/json", contentType)

	_, _, err = client.Download(context.Background(), "excel")
	se, ok := AsStatusError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, se.StatusCode)
	require.Equal(t, "/download/excel", se.Path)
}
