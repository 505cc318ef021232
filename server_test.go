package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*imageBackend, *httptest.Server) {
	backend, images := newImageBackend(t)
	session := newTestSession(t, images.URL, NewProber(images.Client(), 5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	api := httptest.NewServer(NewServer(ctx, session, newTestLogger()).Routes())
	t.Cleanup(api.Close)
	return backend, api
}

func TestServerHealthz(t *testing.T) {
	_, api := newTestServer(t)

	resp, err := http.Get(api.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestServerReportNotFoundBeforeFirstRun(t *testing.T) {
	_, api := newTestServer(t)

	resp, err := http.Get(api.URL + "/api/report")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(api.URL + "/api/report/html")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerStartRejectsBadRequests(t *testing.T) {
	_, api := newTestServer(t)

	for _, body := range []string{`{"filename": "noext"}`, `{"filename": ""}`, `not json`} {
		resp, err := http.Post(api.URL+"/api/benchmarks", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestServerBenchmarkFlow(t *testing.T) {
	backend, api := newTestServer(t)
	backend.addCatalog("photo.png", 600, 400)

	resp, err := http.Post(api.URL+"/api/benchmarks", "application/json", strings.NewReader(`{"filename":"photo.png"}`))
	require.NoError(t, err)
	var started struct {
		Generation Generation `json:"generation"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, Generation(1), started.Generation)

	var report Report
	assert.Eventually(t, func() bool {
		resp, err := http.Get(api.URL + "/api/report")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		return json.NewDecoder(resp.Body).Decode(&report) == nil
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, started.Generation, report.Generation)
	assert.Len(t, report.Records, 7)
	require.NotNil(t, report.Summary)

	resp, err = http.Get(api.URL + "/api/report/html")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "photo.png")
}
