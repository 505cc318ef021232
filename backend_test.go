package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUploadServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username != "admin" || body.Password != "admin123" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	})
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if len(data) == 0 {
			http.Error(w, "empty", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"filename": "1700000000-" + header.Filename})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBackendLoginAndUpload(t *testing.T) {
	srv := newUploadServer(t)
	backend := NewBackendClient(srv.URL+"/", srv.Client())

	token, err := backend.Login(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	path := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, 20, 10), 0644))

	filename, err := backend.Upload(context.Background(), token, path)
	require.NoError(t, err)
	assert.Equal(t, "1700000000-cat.png", filename)
}

func TestBackendLoginRejected(t *testing.T) {
	srv := newUploadServer(t)
	backend := NewBackendClient(srv.URL, srv.Client())

	_, err := backend.Login(context.Background(), "admin", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestBackendUploadUnauthorized(t *testing.T) {
	srv := newUploadServer(t)
	backend := NewBackendClient(srv.URL, srv.Client())

	path := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, 20, 10), 0644))

	_, err := backend.Upload(context.Background(), "stale", path)
	assert.Error(t, err)
}

func TestBackendUploadMissingFile(t *testing.T) {
	srv := newUploadServer(t)
	backend := NewBackendClient(srv.URL, srv.Client())

	_, err := backend.Upload(context.Background(), "tok-1", filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
