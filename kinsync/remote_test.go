// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRemote(t *testing.T, handler http.HandlerFunc) *HTTPRemote {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	remote := NewHTTPRemote(server.URL, "app1", DefaultConfig(),
		func(ctx context.Context) (string, error) { return "tok-123", nil })
	return remote
}

func TestHTTPRemote_CreatePostsToCollectionPath(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"_id": "srv1", "v": gotBody["v"]})
	})

	created, err := remote.Create(context.Background(), "books", Entity{"v": float64(2)})
	require.NoError(t, err)
	require.Equal(t, "POST /appdata/app1/books", gotPath)
	require.Equal(t, "Bearer tok-123", gotAuth)
	require.Equal(t, "srv1", created.ID("_id"))
}

func TestHTTPRemote_UpdatePutsToEntityPath(t *testing.T) {
	var gotPath string
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{"_id": "a", "v": float64(1)})
	})

	updated, err := remote.Update(context.Background(), "books", "a", Entity{"_id": "a", "v": float64(1)})
	require.NoError(t, err)
	require.Equal(t, "PUT /appdata/app1/books/a", gotPath)
	require.Equal(t, float64(1), updated["v"])
}

func TestHTTPRemote_DeleteAndGetPaths(t *testing.T) {
	var paths []string
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(map[string]any{"_id": "a"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, remote.Delete(context.Background(), "books", "a"))
	_, err := remote.Get(context.Background(), "books", "a")
	require.NoError(t, err)
	require.Equal(t, []string{"DELETE /appdata/app1/books/a", "GET /appdata/app1/books/a"}, paths)
}

func TestHTTPRemote_StatusClassification(t *testing.T) {
	cases := []struct {
		status int
		check  func(t *testing.T, err error)
	}{
		{http.StatusNotFound, func(t *testing.T, err error) {
			require.True(t, IsNotFound(err))
		}},
		{http.StatusUnauthorized, func(t *testing.T, err error) {
			require.True(t, IsInsufficientCredentials(err))
		}},
		{http.StatusForbidden, func(t *testing.T, err error) {
			require.True(t, IsInsufficientCredentials(err))
			var ic *InsufficientCredentialsError
			require.ErrorAs(t, err, &ic)
			require.Equal(t, http.StatusForbidden, ic.StatusCode)
		}},
		{http.StatusInternalServerError, func(t *testing.T, err error) {
			var ne *NetworkError
			require.ErrorAs(t, err, &ne)
			require.Equal(t, http.StatusInternalServerError, ne.StatusCode)
		}},
		{http.StatusConflict, func(t *testing.T, err error) {
			var ne *NetworkError
			require.ErrorAs(t, err, &ne)
		}},
	}
	for _, tc := range cases {
		remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		_, err := remote.Get(context.Background(), "books", "a")
		require.Error(t, err)
		tc.check(t, err)
	}
}

func TestHTTPRemote_TransportFailureIsNetworkError(t *testing.T) {
	remote := NewHTTPRemote("http://127.0.0.1:1", "app1", DefaultConfig(), nil)

	_, err := remote.Get(context.Background(), "books", "a")
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	require.False(t, IsNotFound(err))
	require.False(t, IsInsufficientCredentials(err))
}

func TestHTTPRemote_NamespaceOverride(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Namespace = "blob"
	remote := NewHTTPRemote(server.URL, "app1", cfg, nil)

	require.NoError(t, remote.Delete(context.Background(), "books", "a"))
	require.Equal(t, "/blob/app1/books/a", gotPath)
}
