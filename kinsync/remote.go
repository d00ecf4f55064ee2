// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Remote is the backend surface the push engine dispatches against. The
// production implementation is HTTPRemote; tests plug fakes.
type Remote interface {
	// Create POSTs an entity (already stripped of its local id) and
	// returns the remote's stored form, including the assigned id.
	Create(ctx context.Context, collection string, entity Entity) (Entity, error)

	// Update PUTs an entity under its id and returns the stored form.
	Update(ctx context.Context, collection, id string, entity Entity) (Entity, error)

	// Delete removes the entity under id.
	Delete(ctx context.Context, collection, id string) error

	// Get fetches the remote's current view of the entity. Used by
	// repair.
	Get(ctx context.Context, collection, id string) (Entity, error)
}

// HTTPRemote talks to the backend over the documented REST surface:
//
//	POST   /<ns>/<app>/<collection>
//	PUT    /<ns>/<app>/<collection>/<id>
//	DELETE /<ns>/<app>/<collection>/<id>
//	GET    /<ns>/<app>/<collection>/<id>
type HTTPRemote struct {
	BaseURL   string
	AppKey    string
	Namespace string

	// Token returns the bearer token injected on every request.
	Token func(ctx context.Context) (string, error)

	HTTP *http.Client

	// Timeout applies per request on top of the HTTP client's own.
	// Zero disables.
	Timeout time.Duration
}

// NewHTTPRemote wires a remote against baseURL/<ns>/<appKey>.
func NewHTTPRemote(baseURL, appKey string, cfg *Config, tok func(ctx context.Context) (string, error)) *HTTPRemote {
	return &HTTPRemote{
		BaseURL:   baseURL,
		AppKey:    appKey,
		Namespace: cfg.Namespace,
		Token:     tok,
		HTTP:      &http.Client{Timeout: 120 * time.Second},
		Timeout:   cfg.RequestTimeout,
	}
}

func (r *HTTPRemote) collectionURL(collection string, id string) string {
	u := fmt.Sprintf("%s/%s/%s/%s",
		r.BaseURL, url.PathEscape(r.Namespace), url.PathEscape(r.AppKey), url.PathEscape(collection))
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

func (r *HTTPRemote) do(ctx context.Context, method, rawURL, collection, id string, body any) (Entity, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Token != nil {
		token, err := r.Token(ctx)
		if err != nil {
			return nil, &NetworkError{Err: fmt.Errorf("failed to get token: %w", err)}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused, then classify.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		switch resp.StatusCode {
		case http.StatusNotFound:
			return nil, &NotFoundError{Collection: collection, EntityID: id}
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, &InsufficientCredentialsError{
				Collection: collection, EntityID: id, StatusCode: resp.StatusCode,
			}
		default:
			return nil, &NetworkError{StatusCode: resp.StatusCode}
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var entity Entity
	if err := json.Unmarshal(raw, &entity); err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return entity, nil
}

func (r *HTTPRemote) Create(ctx context.Context, collection string, entity Entity) (Entity, error) {
	return r.do(ctx, http.MethodPost, r.collectionURL(collection, ""), collection, "", entity)
}

func (r *HTTPRemote) Update(ctx context.Context, collection, id string, entity Entity) (Entity, error) {
	return r.do(ctx, http.MethodPut, r.collectionURL(collection, id), collection, id, entity)
}

func (r *HTTPRemote) Delete(ctx context.Context, collection, id string) error {
	_, err := r.do(ctx, http.MethodDelete, r.collectionURL(collection, id), collection, id, nil)
	return err
}

func (r *HTTPRemote) Get(ctx context.Context, collection, id string) (Entity, error) {
	return r.do(ctx, http.MethodGet, r.collectionURL(collection, id), collection, id, nil)
}
