// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

// Package registry implements the bit-exact HTTP surface this module
// depends on: anonymous bearer token auth, manifest resolution (including
// multi-arch index selection), and Range-request blob reading. None of it
// writes to the registry; every request is a GET.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/thesavant42/layerslayer/internal/ilog"
)

var log = ilog.New("registry")

// ErrNoToken is returned when a token cannot be obtained for a scope,
// either because of a transport error or a non-2xx/malformed response.
// Callers treat it as a fatal auth failure for the operation in progress.
var ErrNoToken = errors.New("registry: no token obtainable")

// TokenSource acquires and memoizes anonymous pull tokens, one per
// (namespace, repo) pair, for the lifetime of the process that owns it.
// It is not safe for concurrent use by multiple goroutines without
// external synchronization.
type TokenSource struct {
	client   *http.Client
	authHost string
	tokens   map[string]string
}

// NewTokenSource constructs a TokenSource against authHost (normally
// "https://auth.docker.io").
func NewTokenSource(client *http.Client, authHost string) *TokenSource {
	return &TokenSource{client: client, authHost: authHost, tokens: map[string]string{}}
}

// Acquire returns a bearer token scoped to "repository:<ns>/<repo>:pull",
// fetching and memoizing it on first use.
func (t *TokenSource) Acquire(ctx context.Context, ns, repo string) (string, error) {
	scope := fmt.Sprintf("repository:%s/%s:pull", ns, repo)
	if tok, ok := t.tokens[scope]; ok {
		return tok, nil
	}

	url := fmt.Sprintf("%s/token?service=registry.docker.io&scope=%s", t.authHost, scope)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoToken, err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		log.WithError(err).Debug("token request failed")
		return "", fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrNoToken, resp.StatusCode)
	}

	var body struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoToken, err)
	}

	token := body.Token
	if token == "" {
		token = body.AccessToken
	}
	if token == "" {
		return "", fmt.Errorf("%w: empty token in response", ErrNoToken)
	}

	t.tokens[scope] = token
	return token, nil
}

// Forget discards a memoized token for (ns, repo), forcing the next
// Acquire to fetch a fresh one. Callers use this to refresh credentials
// once after a 401 and retry.
func (t *TokenSource) Forget(ns, repo string) {
	delete(t.tokens, fmt.Sprintf("repository:%s/%s:pull", ns, repo))
}
