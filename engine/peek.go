// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package engine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/thesavant42/layerslayer/gzstream"
	"github.com/thesavant42/layerslayer/record"
	"github.com/thesavant42/layerslayer/registry"
	"github.com/thesavant42/layerslayer/tarscan"
)

// LayerPeekEngine fetches just enough of one layer blob — a single bounded
// Range request — to enumerate its outermost tar entries. It is a
// short-lived owner of one reader, one inflater, and one scanner per Peek
// call; nothing about it is safe to share across concurrent Peek calls
// beyond the *http.Client and *registry.TokenSource it was built with.
type LayerPeekEngine struct {
	client       *http.Client
	registryHost string
	tokens       *registry.TokenSource
}

// NewLayerPeekEngine constructs a LayerPeekEngine against registryHost,
// sharing client and tokens with the rest of the introspector.
func NewLayerPeekEngine(client *http.Client, registryHost string, tokens *registry.TokenSource) *LayerPeekEngine {
	return &LayerPeekEngine{client: client, registryHost: registryHost, tokens: tokens}
}

// Peek fetches the first prefixBytes of desc's blob, inflates whatever that
// produces, and scans the result for outermost tar entries. The returned
// LayerPeekResult always has Partial set; on failure its Err field is
// populated and the byte counters reflect whatever work actually
// completed before the failure.
func (e *LayerPeekEngine) Peek(ctx context.Context, ns, repo string, desc record.LayerDescriptor, prefixBytes int64) record.LayerPeekResult {
	result := record.LayerPeekResult{Digest: desc.Digest, Partial: true}

	token, err := e.tokens.Acquire(ctx, ns, repo)
	if err != nil {
		result.Err = fmt.Errorf("%w: %v", ErrAuth, err)
		return result
	}

	reader := registry.NewRangeBlobReader(e.client, e.registryHost, ns, repo, desc.Digest, token, prefixBytes)
	chunk, err := reader.FetchChunk(ctx)
	if registry.IsUnauthorized(err) {
		e.tokens.Forget(ns, repo)
		token, err = e.tokens.Acquire(ctx, ns, repo)
		if err != nil {
			result.Err = fmt.Errorf("%w: %v", ErrAuth, err)
			return result
		}
		reader.SetToken(token)
		chunk, err = reader.FetchChunk(ctx)
		if registry.IsUnauthorized(err) {
			result.Err = fmt.Errorf("%w: second 401 after token refresh", ErrAuth)
			return result
		}
	}
	if err != nil {
		result.Err = err
		return result
	}
	result.BytesDownloaded = int64(len(chunk))

	inf := gzstream.NewInflater()
	defer inf.Close()

	if _, err := inf.Feed(chunk); err != nil {
		result.Err = err
		return result
	}

	decompressed := inf.CurrentBuffer()
	result.BytesDecompressed = int64(len(decompressed))
	if len(decompressed) < 512 {
		result.Err = ErrInsufficientData
		return result
	}

	scanner := tarscan.NewScanner(tarscan.ModeCollecting, "")
	out := scanner.Scan(decompressed)
	result.Entries = out.NewEntries
	result.EntriesFound = len(out.NewEntries)
	return result
}
