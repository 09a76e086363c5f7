// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/thesavant42/layerslayer/gzstream"
	"github.com/thesavant42/layerslayer/record"
	"github.com/thesavant42/layerslayer/registry"
	"github.com/thesavant42/layerslayer/tarscan"
)

// LayerCarveEngine locates one file by path across an ordered list of
// layers and materializes its content, reading no further than the byte
// that completes the match — its performance contract.
type LayerCarveEngine struct {
	client       *http.Client
	registryHost string
	tokens       *registry.TokenSource
}

// NewLayerCarveEngine constructs a LayerCarveEngine against registryHost,
// sharing client and tokens with the rest of the introspector.
func NewLayerCarveEngine(client *http.Client, registryHost string, tokens *registry.TokenSource) *LayerCarveEngine {
	return &LayerCarveEngine{client: client, registryHost: registryHost, tokens: tokens}
}

// Carve walks layers in order, searching each for targetPath. It returns
// the first occurrence in base-first layer order; callers that need
// later-layer-overrides-earlier / whiteout semantics apply fsmerge over an
// ImageIndex instead.
func (e *LayerCarveEngine) Carve(ctx context.Context, ns, repo string, layers []record.LayerDescriptor, targetPath string, chunkSize int64) record.CarveResult {
	start := time.Now()

	token, err := e.tokens.Acquire(ctx, ns, repo)
	if err != nil {
		return record.CarveResult{Err: fmt.Errorf("%w: %v", ErrAuth, err), Elapsed: time.Since(start)}
	}

	var grandTotal int64
	for _, desc := range layers {
		if err := ctx.Err(); err != nil {
			return record.CarveResult{Err: ErrCancelled, BytesDownloaded: grandTotal, Elapsed: time.Since(start)}
		}

		data, layerDownloaded, found, complete, layerErr := e.carveOneLayer(ctx, ns, repo, desc, targetPath, chunkSize, &token)
		grandTotal += layerDownloaded

		if layerErr != nil {
			return record.CarveResult{Err: layerErr, BytesDownloaded: grandTotal, Elapsed: time.Since(start)}
		}
		if found {
			if complete {
				return record.CarveResult{
					Success:         true,
					Data:            data,
					BytesDownloaded: grandTotal,
					LayerSize:       desc.Size,
					Elapsed:         time.Since(start),
				}
			}
			return record.CarveResult{
				Success:         false,
				Err:             ErrFoundButIncomplete,
				BytesDownloaded: grandTotal,
				LayerSize:       desc.Size,
				Elapsed:         time.Since(start),
			}
		}
		// NotGzip / InflateError / plain exhaustion without a match: move on
		// to the next layer without aborting the whole carve.
	}

	return record.CarveResult{Success: false, Err: ErrNotFound, BytesDownloaded: grandTotal, Elapsed: time.Since(start)}
}

// carveOneLayer runs the fetch/feed/scan loop against a single layer. found
// reports whether targetPath matched within this layer; complete reports
// whether the full content range was buffered by the time the loop ended.
// err is set only for cancellation and for auth failures (token refresh
// failed, or a second 401); every other per-layer failure returns nil so
// Carve moves on to the next layer. token is updated in place if a 401 forces a refresh, so the next layer
// starts with the fresh one.
func (e *LayerCarveEngine) carveOneLayer(ctx context.Context, ns, repo string, desc record.LayerDescriptor, targetPath string, chunkSize int64, token *string) (data []byte, downloaded int64, found, complete bool, err error) {
	reader := registry.NewRangeBlobReader(e.client, e.registryHost, ns, repo, desc.Digest, *token, chunkSize)
	inf := gzstream.NewInflater()
	defer inf.Close()
	scanner := tarscan.NewScanner(tarscan.ModeSearching, targetPath)

	var matched *record.TarEntry
	firstChunk := true
	retriedAuth := false

	for !reader.Exhausted() {
		if cerr := ctx.Err(); cerr != nil {
			return nil, downloaded, false, false, ErrCancelled
		}

		chunk, fetchErr := reader.FetchChunk(ctx)
		if registry.IsUnauthorized(fetchErr) {
			if retriedAuth {
				return nil, downloaded, false, false, fmt.Errorf("%w: second 401 after token refresh", ErrAuth)
			}
			retriedAuth = true
			e.tokens.Forget(ns, repo)
			newToken, acquireErr := e.tokens.Acquire(ctx, ns, repo)
			if acquireErr != nil {
				return nil, downloaded, false, false, fmt.Errorf("%w: %v", ErrAuth, acquireErr)
			}
			*token = newToken
			reader.SetToken(newToken)
			continue
		}
		if fetchErr != nil {
			return nil, downloaded, false, false, nil
		}
		if len(chunk) == 0 {
			break
		}
		downloaded += int64(len(chunk))

		if firstChunk {
			firstChunk = false
			if len(chunk) < 2 || chunk[0] != 0x1F || chunk[1] != 0x8B {
				return nil, downloaded, false, false, nil
			}
		}

		if _, feedErr := inf.Feed(chunk); feedErr != nil {
			return nil, downloaded, false, false, nil
		}

		if matched == nil {
			out := scanner.Scan(inf.CurrentBuffer())
			if out.Matched != nil {
				matched = out.Matched
			}
		}

		if matched != nil {
			need := matched.ContentOffset + matched.ContentSize
			if int64(len(inf.CurrentBuffer())) >= need {
				break
			}
		}
	}

	if matched == nil {
		return nil, downloaded, false, false, nil
	}

	buf := inf.CurrentBuffer()
	need := matched.ContentOffset + matched.ContentSize
	if int64(len(buf)) < need {
		return nil, downloaded, true, false, nil
	}
	return append([]byte(nil), buf[matched.ContentOffset:need]...), downloaded, true, true, nil
}
