// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package engine

import (
	"context"
	"net/http"

	"github.com/thesavant42/layerslayer/internal/config"
	"github.com/thesavant42/layerslayer/internal/ilog"
	"github.com/thesavant42/layerslayer/record"
	"github.com/thesavant42/layerslayer/registry"
	"github.com/thesavant42/layerslayer/store"
)

var log = ilog.New("engine")

// ProgressFunc is invoked serially as an operation advances; implementations
// must not assume which goroutine calls it.
type ProgressFunc func(stage string, current, total int)

// ImageIntrospector is the top-level orchestrator: it resolves a manifest,
// fans out across its layers through LayerPeekEngine or LayerCarveEngine,
// and consults a MetadataCache so repeat calls for the same image cost
// nothing beyond auth and manifest resolution.
type ImageIntrospector struct {
	manifests *registry.ManifestResolver
	peek      *LayerPeekEngine
	carve     *LayerCarveEngine
	cache     *store.MetadataCache
	cfg       *config.Config
}

// NewImageIntrospector wires a client, configuration, and shared
// MetadataCache into a ready-to-use introspector. The *http.Client and the
// cache are process-shared resources the caller owns; ImageIntrospector
// never constructs package-level singletons for them.
func NewImageIntrospector(client *http.Client, cfg *config.Config, cache *store.MetadataCache) *ImageIntrospector {
	tokens := registry.NewTokenSource(client, cfg.AuthHost)
	return &ImageIntrospector{
		manifests: registry.NewManifestResolver(client, cfg.RegistryHost, tokens),
		peek:      NewLayerPeekEngine(client, cfg.RegistryHost, tokens),
		carve:     NewLayerCarveEngine(client, cfg.RegistryHost, tokens),
		cache:     cache,
		cfg:       cfg,
	}
}

// PeekImage resolves ns/repo/ref's manifest and peeks every layer,
// preferring the cache over the network for any layer already seen. The
// returned ImageIndex preserves base-first layer order in AllEntries and
// header order within each layer.
func (ii *ImageIntrospector) PeekImage(ctx context.Context, ns, repo, ref string, progress ProgressFunc) (record.ImageIndex, error) {
	resolved, err := ii.manifests.Resolve(ctx, ns, repo, ref)
	if err != nil {
		return record.ImageIndex{}, err
	}
	if resolved.ManifestDigest != "" {
		ii.cache.PutManifestDigest(ns, repo, ref, resolved.ManifestDigest)
	}

	var index record.ImageIndex
	total := len(resolved.Layers)

	for i, desc := range resolved.Layers {
		if err := ctx.Err(); err != nil {
			return index, ErrCancelled
		}
		if progress != nil {
			progress("peek", i, total)
		}

		var result record.LayerPeekResult
		var fromCache bool
		if cached, ok := ii.cache.Get(desc.Digest); ok {
			result = cached
			fromCache = true
			index.LayersFromCache++
		} else {
			result = ii.peek.Peek(ctx, ns, repo, desc, ii.cfg.PeekPrefixBytes)
			if result.Err == nil {
				ii.cache.Put(desc.Digest, ns, repo, result)
			} else {
				log.WithError(result.Err).WithField("digest", desc.Digest.String()).Debug("layer peek failed, continuing with remaining layers")
			}
		}

		index.LayersPeeked++
		if !fromCache {
			index.TotalBytesDownloaded += result.BytesDownloaded
		}
		index.TotalEntries += len(result.Entries)
		index.PerLayer = append(index.PerLayer, result)

		for _, e := range result.Entries {
			e.LayerIndex = i
			index.AllEntries = append(index.AllEntries, e)
		}
	}

	if progress != nil {
		progress("peek", total, total)
	}
	return index, nil
}

// CarveFile resolves ns/repo/ref's manifest and extracts path from the
// first layer (base-first) that contains it.
func (ii *ImageIntrospector) CarveFile(ctx context.Context, ns, repo, ref, path string, progress ProgressFunc) (record.CarveResult, error) {
	resolved, err := ii.manifests.Resolve(ctx, ns, repo, ref)
	if err != nil {
		return record.CarveResult{}, err
	}
	if resolved.ManifestDigest != "" {
		ii.cache.PutManifestDigest(ns, repo, ref, resolved.ManifestDigest)
	}

	total := len(resolved.Layers)
	if progress != nil {
		progress("carve", 0, total)
	}

	result := ii.carve.Carve(ctx, ns, repo, resolved.Layers, path, ii.cfg.ChunkSize)

	if progress != nil {
		progress("carve", total, total)
	}
	return result, result.Err
}
