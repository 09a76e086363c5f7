// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/thesavant42/layerslayer/ocidigest"
	"github.com/thesavant42/layerslayer/record"
)

// ErrNoManifest is returned on HTTP error or JSON parse failure resolving
// a manifest.
var ErrNoManifest = errors.New("registry: manifest could not be fetched")

// ErrEmptyManifest is returned when a resolved manifest's layer list is
// empty.
var ErrEmptyManifest = errors.New("registry: manifest has no layers")

const manifestAccept = "application/vnd.docker.distribution.manifest.v2+json, application/vnd.oci.image.manifest.v1+json"

type manifestLayer struct {
	Digest    string `json:"digest"`
	Size      int64  `json:"size"`
	MediaType string `json:"mediaType"`
}

type singleManifest struct {
	MediaType string          `json:"mediaType"`
	Layers    []manifestLayer `json:"layers"`
}

type platform struct {
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
}

type indexManifestEntry struct {
	Digest   string   `json:"digest"`
	Platform platform `json:"platform"`
}

type indexManifest struct {
	MediaType string               `json:"mediaType"`
	Manifests []indexManifestEntry `json:"manifests"`
}

// isIndexMediaType reports whether mediaType identifies a manifest list /
// image index rather than a single-platform manifest.
func isIndexMediaType(mediaType string) bool {
	switch mediaType {
	case "application/vnd.docker.distribution.manifest.list.v2+json",
		"application/vnd.oci.image.index.v1+json":
		return true
	default:
		return false
	}
}

// ManifestResolver fetches an image manifest and, for multi-arch images,
// resolves the platform-specific manifest beneath it.
type ManifestResolver struct {
	client       *http.Client
	registryHost string
	tokens       *TokenSource
}

// NewManifestResolver constructs a resolver against registryHost (normally
// "https://registry-1.docker.io"), sharing tokens with ts.
func NewManifestResolver(client *http.Client, registryHost string, ts *TokenSource) *ManifestResolver {
	return &ManifestResolver{client: client, registryHost: registryHost, tokens: ts}
}

// ResolveResult is the outcome of resolving a manifest: the ordered layer
// list plus which platform was actually selected, making an amd64/linux
// fallback choice observable instead of silent on ARM-only images.
type ResolveResult struct {
	Layers           []record.LayerDescriptor
	SelectedPlatform string // empty for single-platform manifests

	// ManifestDigest is the inner manifest's own digest, populated only
	// when resolution followed a manifest-list index (it is the digest
	// that was refetched). Callers use it to memoize tag→digest lookups;
	// it is empty when ref already named a single-platform manifest
	// directly, since no index redirection occurred to memoize.
	ManifestDigest string
}

// Resolve fetches /v2/<ns>/<repo>/manifests/<ref>, follows one level of
// manifest-list indirection if present, and returns the ordered layer
// descriptors of the selected manifest.
func (r *ManifestResolver) Resolve(ctx context.Context, ns, repo, ref string) (ResolveResult, error) {
	token, err := r.tokens.Acquire(ctx, ns, repo)
	if err != nil {
		return ResolveResult{}, err
	}

	body, mediaType, err := r.fetchManifest(ctx, ns, repo, ref, token)
	if err != nil {
		return ResolveResult{}, err
	}

	selectedPlatform := ""
	manifestDigest := ""
	if isIndexMediaType(mediaType) {
		var idx indexManifest
		if err := json.Unmarshal(body, &idx); err != nil {
			return ResolveResult{}, fmt.Errorf("%w: %v", ErrNoManifest, err)
		}
		if len(idx.Manifests) == 0 {
			return ResolveResult{}, ErrEmptyManifest
		}
		chosen := idx.Manifests[0]
		for _, m := range idx.Manifests {
			if m.Platform.Architecture == "amd64" && m.Platform.OS == "linux" {
				chosen = m
				break
			}
		}
		selectedPlatform = fmt.Sprintf("%s/%s", chosen.Platform.OS, chosen.Platform.Architecture)
		manifestDigest = chosen.Digest

		body, _, err = r.fetchManifest(ctx, ns, repo, chosen.Digest, token)
		if err != nil {
			return ResolveResult{}, err
		}
	}

	var sm singleManifest
	if err := json.Unmarshal(body, &sm); err != nil {
		return ResolveResult{}, fmt.Errorf("%w: %v", ErrNoManifest, err)
	}
	if len(sm.Layers) == 0 {
		return ResolveResult{}, ErrEmptyManifest
	}

	layers := make([]record.LayerDescriptor, 0, len(sm.Layers))
	for _, l := range sm.Layers {
		d, err := ocidigest.Parse(l.Digest)
		if err != nil {
			return ResolveResult{}, fmt.Errorf("%w: layer digest %q: %v", ErrNoManifest, l.Digest, err)
		}
		layers = append(layers, record.LayerDescriptor{Digest: d, Size: l.Size, MediaType: l.MediaType})
	}

	return ResolveResult{Layers: layers, SelectedPlatform: selectedPlatform, ManifestDigest: manifestDigest}, nil
}

func (r *ManifestResolver) fetchManifest(ctx context.Context, ns, repo, ref, token string) ([]byte, string, error) {
	url := fmt.Sprintf("%s/v2/%s/%s/manifests/%s", r.registryHost, ns, repo, ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNoManifest, err)
	}
	req.Header.Set("Accept", manifestAccept)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNoManifest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: manifest endpoint returned %d", ErrNoManifest, resp.StatusCode)
	}

	var buf []byte
	buf, err = readAll(resp)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNoManifest, err)
	}

	mediaType := resp.Header.Get("Content-Type")
	return buf, mediaType, nil
}
