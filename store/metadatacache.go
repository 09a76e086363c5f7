// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

// Package store implements MetadataCache, the persistent, digest-keyed
// cache of per-layer peek results. It is adapted from this repository's
// own fingerprint-store lineage: gob is
// the canonical on-disk encoding, a sibling YAML file is kept for
// inspection, snappy compresses the gob file, an LRU ARC cache sits in
// front of the full in-memory map for hot digests, and a bloom filter
// gives Has/AllPresent a cheap negative answer before touching the map —
// all exactly the roles these libraries already played for stat
// fingerprints, just re-keyed on OCI layer digests instead.
package store

import (
	"encoding/gob"
	"os"
	"sync"
	"time"

	"github.com/golang/snappy"
	lru "github.com/hashicorp/golang-lru"
	"github.com/steakknife/bloomfilter"
	"gopkg.in/yaml.v2"

	"github.com/gofrs/flock"

	"github.com/thesavant42/layerslayer/ocidigest"
	"github.com/thesavant42/layerslayer/record"
)

const hotCacheSize = 256

// onDiskEntry is the serializable shape of one cached layer peek, keyed by
// digest on disk the same way MetadataCache keys it in memory.
type onDiskEntry struct {
	Digest            string
	Namespace         string
	Repo              string
	BytesDownloaded   int64
	BytesDecompressed int64
	EntriesCount      int
	Entries           []record.TarEntry
	FetchedAt         time.Time
}

// onDiskCache is the full file payload: the per-layer index plus the
// optional tag-to-manifest-digest memoization table.
type onDiskCache struct {
	Layers    []onDiskEntry
	Manifests map[string]string
}

type layerOrigin struct {
	namespace string
	repo      string
	fetchedAt time.Time
}

// MetadataCache is a process-shared, digest-addressable cache. A
// MetadataCache value is never invalidated by content change — the digest
// that keys an entry is the hash of the bytes that produced it, so a hit
// is always correct: the same digest can only ever have produced the same
// content.
type MetadataCache struct {
	mu sync.Mutex

	path string

	layers    map[string]record.LayerPeekResult
	origins   map[string]layerOrigin
	manifests map[string]string

	hot    *lru.ARCCache
	filter *bloomfilter.Filter
	lock   *flock.Flock
}

// NewMetadataCache constructs an empty MetadataCache persisted at path
// (plus a ".yaml" sibling and a ".lock" advisory lock file alongside it).
// Call Load to populate it from a prior run.
func NewMetadataCache(path string) *MetadataCache {
	hot, err := lru.NewARC(hotCacheSize)
	if err != nil {
		// hotCacheSize is a positive constant; NewARC only fails for n<=0.
		panic(err)
	}
	return &MetadataCache{
		path:      path,
		layers:    make(map[string]record.LayerPeekResult),
		origins:   make(map[string]layerOrigin),
		manifests: make(map[string]string),
		hot:       hot,
		filter:    bloomfilter.NewOptimal(100*1024, 0.000001),
		lock:      flock.New(path + ".lock"),
	}
}

// Has reports whether digest is already cached. The bloom filter lets a
// miss return without a map probe; a filter hit always falls through to a
// real map lookup since bloom filters admit false positives but never
// false negatives.
func (c *MetadataCache) Has(digest ocidigest.Digest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasLocked(digest)
}

func (c *MetadataCache) hasLocked(digest ocidigest.Digest) bool {
	if !c.filter.Contains(digest) {
		return false
	}
	_, ok := c.layers[digest.String()]
	return ok
}

// Get returns the cached LayerPeekResult for digest, if present. The hot
// ARC cache is keyed by the result's embedded cache ID (the digest's
// Sum64) rather than its string form, so a hit never re-renders the
// digest to a string on the hot path.
func (c *MetadataCache) Get(digest ocidigest.Digest) (record.LayerPeekResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hotKey := digest.Sum64()
	if v, ok := c.hot.Get(hotKey); ok {
		return v.(record.LayerPeekResult), true
	}
	v, ok := c.layers[digest.String()]
	if ok {
		if !v.IsCached() {
			v.SetCacheID(hotKey)
		}
		c.hot.Add(v.CacheID(), v)
	}
	return v, ok
}

// Put records result under digest, content-addressable and permanent: it
// never needs invalidation. ns/repo are remembered only to populate the
// on-disk bookkeeping fields; they play no role in lookups, since the
// digest alone identifies the bytes.
func (c *MetadataCache) Put(digest ocidigest.Digest, ns, repo string, result record.LayerPeekResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result.SetCacheID(digest.Sum64())

	key := digest.String()
	c.layers[key] = result
	c.hot.Add(result.CacheID(), result)
	c.filter.Add(digest)
	c.origins[key] = layerOrigin{namespace: ns, repo: repo, fetchedAt: timeNow()}
}

// AllPresent reports whether every digest in digests is already cached,
// so a caller can tell whether an image-wide peek would need the network
// for any layer. ImageIntrospector.PeekImage does not call it; it checks
// each layer with Get.
func (c *MetadataCache) AllPresent(digests []ocidigest.Digest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range digests {
		if !c.hasLocked(d) {
			return false
		}
	}
	return true
}

// Count returns the number of layers currently cached.
func (c *MetadataCache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.layers)
}

// PutManifestDigest memoizes the resolved manifest digest for a tag
// reference, an auxiliary tag-to-digest table kept alongside the core
// per-layer index.
func (c *MetadataCache) PutManifestDigest(ns, repo, ref, digest string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manifests[manifestKey(ns, repo, ref)] = digest
}

// GetManifestDigest recalls a memoized manifest digest, if any.
func (c *MetadataCache) GetManifestDigest(ns, repo, ref string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.manifests[manifestKey(ns, repo, ref)]
	return d, ok
}

func manifestKey(ns, repo, ref string) string {
	return ns + "/" + repo + ":" + ref
}

// timeNow is a seam so persistence bookkeeping doesn't call time.Now
// directly from deep inside locked sections scattered across the file;
// kept as a single point in case tests need to stub it.
func timeNow() time.Time { return time.Now() }

// toOnDisk snapshots the cache's current state into its serializable
// form. Callers must hold c.mu.
func (c *MetadataCache) toOnDisk() onDiskCache {
	out := onDiskCache{
		Layers:    make([]onDiskEntry, 0, len(c.layers)),
		Manifests: make(map[string]string, len(c.manifests)),
	}
	for key, result := range c.layers {
		origin := c.origins[key]
		out.Layers = append(out.Layers, onDiskEntry{
			Digest:            key,
			Namespace:         origin.namespace,
			Repo:              origin.repo,
			BytesDownloaded:   result.BytesDownloaded,
			BytesDecompressed: result.BytesDecompressed,
			EntriesCount:      result.EntriesFound,
			Entries:           result.Entries,
			FetchedAt:         origin.fetchedAt,
		})
	}
	for k, v := range c.manifests {
		out.Manifests[k] = v
	}
	return out
}

func (c *MetadataCache) fromOnDisk(onDisk onDiskCache) {
	c.layers = make(map[string]record.LayerPeekResult, len(onDisk.Layers))
	c.origins = make(map[string]layerOrigin, len(onDisk.Layers))
	c.hot, _ = lru.NewARC(hotCacheSize)
	c.filter = bloomfilter.NewOptimal(100*1024, 0.000001)

	for _, e := range onDisk.Layers {
		digest, err := ocidigest.Parse(e.Digest)
		if err != nil {
			log.WithError(err).WithField("digest", e.Digest).Warn("dropping cache entry with unparsable digest")
			continue
		}
		result := record.LayerPeekResult{
			Digest:            digest,
			Partial:           true,
			BytesDownloaded:   e.BytesDownloaded,
			BytesDecompressed: e.BytesDecompressed,
			EntriesFound:      e.EntriesCount,
			Entries:           e.Entries,
		}
		c.layers[e.Digest] = result
		c.origins[e.Digest] = layerOrigin{namespace: e.Namespace, repo: e.Repo, fetchedAt: e.FetchedAt}
		c.filter.Add(digest)
	}

	c.manifests = make(map[string]string, len(onDisk.Manifests))
	for k, v := range onDisk.Manifests {
		c.manifests[k] = v
	}
}

// Persist writes the cache to disk: a snappy-compressed gob file (the
// canonical form) plus a plain YAML sibling for inspection, guarded by an
// advisory file lock so concurrent processes sharing one cache file never
// observe a half-written entry.
func (c *MetadataCache) Persist() error {
	if err := c.lock.Lock(); err != nil {
		return err
	}
	defer c.lock.Unlock()

	c.mu.Lock()
	onDisk := c.toOnDisk()
	c.mu.Unlock()

	if err := writeGobSnappy(c.path, onDisk); err != nil {
		return err
	}
	return writeYAML(c.path+".yaml", onDisk)
}

// Load populates the cache from the on-disk gob file (falling back to the
// YAML sibling if the gob file is absent or unreadable), replacing
// whatever was previously in memory. A missing cache file is not an
// error: it simply means this is the first run.
func (c *MetadataCache) Load() error {
	if err := c.lock.Lock(); err != nil {
		return err
	}
	defer c.lock.Unlock()

	onDisk, err := readGobSnappy(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Debug("gob cache unreadable, trying yaml sibling")
		}
		onDisk, err = readYAML(c.path + ".yaml")
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
	}

	c.mu.Lock()
	c.fromOnDisk(onDisk)
	c.mu.Unlock()
	return nil
}

func writeGobSnappy(path string, v onDiskCache) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sw := snappy.NewBufferedWriter(f)
	if err := gob.NewEncoder(sw).Encode(v); err != nil {
		return err
	}
	return sw.Close()
}

func readGobSnappy(path string) (onDiskCache, error) {
	var v onDiskCache
	f, err := os.Open(path)
	if err != nil {
		return v, err
	}
	defer f.Close()

	sr := snappy.NewReader(f)
	if err := gob.NewDecoder(sr).Decode(&v); err != nil {
		return v, err
	}
	return v, nil
}

func writeYAML(path string, v onDiskCache) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readYAML(path string) (onDiskCache, error) {
	var v onDiskCache
	data, err := os.ReadFile(path)
	if err != nil {
		return v, err
	}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return v, err
	}
	return v, nil
}
