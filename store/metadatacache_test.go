// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/thesavant42/layerslayer/ocidigest"
	"github.com/thesavant42/layerslayer/record"
)

func mustDigest(t *testing.T, s string) ocidigest.Digest {
	t.Helper()
	d, err := ocidigest.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return d
}

func TestMetadataCachePutGetHas(t *testing.T) {
	digest := mustDigest(t, "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	c := NewMetadataCache(filepath.Join(t.TempDir(), "cache.gob.sz"))

	if c.Has(digest) {
		t.Fatal("empty cache reports Has = true")
	}
	if _, ok := c.Get(digest); ok {
		t.Fatal("empty cache returned a value from Get")
	}

	want := record.LayerPeekResult{Digest: digest, EntriesFound: 3, BytesDownloaded: 1024}
	c.Put(digest, "library", "alpine", want)

	if !c.Has(digest) {
		t.Fatal("Has = false after Put")
	}
	got, ok := c.Get(digest)
	if !ok {
		t.Fatal("Get returned ok = false after Put")
	}
	if got.EntriesFound != want.EntriesFound || got.BytesDownloaded != want.BytesDownloaded {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
	if c.Count() != 1 {
		t.Errorf("Count() = %d, want 1", c.Count())
	}
}

func TestMetadataCacheAllPresent(t *testing.T) {
	d1 := mustDigest(t, "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	d2 := mustDigest(t, "sha256:0000000000000000000000000000000000000000000000000000000000000000")
	c := NewMetadataCache(filepath.Join(t.TempDir(), "cache.gob.sz"))

	if c.AllPresent([]ocidigest.Digest{d1, d2}) {
		t.Fatal("AllPresent = true with an empty cache")
	}
	c.Put(d1, "library", "alpine", record.LayerPeekResult{Digest: d1})
	if c.AllPresent([]ocidigest.Digest{d1, d2}) {
		t.Fatal("AllPresent = true with one of two digests cached")
	}
	c.Put(d2, "library", "alpine", record.LayerPeekResult{Digest: d2})
	if !c.AllPresent([]ocidigest.Digest{d1, d2}) {
		t.Fatal("AllPresent = false once both digests are cached")
	}
}

func TestMetadataCacheManifestMemo(t *testing.T) {
	c := NewMetadataCache(filepath.Join(t.TempDir(), "cache.gob.sz"))

	if _, ok := c.GetManifestDigest("library", "alpine", "latest"); ok {
		t.Fatal("GetManifestDigest returned ok = true before any Put")
	}
	c.PutManifestDigest("library", "alpine", "latest", "sha256:deadbeef")
	got, ok := c.GetManifestDigest("library", "alpine", "latest")
	if !ok || got != "sha256:deadbeef" {
		t.Errorf("GetManifestDigest() = %q, %v", got, ok)
	}
}

func TestMetadataCachePersistAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.gob.sz")
	digest := mustDigest(t, "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")

	c := NewMetadataCache(path)
	c.Put(digest, "library", "alpine", record.LayerPeekResult{
		Digest:       digest,
		EntriesFound: 2,
		Entries: []record.TarEntry{
			{Name: "etc/passwd", Size: 42, Typeflag: record.TypeRegular},
		},
	})
	c.PutManifestDigest("library", "alpine", "latest", "sha256:deadbeef")

	if err := c.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("gob cache file missing: %v", err)
	}
	if _, err := os.Stat(path + ".yaml"); err != nil {
		t.Fatalf("yaml sibling missing: %v", err)
	}

	reloaded := NewMetadataCache(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	got, ok := reloaded.Get(digest)
	if !ok {
		t.Fatal("reloaded cache missing digest")
	}
	if got.EntriesFound != 2 || len(got.Entries) != 1 || got.Entries[0].Name != "etc/passwd" {
		t.Errorf("reloaded entry = %+v", got)
	}
	if manifestDigest, ok := reloaded.GetManifestDigest("library", "alpine", "latest"); !ok || manifestDigest != "sha256:deadbeef" {
		t.Errorf("reloaded manifest memo = %q, %v", manifestDigest, ok)
	}
}

func TestMetadataCacheLoadMissingFileIsNotAnError(t *testing.T) {
	c := NewMetadataCache(filepath.Join(t.TempDir(), "does-not-exist.gob.sz"))
	if err := c.Load(); err != nil {
		t.Fatalf("Load() on a missing file returned %v, want nil", err)
	}
	if c.Has(mustDigest(t, "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")) {
		t.Fatal("freshly-loaded empty cache reports Has = true")
	}
}
