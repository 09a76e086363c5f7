// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

// Package fsmerge collapses an ordered list of layer entries — as produced
// by an ImageIndex — into a single merged filesystem view, applying OCI's
// later-layers-override-earlier rule plus `.wh.*` whiteout semantics.
// Neither LayerPeekEngine nor LayerCarveEngine need this: peek reports raw
// per-layer entries and carve returns the first occurrence in base-first
// order, so this is strictly an optional post-processing step for callers
// that want filesystem-accurate results.
package fsmerge

import (
	"strings"

	"github.com/thesavant42/layerslayer/record"
)

const (
	whiteoutPrefix       = ".wh."
	whiteoutOpaqueMarker = ".wh..wh..opq"
)

// MergedFilesystem is the result of collapsing layer entries with
// later-wins and whiteout rules applied. Entries is keyed by normalized
// path.
type MergedFilesystem struct {
	Entries map[string]record.TarEntry
}

// Merge folds entries — which must carry LayerIndex in base-first order, as
// ImageIndex.AllEntries does — into a MergedFilesystem. A `.wh.<name>`
// marker in layer N deletes `<name>` from every layer before N (but not
// from N itself or later); `.wh..wh..opq` in a directory makes that
// directory opaque, hiding everything beneath it contributed by earlier
// layers.
func Merge(entries []record.TarEntry) MergedFilesystem {
	byLayer := map[int][]record.TarEntry{}
	maxLayer := -1
	for _, e := range entries {
		byLayer[e.LayerIndex] = append(byLayer[e.LayerIndex], e)
		if e.LayerIndex > maxLayer {
			maxLayer = e.LayerIndex
		}
	}

	fs := map[string]record.TarEntry{}
	for li := 0; li <= maxLayer; li++ {
		applyLayer(fs, byLayer[li])
	}
	return MergedFilesystem{Entries: fs}
}

func applyLayer(fs map[string]record.TarEntry, layerEntries []record.TarEntry) {
	var opaqueDirs []string
	var whiteoutTargets []string
	var regular []record.TarEntry

	for _, e := range layerEntries {
		name := normalizePath(e.Name)
		dir, base := splitPath(name)

		switch {
		case base == whiteoutOpaqueMarker:
			opaqueDirs = append(opaqueDirs, dir)
		case strings.HasPrefix(base, whiteoutPrefix):
			target := joinPath(dir, strings.TrimPrefix(base, whiteoutPrefix))
			whiteoutTargets = append(whiteoutTargets, target)
		default:
			regular = append(regular, e)
		}
	}

	for _, dir := range opaqueDirs {
		for p := range fs {
			if isUnder(p, dir) {
				delete(fs, p)
			}
		}
	}
	for _, target := range whiteoutTargets {
		delete(fs, target)
		for p := range fs {
			if isUnder(p, target) {
				delete(fs, p)
			}
		}
	}
	for _, e := range regular {
		fs[normalizePath(e.Name)] = e
	}
}

// isUnder reports whether p is dir itself or a descendant of it.
func isUnder(p, dir string) bool {
	if dir == "" {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}

func splitPath(p string) (dir, base string) {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i], p[i+1:]
	}
	return "", p
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// normalizePath strips a leading "./" or "/", matching tarscan's own
// normalization so the same path resolves identically regardless of how
// the tar writer that produced it formatted names.
func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return p
}
