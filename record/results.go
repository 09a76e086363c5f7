// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package record

import (
	"time"

	"github.com/thesavant42/layerslayer/ocidigest"
)

// LayerPeekResult is the outcome of peeking one layer: the minimum
// compressed prefix needed to enumerate its outermost tar entries.
//
// A LayerPeekResult is content-addressable immutable data — it never needs
// invalidation once produced, because Digest defines the bytes that
// produced it. Partial is always true: this repository never reads a
// layer whole.
type LayerPeekResult struct {
	Digest            ocidigest.Digest
	Partial           bool
	BytesDownloaded   int64
	BytesDecompressed int64
	EntriesFound      int
	Entries           []TarEntry
	Err               error `yaml:"-"`

	embeddedCacheID `yaml:"-"`
}

// CarveResult is the outcome of extracting one file by path from one of an
// image's layers. On Success, Data matches the originating TarEntry's Size
// exactly.
type CarveResult struct {
	Success         bool
	Data            []byte `yaml:"-"`
	Err             error  `yaml:"-"`
	BytesDownloaded int64
	LayerSize       int64
	Elapsed         time.Duration
}

// ImageIndex is the aggregate result of peeking every layer of one image.
type ImageIndex struct {
	LayersPeeked         int
	LayersFromCache      int
	TotalBytesDownloaded int64
	TotalEntries         int
	AllEntries           []TarEntry
	PerLayer             []LayerPeekResult
}
