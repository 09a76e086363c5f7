// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

// Package engine implements the two orchestration layers that drive a
// registry fetch through inflation and tar-header scanning:
// LayerPeekEngine, which reads just enough of one layer to list its
// outermost entries, and LayerCarveEngine, which reads just enough of one
// or more layers to materialize a single file's content. ImageIntrospector
// sits above both, resolving a manifest and fanning out per layer.
package engine

import "errors"

// ErrInsufficientData is returned by Peek when fewer than 512 decompressed
// bytes were available after the initial fetch — not enough for even one
// tar header block.
var ErrInsufficientData = errors.New("engine: insufficient decompressed data")

// ErrNotFound is returned by Carve when every layer was scanned and the
// target path never matched.
var ErrNotFound = errors.New("engine: target path not found in any layer")

// ErrFoundButIncomplete is returned by Carve when the target path was
// located but its owning layer's reader exhausted before the full content
// range could be materialized.
var ErrFoundButIncomplete = errors.New("engine: target located but content incomplete")

// ErrCancelled is returned when ctx is cancelled between chunk fetches.
var ErrCancelled = errors.New("engine: operation cancelled")

// ErrAuth is returned when no token is obtainable for a repository, or a
// second 401 is observed after one refresh.
var ErrAuth = errors.New("engine: authentication failed")
