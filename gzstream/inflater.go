// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

// Package gzstream implements an incremental gzip decompressor: bytes
// arrive in arbitrary chunks via Feed, and whatever new decompressed bytes
// that chunk produced come back out of the same call. A stream ending
// mid-block — because the caller intentionally stopped range-fetching
// once it had enough — is the expected, normal outcome, not an error;
// compress/gzip's own Reader has no such "feed more later" API, so this
// package drives one from a background goroutine over a condition-variable
// guarded buffer.
package gzstream

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/thesavant42/layerslayer/internal/ilog"
)

var log = ilog.New("gzstream")

// ErrNotGzip is returned by Feed when the first two fed bytes are not the
// gzip magic number 0x1F 0x8B.
var ErrNotGzip = errors.New("gzstream: not a gzip stream")

// ErrInflate is returned by Feed when the decoder reports any corruption
// past the magic number, including a malformed gzip header.
var ErrInflate = errors.New("gzstream: inflate error")

const readBufSize = 32 * 1024

// Inflater is a single-use incremental gzip decompressor, scoped to one
// layer operation. It holds no resources once Close is called or the
// underlying stream legitimately ends.
type Inflater struct {
	mu   sync.Mutex
	cond *sync.Cond

	feedBuf []byte // compressed bytes fed, not yet consumed by run()
	output  []byte // decompressed bytes produced so far

	started  bool
	finished bool // the gzip member completed normally (real EOF + CRC check)
	closed   bool
	waiting  bool  // run() is blocked in Read with feedBuf empty
	termErr  error // sticky terminal error: ErrNotGzip or ErrInflate
}

// NewInflater constructs an empty Inflater ready to receive Feed calls.
func NewInflater() *Inflater {
	inf := &Inflater{}
	inf.cond = sync.NewCond(&inf.mu)
	return inf
}

// Feed appends chunk to the inflater's input and returns whatever new
// decompressed bytes that chunk allowed the decoder to produce. Feed
// blocks until the background decoder has consumed everything just fed (or
// hit a terminal error), so it behaves as a synchronous call despite the
// asynchronous decoder underneath.
//
// A return of (nil, nil) with no error and no new bytes is normal: it
// means the fed bytes were accepted but did not yet complete a decodable
// block. The decoder releases output only when a deflate block ends or its
// 32 KiB window fills; bytes of a block that has not ended are not returned.
func (inf *Inflater) Feed(chunk []byte) ([]byte, error) {
	inf.mu.Lock()
	defer inf.mu.Unlock()

	if inf.termErr != nil {
		return nil, inf.termErr
	}

	prevOutputLen := len(inf.output)
	inf.feedBuf = append(inf.feedBuf, chunk...)

	if !inf.started {
		if len(inf.feedBuf) < 2 {
			return nil, nil
		}
		if inf.feedBuf[0] != 0x1F || inf.feedBuf[1] != 0x8B {
			inf.termErr = ErrNotGzip
			return nil, inf.termErr
		}
		inf.started = true
		go inf.run()
	}

	inf.cond.Broadcast()
	for (len(inf.feedBuf) > 0 || !inf.waiting) && inf.termErr == nil && !inf.finished {
		inf.cond.Wait()
	}

	out := append([]byte(nil), inf.output[prevOutputLen:]...)
	return out, inf.termErr
}

// CurrentBuffer returns the full decompressed output accumulated so far.
// The slice is a defensive copy; callers may retain it.
func (inf *Inflater) CurrentBuffer() []byte {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	return append([]byte(nil), inf.output...)
}

// Finished reports whether the gzip member decoded to a complete, valid
// end (trailer CRC verified), as opposed to simply having no more fed
// bytes to work with.
func (inf *Inflater) Finished() bool {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	return inf.finished
}

// Close releases the background decoder goroutine. It must be called once
// the owning engine is done with the inflater, whether or not the stream
// was read to completion; it is not required (and is a no-op) for streams
// that finished validly.
func (inf *Inflater) Close() {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	if inf.closed {
		return
	}
	inf.closed = true
	inf.cond.Broadcast()
}

// run is the background decoder loop. It implements io.Reader over inf
// itself (see Read below) so compress/gzip can pull fed bytes on demand.
func (inf *Inflater) run() {
	gz, err := gzip.NewReader(inf)
	if err != nil {
		inf.mu.Lock()
		inf.termErr = wrapInflateErr(err)
		inf.cond.Broadcast()
		inf.mu.Unlock()
		return
	}
	// One member per layer blob: report io.EOF at the trailer instead of
	// blocking for a further member header.
	gz.Multistream(false)

	buf := make([]byte, readBufSize)
	for {
		n, err := gz.Read(buf)
		if n > 0 {
			inf.mu.Lock()
			inf.output = append(inf.output, buf[:n]...)
			inf.cond.Broadcast()
			inf.mu.Unlock()
		}
		if err != nil {
			inf.mu.Lock()
			if err == io.EOF {
				inf.finished = true
			} else {
				inf.termErr = wrapInflateErr(err)
				log.WithError(err).Debug("inflate terminated with error")
			}
			inf.cond.Broadcast()
			inf.mu.Unlock()
			return
		}
	}
}

// Read implements io.Reader, called by compress/gzip's internal bufio
// reader. It blocks until bytes are available, and — critically — does
// not return io.EOF merely because feedBuf is momentarily empty; that
// would make a stream truncated at an arbitrary boundary look like
// corruption instead of a normal pause waiting for more chunks. io.EOF is
// only returned after Close.
func (inf *Inflater) Read(p []byte) (int, error) {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	for len(inf.feedBuf) == 0 && !inf.closed {
		inf.waiting = true
		inf.cond.Broadcast()
		inf.cond.Wait()
	}
	inf.waiting = false
	if len(inf.feedBuf) == 0 && inf.closed {
		return 0, io.EOF
	}
	n := copy(p, inf.feedBuf)
	inf.feedBuf = inf.feedBuf[n:]
	inf.cond.Broadcast()
	return n, nil
}

func wrapInflateErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInflate, err)
}
