// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package tarscan

import (
	"strings"

	"github.com/thesavant42/layerslayer/record"
)

// Mode selects whether a Scanner accumulates every entry it sees or stops
// as soon as one entry matches a target path.
type Mode int

const (
	// ModeCollecting accumulates every entry until the archive (or the
	// available buffer) is exhausted.
	ModeCollecting Mode = iota
	// ModeSearching stops as soon as an entry's normalized path matches
	// the Scanner's target.
	ModeSearching
)

// Outcome reports what a Scan call did.
type Outcome struct {
	// NewEntries holds entries discovered during this Scan call, in
	// archive order. Only ModeCollecting fills it.
	NewEntries []record.TarEntry
	// EndOfArchive is true if the decoder reached an all-zero block.
	EndOfArchive bool
	// Stalled is true if the scanner stopped because the buffer does not
	// yet contain a full header at CurrentOffset; feed more bytes and
	// Scan again.
	Stalled bool
	// Matched holds the entry that satisfied a ModeSearching target, if
	// any. Only ever set in ModeSearching.
	Matched *record.TarEntry
	// Halted is true if the scanner gave up because a decoded next offset
	// did not advance past the current one (malformed/zero-progress
	// header), to avoid looping forever over the same bytes.
	Halted bool
}

// Scanner walks a growing buffer of decompressed tar bytes, remembering
// its position across repeated Scan calls so a caller can feed it more
// bytes as a range-fetch loop produces them.
type Scanner struct {
	mode          Mode
	target        string
	currentOffset int
	entriesSeen   int
	done          bool
}

// NewScanner constructs a Scanner. target is ignored in ModeCollecting.
func NewScanner(mode Mode, target string) *Scanner {
	return &Scanner{mode: mode, target: normalizePath(target)}
}

// CurrentOffset returns the byte offset the next Scan call will resume
// from. Per the resumable-scan invariant, any later Scan over a buffer
// that still agrees with buf[:CurrentOffset] will emit a disjoint, later
// tail of entries.
func (s *Scanner) CurrentOffset() int { return s.currentOffset }

// EntriesSeen returns the total number of entries decoded across the
// Scanner's lifetime.
func (s *Scanner) EntriesSeen() int { return s.entriesSeen }

// Scan decodes as many headers as buf currently allows, starting from
// CurrentOffset, and reports what happened. It is safe to call repeatedly
// as buf grows; bytes before CurrentOffset are never re-read.
func (s *Scanner) Scan(buf []byte) Outcome {
	var out Outcome
	if s.done {
		out.EndOfArchive = true
		return out
	}

	for {
		entry, isEnd, next, err := DecodeHeader(buf, s.currentOffset)
		if err != nil {
			out.Stalled = true
			return out
		}
		if isEnd {
			out.EndOfArchive = true
			s.done = true
			return out
		}

		s.entriesSeen++

		if s.mode == ModeSearching {
			if normalizePath(entry.Name) == s.target {
				e := entry
				out.Matched = &e
				s.currentOffset = next
				return out
			}
		} else {
			out.NewEntries = append(out.NewEntries, entry)
		}

		if next <= s.currentOffset {
			out.Halted = true
			return out
		}
		s.currentOffset = next
	}
}

// normalizePath strips a leading "./" or "/" so "etc/hosts", "./etc/hosts"
// and "/etc/hosts" all compare equal.
func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return p
}
