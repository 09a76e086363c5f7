// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

// Package tarscan walks POSIX/GNU ustar headers out of a growing,
// partially-decompressed byte buffer. Unlike archive/tar, nothing here
// reads from an io.Reader or treats a short buffer as an error: a caller
// feeds it more bytes from the layer blob as a range-fetch loop produces
// them, and DecodeHeader/Scan simply report that there isn't enough data
// yet to take the next step.
package tarscan

import (
	"strconv"
	"strings"

	"github.com/thesavant42/layerslayer/record"
)

const blockSize = 512

// Fixed ustar header field offsets, per the POSIX ustar layout.
const (
	offName     = 0
	lenName     = 100
	offMode     = 100
	lenMode     = 8
	offUID      = 108
	lenUID      = 8
	offGID      = 116
	lenGID      = 8
	offSize     = 124
	lenSize     = 12
	offMtime    = 136
	lenMtime    = 12
	offTypeflag = 156
	offLinkname = 157
	lenLinkname = 100
	offMagic    = 257
	lenMagic    = 6
)

// ErrBufferTooShort is returned by DecodeHeader when buf does not contain a
// full 512-byte block at offset. It is an expected, non-fatal condition:
// callers should feed more bytes and retry.
type ErrBufferTooShort struct {
	Offset   int
	Required int
}

func (e ErrBufferTooShort) Error() string {
	return "tarscan: buffer too short for header at offset " + strconv.Itoa(e.Offset)
}

// DecodeHeader parses the 512-byte ustar block at buf[offset:offset+512]. It
// returns the decoded entry, whether this block signals end-of-archive (an
// all-zero block), and the byte offset of the next header.
//
// GNU long-name ('L') and long-link ('K') extended header entries are not
// specially handled: they are returned as ordinary (opaque) entries whose
// Name is the synthetic "././@LongLink"-style name GNU tar writes into the
// block itself, and the *following* entry's Name/Linkname are not patched
// from them. Very long paths are therefore truncated to the associated
// entry's own 100-byte name field. This is a known, intentionally
// unaddressed gap (spec open question), not an oversight.
func DecodeHeader(buf []byte, offset int) (entry record.TarEntry, isEnd bool, nextOffset int, err error) {
	if len(buf) < offset+blockSize {
		return record.TarEntry{}, false, offset, ErrBufferTooShort{Offset: offset, Required: offset + blockSize}
	}
	block := buf[offset : offset+blockSize]

	if isAllZero(block) {
		return record.TarEntry{}, true, offset, nil
	}

	name := trimField(block[offName : offName+lenName])
	mode := parseOctal(block[offMode : offMode+lenMode])
	uid := parseOctal(block[offUID : offUID+lenUID])
	gid := parseOctal(block[offGID : offGID+lenGID])
	size := parseOctal(block[offSize : offSize+lenSize])
	mtime := parseOctal(block[offMtime : offMtime+lenMtime])
	typeflag := block[offTypeflag]
	linkname := trimField(block[offLinkname : offLinkname+lenLinkname])

	entry = record.TarEntry{
		Name:     name,
		Size:     0,
		Typeflag: typeflag,
		Mode:     uint32(mode),
		Uid:      int(uid),
		Gid:      int(gid),
		ModTime:  unixSeconds(mtime),
		Linkname: linkname,
	}

	contentBlocks := int64(0)
	switch typeflag {
	case record.TypeDir, record.TypeSymlink, record.TypeHardlink:
		// zero content blocks; size field (if any) is metadata noise for
		// these types per the ustar spec.
	default:
		entry.Size = size
		entry.ContentOffset = int64(offset + blockSize)
		entry.ContentSize = size
		contentBlocks = roundUpBlocks(size)
	}

	next := offset + blockSize + int(contentBlocks)*blockSize
	return entry, false, next, nil
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func trimField(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// parseOctal decodes a null/space/whitespace-trimmed octal ASCII integer
// field. A field that fails to parse (corrupt header, or GNU base-256
// extension not supported here) decodes as zero rather than erroring.
func parseOctal(b []byte) int64 {
	s := trimField(b)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 8, 64)
	if err != nil {
		return 0
	}
	return n
}

func roundUpBlocks(size int64) int64 {
	if size <= 0 {
		return 0
	}
	return (size + blockSize - 1) / blockSize
}
