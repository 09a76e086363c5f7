// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package tarscan

import (
	"strconv"
	"testing"

	"github.com/thesavant42/layerslayer/record"
)

// buildHeader constructs one raw 512-byte ustar header block for tests,
// without relying on archive/tar (this package deliberately does not use
// it either).
func buildHeader(name string, typeflag byte, size int64) []byte {
	block := make([]byte, blockSize)
	copy(block[offName:], name)
	copy(block[offMode:], paddedOctal(0644, lenMode))
	copy(block[offUID:], paddedOctal(0, lenUID))
	copy(block[offGID:], paddedOctal(0, lenGID))
	copy(block[offSize:], paddedOctal(size, lenSize))
	copy(block[offMtime:], paddedOctal(0, lenMtime))
	block[offTypeflag] = typeflag
	copy(block[offMagic:], "ustar")
	return block
}

func paddedOctal(n int64, width int) []byte {
	s := strconv.FormatInt(n, 8)
	for len(s) < width-1 {
		s = "0" + s
	}
	return append([]byte(s), 0)
}

func padContent(content []byte) []byte {
	rem := len(content) % blockSize
	if rem == 0 {
		return content
	}
	return append(content, make([]byte, blockSize-rem)...)
}

func buildArchive(entries []struct {
	name     string
	typeflag byte
	content  []byte
}) []byte {
	var buf []byte
	for _, e := range entries {
		buf = append(buf, buildHeader(e.name, e.typeflag, int64(len(e.content)))...)
		buf = append(buf, padContent(e.content)...)
	}
	buf = append(buf, make([]byte, blockSize*2)...) // end-of-archive marker
	return buf
}

func TestDecodeHeaderRegularFile(t *testing.T) {
	content := []byte("hello world")
	archive := buildArchive([]struct {
		name     string
		typeflag byte
		content  []byte
	}{
		{"etc/hostname", record.TypeRegular, content},
	})

	entry, isEnd, next, err := DecodeHeader(archive, 0)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if isEnd {
		t.Fatal("unexpected end-of-archive")
	}
	if entry.Name != "etc/hostname" {
		t.Errorf("Name = %q", entry.Name)
	}
	if entry.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", entry.Size, len(content))
	}
	if next != blockSize+blockSize {
		t.Errorf("next = %d, want %d", next, blockSize+blockSize)
	}
}

func TestDecodeHeaderTooShort(t *testing.T) {
	_, _, _, err := DecodeHeader(make([]byte, 100), 0)
	if err == nil {
		t.Fatal("expected ErrBufferTooShort")
	}
	if _, ok := err.(ErrBufferTooShort); !ok {
		t.Errorf("err = %T, want ErrBufferTooShort", err)
	}
}

func TestDecodeHeaderDirectoryZeroSize(t *testing.T) {
	archive := buildArchive([]struct {
		name     string
		typeflag byte
		content  []byte
	}{
		{"etc/", record.TypeDir, nil},
	})
	entry, _, next, err := DecodeHeader(archive, 0)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Size != 0 {
		t.Errorf("directory Size = %d, want 0", entry.Size)
	}
	if next != blockSize {
		t.Errorf("next = %d, want %d (no content blocks)", next, blockSize)
	}
}

func TestScannerCollectingResumable(t *testing.T) {
	archive := buildArchive([]struct {
		name     string
		typeflag byte
		content  []byte
	}{
		{"etc/", record.TypeDir, nil},
		{"etc/hostname", record.TypeRegular, []byte("box")},
		{"etc/hosts", record.TypeRegular, []byte("127.0.0.1 localhost")},
	})

	s := NewScanner(ModeCollecting, "")
	out := s.Scan(archive)
	if !out.EndOfArchive {
		t.Fatal("expected EndOfArchive")
	}
	if len(out.NewEntries) != 3 {
		t.Fatalf("got %d entries, want 3", len(out.NewEntries))
	}
	if out.NewEntries[0].Name != "etc/" || out.NewEntries[1].Name != "etc/hostname" {
		t.Errorf("unexpected order: %+v", out.NewEntries)
	}

	// A later scan from the same (now-exhausted) scanner should find
	// nothing new rather than re-emitting the tail.
	out2 := s.Scan(archive)
	if len(out2.NewEntries) != 0 {
		t.Errorf("resumed scan re-emitted entries: %+v", out2.NewEntries)
	}
}

func TestScannerStallsOnShortBuffer(t *testing.T) {
	archive := buildArchive([]struct {
		name     string
		typeflag byte
		content  []byte
	}{
		{"etc/hostname", record.TypeRegular, []byte("box")},
	})
	s := NewScanner(ModeCollecting, "")
	out := s.Scan(archive[:blockSize/2])
	if !out.Stalled {
		t.Fatal("expected Stalled with a half-header buffer")
	}
	if s.CurrentOffset() != 0 {
		t.Errorf("offset advanced on a stall: %d", s.CurrentOffset())
	}
}

func TestScannerSearchingNormalizesPaths(t *testing.T) {
	archive := buildArchive([]struct {
		name     string
		typeflag byte
		content  []byte
	}{
		{"etc/os-release", record.TypeRegular, []byte("NAME=test")},
	})
	for _, target := range []string{"etc/os-release", "./etc/os-release", "/etc/os-release"} {
		s := NewScanner(ModeSearching, target)
		out := s.Scan(archive)
		if out.Matched == nil {
			t.Errorf("target %q: no match", target)
			continue
		}
		if out.Matched.Name != "etc/os-release" {
			t.Errorf("target %q: matched %q", target, out.Matched.Name)
		}
	}
}
