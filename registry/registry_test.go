// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thesavant42/layerslayer/ocidigest"
)

func TestTokenSourceAcquireAndMemoize(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `{"token":"abc123"}`)
	}))
	defer srv.Close()

	ts := NewTokenSource(srv.Client(), srv.URL)
	tok, err := ts.Acquire(context.Background(), "library", "alpine")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if tok != "abc123" {
		t.Errorf("token = %q", tok)
	}

	if _, err := ts.Acquire(context.Background(), "library", "alpine"); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if requests != 1 {
		t.Errorf("expected token to be memoized, got %d requests", requests)
	}
}

func TestTokenSourceNoToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ts := NewTokenSource(srv.Client(), srv.URL)
	if _, err := ts.Acquire(context.Background(), "library", "alpine"); err == nil {
		t.Fatal("expected ErrNoToken")
	}
}

func TestRangeBlobReaderDiscoversTotalAndExhausts(t *testing.T) {
	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		var start, end int
		fmt.Sscanf(rangeHeader, "bytes=%d-%d", &start, &end)
		if end >= len(payload) {
			end = len(payload) - 1
		}
		if start >= len(payload) {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[start : end+1])
	}))
	defer srv.Close()

	digest, _ := ocidigest.Parse("sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	reader := NewRangeBlobReader(srv.Client(), srv.URL, "library", "alpine", digest, "tok", 30)

	var got []byte
	for !reader.Exhausted() {
		chunk, err := reader.FetchChunk(context.Background())
		if err != nil {
			t.Fatalf("FetchChunk: %v", err)
		}
		got = append(got, chunk...)
	}

	if len(got) != len(payload) {
		t.Fatalf("got %d bytes, want %d", len(got), len(payload))
	}
	total, ok := reader.TotalSize()
	if !ok || total != int64(len(payload)) {
		t.Errorf("TotalSize() = %d, %v", total, ok)
	}
}

func TestRangeBlobReaderUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	digest, _ := ocidigest.Parse("sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	reader := NewRangeBlobReader(srv.Client(), srv.URL, "library", "alpine", digest, "badtoken", 30)

	_, err := reader.FetchChunk(context.Background())
	if !IsUnauthorized(err) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}
