// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/thesavant42/layerslayer/ocidigest"
)

// ErrNetwork wraps a transport-level failure fetching a blob chunk.
var ErrNetwork = errors.New("registry: network error")

// RangeBlobReader issues successive HTTP Range requests against one blob,
// discovering the blob's total size from the first response's
// Content-Range header and tracking exhaustion as the cursor advances.
//
// A RangeBlobReader is single-use, scoped to one layer operation; it holds
// no resources once exhausted.
type RangeBlobReader struct {
	client    *http.Client
	url       string
	token     string
	chunkSize int64

	cursor    int64
	total     int64
	haveTotal bool
	exhausted bool
}

// NewRangeBlobReader constructs a reader for
// /v2/<ns>/<repo>/blobs/<digest> on registryHost, fetching chunkSize bytes
// per FetchChunk call.
func NewRangeBlobReader(client *http.Client, registryHost, ns, repo string, digest ocidigest.Digest, token string, chunkSize int64) *RangeBlobReader {
	url := fmt.Sprintf("%s/v2/%s/%s/blobs/%s", registryHost, ns, repo, digest.String())
	return &RangeBlobReader{client: client, url: url, token: token, chunkSize: chunkSize}
}

// Exhausted reports whether the reader has reached the end of the blob, or
// given up after a transport error.
func (r *RangeBlobReader) Exhausted() bool { return r.exhausted }

// TotalSize returns the blob's total byte length and whether it has been
// discovered yet (it is learned from the first successful response's
// Content-Range header).
func (r *RangeBlobReader) TotalSize() (int64, bool) { return r.total, r.haveTotal }

// Cursor returns the number of bytes consumed (requested and received) so
// far.
func (r *RangeBlobReader) Cursor() int64 { return r.cursor }

// SetToken replaces the bearer token used for subsequent requests, letting a
// caller refresh credentials after a 401 and retry without rebuilding the
// reader.
func (r *RangeBlobReader) SetToken(token string) { r.token = token }

// FetchChunk issues one Range GET starting at the current cursor and
// advances the cursor by the number of bytes actually received. The server
// may return more or fewer bytes than requested; both are valid.
//
// A 401 response is surfaced to the caller (via the returned error) rather
// than retried internally, since only the caller holds the TokenSource
// needed to refresh it; SetToken plus a second FetchChunk call is the
// expected retry shape.
func (r *RangeBlobReader) FetchChunk(ctx context.Context) ([]byte, error) {
	if r.exhausted {
		return nil, nil
	}

	end := r.cursor + r.chunkSize - 1
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		r.exhausted = true
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", r.cursor, end))

	resp, err := r.client.Do(req)
	if err != nil {
		r.exhausted = true
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusRequestedRangeNotSatisfiable:
		r.exhausted = true
		return nil, nil
	case http.StatusUnauthorized:
		return nil, errUnauthorized{}
	case http.StatusOK, http.StatusPartialContent:
		// proceed below
	default:
		r.exhausted = true
		return nil, fmt.Errorf("%w: blob endpoint returned %d", ErrNetwork, resp.StatusCode)
	}

	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if total, ok := parseContentRangeTotal(cr); ok {
			r.total = total
			r.haveTotal = true
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		r.exhausted = true
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	r.cursor += int64(len(data))
	if r.haveTotal && r.cursor >= r.total {
		r.exhausted = true
	}
	if len(data) == 0 {
		r.exhausted = true
	}
	return data, nil
}

// errUnauthorized signals a 401 from the blob endpoint, distinct from a
// general network error so callers can distinguish "refresh the token and
// retry once" from a fatal transport failure.
type errUnauthorized struct{}

func (errUnauthorized) Error() string { return "registry: blob request returned 401" }

// IsUnauthorized reports whether err is the 401 sentinel FetchChunk
// returns, for callers implementing the refresh-once policy.
func IsUnauthorized(err error) bool {
	_, ok := err.(errUnauthorized)
	return ok
}

func parseContentRangeTotal(headerValue string) (int64, bool) {
	// "bytes a-b/total"
	slash := strings.LastIndexByte(headerValue, '/')
	if slash < 0 || slash == len(headerValue)-1 {
		return 0, false
	}
	totalStr := headerValue[slash+1:]
	if totalStr == "*" {
		return 0, false
	}
	total, err := strconv.ParseInt(totalStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}
