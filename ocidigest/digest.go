// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

// Package ocidigest represents the content-addressable `<algorithm>:<hex>`
// identifiers used throughout the registry protocol (blob digests, manifest
// digests). Unlike hash.Digest in the original fingerprinting toolkit this
// package was adapted from, a Digest here is never computed from bytes —
// it is only parsed from and formatted back to the wire form a registry
// sends, since verifying fetched bytes against their digest is explicitly
// out of scope.
package ocidigest

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"regexp"
)

// ErrInvalidDigest is returned by Parse when the input does not match
// `<algorithm>:<hex>` for a supported algorithm.
var ErrInvalidDigest = errors.New("ocidigest: invalid digest string")

// digestFormat matches algo:hex pairs for the algorithms registries
// actually emit. sha512 is included for forward compatibility even though
// no layer in the wild has been observed using it.
var digestFormat = regexp.MustCompile(`^(sha256|sha512):([0-9a-fA-F]+)$`)

var algoSizes = map[string]int{
	"sha256": 32,
	"sha512": 64,
}

// Digest is an immutable content-addressable identifier. It holds a byte
// slice, so it cannot be compared with == or used as a map key; compare or
// key by String() instead. The zero value is not a valid digest; use Parse
// to construct one.
type Digest struct {
	algorithm string
	sum       []byte
}

// Parse validates and constructs a Digest from its wire form, e.g.
// "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855".
func Parse(s string) (Digest, error) {
	m := digestFormat.FindStringSubmatch(s)
	if m == nil {
		return Digest{}, ErrInvalidDigest
	}
	algo, hexSum := m[1], m[2]
	raw, err := hex.DecodeString(hexSum)
	if err != nil {
		return Digest{}, ErrInvalidDigest
	}
	if len(raw) != algoSizes[algo] {
		return Digest{}, ErrInvalidDigest
	}
	return Digest{algorithm: algo, sum: raw}, nil
}

// Algorithm returns the digest's hash algorithm name ("sha256", "sha512").
func (d Digest) Algorithm() string { return d.algorithm }

// Sum64 returns the leading 8 bytes of the digest as a uint64, satisfying
// the Hashable interface steakknife/bloomfilter requires of its elements.
// It is not itself a hash function; it is already-hashed content reused as
// a cheap bloom-filter key.
func (d Digest) Sum64() uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(d.sum); i++ {
		v = v<<8 | uint64(d.sum[i])
	}
	return v
}

// IsZero reports whether d is the unparsed zero value.
func (d Digest) IsZero() bool { return d.algorithm == "" }

// String returns the wire form "algorithm:hex".
func (d Digest) String() string {
	if d.IsZero() {
		return ""
	}
	return d.algorithm + ":" + hex.EncodeToString(d.sum)
}

// Bytes returns the raw digest bytes (without the algorithm prefix).
func (d Digest) Bytes() []byte { return d.sum }

// MarshalYAML encodes the digest as its wire-form string, matching the
// hex-string convention used for every other digest type in this
// repository's lineage.
func (d Digest) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML decodes a wire-form string back into d.
func (d *Digest) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// gobDigest is the wire shape Digest is gob-encoded as, since gob cannot
// encode unexported fields directly.
type gobDigest struct {
	Algorithm string
	Sum       []byte
}

// MarshalBinary implements encoding.BinaryMarshaler for gob persistence in
// the metadata cache.
func (d Digest) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gobDigest{Algorithm: d.algorithm, Sum: d.sum}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (d *Digest) UnmarshalBinary(data []byte) error {
	var g gobDigest
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return err
	}
	d.algorithm = g.Algorithm
	d.sum = g.Sum
	return nil
}
