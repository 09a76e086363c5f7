// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package ocidigest

import "testing"

func TestParseValid(t *testing.T) {
	s := "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	d, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q) returned error: %v", s, err)
	}
	if d.Algorithm() != "sha256" {
		t.Errorf("Algorithm() = %q, want sha256", d.Algorithm())
	}
	if d.String() != s {
		t.Errorf("String() = %q, want %q", d.String(), s)
	}
	if d.IsZero() {
		t.Error("parsed digest reports IsZero() = true")
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []string{
		"",
		"sha256",
		"sha256:",
		"md5:d41d8cd98f00b204e9800998ecf8427e",
		"sha256:nothex",
		"sha256:e3b0",
	}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", c)
		}
	}
}

func TestZeroValue(t *testing.T) {
	var d Digest
	if !d.IsZero() {
		t.Error("zero Digest should report IsZero() = true")
	}
	if d.String() != "" {
		t.Errorf("zero Digest.String() = %q, want empty", d.String())
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	d, err := Parse("sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	if err != nil {
		t.Fatal(err)
	}
	data, err := d.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	var got Digest
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got.String() != d.String() {
		t.Errorf("round trip = %q, want %q", got.String(), d.String())
	}
}
