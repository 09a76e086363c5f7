// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package fsmerge

import (
	"testing"

	"github.com/thesavant42/layerslayer/record"
)

func entry(layer int, name string, size int64) record.TarEntry {
	return record.TarEntry{Name: name, Size: size, LayerIndex: layer}
}

func TestMergeLaterLayerOverridesEarlier(t *testing.T) {
	entries := []record.TarEntry{
		entry(0, "etc/hostname", 4),
		entry(1, "etc/hostname", 9),
	}
	merged := Merge(entries)
	got, ok := merged.Entries["etc/hostname"]
	if !ok {
		t.Fatal("etc/hostname missing from merged filesystem")
	}
	if got.Size != 9 {
		t.Errorf("Size = %d, want 9 (layer 1's version)", got.Size)
	}
}

func TestMergeWhiteoutDeletesEarlierFile(t *testing.T) {
	entries := []record.TarEntry{
		entry(0, "etc/hostname", 4),
		entry(0, "etc/hosts", 10),
		entry(1, "etc/.wh.hostname", 0),
	}
	merged := Merge(entries)
	if _, ok := merged.Entries["etc/hostname"]; ok {
		t.Error("etc/hostname should have been deleted by the whiteout marker")
	}
	if _, ok := merged.Entries["etc/hosts"]; !ok {
		t.Error("etc/hosts should survive, only hostname was whited out")
	}
}

func TestMergeOpaqueDirectoryHidesEarlierContents(t *testing.T) {
	entries := []record.TarEntry{
		entry(0, "var/log/a.log", 1),
		entry(0, "var/log/b.log", 1),
		entry(1, "var/log/.wh..wh..opq", 0),
		entry(1, "var/log/c.log", 1),
	}
	merged := Merge(entries)
	if _, ok := merged.Entries["var/log/a.log"]; ok {
		t.Error("a.log should be hidden by the opaque marker")
	}
	if _, ok := merged.Entries["var/log/b.log"]; ok {
		t.Error("b.log should be hidden by the opaque marker")
	}
	if _, ok := merged.Entries["var/log/c.log"]; !ok {
		t.Error("c.log, added in the same layer as the opaque marker, should remain")
	}
}

func TestMergeWhiteoutOnlyAffectsEarlierLayers(t *testing.T) {
	entries := []record.TarEntry{
		entry(0, "etc/.wh.hostname", 0),
		entry(1, "etc/hostname", 4),
	}
	merged := Merge(entries)
	if _, ok := merged.Entries["etc/hostname"]; !ok {
		t.Error("a whiteout in an earlier layer must not delete a later layer's file")
	}
}

func TestFilterDirectoryPrefix(t *testing.T) {
	merged := Merge([]record.TarEntry{
		entry(0, "bin/echo", 1),
		entry(0, "bin/sh", 1),
		entry(0, "etc/hostname", 1),
	})
	results := merged.Filter("bin/")
	if len(results) != 2 {
		t.Fatalf("Filter(\"bin/\") returned %d entries, want 2", len(results))
	}
}

func TestFilterMatchAll(t *testing.T) {
	merged := Merge([]record.TarEntry{
		entry(0, "a", 1),
		entry(0, "b", 1),
	})
	for _, pattern := range []string{"", ".", "/"} {
		if got := len(merged.Filter(pattern)); got != 2 {
			t.Errorf("Filter(%q) returned %d entries, want 2", pattern, got)
		}
	}
}

func TestFilterExactPath(t *testing.T) {
	merged := Merge([]record.TarEntry{
		entry(0, "etc/hostname", 1),
		entry(0, "etc/hosts", 1),
	})
	results := merged.Filter("etc/hostname")
	if len(results) != 1 || results[0].Name != "etc/hostname" {
		t.Errorf("Filter(\"etc/hostname\") = %+v", results)
	}
}
