// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package fsmerge

import (
	"strings"

	"github.com/thesavant42/layerslayer/record"
)

// Filter returns every entry in fs whose path matches pathPattern: an exact
// path, a directory prefix (trailing "/"), or "", ".", "/" to match
// everything.
func (fs MergedFilesystem) Filter(pathPattern string) []record.TarEntry {
	matcher := newPathMatcher(pathPattern)
	var results []record.TarEntry
	for path, entry := range fs.Entries {
		if matcher.matches(path) {
			results = append(results, entry)
		}
	}
	return results
}

// pathMatcher implements the same three pattern shapes FilterFiles
// recognizes: match-all, exact path, and directory-prefix.
type pathMatcher struct {
	matchAll  bool
	pattern   string
	dirPrefix bool
}

func newPathMatcher(pattern string) pathMatcher {
	pattern = normalizePath(pattern)
	if pattern == "" || pattern == "." {
		return pathMatcher{matchAll: true}
	}
	dirPrefix := strings.HasSuffix(pattern, "/")
	pattern = strings.TrimSuffix(pattern, "/")
	return pathMatcher{pattern: pattern, dirPrefix: dirPrefix}
}

func (m pathMatcher) matches(path string) bool {
	if m.matchAll {
		return true
	}
	if m.dirPrefix {
		return path == m.pattern || strings.HasPrefix(path, m.pattern+"/")
	}
	return path == m.pattern
}
