// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"strings"
)

// parseImageRef splits a Docker Hub style reference ("nginx", "library/nginx:1.27",
// "myorg/myrepo:latest") into namespace, repo, and ref, defaulting the
// namespace to "library" and the ref to "latest" the way `docker pull` does.
func parseImageRef(s string) (ns, repo, ref string) {
	ref = "latest"
	if i := strings.LastIndexByte(s, ':'); i >= 0 && !strings.Contains(s[i:], "/") {
		ref = s[i+1:]
		s = s[:i]
	}

	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 1 {
		return "library", parts[0], ref
	}
	return parts[0], parts[1], ref
}
