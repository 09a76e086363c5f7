// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package record

import "github.com/thesavant42/layerslayer/ocidigest"

// LayerDescriptor identifies one layer of one resolved image manifest.
// Within a single resolved manifest, descriptors form an ordered sequence,
// base layer first.
type LayerDescriptor struct {
	Digest    ocidigest.Digest
	Size      int64
	MediaType string
}
