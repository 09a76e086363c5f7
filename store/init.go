// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package store

import "github.com/thesavant42/layerslayer/internal/ilog"

var log = ilog.New("cache")
