// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

/*
Package record contains the value types shared across this module: the
layer and tar-entry shapes produced while walking a registry image, and the
peek/carve/index results built from them. None of these types perform I/O;
they are the plain data passed between registry, gzstream, tarscan, store,
and engine.
*/
package record
