// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package registry

import (
	"io"
	"net/http"
)

func readAll(resp *http.Response) ([]byte, error) {
	return io.ReadAll(resp.Body)
}
