// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package tarscan

import "time"

func unixSeconds(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
