// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

// Package ilog centralizes the per-package logger construction shared by
// the packages in this module that log. Each such package declares its own
// package-level logger with a single `var log = ilog.New(...)` line.
package ilog

import (
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// New returns a FieldLogger tagged with "prefix": component, formatted with
// the same prefixed text formatter used across this repository.
func New(component string) logrus.FieldLogger {
	logger := logrus.New()
	logger.Formatter = new(prefixed.TextFormatter)
	logger.Level = logrus.DebugLevel
	return logger.WithField("prefix", component)
}
