// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
)

func realMain() error {
	current := runtime.GOMAXPROCS(0)
	if current < 2*runtime.NumCPU() {
		runtime.GOMAXPROCS(2 * runtime.NumCPU())
	}
	// logging is unrequested output; redirecting stdout to a file should
	// produce only what the user asked for (entries, carved bytes), not a
	// mix of that and log lines.
	logrus.SetOutput(os.Stderr)

	return Execute()
}

func main() {
	if err := realMain(); err != nil {
		os.Exit(1)
	}
}
