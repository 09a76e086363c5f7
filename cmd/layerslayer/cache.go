// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// cacheCmd groups operations on the local metadata cache file.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the local metadata cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the local metadata cache file and its sidecar files",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, suffix := range []string{"", ".yaml", ".lock"} {
			if err := os.Remove(cacheFile + suffix); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		return nil
	},
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show how many layers are currently cached",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openCache()
		if err != nil {
			return err
		}
		fmt.Printf("cache file: %s\nlayers cached: %d\n", cacheFile, cache.Count())
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheInfoCmd)
	rootCmd.AddCommand(cacheCmd)
}
