// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thesavant42/layerslayer/engine"
	"github.com/thesavant42/layerslayer/internal/config"
)

var peekPrefixBytes int64

// peekCmd represents the peek command.
var peekCmd = &cobra.Command{
	Use:                   "peek [flags] <IMAGE>",
	DisableFlagsInUseLine: true,
	Args:                  cobra.ExactArgs(1),
	Short:                 "List the outermost files of every layer in an image",
	RunE: func(cmd *cobra.Command, args []string) error {
		ns, repo, ref := parseImageRef(args[0])

		cfg := config.New(config.WithPeekPrefixBytes(peekPrefixBytes), config.WithCacheFile(cacheFile))
		cache, err := openCache()
		if err != nil {
			return err
		}
		defer cache.Persist()

		introspector := engine.NewImageIntrospector(defaultClient(cfg), cfg, cache)

		index, err := introspector.PeekImage(context.Background(), ns, repo, ref, func(stage string, current, total int) {
			fmt.Printf("%s: layer %d/%d\n", stage, current, total)
		})
		if err != nil {
			return err
		}

		fmt.Printf("layers peeked=%d cached=%d bytes_downloaded=%d entries=%d\n",
			index.LayersPeeked, index.LayersFromCache, index.TotalBytesDownloaded, index.TotalEntries)
		for _, e := range index.AllEntries {
			fmt.Printf("[layer %d] %s\n", e.LayerIndex, e.String())
		}
		return nil
	},
}

func init() {
	peekCmd.Flags().Int64Var(&peekPrefixBytes, "prefix-bytes", config.DefaultPeekPrefixSize, "compressed bytes to fetch per layer")
	rootCmd.AddCommand(peekCmd)
}
