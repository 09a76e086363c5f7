// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thesavant42/layerslayer/engine"
	"github.com/thesavant42/layerslayer/internal/config"
)

var (
	carveChunkSize int64
	carveOutPath   string
)

// carveCmd represents the carve command.
var carveCmd = &cobra.Command{
	Use:                   "carve [flags] <IMAGE> <PATH>",
	DisableFlagsInUseLine: true,
	Args:                  cobra.ExactArgs(2),
	Short:                 "Extract a single file out of an image's layers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ns, repo, ref := parseImageRef(args[0])
		target := args[1]

		cfg := config.New(config.WithChunkSize(carveChunkSize), config.WithCacheFile(cacheFile))
		cache, err := openCache()
		if err != nil {
			return err
		}
		defer cache.Persist()

		introspector := engine.NewImageIntrospector(defaultClient(cfg), cfg, cache)

		result, err := introspector.CarveFile(context.Background(), ns, repo, ref, target, func(stage string, current, total int) {
			fmt.Printf("%s: layer %d/%d\n", stage, current, total)
		})
		if err != nil {
			return err
		}

		if carveOutPath == "" {
			os.Stdout.Write(result.Data)
			return nil
		}
		return os.WriteFile(carveOutPath, result.Data, 0o644)
	},
}

func init() {
	carveCmd.Flags().Int64Var(&carveChunkSize, "chunk-size", config.DefaultChunkSize, "bytes fetched per Range request")
	carveCmd.Flags().StringVarP(&carveOutPath, "out", "o", "", "write carved content here instead of stdout")
	rootCmd.AddCommand(carveCmd)
}
