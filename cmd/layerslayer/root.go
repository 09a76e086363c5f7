// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/thesavant42/layerslayer/internal/config"
	"github.com/thesavant42/layerslayer/store"
)

var cacheFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "layerslayer",
	Short: "Peek and carve files out of container registry images without pulling them",
	Long: `layerslayer talks directly to a container registry's HTTP API to list and
extract files from an image's layers, downloading only the bytes needed —
a bounded prefix of a layer to list its entries, or a bounded run of chunks
to carve a single file — rather than pulling the image whole.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cacheFile, "cache", "layerslayer-cache.gob.sz", "path to the persistent metadata cache")
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to rootCmd.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		return err
	}
	return nil
}

// openCache loads (or creates empty, if absent) the metadata cache at the
// configured path. Subcommands pair it with defaultClient to build their
// ImageIntrospector.
func openCache() (*store.MetadataCache, error) {
	cache := store.NewMetadataCache(cacheFile)
	if err := cache.Load(); err != nil {
		return nil, err
	}
	return cache, nil
}

func defaultClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.RequestTimeout}
}
