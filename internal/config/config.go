// Copyright 2018 IBM Corporation
// Licensed under the Apache License, Version 2.0. See LICENSE file.

// Package config holds the process-wide tunables for the registry client,
// the range-fetch chunk sizes, and the on-disk cache location. The core
// engine takes one of these by dependency injection rather than reading
// globals or environment variables itself.
package config

import "time"

// Default tunables for chunk sizes, timeouts, and registry endpoints.
const (
	DefaultChunkSize      = 64 * 1024
	DefaultPeekPrefixSize = 64 * 1024
	DefaultRequestTimeout = 30 * time.Second
	DefaultRegistryHost   = "https://registry-1.docker.io"
	DefaultAuthHost       = "https://auth.docker.io"
)

// Config bundles the tunables used to build the HTTP client, the range
// readers, and the cache. ImageIntrospector reads the hosts and sizes from
// it; the client and the cache themselves are built by the caller.
type Config struct {
	ChunkSize       int64
	PeekPrefixBytes int64
	RequestTimeout  time.Duration
	RegistryHost    string
	AuthHost        string
	CacheFile       string
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithChunkSize overrides the per-request Range chunk size used by carve.
func WithChunkSize(n int64) Option {
	return func(c *Config) { c.ChunkSize = n }
}

// WithPeekPrefixBytes overrides the initial prefix fetched by peek.
func WithPeekPrefixBytes(n int64) Option {
	return func(c *Config) { c.PeekPrefixBytes = n }
}

// WithRequestTimeout overrides the per-HTTP-request timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.RequestTimeout = d }
}

// WithRegistryHost overrides the registry blob/manifest host, for mirrors
// and tests.
func WithRegistryHost(host string) Option {
	return func(c *Config) { c.RegistryHost = host }
}

// WithAuthHost overrides the token endpoint host, for mirrors and tests.
func WithAuthHost(host string) Option {
	return func(c *Config) { c.AuthHost = host }
}

// WithCacheFile overrides the MetadataCache's on-disk path.
func WithCacheFile(path string) Option {
	return func(c *Config) { c.CacheFile = path }
}

// New builds a Config from defaults plus any supplied options.
func New(opts ...Option) *Config {
	c := &Config{
		ChunkSize:       DefaultChunkSize,
		PeekPrefixBytes: DefaultPeekPrefixSize,
		RequestTimeout:  DefaultRequestTimeout,
		RegistryHost:    DefaultRegistryHost,
		AuthHost:        DefaultAuthHost,
		CacheFile:       "layerslayer-cache.gob.sz",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
