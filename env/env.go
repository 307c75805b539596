//
// Copyright (c) 2025-2026 Markku Rossi
//
// All rights reserved.
//

// Package env implements global environment for the matching and
// resharing components.
package env

import (
	"crypto/rand"
	"io"
	"runtime"
)

// Config defines the global system configuration. Config must not be
// modified after being passed to any module. It is safe for
// concurrent use by multiple modules as they do not modify it.
type Config struct {
	// Rand is the entropy source for seeds and fresh shares.
	Rand io.Reader

	// Workers bounds the number of goroutines of the data parallel
	// kernels. Zero means runtime.NumCPU.
	Workers int
}

// GetRandom returns the source of entropy for seeds and share
// re-randomization.
func (config *Config) GetRandom() io.Reader {
	if config != nil && config.Rand != nil {
		return config.Rand
	}
	return rand.Reader
}

// GetWorkers returns the number of kernel worker goroutines.
func (config *Config) GetWorkers() int {
	if config != nil && config.Workers > 0 {
		return config.Workers
	}
	return runtime.NumCPU()
}
