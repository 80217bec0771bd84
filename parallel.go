// parallel.go: Parallel execution policy for the cipher modes.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kryptos

import (
	"fmt"
	"runtime"

	goerrors "github.com/agilira/go-errors"
)

const (
	// simdBlockWidth is the number of cipher blocks a lane advances per
	// vectorized step; lane work is sized in multiples of it so paired
	// lanes keep the SIMD pipeline full.
	simdBlockWidth = 4

	// maxParallelAlloc caps the parallel block size to bound per-call
	// working memory.
	maxParallelAlloc = 100000000

	// defaultCacheHint approximates the per-core L1 data cache when the
	// engine provides no better figure.
	defaultCacheHint = 32 * 1024
)

// ParallelProfile decides whether and how a transform is decomposed across
// worker lanes. It is pure policy: it performs no I/O and spawns nothing.
// The profile computes a parallel block size, the input length that triggers
// lane dispatch, from the processor count and a cache-size hint; both the
// degree and the block size can be pinned by the caller within the profile's
// bounds.
//
// The degree is always even: lanes are paired so each pair drives a doubled
// SIMD path (2 or 4 blocks per vector op per lane), and an odd lane count
// would break the pairing. Changing profile settings while a session is
// in flight is undefined; configure before Initialize.
type ParallelProfile struct {
	blockSize         int
	processorCount    int
	maxDegree         int
	isParallel        bool
	parallelBlockSize int
	cacheHint         int
	defaultProfile    bool
}

// NewParallelProfile builds a profile for a cipher with the given block
// size, probing the processor count and using the default cache hint.
func NewParallelProfile(blockSize int) *ParallelProfile {
	return NewParallelProfileWithCacheHint(blockSize, defaultCacheHint)
}

// NewParallelProfileWithCacheHint builds a profile with an explicit
// per-core cache-size hint in bytes.
func NewParallelProfileWithCacheHint(blockSize, cacheHint int) *ParallelProfile {
	p := &ParallelProfile{
		blockSize:      blockSize,
		processorCount: runtime.NumCPU(),
		cacheHint:      cacheHint,
		defaultProfile: true,
	}
	p.maxDegree = evenDegree(p.processorCount)
	p.isParallel = p.maxDegree >= 2
	p.Calculate()
	return p
}

// evenDegree returns the largest even degree not exceeding count, or 0 when
// the host cannot pair lanes at all.
func evenDegree(count int) int {
	if count < 2 {
		return 0
	}
	return count &^ 1
}

// IsParallel reports whether transforms at or above ParallelBlockSize are
// dispatched across lanes.
func (p *ParallelProfile) IsParallel() bool {
	return p.isParallel && p.maxDegree >= 2
}

// SetParallel forces sequential processing when enabled is false, or
// re-enables lane dispatch on capable hosts.
func (p *ParallelProfile) SetParallel(enabled bool) {
	p.isParallel = enabled && p.maxDegree >= 2
	p.defaultProfile = false
}

// ParallelBlockSize returns the input length in bytes that triggers
// parallel dispatch.
func (p *ParallelProfile) ParallelBlockSize() int {
	return p.parallelBlockSize
}

// ParallelMinimumSize returns the smallest legal parallel block size: every
// lane must receive at least one SIMD-width run of full blocks.
func (p *ParallelProfile) ParallelMinimumSize() int {
	degree := p.maxDegree
	if degree < 2 {
		degree = 2
	}
	return degree * p.blockSize * simdBlockWidth
}

// ParallelMaximumSize returns the largest legal parallel block size.
func (p *ParallelProfile) ParallelMaximumSize() int {
	return maxParallelAlloc
}

// ParallelMaxDegree returns the number of worker lanes used at dispatch.
func (p *ParallelProfile) ParallelMaxDegree() int {
	return p.maxDegree
}

// ProcessorCount returns the probed processor count.
func (p *ParallelProfile) ProcessorCount() int {
	return p.processorCount
}

// IsDefault reports whether the profile still carries its auto-calculated
// settings.
func (p *ParallelProfile) IsDefault() bool {
	return p.defaultProfile
}

// SetMaxDegree pins the number of worker lanes. The degree must be even
// (lanes are paired for the doubled SIMD path) and must not exceed the
// processor count; zero restores the auto-calculated degree.
func (p *ParallelProfile) SetMaxDegree(degree int) error {
	if degree == 0 {
		p.maxDegree = evenDegree(p.processorCount)
		p.Calculate()
		return nil
	}
	if degree%2 != 0 {
		richErr := goerrors.New(ErrCodeParallelDegree, fmt.Sprintf("parallel degree must be even, got %d", degree))
		return fmt.Errorf("%w: %w", ErrParallelDegree, richErr)
	}
	if degree > p.processorCount {
		richErr := goerrors.New(ErrCodeParallelDegree, fmt.Sprintf("parallel degree %d exceeds processor count %d", degree, p.processorCount))
		return fmt.Errorf("%w: %w", ErrParallelDegree, richErr)
	}
	p.maxDegree = degree
	p.defaultProfile = false
	p.Calculate()
	return nil
}

// SetBlockSize pins the parallel block size. The size must be an exact
// multiple of ParallelMinimumSize and within the profile's bounds.
func (p *ParallelProfile) SetBlockSize(size int) error {
	minSize := p.ParallelMinimumSize()
	if size < minSize || size > p.ParallelMaximumSize() {
		richErr := goerrors.New(ErrCodeParallelDegree, fmt.Sprintf("parallel block size %d out of bounds [%d, %d]", size, minSize, p.ParallelMaximumSize()))
		return fmt.Errorf("%w: %w", ErrParallelDegree, richErr)
	}
	if size%minSize != 0 {
		richErr := goerrors.New(ErrCodeParallelDegree, fmt.Sprintf("parallel block size %d must be a multiple of %d", size, minSize))
		return fmt.Errorf("%w: %w", ErrParallelDegree, richErr)
	}
	p.parallelBlockSize = size
	p.defaultProfile = false
	return nil
}

// Calculate recomputes the parallel block size from the current degree and
// cache hint: each lane is sized to its share of L1, clamped to the
// profile's bounds and aligned down to the minimum size.
func (p *ParallelProfile) Calculate() {
	if p.maxDegree < 2 {
		p.parallelBlockSize = 0
		return
	}
	size := p.cacheHint * p.maxDegree
	minSize := p.ParallelMinimumSize()
	if size < minSize {
		size = minSize
	}
	if size > maxParallelAlloc {
		size = maxParallelAlloc
	}
	size -= size % minSize
	p.parallelBlockSize = size
}

// Reset restores the auto-calculated profile.
func (p *ParallelProfile) Reset() {
	p.maxDegree = evenDegree(p.processorCount)
	p.isParallel = p.maxDegree >= 2
	p.cacheHint = defaultCacheHint
	p.defaultProfile = true
	p.Calculate()
}
