// parallel_test.go: Test cases for the parallel execution profile.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kryptos_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/agilira/kryptos"
)

func TestParallelProfile_Defaults(t *testing.T) {
	p := kryptos.NewParallelProfile(16)

	if p.ProcessorCount() != runtime.NumCPU() {
		t.Errorf("processor count %d, want %d", p.ProcessorCount(), runtime.NumCPU())
	}
	if !p.IsDefault() {
		t.Error("fresh profile is not marked default")
	}

	degree := p.ParallelMaxDegree()
	if degree%2 != 0 {
		t.Errorf("auto-calculated degree %d is odd", degree)
	}
	if degree > p.ProcessorCount() {
		t.Errorf("auto-calculated degree %d exceeds processor count %d", degree, p.ProcessorCount())
	}

	if runtime.NumCPU() >= 2 {
		if !p.IsParallel() {
			t.Error("profile not parallel on a multiprocessor host")
		}
		pbs := p.ParallelBlockSize()
		minSize := p.ParallelMinimumSize()
		if pbs < minSize || pbs%minSize != 0 {
			t.Errorf("parallel block size %d not an aligned multiple of minimum %d", pbs, minSize)
		}
	} else if p.IsParallel() {
		t.Error("profile parallel on a uniprocessor host")
	}
}

func TestParallelProfile_DegreePolicy(t *testing.T) {
	p := kryptos.NewParallelProfile(16)

	// Odd degrees break lane pairing.
	for _, degree := range []int{1, 3, 5} {
		if err := p.SetMaxDegree(degree); !errors.Is(err, kryptos.ErrParallelDegree) {
			t.Errorf("SetMaxDegree(%d): expected ErrParallelDegree, got %v", degree, err)
		}
	}

	// Oversubscription is rejected.
	over := (runtime.NumCPU() + 2) &^ 1
	if err := p.SetMaxDegree(over); !errors.Is(err, kryptos.ErrParallelDegree) {
		t.Errorf("SetMaxDegree(%d): expected ErrParallelDegree, got %v", over, err)
	}

	if runtime.NumCPU() >= 2 {
		if err := p.SetMaxDegree(2); err != nil {
			t.Fatalf("SetMaxDegree(2) failed: %v", err)
		}
		if p.ParallelMaxDegree() != 2 {
			t.Errorf("degree %d after pinning to 2", p.ParallelMaxDegree())
		}
		if p.IsDefault() {
			t.Error("profile still marked default after pinning")
		}
	}

	// Zero restores the auto-calculated degree.
	if err := p.SetMaxDegree(0); err != nil {
		t.Fatalf("SetMaxDegree(0) failed: %v", err)
	}
	want := runtime.NumCPU() &^ 1
	if want < 2 {
		want = 0
	}
	if p.ParallelMaxDegree() != want {
		t.Errorf("degree %d after reset, want %d", p.ParallelMaxDegree(), want)
	}
}

func TestParallelProfile_BlockSizePolicy(t *testing.T) {
	if runtime.NumCPU() < 2 {
		t.Skip("needs a multiprocessor host")
	}
	p := kryptos.NewParallelProfile(16)
	minSize := p.ParallelMinimumSize()

	if err := p.SetBlockSize(minSize); err != nil {
		t.Errorf("SetBlockSize(minimum) failed: %v", err)
	}
	if err := p.SetBlockSize(4 * minSize); err != nil {
		t.Errorf("SetBlockSize(4*minimum) failed: %v", err)
	}
	if p.ParallelBlockSize() != 4*minSize {
		t.Errorf("block size %d, want %d", p.ParallelBlockSize(), 4*minSize)
	}

	// Below minimum, above maximum, and misaligned are all rejected.
	for _, size := range []int{minSize - 1, p.ParallelMaximumSize() + 1, minSize + 1} {
		if err := p.SetBlockSize(size); !errors.Is(err, kryptos.ErrParallelDegree) {
			t.Errorf("SetBlockSize(%d): expected ErrParallelDegree, got %v", size, err)
		}
	}
}

func TestParallelProfile_MinimumSizeCoversLanes(t *testing.T) {
	p := kryptos.NewParallelProfile(16)
	degree := p.ParallelMaxDegree()
	if degree < 2 {
		t.Skip("needs a multiprocessor host")
	}
	// Every lane must get at least one SIMD-width run of full blocks.
	if got, want := p.ParallelMinimumSize(), degree*16*4; got != want {
		t.Errorf("minimum size %d, want %d", got, want)
	}
}

func TestParallelProfile_SetParallelAndReset(t *testing.T) {
	if runtime.NumCPU() < 2 {
		t.Skip("needs a multiprocessor host")
	}
	p := kryptos.NewParallelProfile(16)

	p.SetParallel(false)
	if p.IsParallel() {
		t.Error("profile parallel after SetParallel(false)")
	}
	if p.IsDefault() {
		t.Error("profile marked default after explicit change")
	}

	p.SetParallel(true)
	if !p.IsParallel() {
		t.Error("profile not parallel after SetParallel(true)")
	}

	p.Reset()
	if !p.IsDefault() {
		t.Error("profile not default after Reset")
	}
	if !p.IsParallel() {
		t.Error("profile not parallel after Reset on a multiprocessor host")
	}
}

func TestParallelProfile_CacheHintScalesBlockSize(t *testing.T) {
	if runtime.NumCPU() < 2 {
		t.Skip("needs a multiprocessor host")
	}
	small := kryptos.NewParallelProfileWithCacheHint(16, 16*1024)
	large := kryptos.NewParallelProfileWithCacheHint(16, 128*1024)
	if large.ParallelBlockSize() <= small.ParallelBlockSize() {
		t.Errorf("larger cache hint did not grow the parallel block size: %d <= %d",
			large.ParallelBlockSize(), small.ParallelBlockSize())
	}
}
