// ctr.go: Counter-mode keystream substrate with parallel lane dispatch.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kryptos

import (
	"encoding/binary"
	"fmt"
	"sync"

	goerrors "github.com/agilira/go-errors"
)

// CTR turns a block engine into a keystream generator: the current counter
// block is encrypted and XORed with the input, and the counter's low 32-bit
// word is incremented big-endian once per block, per the GCM standard.
// Encryption and decryption are the same transform.
//
// Transforms at or above the profile's parallel block size fan out across
// worker lanes. Each lane receives a disjoint, block-aligned output region
// and a counter derived arithmetically from the global counter
// (base + laneIndex*laneBlocks), so the output bytes are identical at any
// lane count. After the join, the canonical counter is advanced by the
// total number of blocks processed; no lane's final state is ever trusted,
// since lane completion order says nothing about logical block order.
//
// A CTR instance is not safe for concurrent Transform calls; one call must
// complete before the next begins.
type CTR struct {
	engine         BlockEngine
	profile        *ParallelProfile
	counter        [BlockSize]byte
	keyFingerprint string
	initialized    bool
}

// NewCTR constructs a counter mode over the given block engine.
func NewCTR(engine BlockEngine) *CTR {
	return &CTR{
		engine:  engine,
		profile: NewParallelProfile(engine.BlockSize()),
	}
}

// Engine returns the underlying block engine.
func (c *CTR) Engine() BlockEngine { return c.engine }

// Profile returns the parallel execution profile. Profile changes must be
// made before Initialize; changing them mid-session is undefined.
func (c *CTR) Profile() *ParallelProfile { return c.profile }

// IsInitialized reports whether the mode is keyed and seeded.
func (c *CTR) IsInitialized() bool { return c.initialized }

// LegalKeySizes returns the engine's acceptable key lengths.
func (c *CTR) LegalKeySizes() []int { return c.engine.LegalKeySizes() }

// Counter returns a copy of the current counter block.
func (c *CTR) Counter() []byte {
	out := make([]byte, BlockSize)
	copy(out, c.counter[:])
	return out
}

// Initialize keys the engine and seeds the counter. The nonce must be
// exactly one block wide; it is the initial counter value. An empty key
// reuses the existing key schedule and only reseeds the counter, which
// requires the engine to already be keyed.
//
// Re-supplying the key the engine is already holding skips the key
// schedule derivation; the fingerprint check makes auto-increment re-keys
// cheap.
func (c *CTR) Initialize(key *SecretKey) error {
	if key.NonceSize() != BlockSize {
		richErr := goerrors.New(ErrCodeInvalidNonce, fmt.Sprintf("counter mode requires a %d-byte nonce, got %d", BlockSize, key.NonceSize()))
		return fmt.Errorf("%w: %w", ErrInvalidNonceSize, richErr)
	}

	if key.KeySize() == 0 {
		if !c.engine.IsInitialized() {
			richErr := goerrors.New(ErrCodeNotInitialized, "first initialization requires a key")
			return fmt.Errorf("%w: %w", ErrNotInitialized, richErr)
		}
	} else {
		keyBytes := key.Key()
		defer Zeroize(keyBytes)
		fp := GetKeyFingerprint(keyBytes)
		if fp != c.keyFingerprint || !c.engine.IsInitialized() {
			if err := c.engine.Initialize(keyBytes); err != nil {
				return err
			}
			c.keyFingerprint = fp
		}
	}

	nonce := key.Nonce()
	copy(c.counter[:], nonce)
	Zeroize(nonce)
	c.initialized = true
	return nil
}

// Transform generates length bytes of keystream and XORs them with
// input[inOffset:], writing to output[outOffset:]. The counter advances by
// ceil(length/BlockSize) regardless of the dispatch path taken.
func (c *CTR) Transform(input []byte, inOffset int, output []byte, outOffset int, length int) error {
	if !c.initialized {
		richErr := goerrors.New(ErrCodeNotInitialized, "counter mode has not been initialized")
		return fmt.Errorf("%w: %w", ErrNotInitialized, richErr)
	}
	if len(input)-inOffset < length || len(output)-outOffset < length {
		richErr := goerrors.New(ErrCodeInvalidKey, "input or output region smaller than requested length")
		return fmt.Errorf("%w: %w", ErrConfiguration, richErr)
	}

	in := input[inOffset : inOffset+length]
	out := output[outOffset : outOffset+length]

	if c.profile.IsParallel() && length >= c.profile.ParallelBlockSize() {
		c.transformParallel(in, out)
	} else {
		c.transformSequential(in, out)
	}
	return nil
}

// transformSequential is the single-lane path. A trailing partial block is
// generated into the full-width scratch block and only the needed prefix is
// XORed out, so counter advancement stays uniform and the caller's buffer
// is never overrun.
func (c *CTR) transformSequential(in, out []byte) {
	var mask [BlockSize]byte

	for len(in) >= BlockSize {
		c.engine.Transform(mask[:], c.counter[:])
		addCounter32(&c.counter, 1)
		xorBlock(out, in, &mask)
		in = in[BlockSize:]
		out = out[BlockSize:]
	}

	if len(in) > 0 {
		c.engine.Transform(mask[:], c.counter[:])
		addCounter32(&c.counter, 1)
		for i := range in {
			out[i] = in[i] ^ mask[i]
		}
	}
	Zeroize(mask[:])
}

// transformParallel fans full blocks out across the profile's lanes. Lane
// spans are aligned to the SIMD block width; blocks past the last aligned
// span and any partial tail run sequentially after the join.
func (c *CTR) transformParallel(in, out []byte) {
	blocks := len(in) / BlockSize
	lanes := c.profile.ParallelMaxDegree()

	laneBlocks := (blocks / lanes) &^ (simdBlockWidth - 1)
	if laneBlocks == 0 {
		c.transformSequential(in, out)
		return
	}

	laneBytes := laneBlocks * BlockSize
	var wg sync.WaitGroup
	for i := 0; i < lanes; i++ {
		start := i * laneBytes
		laneCounter := c.counter
		addCounter32(&laneCounter, uint32(i*laneBlocks)) // #nosec G115 -- laneBlocks bounded by maxParallelAlloc/BlockSize

		wg.Add(1)
		go func(in, out []byte, ctr [BlockSize]byte) {
			defer wg.Done()
			generateLane(c.engine, &ctr, out, in)
			Zeroize(ctr[:])
		}(in[start:start+laneBytes], out[start:start+laneBytes], laneCounter)
	}
	wg.Wait()

	// The resuming counter is derived from the total block count, never
	// copied from whichever lane happened to finish last.
	processed := lanes * laneBlocks
	addCounter32(&c.counter, uint32(processed)) // #nosec G115 -- bounded as above

	tail := processed * BlockSize
	if tail < len(in) {
		c.transformSequential(in[tail:], out[tail:])
	}
}

// generateLane runs the sequential block loop with a lane-local counter.
// The engine's key schedule is read-only here and shared across lanes.
func generateLane(engine BlockEngine, counter *[BlockSize]byte, out, in []byte) {
	var mask [BlockSize]byte
	for len(in) >= BlockSize {
		engine.Transform(mask[:], counter[:])
		addCounter32(counter, 1)
		xorBlock(out, in, &mask)
		in = in[BlockSize:]
		out = out[BlockSize:]
	}
	Zeroize(mask[:])
}

// addCounter32 adds n to the low 32-bit word of the counter block,
// big-endian with wraparound, per NIST SP 800-38D inc32.
func addCounter32(counter *[BlockSize]byte, n uint32) {
	ctr := counter[BlockSize-4:]
	binary.BigEndian.PutUint32(ctr, binary.BigEndian.Uint32(ctr)+n)
}

func xorBlock(dst, src []byte, mask *[BlockSize]byte) {
	_ = dst[BlockSize-1]
	_ = src[BlockSize-1]
	for i := 0; i < BlockSize; i++ {
		dst[i] = src[i] ^ mask[i]
	}
}

// Reset clears the counter and forgets the cached key fingerprint. The
// engine's key schedule is left to the engine.
func (c *CTR) Reset() {
	Zeroize(c.counter[:])
	c.keyFingerprint = ""
	c.initialized = false
	c.profile.Reset()
}
