// gcm.go: Galois/Counter Mode authenticated-encryption engine.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kryptos

import (
	"crypto/subtle"
	"fmt"

	goerrors "github.com/agilira/go-errors"
)

const (
	// TagSize is the full authentication tag length in bytes.
	TagSize = 16

	// MinTagSize is the smallest tag length Finalize and Verify accept.
	// NIST SP 800-38D recommends tags of 12 or more bytes.
	MinTagSize = 12

	// MinNonceSize is the hard minimum nonce length in bytes. 12 bytes is
	// the standard size; anything shorter than 10 is discouraged.
	MinNonceSize = 8

	// StandardNonceSize is the nonce length that takes the fast
	// counter-derivation path (nonce || 0x00000001).
	StandardNonceSize = 12
)

// GCM is a Galois/Counter Mode engine: a counter-mode keystream substrate
// composed with a GF(2^128) authentication hash. It is an online mode -
// data streams through repeated Transform calls without the total size
// being known in advance - and it produces byte-for-byte standard GCM
// output for any parallel degree.
//
// Lifecycle: Initialize -> [SetAssociatedData] -> Transform* ->
// Finalize or Verify. Encryption folds ciphertext into the checksum after
// the counter-mode pass (encrypt-then-MAC, so the tag covers exactly the
// bytes transmitted); decryption folds ciphertext in before decrypting, so
// the tag is computed over received bytes before any plaintext is trusted.
//
// With AutoIncrement enabled the engine treats the loaded nonce as a
// monotonic counter: every Finalize increments it big-endian and silently
// re-initializes for the next message, optionally replaying the associated
// data under PreserveAD. Callers using AutoIncrement must never also supply
// nonces manually. Without it, each finalize cycle requires a new
// Initialize.
//
// A GCM instance is not safe for concurrent calls on the same session.
type GCM struct {
	ctr   *CTR
	ghash *GaloisHash

	aadData     []byte
	aadLoaded   bool
	aadPreserve bool
	aadSize     int

	autoIncrement  bool
	checksum       [BlockSize]byte
	key            []byte
	keyFingerprint string
	nonce          []byte
	tagPad         [BlockSize]byte
	tag            [TagSize]byte

	encryption  bool
	finalized   bool
	initialized bool
	msgSize     int
}

// NewGCM constructs a GCM engine over the given block engine. The engine
// must have a 16-byte block; GCM is defined over 128-bit block ciphers
// only.
func NewGCM(engine BlockEngine) (*GCM, error) {
	if engine.BlockSize() != BlockSize {
		richErr := goerrors.New(ErrCodeInvalidKey, fmt.Sprintf("GCM requires a %d-byte block engine, got %d", BlockSize, engine.BlockSize()))
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, richErr)
	}
	return &GCM{ctr: NewCTR(engine)}, nil
}

// BlockSize returns the cipher block size in bytes.
func (g *GCM) BlockSize() int { return BlockSize }

// MaxTagSize returns the maximum legal tag length in bytes.
func (g *GCM) MaxTagSize() int { return TagSize }

// MinTagSize returns the minimum legal tag length in bytes.
func (g *GCM) MinTagSize() int { return MinTagSize }

// Name returns the mode name qualified with the engine name.
func (g *GCM) Name() string { return "GCM-" + g.ctr.Engine().Name() }

// Engine returns the underlying block engine.
func (g *GCM) Engine() BlockEngine { return g.ctr.Engine() }

// LegalKeySizes returns the engine's acceptable key lengths.
func (g *GCM) LegalKeySizes() []int { return g.ctr.LegalKeySizes() }

// IsEncryption reports whether the engine is initialized for encryption.
func (g *GCM) IsEncryption() bool { return g.encryption }

// IsInitialized reports whether the engine is ready to transform data.
func (g *GCM) IsInitialized() bool { return g.initialized }

// IsParallel reports whether large transforms are dispatched across lanes.
func (g *GCM) IsParallel() bool { return g.ctr.Profile().IsParallel() }

// ParallelBlockSize returns the input length that triggers lane dispatch.
func (g *GCM) ParallelBlockSize() int { return g.ctr.Profile().ParallelBlockSize() }

// Profile returns the parallel execution profile. Changes must be made
// before Initialize.
func (g *GCM) Profile() *ParallelProfile { return g.ctr.Profile() }

// AutoIncrement reports whether the nonce auto-rotates on Finalize.
func (g *GCM) AutoIncrement() bool { return g.autoIncrement }

// SetAutoIncrement enables or disables nonce auto-rotation on Finalize.
func (g *GCM) SetAutoIncrement(enabled bool) { g.autoIncrement = enabled }

// PreserveAD reports whether the associated data persists across finalize
// cycles.
func (g *GCM) PreserveAD() bool { return g.aadPreserve }

// SetPreserveAD enables or disables replaying the one-time associated data
// on every auto-increment cycle.
func (g *GCM) SetPreserveAD(enabled bool) { g.aadPreserve = enabled }

// SetParallelMaxDegree sets the number of worker lanes for large
// transforms. The degree must be nonzero, even, and no greater than the
// processor count. Call before Initialize.
func (g *GCM) SetParallelMaxDegree(degree int) error {
	if degree == 0 {
		richErr := goerrors.New(ErrCodeParallelDegree, "parallel degree cannot be zero")
		return fmt.Errorf("%w: %w", ErrParallelDegree, richErr)
	}
	return g.ctr.Profile().SetMaxDegree(degree)
}

// Tag returns the full finalized authentication tag.
func (g *GCM) Tag() ([]byte, error) {
	if !g.finalized {
		richErr := goerrors.New(ErrCodeNotFinalized, "the cipher mode has not been finalized")
		return nil, fmt.Errorf("%w: %w", ErrNotFinalized, richErr)
	}
	out := make([]byte, TagSize)
	copy(out, g.tag[:])
	return out, nil
}

// Initialize prepares the engine for an encryption (encryption=true) or
// decryption cycle with the given key material.
//
// The nonce must be at least MinNonceSize bytes. A 12-byte nonce seeds the
// counter directly (nonce || 0x00000001); any other length is passed
// through GHASH. A non-empty key must be one of the engine's legal sizes;
// the hash subkey H is derived by encrypting an all-zero block under it.
// An empty key signals a nonce-only re-key: the previous key is reused,
// which requires a prior genuine key load and a nonce different from the
// last one used.
func (g *GCM) Initialize(encryption bool, key *SecretKey) error {
	nonce := key.Nonce()
	if len(nonce) < MinNonceSize {
		richErr := goerrors.New(ErrCodeInvalidNonce, fmt.Sprintf("nonce must be at least %d bytes, got %d", MinNonceSize, len(nonce)))
		return fmt.Errorf("%w: %w", ErrInvalidNonceSize, richErr)
	}

	profile := g.ctr.Profile()
	if profile.IsParallel() {
		pbs := profile.ParallelBlockSize()
		if pbs < profile.ParallelMinimumSize() || pbs > profile.ParallelMaximumSize() || pbs%profile.ParallelMinimumSize() != 0 {
			richErr := goerrors.New(ErrCodeParallelDegree, fmt.Sprintf("parallel block size %d misaligned or out of bounds", pbs))
			return fmt.Errorf("%w: %w", ErrParallelDegree, richErr)
		}
	}

	if key.KeySize() == 0 {
		if len(g.key) == 0 || g.ghash == nil {
			richErr := goerrors.New(ErrCodeNotInitialized, "first initialization requires a key and nonce")
			return fmt.Errorf("%w: %w", ErrNotInitialized, richErr)
		}
		if bytesEqual(nonce, g.nonce) {
			richErr := goerrors.New(ErrCodeNonceReuse, "the nonce cannot repeat on a nonce-only re-key")
			return fmt.Errorf("%w: %w", ErrNonceReuse, richErr)
		}
	} else {
		keyBytes := key.Key()
		if err := ValidateKey(keyBytes); err != nil {
			Zeroize(keyBytes)
			return err
		}

		// Re-supplying the key already loaded skips the schedule and
		// subkey-table derivation; a genuine key load keys the engine and
		// derives the hash subkey H = E_K(0^128).
		if fp := GetKeyFingerprint(keyBytes); fp != g.keyFingerprint || g.ghash == nil {
			if err := g.ctr.Engine().Initialize(keyBytes); err != nil {
				Zeroize(keyBytes)
				return err
			}
			var h [BlockSize]byte
			var zeroes [BlockSize]byte
			g.ctr.Engine().Transform(h[:], zeroes[:])
			g.ghash = NewGaloisHash(h[:])
			Zeroize(h[:])
			g.keyFingerprint = fp
		}

		Zeroize(g.key)
		g.key = keyBytes
	}

	// A fresh cycle never inherits checksum state from an abandoned one.
	g.ghash.Reset()
	Zeroize(g.checksum[:])
	g.msgSize = 0
	if !g.aadPreserve {
		g.clearAAD()
	}

	g.encryption = encryption
	Zeroize(g.nonce)
	g.nonce = nonce

	// Derive the working counter block J0 from the nonce.
	var j0 [BlockSize]byte
	if len(nonce) == StandardNonceSize {
		copy(j0[:], nonce)
		j0[BlockSize-1] = 1
	} else {
		g.ghash.ProcessSegment(nonce, 0, j0[:], len(nonce))
		g.ghash.FinalizeBlock(j0[:], 0, len(nonce))
	}

	// Seed the counter at J0 and pre-encrypt one zero block through the
	// counter mode: the output is E_K(J0), the tag mask, and the counter
	// lands on J0+1 where the message keystream begins.
	ctrKey, err := NewSecretKey(nil, j0[:], nil)
	if err != nil {
		return err
	}
	defer ctrKey.Destroy()
	Zeroize(j0[:])
	if err := g.ctr.Initialize(ctrKey); err != nil {
		return err
	}
	var zeroes [BlockSize]byte
	if err := g.ctr.Transform(zeroes[:], 0, g.tagPad[:], 0, BlockSize); err != nil {
		return err
	}

	// Preserved associated data is replayed into the fresh checksum, so a
	// single SetAssociatedData call covers every cycle of the session.
	if g.aadPreserve && g.aadLoaded {
		g.ghash.ProcessSegment(g.aadData, 0, g.checksum[:], g.aadSize)
	}

	if g.finalized {
		Zeroize(g.tag[:])
		g.finalized = false
	}
	g.initialized = true
	return nil
}

// SetAssociatedData binds additional data to the authentication tag without
// encrypting it. It must be called after Initialize and before any
// Transform, and at most once per initialization cycle; the single-call
// constraint guards against silently mixing authentication contexts.
func (g *GCM) SetAssociatedData(input []byte, offset, length int) error {
	if !g.initialized {
		richErr := goerrors.New(ErrCodeNotInitialized, "the cipher mode has not been initialized")
		return fmt.Errorf("%w: %w", ErrNotInitialized, richErr)
	}
	if g.aadLoaded {
		richErr := goerrors.New(ErrCodeAADLoaded, "the associated data has already been set")
		return fmt.Errorf("%w: %w", ErrAADLoaded, richErr)
	}

	if g.finalized {
		g.finalized = false
	}
	g.aadData = make([]byte, length)
	copy(g.aadData, input[offset:offset+length])
	g.ghash.ProcessSegment(input, offset, g.checksum[:], length)
	g.aadSize = length
	g.aadLoaded = true
	return nil
}

// Transform processes length bytes from input[inOffset:] into
// output[outOffset:]. For encryption the counter-mode pass runs first and
// the resulting ciphertext is folded into the checksum; for decryption the
// received ciphertext is folded in first, then decrypted.
func (g *GCM) Transform(input []byte, inOffset int, output []byte, outOffset int, length int) error {
	if !g.initialized {
		richErr := goerrors.New(ErrCodeNotInitialized, "the cipher mode has not been initialized")
		return fmt.Errorf("%w: %w", ErrNotInitialized, richErr)
	}

	// Data arriving after a finalized cycle belongs to the next message;
	// the stored tag no longer applies to it.
	if g.finalized {
		g.finalized = false
	}

	if g.encryption {
		if err := g.ctr.Transform(input, inOffset, output, outOffset, length); err != nil {
			return err
		}
		g.ghash.Update(output, outOffset, g.checksum[:], length)
	} else {
		g.ghash.Update(input, inOffset, g.checksum[:], length)
		if err := g.ctr.Transform(input, inOffset, output, outOffset, length); err != nil {
			return err
		}
	}
	g.msgSize += length
	return nil
}

// EncryptBlock encrypts a single block from input[inOffset:] into
// output[outOffset:].
func (g *GCM) EncryptBlock(input []byte, inOffset int, output []byte, outOffset int) error {
	return g.Transform(input, inOffset, output, outOffset, BlockSize)
}

// DecryptBlock decrypts a single block from input[inOffset:] into
// output[outOffset:].
func (g *GCM) DecryptBlock(input []byte, inOffset int, output []byte, outOffset int) error {
	return g.Transform(input, inOffset, output, outOffset, BlockSize)
}

// Finalize computes the authentication tag and writes its first length
// bytes to output[offset:]. The length must be between MinTagSize and
// TagSize. All message data must have been processed first.
//
// Finalize ends the cycle: without AutoIncrement the engine requires a new
// Initialize before further use; with it, the nonce is incremented as a
// big-endian integer and the engine re-initializes itself, replaying the
// associated data when PreserveAD is set.
func (g *GCM) Finalize(output []byte, offset, length int) error {
	if !g.initialized {
		richErr := goerrors.New(ErrCodeNotInitialized, "the cipher mode has not been initialized")
		return fmt.Errorf("%w: %w", ErrNotInitialized, richErr)
	}
	if length < MinTagSize || length > TagSize {
		richErr := goerrors.New(ErrCodeInvalidTag, fmt.Sprintf("tag length must be in [%d, %d], got %d", MinTagSize, TagSize, length))
		return fmt.Errorf("%w: %w", ErrInvalidTagSize, richErr)
	}
	if len(output)-offset < length {
		richErr := goerrors.New(ErrCodeInvalidTag, "output region smaller than requested tag length")
		return fmt.Errorf("%w: %w", ErrConfiguration, richErr)
	}

	if err := g.calculateMac(); err != nil {
		return err
	}
	copy(output[offset:offset+length], g.tag[:length])
	return nil
}

// Verify computes the tag for the completed decryption cycle and compares
// it in constant time against input[offset:offset+length]. It returns
// false on mismatch rather than an error, so the security-critical branch
// is always an explicit caller decision. Verify may be called in place of
// Finalize, or after it.
func (g *GCM) Verify(input []byte, offset, length int) (bool, error) {
	if g.encryption {
		richErr := goerrors.New(ErrCodeWrongDirection, "the cipher mode has not been initialized for decryption")
		return false, fmt.Errorf("%w: %w", ErrWrongDirection, richErr)
	}
	if !g.initialized && !g.finalized {
		richErr := goerrors.New(ErrCodeNotInitialized, "the cipher mode has not been initialized")
		return false, fmt.Errorf("%w: %w", ErrNotInitialized, richErr)
	}
	if length < MinTagSize || length > TagSize {
		richErr := goerrors.New(ErrCodeInvalidTag, fmt.Sprintf("tag length must be in [%d, %d], got %d", MinTagSize, TagSize, length))
		return false, fmt.Errorf("%w: %w", ErrInvalidTagSize, richErr)
	}

	if !g.finalized {
		if err := g.calculateMac(); err != nil {
			return false, err
		}
	}
	return subtle.ConstantTimeCompare(g.tag[:length], input[offset:offset+length]) == 1, nil
}

// calculateMac folds the length fields into the checksum, masks it with
// the encrypted J0 block, and stores the tag. The per-cycle state is then
// reset; under AutoIncrement the engine immediately re-initializes with
// the incremented nonce.
func (g *GCM) calculateMac() error {
	g.ghash.FinalizeBlock(g.checksum[:], g.aadSize, g.msgSize)
	for i := 0; i < BlockSize; i++ {
		g.checksum[i] ^= g.tagPad[i]
	}
	// The tag is staged locally: the auto-increment re-initialization below
	// wipes the engine's tag slot along with the rest of the cycle state.
	var tag [TagSize]byte
	copy(tag[:], g.checksum[:])
	g.Reset()

	if g.autoIncrement {
		next := make([]byte, len(g.nonce))
		copy(next, g.nonce)
		incrementBE(next)
		rekey, err := NewSecretKey(nil, next, nil)
		Zeroize(next)
		if err != nil {
			return err
		}
		defer rekey.Destroy()

		if err := g.Initialize(g.encryption, rekey); err != nil {
			return err
		}
	}

	copy(g.tag[:], tag[:])
	Zeroize(tag[:])
	g.finalized = true
	return nil
}

// Reset clears the per-cycle accumulator state and returns the engine to
// the pre-Initialize state. The key, the hash subkey table, and - under
// PreserveAD - the associated data survive for the next cycle.
func (g *GCM) Reset() {
	if !g.aadPreserve {
		g.clearAAD()
	}
	g.ghash.Reset()
	Zeroize(g.checksum[:])
	Zeroize(g.tagPad[:])
	g.msgSize = 0
	g.initialized = false
}

// Destroy wipes all retained key material and session state. The engine
// must be re-keyed with Initialize before reuse.
func (g *GCM) Destroy() {
	g.clearAAD()
	g.aadPreserve = false
	g.autoIncrement = false
	Zeroize(g.key)
	g.key = nil
	g.keyFingerprint = ""
	Zeroize(g.nonce)
	g.nonce = nil
	Zeroize(g.checksum[:])
	Zeroize(g.tagPad[:])
	Zeroize(g.tag[:])
	if g.ghash != nil {
		g.ghash.Reset()
	}
	g.ctr.Reset()
	g.encryption = false
	g.finalized = false
	g.initialized = false
	g.msgSize = 0
}

func (g *GCM) clearAAD() {
	Zeroize(g.aadData)
	g.aadData = nil
	g.aadLoaded = false
	g.aadSize = 0
}

// incrementBE increments b as a big-endian unsigned integer, wrapping on
// overflow.
func incrementBE(b []byte) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i]++
		if b[i] != 0 {
			return
		}
	}
}
