// engine.go: Block-cipher capability consumed by the cipher modes.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kryptos

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	goerrors "github.com/agilira/go-errors"
)

// BlockSize is the fixed block width of every engine consumed by the cipher
// modes, in bytes. GCM and CTR are defined over 128-bit block ciphers only.
const BlockSize = 16

var legalKeySizes = []int{16, 24, 32}

// BlockEngine is the capability the cipher modes consume from an underlying
// block-cipher primitive. Implementations transform exactly one 16-byte
// block per call and hold their key schedule internally; the schedule is
// derived once at Initialize and treated as immutable afterwards, so a keyed
// engine is safe for concurrent read-only use across worker lanes.
//
// The modes only ever invoke the forward (encryption) transform: both CTR
// and GCM build decryption from the encrypt direction of the primitive.
type BlockEngine interface {
	// Initialize derives the key schedule from key. The previous schedule,
	// if any, is replaced.
	Initialize(key []byte) error

	// Transform encrypts one block from src into dst. Both slices must be
	// at least BlockSize bytes; dst and src may overlap exactly.
	Transform(dst, src []byte)

	// BlockSize returns the engine's block width in bytes.
	BlockSize() int

	// LegalKeySizes returns the acceptable key lengths in bytes.
	LegalKeySizes() []int

	// IsInitialized reports whether a key schedule has been derived.
	IsInitialized() bool

	// Name returns the engine's formal name.
	Name() string
}

// AESEngine adapts the standard library AES implementation to the
// BlockEngine capability. The underlying primitive is hardware accelerated
// where the platform supports it.
type AESEngine struct {
	block cipher.Block
}

// NewAESEngine returns an unkeyed AES engine.
func NewAESEngine() *AESEngine {
	return &AESEngine{}
}

// Initialize derives the AES key schedule. The key must be 16, 24 or 32
// bytes for AES-128, AES-192 or AES-256 respectively.
func (e *AESEngine) Initialize(key []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeInvalidKey, "failed to derive AES key schedule")
		return fmt.Errorf("%w: %w", ErrInvalidKeySize, richErr)
	}
	e.block = block
	return nil
}

// Transform encrypts one 16-byte block from src into dst.
func (e *AESEngine) Transform(dst, src []byte) {
	e.block.Encrypt(dst, src)
}

// BlockSize returns 16.
func (e *AESEngine) BlockSize() int { return BlockSize }

// LegalKeySizes returns the AES key lengths: 16, 24 and 32 bytes.
func (e *AESEngine) LegalKeySizes() []int {
	out := make([]int, len(legalKeySizes))
	copy(out, legalKeySizes)
	return out
}

// IsInitialized reports whether a key schedule has been derived.
func (e *AESEngine) IsInitialized() bool { return e.block != nil }

// Name returns "AES".
func (e *AESEngine) Name() string { return "AES" }
