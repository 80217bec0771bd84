// errors.go: Error taxonomy for the cipher-mode engine.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kryptos

import (
	"errors"
	"fmt"
)

// Public standard errors for drop-in compatibility.
// These errors can be used with errors.Is() for error checking.
//
// The taxonomy has two roots: ErrConfiguration for bad setup values
// (key/nonce/tag-length/parallel-degree) and ErrState for operations invoked
// in the wrong lifecycle state. Every specific sentinel wraps its root, so
// errors.Is(err, ErrConfiguration) matches any configuration failure.
// Authentication failure on Verify is reported as a boolean, never as an
// error, so callers are forced to branch on it explicitly.
var (
	// ErrConfiguration is the root of all setup-value errors.
	ErrConfiguration = errors.New("kryptos: invalid configuration")

	// ErrState is the root of all lifecycle errors.
	ErrState = errors.New("kryptos: invalid state")

	// ErrInvalidKeySize is returned when the key length is not in the
	// engine's legal set.
	ErrInvalidKeySize = fmt.Errorf("%w: invalid key size", ErrConfiguration)

	// ErrInvalidNonceSize is returned when the nonce is shorter than the
	// 8-byte hard minimum, or not one block wide for raw counter mode.
	ErrInvalidNonceSize = fmt.Errorf("%w: invalid nonce size", ErrConfiguration)

	// ErrInvalidTagSize is returned when a Finalize or Verify length is
	// outside [MinTagSize, TagSize].
	ErrInvalidTagSize = fmt.Errorf("%w: invalid tag size", ErrConfiguration)

	// ErrParallelDegree is returned for a zero, odd, or oversubscribed
	// parallel degree, or a misaligned parallel block size.
	ErrParallelDegree = fmt.Errorf("%w: invalid parallel configuration", ErrConfiguration)

	// ErrNonceReuse is returned when a nonce-only re-key supplies the same
	// nonce as the previous cycle. Detection is best-effort: only the
	// identical-to-last case is caught.
	ErrNonceReuse = fmt.Errorf("%w: nonce reuse", ErrConfiguration)

	// ErrEmptyKeyMaterial is returned when key, nonce and info are all
	// empty at SecretKey construction.
	ErrEmptyKeyMaterial = fmt.Errorf("%w: empty key material", ErrConfiguration)

	// ErrNotInitialized is returned when Transform, SetAssociatedData,
	// Finalize or Verify is called before Initialize.
	ErrNotInitialized = fmt.Errorf("%w: cipher not initialized", ErrState)

	// ErrAADLoaded is returned on a second SetAssociatedData call within
	// one initialization cycle.
	ErrAADLoaded = fmt.Errorf("%w: associated data already set", ErrState)

	// ErrNotFinalized is returned when Tag is read before Finalize/Verify.
	ErrNotFinalized = fmt.Errorf("%w: cipher not finalized", ErrState)

	// ErrWrongDirection is returned when Verify is called on an engine
	// initialized for encryption.
	ErrWrongDirection = fmt.Errorf("%w: cipher not in decryption mode", ErrState)
)

// Error codes for rich error handling
const (
	ErrCodeInvalidKey     = "KRYPTOS_INVALID_KEY"
	ErrCodeInvalidNonce   = "KRYPTOS_INVALID_NONCE"
	ErrCodeInvalidTag     = "KRYPTOS_INVALID_TAG"
	ErrCodeParallelDegree = "KRYPTOS_PARALLEL_DEGREE"
	ErrCodeNonceReuse     = "KRYPTOS_NONCE_REUSE"
	ErrCodeNotInitialized = "KRYPTOS_NOT_INITIALIZED"
	ErrCodeAADLoaded      = "KRYPTOS_AAD_LOADED"
	ErrCodeNotFinalized   = "KRYPTOS_NOT_FINALIZED"
	ErrCodeWrongDirection = "KRYPTOS_WRONG_DIRECTION"
	ErrCodeEmptyKey       = "KRYPTOS_EMPTY_KEY_MATERIAL"
	ErrCodeKeyGeneration  = "KRYPTOS_KEY_GEN"
	ErrCodeNonceGen       = "KRYPTOS_NONCE_GEN"
	ErrCodeDecrypt        = "KRYPTOS_DECRYPT"
)

// IsConfigurationError reports whether err belongs to the configuration
// branch of the taxonomy.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsStateError reports whether err belongs to the lifecycle branch of the
// taxonomy.
func IsStateError(err error) bool {
	return errors.Is(err, ErrState)
}
