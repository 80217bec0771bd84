// keyutils.go: Key utilities for generation, zeroization, and fingerprinting.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kryptos

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	goerrors "github.com/agilira/go-errors"
)

// KeyToBase64 encodes a key as a base64 string.
//
// This function is useful for storing keys in text-based formats like JSON
// or configuration files.
func KeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// KeyFromBase64 decodes a base64 string to a key.
//
// This function is the inverse of KeyToBase64.
func KeyFromBase64(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, goerrors.Wrap(err, "BASE64_DECODE_ERROR", "failed to decode base64 key")
	}
	return key, nil
}

// KeyToHex encodes a key as a hexadecimal string.
func KeyToHex(key []byte) string {
	return hex.EncodeToString(key)
}

// KeyFromHex decodes a hexadecimal string to a key.
func KeyFromHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, goerrors.Wrap(err, "HEX_DECODE_ERROR", "failed to decode hex key")
	}
	return key, nil
}

// Zeroize securely wipes a byte slice from memory.
//
// This function overwrites all bytes in the slice with zeros to prevent
// sensitive data from remaining in memory after use. It is applied to every
// SecretKey on Destroy and to every internal buffer the engine retires
// (checksum accumulators, working nonce blocks, keystream scratch).
//
// Note: This function modifies the original slice in place.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GetKeyFingerprint generates a fingerprint for a key (non-cryptographic).
//
// This function creates a short identifier for a key by computing the
// SHA-256 hash and taking the first 8 bytes. The fingerprint is useful for
// cache keys, logging, and identifying keys without exposing the material.
//
// Returns a 16-character hexadecimal string, or an empty string for an
// empty key.
func GetKeyFingerprint(key []byte) string {
	if len(key) == 0 {
		return ""
	}
	hash := sha256.Sum256(key)
	return fmt.Sprintf("%016x", hash[:8])
}

// GenerateKey generates a cryptographically secure random key of the given
// size in bytes. The size must be one of the block engine's legal key sizes
// (16, 24 or 32 bytes for AES).
//
// Example:
//
//	key, err := kryptos.GenerateKey(32) // AES-256
//	if err != nil {
//		log.Fatal(err)
//	}
func GenerateKey(size int) ([]byte, error) {
	if err := ValidateKeySize(size); err != nil {
		return nil, err
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKeyGeneration, "failed to generate key")
	}
	return key, nil
}

// GenerateNonce generates a cryptographically secure random nonce of the
// given size.
//
// A nonce must be used at most once per key. For GCM, a 12-byte nonce is
// recommended; the engine accepts any length of 8 bytes or more.
func GenerateNonce(size int) ([]byte, error) {
	if size < MinNonceSize {
		richErr := goerrors.New(ErrCodeInvalidNonce, fmt.Sprintf("nonce size must be at least %d bytes, got %d", MinNonceSize, size))
		return nil, fmt.Errorf("%w: %w", ErrInvalidNonceSize, richErr)
	}
	nonce := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeNonceGen, "failed to generate nonce")
	}
	return nonce, nil
}

// ValidateKeySize checks that size is a legal AES key size.
func ValidateKeySize(size int) error {
	for _, legal := range legalKeySizes {
		if size == legal {
			return nil
		}
	}
	richErr := goerrors.New(ErrCodeInvalidKey, fmt.Sprintf("key size must be one of %v bytes, got %d", legalKeySizes, size))
	return fmt.Errorf("%w: %w", ErrInvalidKeySize, richErr)
}

// ValidateKey checks that a key has a legal size for the block engine.
func ValidateKey(key []byte) error {
	return ValidateKeySize(len(key))
}
