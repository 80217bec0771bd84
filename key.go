// key.go: Secret key material container with guaranteed zeroization.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kryptos

import (
	"fmt"

	goerrors "github.com/agilira/go-errors"
)

// SecretKey is an immutable bundle of symmetric key material: the cipher
// key, the nonce, and an optional info field used as personalization or
// initial associated data.
//
// All three fields are copied on construction and on access, so a SecretKey
// never aliases caller memory and callers can never mutate engine state
// through a retained slice. At least one field must be non-empty; an
// instance carrying only a nonce is legal and signals a nonce-only re-key
// to the GCM engine.
//
// Destroy wipes every field. Callers owning a SecretKey should defer it:
//
//	sk, err := kryptos.NewSecretKey(key, nonce, nil)
//	if err != nil {
//		return err
//	}
//	defer sk.Destroy()
type SecretKey struct {
	key       []byte
	nonce     []byte
	info      []byte
	destroyed bool
}

// NewSecretKey creates a SecretKey from the given key, nonce and info.
// Each field may be nil or empty, but not all three at once. The inputs are
// copied; the caller remains responsible for wiping its own buffers.
func NewSecretKey(key, nonce, info []byte) (*SecretKey, error) {
	if len(key) == 0 && len(nonce) == 0 && len(info) == 0 {
		richErr := goerrors.New(ErrCodeEmptyKey, "key, nonce and info cannot all be empty")
		return nil, fmt.Errorf("%w: %w", ErrEmptyKeyMaterial, richErr)
	}

	sk := &SecretKey{
		key:   make([]byte, len(key)),
		nonce: make([]byte, len(nonce)),
		info:  make([]byte, len(info)),
	}
	copy(sk.key, key)
	copy(sk.nonce, nonce)
	copy(sk.info, info)
	return sk, nil
}

// Key returns a copy of the cipher key.
func (sk *SecretKey) Key() []byte {
	out := make([]byte, len(sk.key))
	copy(out, sk.key)
	return out
}

// Nonce returns a copy of the nonce.
func (sk *SecretKey) Nonce() []byte {
	out := make([]byte, len(sk.nonce))
	copy(out, sk.nonce)
	return out
}

// Info returns a copy of the info field.
func (sk *SecretKey) Info() []byte {
	out := make([]byte, len(sk.info))
	copy(out, sk.info)
	return out
}

// KeySize returns the length of the cipher key in bytes.
func (sk *SecretKey) KeySize() int { return len(sk.key) }

// NonceSize returns the length of the nonce in bytes.
func (sk *SecretKey) NonceSize() int { return len(sk.nonce) }

// Equal reports whether two SecretKeys carry identical material.
// The comparison is not constant-time; it exists for cache and test use,
// not for authentication decisions.
func (sk *SecretKey) Equal(other *SecretKey) bool {
	if other == nil {
		return false
	}
	return bytesEqual(sk.key, other.key) &&
		bytesEqual(sk.nonce, other.nonce) &&
		bytesEqual(sk.info, other.info)
}

// Destroy wipes all key material. The SecretKey must not be used after
// Destroy; accessors return empty copies. Destroy is idempotent.
func (sk *SecretKey) Destroy() {
	if sk.destroyed {
		return
	}
	Zeroize(sk.key)
	Zeroize(sk.nonce)
	Zeroize(sk.info)
	sk.key = sk.key[:0]
	sk.nonce = sk.nonce[:0]
	sk.info = sk.info[:0]
	sk.destroyed = true
}

// IsDestroyed reports whether Destroy has been called.
func (sk *SecretKey) IsDestroyed() bool { return sk.destroyed }

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
