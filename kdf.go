// kdf.go: Key derivation utilities for session key material.
//
// Password-based derivation uses Argon2id; high-entropy expansion (master
// key to session key/nonce material) uses HKDF-SHA256. PBKDF2-SHA256 is
// kept for backward compatibility only.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kryptos

import (
	"crypto/hmac"
	"crypto/sha256"
	"hash"

	goerrors "github.com/agilira/go-errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// Default Argon2 parameters for key derivation.
// These values provide a good balance between security and performance.
const (
	// DefaultTime is the default number of iterations for Argon2id.
	DefaultTime = 3

	// DefaultMemory is the default memory usage in MB for Argon2id.
	DefaultMemory = 64

	// DefaultThreads is the default number of threads for Argon2id.
	DefaultThreads = 4
)

// KDFParams defines custom parameters for Argon2id key derivation.
//
// If a field is zero, the library's secure default is used.
type KDFParams struct {
	// Time is the number of iterations for Argon2id.
	Time uint32 `json:"time,omitempty"`

	// Memory is the memory usage in MB for Argon2id.
	Memory uint32 `json:"memory,omitempty"`

	// Threads is the number of threads for Argon2id.
	// Should not exceed the number of CPU cores.
	Threads uint8 `json:"threads,omitempty"`
}

// DeriveKey derives a key from a password and salt using Argon2id.
//
// Argon2id is the recommended Argon2 variant, resisting both side-channel
// and time-memory trade-off attacks. Pass nil params for secure defaults
// (Time: 3, Memory: 64MB, Threads: 4).
//
// Example:
//
//	key, err := kryptos.DeriveKey(password, salt, 32, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
func DeriveKey(password, salt []byte, keyLen int, params *KDFParams) ([]byte, error) {
	if len(password) == 0 {
		return nil, goerrors.New("EMPTY_PASSWORD", "password cannot be empty")
	}
	if len(salt) == 0 {
		return nil, goerrors.New("EMPTY_SALT", "salt cannot be empty")
	}
	if keyLen <= 0 {
		return nil, goerrors.New("INVALID_KEYLEN", "key length must be positive")
	}

	time := uint32(DefaultTime)
	memory := uint32(DefaultMemory * 1024)
	threads := uint8(DefaultThreads)

	if params != nil {
		if params.Time > 0 {
			time = params.Time
		}
		if params.Memory > 0 {
			memory = params.Memory * 1024
		}
		if params.Threads > 0 {
			threads = params.Threads
		}
	}

	key := argon2.IDKey(password, salt, time, memory, threads, uint32(keyLen)) // #nosec G115 -- keyLen validated positive above
	return key, nil
}

// DeriveKeyDefault derives a key using Argon2id with secure default
// parameters. Equivalent to DeriveKey with nil params.
func DeriveKeyDefault(password, salt []byte, keyLen int) ([]byte, error) {
	return DeriveKey(password, salt, keyLen, nil)
}

// DeriveKeyPBKDF2 derives a key using PBKDF2-SHA256.
//
// Deprecated: Use DeriveKey instead for better security against modern
// attacks. Kept for backward compatibility with existing key stores.
func DeriveKeyPBKDF2(password, salt []byte, iterations, keyLen int) ([]byte, error) {
	if len(password) == 0 {
		return nil, goerrors.New("EMPTY_PASSWORD", "password cannot be empty")
	}
	if len(salt) == 0 {
		return nil, goerrors.New("EMPTY_SALT", "salt cannot be empty")
	}
	if iterations <= 0 {
		return nil, goerrors.New("INVALID_ITERATIONS", "iterations must be positive")
	}
	if keyLen <= 0 {
		return nil, goerrors.New("INVALID_KEYLEN", "key length must be positive")
	}

	key := pbkdf2.Key(password, salt, iterations, keyLen, sha256.New)
	return key, nil
}

// DeriveKeyHKDF derives a key using HKDF-SHA256 (RFC 5869).
//
// HKDF is designed for high-entropy inputs such as randomly generated
// master keys; use it to derive per-session cipher keys from a long-lived
// one. For password-based derivation use DeriveKey with Argon2id instead.
//
// Parameters:
//   - masterKey: The input keying material (IKM), typically 32 bytes
//   - salt: Optional salt value (can be nil)
//   - info: Optional context info (can be nil), prevents key reuse across contexts
//   - keyLen: Length of output key in bytes
func DeriveKeyHKDF(masterKey, salt, info []byte, keyLen int) ([]byte, error) {
	if len(masterKey) == 0 {
		return nil, goerrors.New("INVALID_MASTER_KEY", "master key cannot be empty")
	}
	if keyLen <= 0 {
		return nil, goerrors.New("INVALID_KEYLEN", "key length must be positive")
	}
	if keyLen > 255*32 {
		return nil, goerrors.New("INVALID_KEYLEN", "key length too large for HKDF-SHA256")
	}

	h := sha256.New
	if salt == nil {
		saltBuf := getBuffer(h().Size())
		defer putBuffer(saltBuf)
		salt = (*saltBuf)[:h().Size()]
	}

	prk := hkdfExtract(h, salt, masterKey)
	defer Zeroize(prk)
	return hkdfExpand(h, prk, info, keyLen), nil
}

// DeriveSessionKey expands a master key into a full SecretKey: keySize
// bytes of cipher key and nonceSize bytes of nonce, bound to the given
// context info. The two outputs come from disjoint regions of one HKDF
// stream, so key and nonce are jointly unique per (masterKey, salt, info).
//
// Example:
//
//	sk, err := kryptos.DeriveSessionKey(master, salt, []byte("session-42"), 32, 12)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sk.Destroy()
func DeriveSessionKey(masterKey, salt, info []byte, keySize, nonceSize int) (*SecretKey, error) {
	if err := ValidateKeySize(keySize); err != nil {
		return nil, err
	}
	if nonceSize < MinNonceSize {
		richErr := goerrors.New(ErrCodeInvalidNonce, "nonce size below the hard minimum")
		return nil, richErr
	}

	okm, err := DeriveKeyHKDF(masterKey, salt, info, keySize+nonceSize)
	if err != nil {
		return nil, err
	}
	defer Zeroize(okm)

	return NewSecretKey(okm[:keySize], okm[keySize:], info)
}

// hkdfExtract implements the HKDF-Extract step: PRK = HMAC(salt, IKM).
func hkdfExtract(hash func() hash.Hash, salt, ikm []byte) []byte {
	mac := hmac.New(hash, salt)
	mac.Write(ikm)
	return mac.Sum(nil)
}

// hkdfExpand implements the HKDF-Expand step producing the output key
// material.
func hkdfExpand(hash func() hash.Hash, prk, info []byte, length int) []byte {
	hashSize := hash().Size()
	n := (length + hashSize - 1) / hashSize

	okm := make([]byte, 0, length)
	t := make([]byte, 0, hashSize+len(info)+1)
	var counter [1]byte

	for i := 1; i <= n; i++ {
		mac := hmac.New(hash, prk)
		mac.Write(t)
		mac.Write(info)
		counter[0] = byte(i)
		mac.Write(counter[:])
		t = mac.Sum(t[:0])

		if i == n {
			okm = append(okm, t[:length-len(okm)]...)
		} else {
			okm = append(okm, t...)
		}
	}
	Zeroize(t)
	return okm
}
