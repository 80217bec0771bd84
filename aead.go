// aead.go: One-shot authenticated encryption helpers over the GCM engine.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kryptos

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	goerrors "github.com/agilira/go-errors"
)

// Session cache: keyed GCM engines are checked out per call, so the AES key
// schedule and the GHASH subkey table are derived once per key rather than
// once per message.
var (
	sessionCacheMu sync.Mutex
	sessionCache   = make(map[string][]*GCM)
)

const maxCachedSessions = 8

// acquireGCM returns a GCM engine for exclusive use with the given key,
// reusing a cached keyed engine when one is available.
func acquireGCM(key []byte) (*GCM, error) {
	fp := GetKeyFingerprint(key)

	sessionCacheMu.Lock()
	if engines := sessionCache[fp]; len(engines) > 0 {
		g := engines[len(engines)-1]
		sessionCache[fp] = engines[:len(engines)-1]
		sessionCacheMu.Unlock()
		return g, nil
	}
	sessionCacheMu.Unlock()

	return NewGCM(NewAESEngine())
}

// releaseGCM returns an engine to the cache for its key.
func releaseGCM(key []byte, g *GCM) {
	fp := GetKeyFingerprint(key)

	sessionCacheMu.Lock()
	defer sessionCacheMu.Unlock()
	if len(sessionCache[fp]) >= maxCachedSessions {
		g.Destroy()
		return
	}
	sessionCache[fp] = append(sessionCache[fp], g)
}

// FlushSessionCache destroys all cached keyed engines, wiping their key
// schedules. Call it when retiring a key.
func FlushSessionCache() {
	sessionCacheMu.Lock()
	defer sessionCacheMu.Unlock()
	for fp, engines := range sessionCache {
		for _, g := range engines {
			g.Destroy()
		}
		delete(sessionCache, fp)
	}
}

// Public standard errors for drop-in compatibility.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrCiphertextShort is returned when the ciphertext is too short to
	// contain a nonce and a tag.
	ErrCiphertextShort = errors.New("kryptos: ciphertext too short")

	// ErrDecrypt is returned when decryption fails due to authentication
	// failure or corruption.
	ErrDecrypt = errors.New("kryptos: decryption error")

	// ErrBase64Decode is returned when base64 decoding fails.
	ErrBase64Decode = errors.New("kryptos: base64 decode error")

	// ErrEmptyCiphertext is returned when trying to decrypt an empty
	// string. Empty plaintext is supported for encryption.
	ErrEmptyCiphertext = errors.New("kryptos: ciphertext cannot be empty")
)

// EncryptBytes encrypts plaintext with AES-GCM under the given key and
// returns nonce || ciphertext || tag.
//
// The key must be 16, 24 or 32 bytes. A fresh random 12-byte nonce is
// generated per call. Empty plaintext is supported and yields a valid
// nonce-and-tag-only message.
func EncryptBytes(plaintext, key []byte) ([]byte, error) {
	return EncryptBytesWithAAD(plaintext, key, nil)
}

// EncryptBytesWithAAD encrypts plaintext and additionally binds aad into
// the authentication tag without encrypting it. The same aad must be
// supplied on decryption.
func EncryptBytesWithAAD(plaintext, key, aad []byte) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	nonceBuffer := getBuffer(StandardNonceSize)
	defer putBuffer(nonceBuffer)
	nonce := (*nonceBuffer)[:StandardNonceSize]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeNonceGen, "failed to generate nonce")
	}

	g, err := acquireGCM(key)
	if err != nil {
		return nil, err
	}
	defer releaseGCM(key, g)

	sk, err := NewSecretKey(key, nonce, nil)
	if err != nil {
		return nil, err
	}
	defer sk.Destroy()
	if err := g.Initialize(true, sk); err != nil {
		return nil, err
	}
	if len(aad) > 0 {
		if err := g.SetAssociatedData(aad, 0, len(aad)); err != nil {
			return nil, err
		}
	}

	out := make([]byte, StandardNonceSize+len(plaintext)+TagSize)
	copy(out, nonce)
	if err := g.Transform(plaintext, 0, out, StandardNonceSize, len(plaintext)); err != nil {
		return nil, err
	}
	if err := g.Finalize(out, StandardNonceSize+len(plaintext), TagSize); err != nil {
		return nil, err
	}
	return out, nil
}

// DecryptBytes decrypts a nonce || ciphertext || tag message produced by
// EncryptBytes and verifies its authenticity. On authentication failure no
// plaintext is released.
func DecryptBytes(ciphertext, key []byte) ([]byte, error) {
	return DecryptBytesWithAAD(ciphertext, key, nil)
}

// DecryptBytesWithAAD decrypts a message and verifies both the ciphertext
// and the associated data. If either was tampered with, the function
// returns ErrDecrypt.
func DecryptBytesWithAAD(ciphertext, key, aad []byte) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if len(ciphertext) < StandardNonceSize+TagSize {
		richErr := goerrors.New(ErrCodeDecrypt, "ciphertext too short")
		return nil, fmt.Errorf("%w: %w", ErrCiphertextShort, richErr)
	}

	nonce := ciphertext[:StandardNonceSize]
	body := ciphertext[StandardNonceSize : len(ciphertext)-TagSize]

	g, err := acquireGCM(key)
	if err != nil {
		return nil, err
	}
	defer releaseGCM(key, g)

	sk, err := NewSecretKey(key, nonce, nil)
	if err != nil {
		return nil, err
	}
	defer sk.Destroy()
	if err := g.Initialize(false, sk); err != nil {
		return nil, err
	}
	if len(aad) > 0 {
		if err := g.SetAssociatedData(aad, 0, len(aad)); err != nil {
			return nil, err
		}
	}

	plaintext := make([]byte, len(body))
	if err := g.Transform(body, 0, plaintext, 0, len(body)); err != nil {
		return nil, err
	}

	ok, err := g.Verify(ciphertext, len(ciphertext)-TagSize, TagSize)
	if err != nil {
		Zeroize(plaintext)
		return nil, err
	}
	if !ok {
		// Unauthenticated plaintext is never released.
		Zeroize(plaintext)
		richErr := goerrors.New(ErrCodeDecrypt, "authentication failed (wrong key, tampered data, or AAD mismatch)")
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, richErr)
	}
	return plaintext, nil
}

// Encrypt encrypts a plaintext string and returns the result base64
// encoded. This is a convenience wrapper around EncryptBytes.
func Encrypt(plaintext string, key []byte) (string, error) {
	out, err := EncryptBytes([]byte(plaintext), key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt decrypts a base64-encoded string produced by Encrypt.
func Decrypt(encryptedText string, key []byte) (string, error) {
	if encryptedText == "" {
		richErr := goerrors.New(ErrCodeDecrypt, "encrypted text cannot be empty")
		return "", fmt.Errorf("%w: %w", ErrEmptyCiphertext, richErr)
	}
	raw, err := base64.StdEncoding.DecodeString(encryptedText)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeDecrypt, "failed to decode base64")
		return "", fmt.Errorf("%w: %w", ErrBase64Decode, richErr)
	}
	plaintext, err := DecryptBytes(raw, key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptWithAAD encrypts a plaintext string with associated data and
// returns the result base64 encoded.
func EncryptWithAAD(plaintext string, key []byte, aad string) (string, error) {
	out, err := EncryptBytesWithAAD([]byte(plaintext), key, []byte(aad))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptWithAAD decrypts a base64-encoded string produced by
// EncryptWithAAD, verifying the associated data.
func DecryptWithAAD(encryptedText string, key []byte, aad string) (string, error) {
	if encryptedText == "" {
		richErr := goerrors.New(ErrCodeDecrypt, "encrypted text cannot be empty")
		return "", fmt.Errorf("%w: %w", ErrEmptyCiphertext, richErr)
	}
	raw, err := base64.StdEncoding.DecodeString(encryptedText)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeDecrypt, "failed to decode base64")
		return "", fmt.Errorf("%w: %w", ErrBase64Decode, richErr)
	}
	plaintext, err := DecryptBytesWithAAD(raw, key, []byte(aad))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
