// Package kryptos provides a streaming authenticated-encryption engine for Go applications.
//
// This package implements the Galois/Counter Mode (GCM) of operation as a
// reusable, session-oriented cipher-mode engine composed of:
//   - A GCM state machine supporting incremental Transform calls, associated
//     data binding, caller-selected tag lengths, and an auto-incrementing
//     nonce mode for session protocols
//   - A parallel counter-mode (CTR) keystream substrate that fans large
//     transforms out across worker lanes with deterministic output
//   - A GF(2^128) authentication hash (GHASH) with streaming updates
//   - A pluggable block-cipher capability (AES by default)
//   - Secure key material handling with guaranteed zeroization
//
// The engine produces byte-for-byte standard GCM output: for a given key,
// nonce, associated data, and plaintext the ciphertext and tag match the
// NIST SP 800-38D construction, regardless of parallel degree.
//
// # Quick Start
//
// One-shot authenticated encryption:
//
//	key, err := kryptos.GenerateKey(32)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ciphertext, err := kryptos.EncryptBytes(plaintext, key)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	recovered, err := kryptos.DecryptBytes(ciphertext, key)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Session Use
//
// For protocols that frame their own ciphertext, drive the engine directly:
//
//	engine, _ := kryptos.NewGCM(kryptos.NewAESEngine())
//	sk, _ := kryptos.NewSecretKey(key, nonce, nil)
//	defer sk.Destroy()
//
//	if err := engine.Initialize(true, sk); err != nil {
//		log.Fatal(err)
//	}
//	engine.SetAssociatedData(header, 0, len(header))
//	engine.Transform(plaintext, 0, output, 0, len(plaintext))
//	engine.Finalize(output, len(plaintext), kryptos.TagSize)
//
// With AutoIncrement enabled the engine rotates the nonce and re-keys itself
// after every Finalize, so a long-lived session never re-runs the key
// schedule. PreserveAD replays the associated data on each cycle.
//
// # Performance
//
// Large transforms are decomposed across an even number of worker lanes
// (see ParallelProfile). Each lane derives its counter arithmetically from
// the global counter, so output is identical at any degree. Key schedules
// and GHASH subkey tables are computed once per key and cached.
//
// # Security Notes
//
// A nonce must never repeat under the same key; the engine rejects the
// trivial identical-to-last-nonce case on nonce-only re-keys but cannot
// detect general reuse. Tag verification is constant-time. All key material
// held by SecretKey is wiped on Destroy.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package kryptos
