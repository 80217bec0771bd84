// gcm_test.go: Test cases for the GCM authenticated-encryption engine.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kryptos_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/agilira/kryptos"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex in test data: %v", err)
	}
	return b
}

func newGCM(t *testing.T) *kryptos.GCM {
	t.Helper()
	g, err := kryptos.NewGCM(kryptos.NewAESEngine())
	if err != nil {
		t.Fatalf("NewGCM failed: %v", err)
	}
	return g
}

func initGCM(t *testing.T, g *kryptos.GCM, encryption bool, key, nonce []byte) {
	t.Helper()
	sk, err := kryptos.NewSecretKey(key, nonce, nil)
	if err != nil {
		t.Fatalf("NewSecretKey failed: %v", err)
	}
	defer sk.Destroy()
	if err := g.Initialize(encryption, sk); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
}

// gcmVectors are the AES-GCM known-answer tests from the mode's validation
// suite, covering AES-128 and AES-256, empty and non-empty payloads,
// associated data, and a non-96-bit nonce.
var gcmVectors = []struct {
	name                       string
	key, nonce, plaintext, aad string
	ciphertext, tag            string
}{
	{
		name:  "aes128/empty",
		key:   "00000000000000000000000000000000",
		nonce: "000000000000000000000000",
		tag:   "58e2fccefa7e3061367f1d57a4e7455a",
	},
	{
		name:       "aes128/one-block",
		key:        "00000000000000000000000000000000",
		nonce:      "000000000000000000000000",
		plaintext:  "00000000000000000000000000000000",
		ciphertext: "0388dace60b6a392f328c2b971b2fe78",
		tag:        "ab6e47d42cec13bdf53a67b21257bddf",
	},
	{
		name:  "aes128/four-blocks",
		key:   "feffe9928665731c6d6a8f9467308308",
		nonce: "cafebabefacedbaddecaf888",
		plaintext: "d9313225f88406e5a55909c5aff5269a" +
			"86a7a9531534f7da2e4c303d8a318a72" +
			"1c3c0c95956809532fcf0e2449a6b525" +
			"b16aedf5aa0de657ba637b391aafd255",
		ciphertext: "42831ec2217774244b7221b784d0d49c" +
			"e3aa212f2c02a4e035c17e2329aca12e" +
			"21d514b25466931c7d8f6a5aac84aa05" +
			"1ba30b396a0aac973d58e091473f5985",
		tag: "4d5c2af327cd64a62cf35abd2ba6fab4",
	},
	{
		name:  "aes128/aad",
		key:   "feffe9928665731c6d6a8f9467308308",
		nonce: "cafebabefacedbaddecaf888",
		plaintext: "d9313225f88406e5a55909c5aff5269a" +
			"86a7a9531534f7da2e4c303d8a318a72" +
			"1c3c0c95956809532fcf0e2449a6b525" +
			"b16aedf5aa0de657ba637b39",
		aad: "feedfacedeadbeeffeedfacedeadbeefabaddad2",
		ciphertext: "42831ec2217774244b7221b784d0d49c" +
			"e3aa212f2c02a4e035c17e2329aca12e" +
			"21d514b25466931c7d8f6a5aac84aa05" +
			"1ba30b396a0aac973d58e091",
		tag: "5bc94fbc3221a5db94fae95ae7121a47",
	},
	{
		name:  "aes128/short-nonce",
		key:   "feffe9928665731c6d6a8f9467308308",
		nonce: "cafebabefacedbad",
		plaintext: "d9313225f88406e5a55909c5aff5269a" +
			"86a7a9531534f7da2e4c303d8a318a72" +
			"1c3c0c95956809532fcf0e2449a6b525" +
			"b16aedf5aa0de657ba637b39",
		aad: "feedfacedeadbeeffeedfacedeadbeefabaddad2",
		ciphertext: "61353b4c2806934a777ff51fa22a4755" +
			"699b2a714fcdc6f83766e5f97b6c7423" +
			"73806900e49f24b22b097544d4896b42" +
			"4989b5e1ebac0f07c23f4598",
		tag: "3612d2e79e3b0785561be14aaca2fcb0",
	},
	{
		name: "aes256/empty",
		key: "00000000000000000000000000000000" +
			"00000000000000000000000000000000",
		nonce: "000000000000000000000000",
		tag:   "530f8afbc74536b9a963b4f1c4cb738b",
	},
	{
		name: "aes256/one-block",
		key: "00000000000000000000000000000000" +
			"00000000000000000000000000000000",
		nonce:      "000000000000000000000000",
		plaintext:  "00000000000000000000000000000000",
		ciphertext: "cea7403d4d606b6e074ec5d3baf39d18",
		tag:        "d0d1c8a799996bf0265b98b5d48ab919",
	},
	{
		name: "aes256/four-blocks",
		key: "feffe9928665731c6d6a8f9467308308" +
			"feffe9928665731c6d6a8f9467308308",
		nonce: "cafebabefacedbaddecaf888",
		plaintext: "d9313225f88406e5a55909c5aff5269a" +
			"86a7a9531534f7da2e4c303d8a318a72" +
			"1c3c0c95956809532fcf0e2449a6b525" +
			"b16aedf5aa0de657ba637b391aafd255",
		ciphertext: "522dc1f099567d07f47f37a32a84427d" +
			"643a8cdcbfe5c0c97598a2bd2555d1aa" +
			"8cb08e48590dbb3da7b08b1056828838" +
			"c5f61e6393ba7a0abcc9f662898015ad",
		tag: "b094dac5d93471bdec1a502270e3cc6c",
	},
	{
		name: "aes256/aad",
		key: "feffe9928665731c6d6a8f9467308308" +
			"feffe9928665731c6d6a8f9467308308",
		nonce: "cafebabefacedbaddecaf888",
		plaintext: "d9313225f88406e5a55909c5aff5269a" +
			"86a7a9531534f7da2e4c303d8a318a72" +
			"1c3c0c95956809532fcf0e2449a6b525" +
			"b16aedf5aa0de657ba637b39",
		aad: "feedfacedeadbeeffeedfacedeadbeefabaddad2",
		ciphertext: "522dc1f099567d07f47f37a32a84427d" +
			"643a8cdcbfe5c0c97598a2bd2555d1aa" +
			"8cb08e48590dbb3da7b08b1056828838" +
			"c5f61e6393ba7a0a",
		tag: "76fc6ece0f4e1768cddf8853bb2d551b",
	},
}

func TestGCM_KnownAnswers(t *testing.T) {
	for _, tc := range gcmVectors {
		t.Run(tc.name, func(t *testing.T) {
			key := mustHex(t, tc.key)
			nonce := mustHex(t, tc.nonce)
			plaintext := mustHex(t, tc.plaintext)
			aad := mustHex(t, tc.aad)
			wantCT := mustHex(t, tc.ciphertext)
			wantTag := mustHex(t, tc.tag)

			g := newGCM(t)
			initGCM(t, g, true, key, nonce)
			if len(aad) > 0 {
				if err := g.SetAssociatedData(aad, 0, len(aad)); err != nil {
					t.Fatalf("SetAssociatedData failed: %v", err)
				}
			}

			ct := make([]byte, len(plaintext))
			if len(plaintext) > 0 {
				if err := g.Transform(plaintext, 0, ct, 0, len(plaintext)); err != nil {
					t.Fatalf("Transform failed: %v", err)
				}
			}

			tag := make([]byte, kryptos.TagSize)
			if err := g.Finalize(tag, 0, kryptos.TagSize); err != nil {
				t.Fatalf("Finalize failed: %v", err)
			}

			if !bytes.Equal(ct, wantCT) {
				t.Errorf("ciphertext mismatch:\n got  %x\n want %x", ct, wantCT)
			}
			if !bytes.Equal(tag, wantTag) {
				t.Errorf("tag mismatch:\n got  %x\n want %x", tag, wantTag)
			}

			// Decrypt direction over the same vector.
			d := newGCM(t)
			initGCM(t, d, false, key, nonce)
			if len(aad) > 0 {
				if err := d.SetAssociatedData(aad, 0, len(aad)); err != nil {
					t.Fatalf("SetAssociatedData failed: %v", err)
				}
			}
			pt := make([]byte, len(ct))
			if len(ct) > 0 {
				if err := d.Transform(ct, 0, pt, 0, len(ct)); err != nil {
					t.Fatalf("decrypt Transform failed: %v", err)
				}
			}
			ok, err := d.Verify(wantTag, 0, len(wantTag))
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if !ok {
				t.Fatal("Verify rejected a genuine tag")
			}
			if !bytes.Equal(pt, plaintext) {
				t.Errorf("plaintext mismatch:\n got  %x\n want %x", pt, plaintext)
			}
		})
	}
}

func TestGCM_StreamingFragmentsMatchOneShot(t *testing.T) {
	key := mustHex(t, "feffe9928665731c6d6a8f9467308308")
	nonce := mustHex(t, "cafebabefacedbaddecaf888")
	plaintext := make([]byte, 117)
	for i := range plaintext {
		plaintext[i] = byte(i * 7)
	}

	oneShot := newGCM(t)
	initGCM(t, oneShot, true, key, nonce)
	ctA := make([]byte, len(plaintext))
	if err := oneShot.Transform(plaintext, 0, ctA, 0, len(plaintext)); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	tagA := make([]byte, kryptos.TagSize)
	if err := oneShot.Finalize(tagA, 0, kryptos.TagSize); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	// Same message delivered in awkward fragments, including sizes that
	// straddle block boundaries.
	streamed := newGCM(t)
	initGCM(t, streamed, true, key, nonce)
	ctB := make([]byte, len(plaintext))
	offsets := []int{0, 1, 6, 23, 39, 64, 100, len(plaintext)}
	for i := 1; i < len(offsets); i++ {
		lo, hi := offsets[i-1], offsets[i]
		if err := streamed.Transform(plaintext, lo, ctB, lo, hi-lo); err != nil {
			t.Fatalf("fragment Transform failed: %v", err)
		}
	}
	tagB := make([]byte, kryptos.TagSize)
	if err := streamed.Finalize(tagB, 0, kryptos.TagSize); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if !bytes.Equal(ctA, ctB) {
		t.Error("fragmented ciphertext differs from one-shot ciphertext")
	}
	if !bytes.Equal(tagA, tagB) {
		t.Error("fragmented tag differs from one-shot tag")
	}
}

func TestGCM_TamperDetection(t *testing.T) {
	key, _ := kryptos.GenerateKey(32)
	nonce, _ := kryptos.GenerateNonce(12)
	plaintext := []byte("authenticated payload with enough length to matter")

	g := newGCM(t)
	initGCM(t, g, true, key, nonce)
	ct := make([]byte, len(plaintext))
	if err := g.Transform(plaintext, 0, ct, 0, len(plaintext)); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	tag := make([]byte, kryptos.TagSize)
	if err := g.Finalize(tag, 0, kryptos.TagSize); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	// A single flipped ciphertext bit must be rejected.
	for _, bit := range []int{0, len(ct)*8 - 1} {
		tampered := make([]byte, len(ct))
		copy(tampered, ct)
		tampered[bit/8] ^= 1 << (bit % 8)

		d := newGCM(t)
		initGCM(t, d, false, key, nonce)
		pt := make([]byte, len(tampered))
		if err := d.Transform(tampered, 0, pt, 0, len(tampered)); err != nil {
			t.Fatalf("Transform failed: %v", err)
		}
		ok, err := d.Verify(tag, 0, kryptos.TagSize)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if ok {
			t.Errorf("Verify accepted ciphertext with bit %d flipped", bit)
		}
	}

	// A flipped tag bit must also be rejected.
	badTag := make([]byte, len(tag))
	copy(badTag, tag)
	badTag[0] ^= 0x01
	d := newGCM(t)
	initGCM(t, d, false, key, nonce)
	pt := make([]byte, len(ct))
	if err := d.Transform(ct, 0, pt, 0, len(ct)); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	ok, err := d.Verify(badTag, 0, kryptos.TagSize)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Error("Verify accepted a tampered tag")
	}
}

func TestGCM_AADBinding(t *testing.T) {
	key, _ := kryptos.GenerateKey(16)
	nonce, _ := kryptos.GenerateNonce(12)
	plaintext := []byte("payload")
	aad := []byte("request-context-7")

	g := newGCM(t)
	initGCM(t, g, true, key, nonce)
	if err := g.SetAssociatedData(aad, 0, len(aad)); err != nil {
		t.Fatalf("SetAssociatedData failed: %v", err)
	}
	ct := make([]byte, len(plaintext))
	if err := g.Transform(plaintext, 0, ct, 0, len(plaintext)); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	tag := make([]byte, kryptos.TagSize)
	if err := g.Finalize(tag, 0, kryptos.TagSize); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	// Different AAD on decryption must fail verification.
	d := newGCM(t)
	initGCM(t, d, false, key, nonce)
	wrongAAD := []byte("request-context-8")
	if err := d.SetAssociatedData(wrongAAD, 0, len(wrongAAD)); err != nil {
		t.Fatalf("SetAssociatedData failed: %v", err)
	}
	pt := make([]byte, len(ct))
	if err := d.Transform(ct, 0, pt, 0, len(ct)); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	ok, err := d.Verify(tag, 0, kryptos.TagSize)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Error("Verify accepted a tag computed over different associated data")
	}

	// Omitted AAD must also fail.
	d2 := newGCM(t)
	initGCM(t, d2, false, key, nonce)
	pt2 := make([]byte, len(ct))
	if err := d2.Transform(ct, 0, pt2, 0, len(ct)); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	ok, err = d2.Verify(tag, 0, kryptos.TagSize)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Error("Verify accepted a tag with the associated data omitted")
	}
}

func TestGCM_SecondAADCallRejected(t *testing.T) {
	key, _ := kryptos.GenerateKey(16)
	nonce, _ := kryptos.GenerateNonce(12)

	g := newGCM(t)
	initGCM(t, g, true, key, nonce)
	aad := []byte("once")
	if err := g.SetAssociatedData(aad, 0, len(aad)); err != nil {
		t.Fatalf("first SetAssociatedData failed: %v", err)
	}
	err := g.SetAssociatedData(aad, 0, len(aad))
	if !errors.Is(err, kryptos.ErrAADLoaded) {
		t.Errorf("expected ErrAADLoaded, got %v", err)
	}
	if !kryptos.IsStateError(err) {
		t.Error("expected a state error")
	}
}

func TestGCM_TagLengths(t *testing.T) {
	key, _ := kryptos.GenerateKey(16)
	nonce, _ := kryptos.GenerateNonce(12)
	plaintext := []byte("tag length bounds")

	for _, length := range []int{12, 13, 16} {
		g := newGCM(t)
		initGCM(t, g, true, key, nonce)
		ct := make([]byte, len(plaintext))
		if err := g.Transform(plaintext, 0, ct, 0, len(plaintext)); err != nil {
			t.Fatalf("Transform failed: %v", err)
		}
		tag := make([]byte, length)
		if err := g.Finalize(tag, 0, length); err != nil {
			t.Errorf("Finalize with tag length %d failed: %v", length, err)
			continue
		}

		d := newGCM(t)
		initGCM(t, d, false, key, nonce)
		pt := make([]byte, len(ct))
		if err := d.Transform(ct, 0, pt, 0, len(ct)); err != nil {
			t.Fatalf("Transform failed: %v", err)
		}
		ok, err := d.Verify(tag, 0, length)
		if err != nil {
			t.Fatalf("Verify with tag length %d failed: %v", length, err)
		}
		if !ok {
			t.Errorf("truncated tag of length %d did not verify", length)
		}
	}

	for _, length := range []int{0, 8, 11, 17} {
		g := newGCM(t)
		initGCM(t, g, true, key, nonce)
		tag := make([]byte, 32)
		err := g.Finalize(tag, 0, length)
		if !errors.Is(err, kryptos.ErrInvalidTagSize) {
			t.Errorf("Finalize with tag length %d: expected ErrInvalidTagSize, got %v", length, err)
		}
	}
}

func TestGCM_ErrorTaxonomy(t *testing.T) {
	g := newGCM(t)

	// Transform before Initialize.
	buf := make([]byte, 16)
	err := g.Transform(buf, 0, buf, 0, 16)
	if !errors.Is(err, kryptos.ErrNotInitialized) || !kryptos.IsStateError(err) {
		t.Errorf("expected state error ErrNotInitialized, got %v", err)
	}

	// Tag before Finalize.
	if _, err := g.Tag(); !errors.Is(err, kryptos.ErrNotFinalized) {
		t.Errorf("expected ErrNotFinalized, got %v", err)
	}

	// Nonce below the hard minimum.
	key, _ := kryptos.GenerateKey(16)
	shortNonce := make([]byte, 7)
	sk, err := kryptos.NewSecretKey(key, shortNonce, nil)
	if err != nil {
		t.Fatalf("NewSecretKey failed: %v", err)
	}
	err = g.Initialize(true, sk)
	if !errors.Is(err, kryptos.ErrInvalidNonceSize) || !kryptos.IsConfigurationError(err) {
		t.Errorf("expected configuration error ErrInvalidNonceSize, got %v", err)
	}

	// Illegal key size.
	badKey := make([]byte, 20)
	nonce, _ := kryptos.GenerateNonce(12)
	sk2, err := kryptos.NewSecretKey(badKey, nonce, nil)
	if err != nil {
		t.Fatalf("NewSecretKey failed: %v", err)
	}
	err = g.Initialize(true, sk2)
	if !errors.Is(err, kryptos.ErrInvalidKeySize) {
		t.Errorf("expected ErrInvalidKeySize, got %v", err)
	}

	// Verify on an encryption session.
	initGCM(t, g, true, key, nonce)
	if _, err := g.Verify(make([]byte, 16), 0, 16); !errors.Is(err, kryptos.ErrWrongDirection) {
		t.Errorf("expected ErrWrongDirection, got %v", err)
	}
}

func TestGCM_NonceOnlyRekey(t *testing.T) {
	key, _ := kryptos.GenerateKey(32)
	nonce1, _ := kryptos.GenerateNonce(12)

	g := newGCM(t)

	// A nonce-only load before any genuine key load must fail.
	bare, err := kryptos.NewSecretKey(nil, nonce1, nil)
	if err != nil {
		t.Fatalf("NewSecretKey failed: %v", err)
	}
	if err := g.Initialize(true, bare); !errors.Is(err, kryptos.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized for keyless first load, got %v", err)
	}

	initGCM(t, g, true, key, nonce1)
	plaintext := []byte("first message")
	ct1 := make([]byte, len(plaintext))
	if err := g.Transform(plaintext, 0, ct1, 0, len(plaintext)); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	tag1 := make([]byte, kryptos.TagSize)
	if err := g.Finalize(tag1, 0, kryptos.TagSize); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	// Re-keying with only the nonce reuses the key schedule.
	nonce2, _ := kryptos.GenerateNonce(12)
	rekey, err := kryptos.NewSecretKey(nil, nonce2, nil)
	if err != nil {
		t.Fatalf("NewSecretKey failed: %v", err)
	}
	if err := g.Initialize(true, rekey); err != nil {
		t.Fatalf("nonce-only re-key failed: %v", err)
	}
	ct2 := make([]byte, len(plaintext))
	if err := g.Transform(plaintext, 0, ct2, 0, len(plaintext)); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	tag2 := make([]byte, kryptos.TagSize)
	if err := g.Finalize(tag2, 0, kryptos.TagSize); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if bytes.Equal(ct1, ct2) {
		t.Error("different nonces produced identical ciphertext")
	}

	// Matches a fresh engine keyed conventionally.
	ref := newGCM(t)
	initGCM(t, ref, true, key, nonce2)
	ctRef := make([]byte, len(plaintext))
	if err := ref.Transform(plaintext, 0, ctRef, 0, len(plaintext)); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	tagRef := make([]byte, kryptos.TagSize)
	if err := ref.Finalize(tagRef, 0, kryptos.TagSize); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if !bytes.Equal(ct2, ctRef) || !bytes.Equal(tag2, tagRef) {
		t.Error("nonce-only re-key output differs from a freshly keyed engine")
	}

	// Repeating the previous nonce on a nonce-only re-key is rejected.
	repeat, err := kryptos.NewSecretKey(nil, nonce2, nil)
	if err != nil {
		t.Fatalf("NewSecretKey failed: %v", err)
	}
	if err := g.Initialize(true, repeat); !errors.Is(err, kryptos.ErrNonceReuse) {
		t.Errorf("expected ErrNonceReuse, got %v", err)
	}
}

func TestGCM_AutoIncrementSequence(t *testing.T) {
	key, _ := kryptos.GenerateKey(32)
	nonce := mustHex(t, "000102030405060708090a0b")
	messages := [][]byte{
		[]byte("first message in the session"),
		[]byte("second message"),
		[]byte("third, longer message spanning multiple cipher blocks here"),
	}
	aad := []byte("session-context")

	enc := newGCM(t)
	enc.SetAutoIncrement(true)
	enc.SetPreserveAD(true)
	initGCM(t, enc, true, key, nonce)
	if err := enc.SetAssociatedData(aad, 0, len(aad)); err != nil {
		t.Fatalf("SetAssociatedData failed: %v", err)
	}

	var sealed [][]byte
	var tags [][]byte
	for _, msg := range messages {
		ct := make([]byte, len(msg))
		if err := enc.Transform(msg, 0, ct, 0, len(msg)); err != nil {
			t.Fatalf("Transform failed: %v", err)
		}
		tag := make([]byte, kryptos.TagSize)
		if err := enc.Finalize(tag, 0, kryptos.TagSize); err != nil {
			t.Fatalf("Finalize failed: %v", err)
		}
		sealed = append(sealed, ct)
		tags = append(tags, tag)
	}

	// The decryptor only ever sees the base nonce; auto-increment walks the
	// same sequence on its side.
	dec := newGCM(t)
	dec.SetAutoIncrement(true)
	dec.SetPreserveAD(true)
	initGCM(t, dec, false, key, nonce)
	if err := dec.SetAssociatedData(aad, 0, len(aad)); err != nil {
		t.Fatalf("SetAssociatedData failed: %v", err)
	}
	for i, ct := range sealed {
		pt := make([]byte, len(ct))
		if err := dec.Transform(ct, 0, pt, 0, len(ct)); err != nil {
			t.Fatalf("message %d: Transform failed: %v", i, err)
		}
		ok, err := dec.Verify(tags[i], 0, kryptos.TagSize)
		if err != nil {
			t.Fatalf("message %d: Verify failed: %v", i, err)
		}
		if !ok {
			t.Fatalf("message %d: tag rejected", i)
		}
		if !bytes.Equal(pt, messages[i]) {
			t.Errorf("message %d: plaintext mismatch", i)
		}
	}

	// Each cycle must match a manual engine initialized with the
	// big-endian-incremented nonce.
	manualNonce := make([]byte, len(nonce))
	copy(manualNonce, nonce)
	for i, msg := range messages {
		ref := newGCM(t)
		initGCM(t, ref, true, key, manualNonce)
		if err := ref.SetAssociatedData(aad, 0, len(aad)); err != nil {
			t.Fatalf("SetAssociatedData failed: %v", err)
		}
		ct := make([]byte, len(msg))
		if err := ref.Transform(msg, 0, ct, 0, len(msg)); err != nil {
			t.Fatalf("Transform failed: %v", err)
		}
		tag := make([]byte, kryptos.TagSize)
		if err := ref.Finalize(tag, 0, kryptos.TagSize); err != nil {
			t.Fatalf("Finalize failed: %v", err)
		}
		if !bytes.Equal(ct, sealed[i]) || !bytes.Equal(tag, tags[i]) {
			t.Errorf("cycle %d: auto-increment output differs from manual nonce walk", i)
		}
		// Big-endian increment for the next cycle.
		for j := len(manualNonce) - 1; j >= 0; j-- {
			manualNonce[j]++
			if manualNonce[j] != 0 {
				break
			}
		}
	}
}

func TestGCM_ReinitializeWithoutFinalize(t *testing.T) {
	key, _ := kryptos.GenerateKey(16)
	nonce, _ := kryptos.GenerateNonce(12)
	plaintext := []byte("abandoned cycle data")

	g := newGCM(t)
	initGCM(t, g, true, key, nonce)
	ct := make([]byte, len(plaintext))
	if err := g.Transform(plaintext, 0, ct, 0, len(plaintext)); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	// Abandon the cycle; a fresh Initialize must produce the same output as
	// an untouched engine.
	initGCM(t, g, true, key, nonce)
	ct2 := make([]byte, len(plaintext))
	if err := g.Transform(plaintext, 0, ct2, 0, len(plaintext)); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	tag2 := make([]byte, kryptos.TagSize)
	if err := g.Finalize(tag2, 0, kryptos.TagSize); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	ref := newGCM(t)
	initGCM(t, ref, true, key, nonce)
	ctRef := make([]byte, len(plaintext))
	if err := ref.Transform(plaintext, 0, ctRef, 0, len(plaintext)); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	tagRef := make([]byte, kryptos.TagSize)
	if err := ref.Finalize(tagRef, 0, kryptos.TagSize); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if !bytes.Equal(ct2, ctRef) || !bytes.Equal(tag2, tagRef) {
		t.Error("abandoned cycle state leaked into the next cycle")
	}
}

func TestGCM_Accessors(t *testing.T) {
	g := newGCM(t)
	if g.Name() != "GCM-AES" {
		t.Errorf("unexpected name %q", g.Name())
	}
	if g.BlockSize() != 16 {
		t.Errorf("unexpected block size %d", g.BlockSize())
	}
	if g.MinTagSize() != 12 || g.MaxTagSize() != 16 {
		t.Errorf("unexpected tag bounds [%d, %d]", g.MinTagSize(), g.MaxTagSize())
	}
	if g.IsInitialized() {
		t.Error("engine reports initialized before Initialize")
	}

	key, _ := kryptos.GenerateKey(16)
	nonce, _ := kryptos.GenerateNonce(12)
	initGCM(t, g, true, key, nonce)
	if !g.IsInitialized() || !g.IsEncryption() {
		t.Error("engine state accessors wrong after encrypt Initialize")
	}

	g.Destroy()
	if g.IsInitialized() {
		t.Error("engine reports initialized after Destroy")
	}
}
