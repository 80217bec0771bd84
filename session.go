// session.go: Versioned session-key management with zero-downtime rotation.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kryptos

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// SessionKeyVersion represents a specific version of a session master key.
type SessionKeyVersion struct {
	ID        string                 `json:"id"`                 // Unique identifier for the key version
	Key       []byte                 `json:"-"`                  // The master key (never serialized)
	Version   int                    `json:"version"`            // Incremental version number
	CreatedAt time.Time              `json:"created_at"`         // Creation timestamp
	Status    string                 `json:"status"`             // "active", "pending", "deprecated", "revoked"
	Algorithm string                 `json:"algorithm"`          // Cipher the key feeds
	Purpose   string                 `json:"purpose"`            // Purpose of the key (e.g. "session", "stream")
	Metadata  map[string]interface{} `json:"metadata,omitempty"` // Additional metadata

	// Cached keyed engine, so the key schedule and GHASH subkey table are
	// derived once per version rather than once per message.
	cachedEngine *GCM `json:"-"`
}

// initCachedEngine keys a dedicated GCM engine for this version.
func (sv *SessionKeyVersion) initCachedEngine() error {
	g, err := NewGCM(NewAESEngine())
	if err != nil {
		return fmt.Errorf("failed to create cipher engine: %w", err)
	}
	sv.cachedEngine = g
	return nil
}

// SessionManager tracks session master key versions and rotates them
// without interrupting in-flight decryption of older material.
type SessionManager struct {
	mu          sync.RWMutex
	active      *SessionKeyVersion
	pending     *SessionKeyVersion
	previous    *SessionKeyVersion
	versions    map[string]*SessionKeyVersion
	maxVersions int
}

// Error codes for session key management
const (
	ErrCodeSessionNotFound      = "SESSION_KEY_NOT_FOUND"
	ErrCodeSessionInactive      = "SESSION_KEY_INACTIVE"
	ErrCodeSessionRotation      = "SESSION_KEY_ROTATION"
	ErrCodeSessionValidation    = "SESSION_KEY_VALIDATION"
	ErrCodeSessionSerialization = "SESSION_KEY_SERIALIZATION"
)

// Key status constants
const (
	StatusActive     = "active"     // Active key for encryption/decryption
	StatusPending    = "pending"    // Key in preparation for activation
	StatusValidating = "validating" // Key in validation phase
	StatusDeprecated = "deprecated" // Deprecated key (for decryption only)
	StatusRevoked    = "revoked"    // Revoked key (not usable)
)

// NewSessionManager creates a session manager keeping at most 10 versions.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		versions:    make(map[string]*SessionKeyVersion),
		maxVersions: 10,
	}
}

// NewSessionManagerWithOptions creates a session manager with a custom
// version retention limit.
func NewSessionManagerWithOptions(maxVersions int) *SessionManager {
	sm := NewSessionManager()
	sm.maxVersions = maxVersions
	return sm
}

// GenerateMasterKey generates a new 256-bit session master key in pending
// state.
func (sm *SessionManager) GenerateMasterKey(purpose string) (*SessionKeyVersion, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	return sm.generateMasterKeyLocked(purpose)
}

// generateMasterKeyLocked assumes the mutex is already held.
func (sm *SessionManager) generateMasterKeyLocked(purpose string) (*SessionKeyVersion, error) {
	key, err := GenerateKey(32)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeKeyGeneration, "failed to generate master key")
		return nil, fmt.Errorf("key generation failed: %w", richErr)
	}

	idBytes := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, idBytes); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeKeyGeneration, "failed to generate key ID")
		return nil, fmt.Errorf("key ID generation failed: %w", richErr)
	}

	version := &SessionKeyVersion{
		ID:        fmt.Sprintf("msk_%x", idBytes),
		Key:       key,
		Version:   sm.getNextVersion(),
		CreatedAt: timecache.CachedTime().UTC(),
		Status:    StatusPending,
		Algorithm: "AES-256-GCM",
		Purpose:   purpose,
		Metadata: map[string]interface{}{
			"generator": "kryptos",
			"type":      "master",
		},
	}

	if err := version.initCachedEngine(); err != nil {
		return nil, err
	}

	sm.versions[version.ID] = version
	return version, nil
}

// ActivateMasterKey activates a key version as the current session key.
func (sm *SessionManager) ActivateMasterKey(keyID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	version, exists := sm.versions[keyID]
	if !exists {
		richErr := goerrors.New(ErrCodeSessionNotFound, fmt.Sprintf("key ID %s not found", keyID))
		return fmt.Errorf("key not found: %w", richErr)
	}

	if version.Status == StatusRevoked {
		richErr := goerrors.New(ErrCodeSessionInactive, fmt.Sprintf("cannot activate revoked key %s", keyID))
		return fmt.Errorf("key revoked: %w", richErr)
	}

	if err := ValidateKey(version.Key); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeSessionValidation, "key validation failed")
		return fmt.Errorf("invalid key: %w", richErr)
	}

	if sm.active != nil {
		sm.previous = sm.active
		sm.active.Status = StatusDeprecated
	}

	version.Status = StatusActive
	sm.active = version

	return nil
}

// RotateMasterKey performs an immediate rotation by generating and
// activating a new master key.
func (sm *SessionManager) RotateMasterKey(purpose string) (*SessionKeyVersion, error) {
	newKey, err := sm.GenerateMasterKey(purpose)
	if err != nil {
		return nil, fmt.Errorf("failed to generate new master key: %w", err)
	}

	if err := sm.ActivateMasterKey(newKey.ID); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeSessionRotation, "failed to activate new master key")
		return nil, fmt.Errorf("rotation failed: %w", richErr)
	}

	sm.mu.Lock()
	sm.cleanupOldVersions()
	sm.mu.Unlock()

	return newKey, nil
}

// PrepareRotation generates a new master key in pending state without
// impacting the active one. Phase 1 of zero-downtime rotation.
func (sm *SessionManager) PrepareRotation(purpose string) (*SessionKeyVersion, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.pending != nil {
		richErr := goerrors.New(ErrCodeSessionRotation, "rotation already in progress")
		return nil, fmt.Errorf("rotation in progress: %w", richErr)
	}

	newKey, err := sm.generateMasterKeyLocked(purpose)
	if err != nil {
		return nil, fmt.Errorf("failed to generate new master key: %w", err)
	}

	newKey.Status = StatusPending
	sm.pending = newKey

	return newKey, nil
}

// ValidateRotation tests the pending key with a full derive/encrypt/decrypt
// round trip before activation. Phase 2 of zero-downtime rotation.
func (sm *SessionManager) ValidateRotation() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.pending == nil {
		richErr := goerrors.New(ErrCodeSessionRotation, "no pending key to validate")
		return fmt.Errorf("no pending key: %w", richErr)
	}

	testContext := []byte("rotation-validation-context")
	testData := []byte("zero-downtime-validation-test-data")

	testKey, err := DeriveKeyHKDF(sm.pending.Key, nil, testContext, 32)
	if err != nil {
		sm.pending.Status = StatusRevoked
		richErr := goerrors.Wrap(err, ErrCodeSessionValidation, "failed to derive test key")
		return fmt.Errorf("rotation validation failed: %w", richErr)
	}
	defer Zeroize(testKey)

	encrypted, err := EncryptBytes(testData, testKey)
	if err != nil {
		sm.pending.Status = StatusRevoked
		richErr := goerrors.Wrap(err, ErrCodeSessionValidation, "failed to encrypt test data")
		return fmt.Errorf("rotation validation failed: %w", richErr)
	}

	decrypted, err := DecryptBytes(encrypted, testKey)
	if err != nil {
		sm.pending.Status = StatusRevoked
		richErr := goerrors.Wrap(err, ErrCodeSessionValidation, "failed to decrypt test data")
		return fmt.Errorf("rotation validation failed: %w", richErr)
	}

	if string(decrypted) != string(testData) {
		sm.pending.Status = StatusRevoked
		Zeroize(decrypted)
		richErr := goerrors.New(ErrCodeSessionValidation, "decrypted data does not match original")
		return fmt.Errorf("rotation validation failed: %w", richErr)
	}

	Zeroize(decrypted)
	sm.pending.Status = StatusValidating

	return nil
}

// CommitRotation activates the validated pending key while keeping the old
// one available for decryption. Phase 3 of zero-downtime rotation.
func (sm *SessionManager) CommitRotation() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.pending == nil || sm.pending.Status != StatusValidating {
		richErr := goerrors.New(ErrCodeSessionRotation, "no validated pending key to commit")
		return fmt.Errorf("no validated key to commit: %w", richErr)
	}

	if sm.active != nil {
		sm.previous = sm.active
		sm.active.Status = StatusDeprecated
	}

	sm.pending.Status = StatusActive
	sm.active = sm.pending
	sm.pending = nil

	sm.cleanupOldVersions()

	return nil
}

// RollbackRotation undoes an ongoing rotation, revoking and wiping the
// pending key. Fails if no rotation is in progress.
func (sm *SessionManager) RollbackRotation() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.pending == nil {
		richErr := goerrors.New(ErrCodeSessionRotation, "no rotation in progress to rollback")
		return fmt.Errorf("no rotation to rollback: %w", richErr)
	}

	sm.pending.Status = StatusRevoked
	if sm.pending.Key != nil {
		Zeroize(sm.pending.Key)
	}
	if sm.pending.cachedEngine != nil {
		sm.pending.cachedEngine.Destroy()
		sm.pending.cachedEngine = nil
	}

	sm.pending = nil

	return nil
}

// RotateZeroDowntime runs the full prepare -> validate -> commit rotation,
// rolling back automatically on any failure.
func (sm *SessionManager) RotateZeroDowntime(purpose string) (*SessionKeyVersion, error) {
	newKey, err := sm.PrepareRotation(purpose)
	if err != nil {
		return nil, fmt.Errorf("preparation failed: %w", err)
	}

	if err := sm.ValidateRotation(); err != nil {
		_ = sm.RollbackRotation()
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if err := sm.CommitRotation(); err != nil {
		_ = sm.RollbackRotation()
		return nil, fmt.Errorf("commit failed: %w", err)
	}

	return newKey, nil
}

// CurrentMasterKey returns the active session master key.
func (sm *SessionManager) CurrentMasterKey() (*SessionKeyVersion, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return sm.currentMasterKeyLocked()
}

func (sm *SessionManager) currentMasterKeyLocked() (*SessionKeyVersion, error) {
	if sm.active == nil {
		richErr := goerrors.New(ErrCodeSessionNotFound, "no active master key")
		return nil, fmt.Errorf("no active master key: %w", richErr)
	}

	if sm.active.Status != StatusActive {
		richErr := goerrors.New(ErrCodeSessionInactive, "current master key is not active")
		return nil, fmt.Errorf("master key inactive: %w", richErr)
	}

	return sm.active, nil
}

// MasterKeyByID returns a specific key version, for decrypting material
// produced under an older session key.
func (sm *SessionManager) MasterKeyByID(keyID string) (*SessionKeyVersion, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	version, exists := sm.versions[keyID]
	if !exists {
		richErr := goerrors.New(ErrCodeSessionNotFound, fmt.Sprintf("key ID %s not found", keyID))
		return nil, fmt.Errorf("key not found: %w", richErr)
	}

	if version.Status == StatusRevoked {
		richErr := goerrors.New(ErrCodeSessionInactive, fmt.Sprintf("key %s is revoked", keyID))
		return nil, fmt.Errorf("key revoked: %w", richErr)
	}

	return version, nil
}

// ListMasterKeys returns all key versions without the key material.
func (sm *SessionManager) ListMasterKeys() []*SessionKeyVersion {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	versions := make([]*SessionKeyVersion, 0, len(sm.versions))
	for _, version := range sm.versions {
		safeCopy := &SessionKeyVersion{
			ID:        version.ID,
			Version:   version.Version,
			CreatedAt: version.CreatedAt,
			Status:    version.Status,
			Algorithm: version.Algorithm,
			Purpose:   version.Purpose,
			Metadata:  version.Metadata,
		}
		versions = append(versions, safeCopy)
	}
	return versions
}

// RevokeMasterKey revokes a key version and wipes its material. The active
// key cannot be revoked without rotating first.
func (sm *SessionManager) RevokeMasterKey(keyID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	version, exists := sm.versions[keyID]
	if !exists {
		richErr := goerrors.New(ErrCodeSessionNotFound, fmt.Sprintf("key ID %s not found", keyID))
		return fmt.Errorf("key not found: %w", richErr)
	}

	if sm.active != nil && sm.active.ID == keyID {
		richErr := goerrors.New(ErrCodeSessionRotation, "cannot revoke current active key - rotate first")
		return fmt.Errorf("cannot revoke active key: %w", richErr)
	}

	version.Status = StatusRevoked

	Zeroize(version.Key)
	version.Key = nil
	if version.cachedEngine != nil {
		version.cachedEngine.Destroy()
		version.cachedEngine = nil
	}

	return nil
}

// DeriveSessionSecret derives per-context key and nonce material from the
// active master key and returns it together with the key version ID, so
// ciphertext can be tagged with the version that protected it.
func (sm *SessionManager) DeriveSessionSecret(context []byte, keySize, nonceSize int) (*SecretKey, string, error) {
	current, err := sm.CurrentMasterKey()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current master key: %w", err)
	}

	sk, err := DeriveSessionKey(current.Key, nil, context, keySize, nonceSize)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeKeyGeneration, "session secret derivation failed")
		return nil, "", fmt.Errorf("session secret derivation failed: %w", richErr)
	}

	return sk, current.ID, nil
}

// EncryptWithVersion encrypts using a specific key version's cached engine.
func (sm *SessionManager) EncryptWithVersion(plaintext []byte, keyID string) ([]byte, error) {
	version, err := sm.MasterKeyByID(keyID)
	if err != nil {
		return nil, err
	}
	return version.encryptCached(plaintext)
}

// DecryptWithVersion decrypts data produced under a specific key version.
func (sm *SessionManager) DecryptWithVersion(ciphertext []byte, keyID string) ([]byte, error) {
	version, err := sm.MasterKeyByID(keyID)
	if err != nil {
		return nil, err
	}
	return DecryptBytes(ciphertext, version.Key)
}

// encryptCached encrypts with the version's dedicated engine: a fresh
// random nonce per message, the nonce || ciphertext || tag layout of
// EncryptBytes, and the fingerprint fast path skipping key re-derivation.
func (sv *SessionKeyVersion) encryptCached(plaintext []byte) ([]byte, error) {
	if sv.cachedEngine == nil {
		if err := sv.initCachedEngine(); err != nil {
			return nil, err
		}
	}

	nonceBuffer := getBuffer(StandardNonceSize)
	defer putBuffer(nonceBuffer)
	nonce := (*nonceBuffer)[:StandardNonceSize]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeNonceGen, "failed to generate nonce")
	}

	sk, err := NewSecretKey(sv.Key, nonce, nil)
	if err != nil {
		return nil, err
	}
	defer sk.Destroy()
	if err := sv.cachedEngine.Initialize(true, sk); err != nil {
		return nil, err
	}

	out := make([]byte, StandardNonceSize+len(plaintext)+TagSize)
	copy(out, nonce)
	if err := sv.cachedEngine.Transform(plaintext, 0, out, StandardNonceSize, len(plaintext)); err != nil {
		return nil, err
	}
	if err := sv.cachedEngine.Finalize(out, StandardNonceSize+len(plaintext), TagSize); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportState exports the manager's version metadata as JSON, without any
// key material.
func (sm *SessionManager) ExportState() ([]byte, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	exportData := struct {
		Versions    map[string]*SessionKeyVersion `json:"versions"`
		ActiveKey   string                        `json:"active_key,omitempty"`
		PreviousKey string                        `json:"previous_key,omitempty"`
		MaxVersions int                           `json:"max_versions"`
	}{
		Versions:    make(map[string]*SessionKeyVersion),
		MaxVersions: sm.maxVersions,
	}

	for id, version := range sm.versions {
		safeCopy := &SessionKeyVersion{
			ID:        version.ID,
			Version:   version.Version,
			CreatedAt: version.CreatedAt,
			Status:    version.Status,
			Algorithm: version.Algorithm,
			Purpose:   version.Purpose,
			Metadata:  version.Metadata,
		}
		exportData.Versions[id] = safeCopy
	}

	if sm.active != nil {
		exportData.ActiveKey = sm.active.ID
	}
	if sm.previous != nil {
		exportData.PreviousKey = sm.previous.ID
	}

	data, err := json.Marshal(exportData)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeSessionSerialization, "failed to marshal session state")
		return nil, fmt.Errorf("export failed: %w", richErr)
	}

	return data, nil
}

// getNextVersion calculates the next version number. Caller holds the lock.
func (sm *SessionManager) getNextVersion() int {
	maxVersion := 0
	for _, version := range sm.versions {
		if version.Version > maxVersion {
			maxVersion = version.Version
		}
	}
	return maxVersion + 1
}

// cleanupOldVersions removes revoked versions beyond the retention limit.
// Caller holds the lock.
func (sm *SessionManager) cleanupOldVersions() {
	if len(sm.versions) <= sm.maxVersions {
		return
	}

	toDelete := make([]string, 0)
	for id, version := range sm.versions {
		if version.Status == StatusRevoked {
			toDelete = append(toDelete, id)
		}
	}

	for _, id := range toDelete {
		if sm.active != nil && sm.active.ID == id {
			continue
		}
		if sm.previous != nil && sm.previous.ID == id {
			continue
		}

		if version := sm.versions[id]; version != nil && version.Key != nil {
			Zeroize(version.Key)
		}
		delete(sm.versions, id)
	}
}
