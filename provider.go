// provider.go: External key provider plugin interface.
//
// This module provides a plugin-based architecture powered by
// github.com/agilira/go-plugins for sourcing key material from external
// systems: PKCS#11 devices, cloud key services, or software fallbacks.
// Providers hand out master keys and seeds; all cipher operations stay
// local to this library.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kryptos

import (
	"context"
	"fmt"
	"sync"
	"time"

	goerrors "github.com/agilira/go-errors"
	goplugins "github.com/agilira/go-plugins"
)

// ProviderCapability represents a specific key provider feature.
type ProviderCapability string

const (
	CapabilityGenerateKey    ProviderCapability = "generate_key"    // Symmetric key generation
	CapabilityGenerateSeed   ProviderCapability = "generate_seed"   // Nonce/seed generation
	CapabilityWrapKey        ProviderCapability = "wrap_key"        // Key wrapping under a provider-held KEK
	CapabilityUnwrapKey      ProviderCapability = "unwrap_key"      // Key unwrapping
	CapabilityDeriveKey      ProviderCapability = "derive_key"      // Provider-side key derivation
	CapabilityHardwareRandom ProviderCapability = "hardware_random" // Hardware RNG
	CapabilitySecureStorage  ProviderCapability = "secure_storage"  // Hardware-backed key storage
)

// ProviderKeyInfo represents metadata about a key held by a provider.
type ProviderKeyInfo struct {
	ID          string            `json:"id"`          // Unique key identifier at the provider
	Label       string            `json:"label"`       // Human-readable label
	Size        int               `json:"size"`        // Key size in bits
	Algorithm   string            `json:"algorithm"`   // Cryptographic algorithm
	CreatedAt   time.Time         `json:"created_at"`  // Creation timestamp
	ExpiresAt   *time.Time        `json:"expires_at"`  // Expiration time (if any)
	Extractable bool              `json:"extractable"` // Whether key material can leave the provider
	Metadata    map[string]string `json:"metadata"`    // Provider-specific metadata
}

// KeyProvider is the interface all key provider plugins implement.
//
// Implementations should fail gracefully and return detailed errors for
// security auditing. Extractable keys are returned as raw bytes; callers
// own wiping them.
type KeyProvider interface {
	// Provider information
	Name() string                       // Provider name (e.g. "pkcs11", "aws-kms")
	Version() string                    // Provider version
	Capabilities() []ProviderCapability // Supported capabilities

	// Lifecycle
	Initialize(ctx context.Context, config map[string]interface{}) error
	Close() error
	IsHealthy() bool

	// Key material
	GenerateKey(ctx context.Context, keyID string, sizeBits int) (*ProviderKeyInfo, error)
	ExportKey(ctx context.Context, keyID string) ([]byte, error)
	DeleteKey(ctx context.Context, keyID string) error
	ListKeys(ctx context.Context) ([]*ProviderKeyInfo, error)

	// Wrapping: protect a locally generated key under a provider-held KEK.
	WrapKey(ctx context.Context, kekID string, keyMaterial []byte) ([]byte, error)
	UnwrapKey(ctx context.Context, kekID string, wrapped []byte) ([]byte, error)

	// Random material
	GenerateRandom(ctx context.Context, length int) ([]byte, error)
}

// ProviderRequest is the wire request sent to a provider plugin.
type ProviderRequest struct {
	Operation  string                 `json:"operation"`  // Operation type (generate, export, wrap, ...)
	KeyID      string                 `json:"key_id"`     // Key identifier for the operation
	Data       []byte                 `json:"data"`       // Operation payload
	Parameters map[string]interface{} `json:"parameters"` // Operation parameters
}

// ProviderResponse is the wire response from a provider plugin.
type ProviderResponse struct {
	Success  bool                   `json:"success"`  // Operation success status
	Data     []byte                 `json:"data"`     // Response payload
	KeyInfo  *ProviderKeyInfo       `json:"key_info"` // Key information (for key operations)
	Error    string                 `json:"error"`    // Error message (if any)
	Metadata map[string]interface{} `json:"metadata"` // Response metadata
}

// ProviderManagerConfig configures the provider manager.
type ProviderManagerConfig struct {
	DefaultProvider     string                            `json:"default_provider"`      // Provider used when none is named
	ProviderConfigs     map[string]map[string]interface{} `json:"provider_configs"`      // Per-provider configurations
	FailoverEnabled     bool                              `json:"failover_enabled"`      // Enable automatic failover
	FailoverProviders   []string                          `json:"failover_providers"`    // Failover priority order
	HealthCheckInterval time.Duration                     `json:"health_check_interval"` // Health check frequency
	OperationTimeout    time.Duration                     `json:"operation_timeout"`     // Default operation timeout
}

// ProviderManager manages key providers using the go-plugins framework.
type ProviderManager struct {
	mu              sync.RWMutex
	pluginManager   *goplugins.Manager[ProviderRequest, ProviderResponse]
	activeProviders map[string]KeyProvider
	defaultProvider string
	config          *ProviderManagerConfig
}

// Common provider errors with error codes for auditing.
var (
	ErrProviderNotInitialized = goerrors.New("PROVIDER_001", "key provider not initialized")
	ErrProviderKeyNotFound    = goerrors.New("PROVIDER_002", "key not found at provider")
	ErrProviderOpFailed       = goerrors.New("PROVIDER_003", "provider operation failed")
	ErrProviderNotFound       = goerrors.New("PROVIDER_004", "key provider not found")
	ErrProviderUnhealthy      = goerrors.New("PROVIDER_005", "key provider health check failed")
	ErrProviderTimeout        = goerrors.New("PROVIDER_006", "provider operation timed out")
	ErrProviderAccessDenied   = goerrors.New("PROVIDER_007", "access denied by provider")
)

// NewProviderManager creates a provider manager with plugin support. A nil
// config gets conservative defaults.
func NewProviderManager(config *ProviderManagerConfig, pluginManager *goplugins.Manager[ProviderRequest, ProviderResponse]) (*ProviderManager, error) {
	if config == nil {
		config = &ProviderManagerConfig{
			FailoverEnabled:     false,
			HealthCheckInterval: 30 * time.Second,
			OperationTimeout:    10 * time.Second,
		}
	}

	manager := &ProviderManager{
		pluginManager:   pluginManager,
		activeProviders: make(map[string]KeyProvider),
		config:          config,
	}

	return manager, nil
}

// RegisterProvider initializes and registers a key provider. The first
// registered provider, or the one named in the config, becomes the default.
func (m *ProviderManager) RegisterProvider(name string, provider KeyProvider) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	ctx := context.Background()
	if timeout := m.config.OperationTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	providerConfig := m.config.ProviderConfigs[name]
	if err := provider.Initialize(ctx, providerConfig); err != nil {
		return fmt.Errorf("failed to initialize key provider %s: %w", name, err)
	}

	m.activeProviders[name] = provider

	if m.defaultProvider == "" || m.config.DefaultProvider == name {
		m.defaultProvider = name
	}

	return nil
}

// GetProvider returns a registered provider by name, or the default for an
// empty name. Unhealthy providers are not returned.
func (m *ProviderManager) GetProvider(name string) (KeyProvider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if name == "" {
		name = m.defaultProvider
	}

	provider, exists := m.activeProviders[name]
	if !exists {
		return nil, fmt.Errorf("%w: provider %s", ErrProviderNotFound, name)
	}

	if !provider.IsHealthy() {
		return nil, fmt.Errorf("%w: provider %s", ErrProviderUnhealthy, name)
	}

	return provider, nil
}

// FetchSecretKey exports key material from a provider and packages it as a
// SecretKey together with a locally generated nonce. The exported material
// is wiped after the SecretKey takes its copy.
func (m *ProviderManager) FetchSecretKey(ctx context.Context, providerName, keyID string, nonceSize int) (*SecretKey, error) {
	provider, err := m.GetProvider(providerName)
	if err != nil {
		return nil, err
	}

	keyMaterial, err := provider.ExportKey(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("%w: export of %s: %w", ErrProviderOpFailed, keyID, err)
	}
	defer Zeroize(keyMaterial)

	if err := ValidateKey(keyMaterial); err != nil {
		return nil, err
	}

	nonce, err := GenerateNonce(nonceSize)
	if err != nil {
		return nil, err
	}
	defer Zeroize(nonce)

	return NewSecretKey(keyMaterial, nonce, []byte(keyID))
}

// Close shuts down all registered providers.
func (m *ProviderManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error

	for name, provider := range m.activeProviders {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close key provider %s: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to close some key providers: %v", errs)
	}

	return nil
}
