// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secrets holds service credentials in mlocked memory.
//
// # Description
//
// This package implements a small named-secret vault over memguard
// LockedBuffers. The service API key, the InfluxDB token, and the OpenAI
// key live in pages the kernel may not swap out, fenced by memguard's
// guard allocations, and are zeroed the moment Purge is called.
//
// Systems with a low RLIMIT_MEMLOCK cannot honor those guarantees. There
// the vault constructor fails unless ALEUTIAN_INSECURE_MEMORY=true
// explicitly accepts plain-memory storage.
//
// # Thread Safety
//
// Every Vault returned by NewVault is safe for concurrent use.
package secrets

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxSecretBytes bounds the size of a single stored secret.
	// API keys and tokens are far below this.
	MaxSecretBytes = 4096

	// MinMlockLimitKB is the smallest RLIMIT_MEMLOCK, in kilobytes, the
	// vault will run on. Covers the locked pages for every secret plus
	// memguard's own canary and guard allocations.
	MinMlockLimitKB = 64
)

// Well-known secret names used across the service.
const (
	// KeyAPIKey is the bearer key clients must present on /v1 routes.
	KeyAPIKey = "api_key"

	// KeyInfluxToken authenticates the history recorder to InfluxDB.
	KeyInfluxToken = "influx_token"

	// KeyOpenAIKey authenticates the interpretation backend.
	KeyOpenAIKey = "openai_api_key"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrSecretNotFound indicates the named secret was never stored.
	ErrSecretNotFound = errors.New("secret not found in vault")

	// ErrVaultPurged indicates the vault has already been wiped.
	ErrVaultPurged = errors.New("vault already purged")

	// ErrEmptySecret indicates an attempt to store an empty value.
	ErrEmptySecret = errors.New("secret value is empty")

	// ErrSecretTooLarge indicates a value above MaxSecretBytes.
	ErrSecretTooLarge = errors.New("secret value exceeds maximum size")
)

// =============================================================================
// Interfaces
// =============================================================================

// Vault defines the contract for storing named service credentials.
//
// # Description
//
// Vault abstracts credential storage so callers work identically whether
// the system supports mlocked memory or has fallen back to plain memory.
// Values handed to Set are wiped after storage; values returned by Reveal
// are copies the caller must wipe.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
//
// # Examples
//
//	v, err := NewVault()
//	if err != nil {
//	    return err
//	}
//	defer v.Purge()
//
//	_ = v.Set(KeyAPIKey, []byte(os.Getenv("ALEUTIAN_API_KEY")))
//	if v.Equal(KeyAPIKey, candidate) {
//	    // authenticated
//	}
type Vault interface {
	// Set stores a named secret, wiping the input value after storage.
	//
	// # Inputs
	//
	//   - name: Secret name (use the Key* constants for shared secrets)
	//   - value: Secret bytes; wiped before Set returns
	//
	// # Outputs
	//
	//   - error: ErrEmptySecret, ErrSecretTooLarge, or ErrVaultPurged
	Set(name string, value []byte) error

	// Has reports whether a named secret is stored.
	Has(name string) bool

	// Equal compares a candidate against a stored secret in constant
	// time. Returns false when the secret is absent or the vault purged.
	//
	// # Inputs
	//
	//   - name: Secret name to compare against
	//   - candidate: Presented value
	//
	// # Outputs
	//
	//   - bool: true only on an exact match
	Equal(name string, candidate []byte) bool

	// Reveal returns a copy of a stored secret. The caller owns the
	// copy and should zero it when done.
	//
	// # Outputs
	//
	//   - []byte: Copy of the secret value
	//   - error: ErrSecretNotFound or ErrVaultPurged
	Reveal(name string) ([]byte, error)

	// Purge wipes every stored secret. Safe to call multiple times
	// (idempotent). The vault is unusable afterwards.
	Purge()
}

// =============================================================================
// Constructor Functions
// =============================================================================

// NewVault creates the vault, preferring mlocked storage.
//
// # Description
//
// The first call bootstraps memguard and probes RLIMIT_MEMLOCK. When the
// limit admits locked buffers, every secret is kept in mlocked, guarded
// memory. When it does not, the outcome depends on the operator: with
// ALEUTIAN_INSECURE_MEMORY=true the vault falls back to plain memory and
// logs the downgrade, otherwise construction fails and the caller decides
// whether to run without secrets.
//
// # Outputs
//
//   - Vault: Ready to use
//   - error: Non-nil when locked memory is unavailable and no fallback is allowed
func NewVault() (Vault, error) {
	mem := lockedMemory()
	if mem.ok {
		return &secureVault{entries: make(map[string]*memguard.LockedBuffer)}, nil
	}

	if os.Getenv("ALEUTIAN_INSECURE_MEMORY") == "true" {
		slog.Warn("mlock limit too low, storing secrets in plain memory",
			"mlock_limit_kb", mem.limitKB,
			"required_kb", MinMlockLimitKB,
			"override", "ALEUTIAN_INSECURE_MEMORY",
		)
		return newInsecureVault(), nil
	}

	return nil, fmt.Errorf(
		"mlock limit is %d KB but the vault needs %d KB: raise ulimit -l or set ALEUTIAN_INSECURE_MEMORY=true",
		mem.limitKB, MinMlockLimitKB,
	)
}

// newInsecureVault creates the plain-memory fallback vault.
func newInsecureVault() Vault {
	return &insecureVault{entries: make(map[string][]byte)}
}

// =============================================================================
// Secure Vault
// =============================================================================

// secureVault keeps each secret in its own memguard LockedBuffer, frozen
// read-only once stored.
//
// # Fields
//
//   - mu: Guards entries and purged
//   - entries: Live locked buffers by secret name
//   - purged: Terminal flag set by Purge
type secureVault struct {
	mu      sync.Mutex
	entries map[string]*memguard.LockedBuffer
	purged  bool
}

// Set stores a secret in a fresh locked buffer and freezes it read-only.
// The input value is wiped by memguard during the copy.
func (v *secureVault) Set(name string, value []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.purged {
		wipe(value)
		return ErrVaultPurged
	}
	if len(value) == 0 {
		return ErrEmptySecret
	}
	if len(value) > MaxSecretBytes {
		wipe(value)
		return ErrSecretTooLarge
	}

	if old, ok := v.entries[name]; ok {
		old.Destroy()
	}

	buf := memguard.NewBufferFromBytes(value)
	buf.Freeze()
	v.entries[name] = buf

	slog.Debug("Stored secret in vault", "name", name, "bytes", buf.Size())
	return nil
}

// Has reports whether a named secret is stored.
func (v *secureVault) Has(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.purged {
		return false
	}
	_, ok := v.entries[name]
	return ok
}

// Equal compares a candidate against a stored secret in constant time.
func (v *secureVault) Equal(name string, candidate []byte) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.purged {
		return false
	}
	buf, ok := v.entries[name]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare(buf.Bytes(), candidate) == 1
}

// Reveal returns a copy of a stored secret.
func (v *secureVault) Reveal(name string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.purged {
		return nil, ErrVaultPurged
	}
	buf, ok := v.entries[name]
	if !ok {
		return nil, ErrSecretNotFound
	}
	out := make([]byte, buf.Size())
	copy(out, buf.Bytes())
	return out, nil
}

// Purge destroys every locked buffer and marks the vault unusable.
func (v *secureVault) Purge() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.purged {
		return
	}
	for name, buf := range v.entries {
		buf.Destroy()
		delete(v.entries, name)
	}
	v.purged = true
	slog.Debug("Purged secrets vault")
}

// =============================================================================
// Plain-Memory Fallback
// =============================================================================

// insecureVault stores secrets in ordinary heap memory. The kernel is
// free to swap these pages, so this implementation only runs when the
// operator has set ALEUTIAN_INSECURE_MEMORY=true (or a test constructs
// it directly).
type insecureVault struct {
	mu      sync.Mutex
	entries map[string][]byte
	purged  bool
}

// Set stores a copy of the secret and wipes the input value.
func (v *insecureVault) Set(name string, value []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.purged {
		wipe(value)
		return ErrVaultPurged
	}
	if len(value) == 0 {
		return ErrEmptySecret
	}
	if len(value) > MaxSecretBytes {
		wipe(value)
		return ErrSecretTooLarge
	}

	if old, ok := v.entries[name]; ok {
		wipe(old)
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	wipe(value)
	v.entries[name] = stored

	return nil
}

// Has reports whether a named secret is stored.
func (v *insecureVault) Has(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.purged {
		return false
	}
	_, ok := v.entries[name]
	return ok
}

// Equal compares a candidate against a stored secret in constant time.
func (v *insecureVault) Equal(name string, candidate []byte) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.purged {
		return false
	}
	stored, ok := v.entries[name]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare(stored, candidate) == 1
}

// Reveal returns a copy of a stored secret.
func (v *insecureVault) Reveal(name string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.purged {
		return nil, ErrVaultPurged
	}
	stored, ok := v.entries[name]
	if !ok {
		return nil, ErrSecretNotFound
	}
	out := make([]byte, len(stored))
	copy(out, stored)
	return out, nil
}

// Purge zeros every stored value (best effort under the GC).
func (v *insecureVault) Purge() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.purged {
		return
	}
	for name, stored := range v.entries {
		wipe(stored)
		delete(v.entries, name)
	}
	v.purged = true
}

// wipe zeros a byte slice in place.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// =============================================================================
// Locked-Memory Probe
// =============================================================================

// mlockStatus is the outcome of the one-time RLIMIT_MEMLOCK probe.
type mlockStatus struct {
	ok      bool  // limit admits at least MinMlockLimitKB of locked pages
	limitKB int64 // current soft limit in KB, -1 when unlimited or unreadable
}

var (
	probeOnce sync.Once
	probe     mlockStatus
)

// lockedMemory bootstraps memguard and probes the mlock limit, once per
// process. Later calls return the cached result.
func lockedMemory() mlockStatus {
	probeOnce.Do(func() {
		// Interrupt signals wipe every LockedBuffer before the process exits.
		memguard.CatchInterrupt()
		probe = readMlockLimit()
		if probe.ok {
			slog.Debug("Locked memory available",
				"mlock_limit_kb", probe.limitKB,
				"required_kb", MinMlockLimitKB,
			)
		}
	})
	return probe
}

// readMlockLimit inspects RLIMIT_MEMLOCK. An unreadable or unlimited
// limit counts as sufficient; if the kernel disagrees, memguard fails
// loudly at allocation time instead.
func readMlockLimit() mlockStatus {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rl); err != nil {
		slog.Warn("RLIMIT_MEMLOCK unreadable, assuming locked memory works", "error", err)
		return mlockStatus{ok: true, limitKB: -1}
	}
	if rl.Cur == unix.RLIM_INFINITY {
		return mlockStatus{ok: true, limitKB: -1}
	}

	kb := int64(rl.Cur / 1024)
	return mlockStatus{ok: kb >= MinMlockLimitKB, limitKB: kb}
}

// =============================================================================
// Utility Functions
// =============================================================================

// IsMlockAvailable reports whether this system can hold secrets in locked
// memory, along with the probed mlock limit in KB (-1 when unlimited).
func IsMlockAvailable() (bool, int64) {
	mem := lockedMemory()
	return mem.ok, mem.limitKB
}

// PurgeAll wipes every memguard allocation in the process.
//
// # Description
//
// Called during graceful shutdown; afterwards every secure vault in the
// process is unusable. Interrupt signals trigger the same wipe through
// memguard.CatchInterrupt.
func PurgeAll() {
	memguard.Purge()
	slog.Info("Wiped all locked secret memory")
}

// =============================================================================
// Environment Loading
// =============================================================================

// Secret sources checked by LoadFromEnv, in env-then-file order.
var envSources = []struct {
	name   string
	envVar string
	file   string
}{
	{KeyAPIKey, "ALEUTIAN_API_KEY", "/run/secrets/aleutian_api_key"},
	{KeyInfluxToken, "INFLUXDB_TOKEN", "/run/secrets/influxdb_token"},
	{KeyOpenAIKey, "OPENAI_API_KEY", "/run/secrets/openai_api_key"},
}

// LoadFromEnv seeds the vault with the well-known service secrets.
//
// # Description
//
// For each known secret, checks the environment variable first, then the
// Docker secrets file. Missing secrets are skipped (the features that need
// them degrade); stored ones are counted.
//
// # Inputs
//
//   - v: Vault to seed
//
// # Outputs
//
//   - int: Number of secrets stored
func LoadFromEnv(v Vault) int {
	loaded := 0
	for _, src := range envSources {
		value := os.Getenv(src.envVar)
		if value == "" {
			if data, err := os.ReadFile(src.file); err == nil {
				value = strings.TrimSpace(string(data))
			}
		}
		if value == "" {
			continue
		}
		if err := v.Set(src.name, []byte(value)); err != nil {
			slog.Warn("Failed to store secret", "name", src.name, "error", err)
			continue
		}
		loaded++
	}
	return loaded
}
