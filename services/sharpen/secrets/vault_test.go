// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package secrets

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test: Set and Equal
// =============================================================================

// TestVault_SetAndEqual verifies basic store-and-compare.
//
// # Description
//
// Tests that a stored secret compares equal to the same bytes and unequal
// to different bytes.
func TestVault_SetAndEqual(t *testing.T) {
	v := newTestVault(t)
	defer v.Purge()

	err := v.Set(KeyAPIKey, []byte("super-secret-key"))
	require.NoError(t, err, "Set should succeed")

	assert.True(t, v.Equal(KeyAPIKey, []byte("super-secret-key")),
		"Equal should match the stored value")
	assert.False(t, v.Equal(KeyAPIKey, []byte("wrong-key")),
		"Equal should reject a different value")
	assert.False(t, v.Equal(KeyAPIKey, []byte("super-secret-ke")),
		"Equal should reject a truncated value")
	assert.False(t, v.Equal(KeyAPIKey, nil),
		"Equal should reject an empty candidate")
}

// TestVault_Set_WipesInput verifies input wiping.
//
// # Description
//
// Tests that the value passed to Set is zeroed before Set returns, for
// both the secure and insecure implementations.
func TestVault_Set_WipesInput(t *testing.T) {
	v := newTestVault(t)
	defer v.Purge()

	value := []byte("wipe-me-after-store")
	err := v.Set(KeyInfluxToken, value)
	require.NoError(t, err, "Set should succeed")

	for i, b := range value {
		if b != 0 {
			t.Fatalf("input byte %d not wiped after Set", i)
		}
	}

	// The stored copy is unaffected by the wipe
	assert.True(t, v.Equal(KeyInfluxToken, []byte("wipe-me-after-store")),
		"stored value should survive input wipe")
}

// TestVault_Set_EmptyValue verifies empty value rejection.
func TestVault_Set_EmptyValue(t *testing.T) {
	v := newTestVault(t)
	defer v.Purge()

	err := v.Set(KeyAPIKey, nil)
	assert.ErrorIs(t, err, ErrEmptySecret, "empty value should be rejected")

	err = v.Set(KeyAPIKey, []byte{})
	assert.ErrorIs(t, err, ErrEmptySecret, "zero-length value should be rejected")
}

// TestVault_Set_TooLarge verifies oversized value rejection.
func TestVault_Set_TooLarge(t *testing.T) {
	v := newTestVault(t)
	defer v.Purge()

	err := v.Set(KeyAPIKey, make([]byte, MaxSecretBytes+1))
	assert.ErrorIs(t, err, ErrSecretTooLarge, "oversized value should be rejected")
}

// TestVault_Set_Overwrite verifies replacement of an existing secret.
//
// # Description
//
// Tests that storing a second value under the same name replaces the
// first, and the old value no longer compares equal.
func TestVault_Set_Overwrite(t *testing.T) {
	v := newTestVault(t)
	defer v.Purge()

	require.NoError(t, v.Set(KeyAPIKey, []byte("first")))
	require.NoError(t, v.Set(KeyAPIKey, []byte("second")))

	assert.False(t, v.Equal(KeyAPIKey, []byte("first")),
		"old value should no longer match")
	assert.True(t, v.Equal(KeyAPIKey, []byte("second")),
		"new value should match")
}

// =============================================================================
// Test: Has and Reveal
// =============================================================================

// TestVault_Has verifies presence reporting.
func TestVault_Has(t *testing.T) {
	v := newTestVault(t)
	defer v.Purge()

	assert.False(t, v.Has(KeyAPIKey), "empty vault should report absent")

	require.NoError(t, v.Set(KeyAPIKey, []byte("value")))
	assert.True(t, v.Has(KeyAPIKey), "stored secret should report present")
	assert.False(t, v.Has(KeyInfluxToken), "unstored name should report absent")
}

// TestVault_Reveal_ReturnsCopy verifies Reveal isolation.
//
// # Description
//
// Tests that Reveal returns the stored bytes, and that mutating the
// returned copy does not affect subsequent compares.
func TestVault_Reveal_ReturnsCopy(t *testing.T) {
	v := newTestVault(t)
	defer v.Purge()

	require.NoError(t, v.Set(KeyInfluxToken, []byte("influx-token-123")))

	out, err := v.Reveal(KeyInfluxToken)
	require.NoError(t, err, "Reveal should succeed")
	assert.Equal(t, []byte("influx-token-123"), out, "Reveal should return the value")

	// Mutate the copy; the vault's value must be unaffected
	for i := range out {
		out[i] = 'X'
	}
	assert.True(t, v.Equal(KeyInfluxToken, []byte("influx-token-123")),
		"mutating the revealed copy must not change the stored value")
}

// TestVault_Reveal_Missing verifies the not-found error.
func TestVault_Reveal_Missing(t *testing.T) {
	v := newTestVault(t)
	defer v.Purge()

	_, err := v.Reveal("nonexistent")
	assert.ErrorIs(t, err, ErrSecretNotFound, "missing secret should return ErrSecretNotFound")
}

// =============================================================================
// Test: Purge
// =============================================================================

// TestVault_Purge_IsIdempotent verifies idempotent purging.
func TestVault_Purge_IsIdempotent(t *testing.T) {
	v := newTestVault(t)

	require.NoError(t, v.Set(KeyAPIKey, []byte("value")))

	// Second and third calls are no-ops
	v.Purge()
	v.Purge()
	v.Purge()
}

// TestVault_Purge_FailsClosed verifies post-purge behavior.
//
// # Description
//
// Tests that every operation fails closed once the vault is purged: reads
// report absence or ErrVaultPurged, and writes are refused.
func TestVault_Purge_FailsClosed(t *testing.T) {
	v := newTestVault(t)

	require.NoError(t, v.Set(KeyAPIKey, []byte("value")))
	v.Purge()

	assert.False(t, v.Has(KeyAPIKey), "Has should report absent after purge")
	assert.False(t, v.Equal(KeyAPIKey, []byte("value")), "Equal should fail after purge")

	_, err := v.Reveal(KeyAPIKey)
	assert.ErrorIs(t, err, ErrVaultPurged, "Reveal should fail after purge")

	err = v.Set(KeyAPIKey, []byte("new"))
	assert.ErrorIs(t, err, ErrVaultPurged, "Set should fail after purge")
}

// =============================================================================
// Test: Concurrency
// =============================================================================

// TestVault_Concurrent_CompareIsSafe verifies parallel compares.
//
// # Description
//
// Hammers Equal from several goroutines at once; every call must return
// the right answer for both the correct and the wrong candidate.
func TestVault_Concurrent_CompareIsSafe(t *testing.T) {
	v := newTestVault(t)
	defer v.Purge()

	require.NoError(t, v.Set(KeyAPIKey, []byte("concurrent-key")))

	const workers = 16
	results := make([]bool, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			ok := true
			for j := 0; j < 100; j++ {
				if !v.Equal(KeyAPIKey, []byte("concurrent-key")) {
					ok = false
				}
				if v.Equal(KeyAPIKey, []byte(fmt.Sprintf("wrong-%d", j))) {
					ok = false
				}
			}
			results[i] = ok
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		assert.True(t, ok, "worker %d saw an incorrect compare", i)
	}
}

// TestVault_Concurrent_PurgeDuringSet verifies Purge can interleave with Set.
//
// # Description
//
// Races Set against Purge across many fresh vaults. Whichever loses the
// race must see ErrVaultPurged or succeed; a panic or torn map means the
// locking is wrong.
func TestVault_Concurrent_PurgeDuringSet(t *testing.T) {
	for i := 0; i < 50; i++ {
		v := newTestVault(t)

		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = v.Set(KeyAPIKey, []byte("racing-value"))
			}
		}()

		go func() {
			defer wg.Done()
			v.Purge()
		}()

		wg.Wait()
	}
}

// =============================================================================
// Test: Plain-Memory Fallback
// =============================================================================

// TestInsecureVault_StoresAndReveals verifies the plain-memory vault.
//
// # Description
//
// Exercises the insecure implementation directly so coverage does not
// depend on the CI host's mlock limits.
func TestInsecureVault_StoresAndReveals(t *testing.T) {
	v := newInsecureVault()
	defer v.Purge()

	err := v.Set(KeyOpenAIKey, []byte("sk-test"))
	require.NoError(t, err, "Set should succeed")

	assert.True(t, v.Equal(KeyOpenAIKey, []byte("sk-test")))
	assert.False(t, v.Equal(KeyOpenAIKey, []byte("sk-other")))

	out, err := v.Reveal(KeyOpenAIKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("sk-test"), out)
}

// =============================================================================
// Test: Environment Loading
// =============================================================================

// TestLoadFromEnv verifies env seeding.
//
// # Description
//
// Tests that LoadFromEnv stores exactly the secrets whose env vars are
// set, and skips the rest without error.
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ALEUTIAN_API_KEY", "env-api-key")
	t.Setenv("INFLUXDB_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "")

	v := newTestVault(t)
	defer v.Purge()

	loaded := LoadFromEnv(v)

	assert.Equal(t, 1, loaded, "exactly one secret should load")
	assert.True(t, v.Has(KeyAPIKey), "API key should be stored")
	assert.True(t, v.Equal(KeyAPIKey, []byte("env-api-key")))
	assert.False(t, v.Has(KeyInfluxToken), "unset secrets should be skipped")
	assert.False(t, v.Has(KeyOpenAIKey), "unset secrets should be skipped")
}

// TestLoadFromEnv_AllSet verifies multiple secrets load together.
func TestLoadFromEnv_AllSet(t *testing.T) {
	t.Setenv("ALEUTIAN_API_KEY", "k1")
	t.Setenv("INFLUXDB_TOKEN", "k2")
	t.Setenv("OPENAI_API_KEY", "k3")

	v := newTestVault(t)
	defer v.Purge()

	loaded := LoadFromEnv(v)

	assert.Equal(t, 3, loaded, "all three secrets should load")
	assert.True(t, v.Equal(KeyAPIKey, []byte("k1")))
	assert.True(t, v.Equal(KeyInfluxToken, []byte("k2")))
	assert.True(t, v.Equal(KeyOpenAIKey, []byte("k3")))
}

// =============================================================================
// Test: mlock Probe
// =============================================================================

// TestIsMlockAvailable_Stable verifies the probe result is cached.
//
// # Description
//
// The rlimit is read once per process, so every caller must see the same
// verdict and the same limit.
func TestIsMlockAvailable_Stable(t *testing.T) {
	okFirst, limitFirst := IsMlockAvailable()

	for i := 0; i < 3; i++ {
		ok, limit := IsMlockAvailable()
		assert.Equal(t, okFirst, ok, "probe verdict changed between calls")
		assert.Equal(t, limitFirst, limit, "probed limit changed between calls")
	}
}

// =============================================================================
// Test Helpers
// =============================================================================

// newTestVault builds a vault for the test to use, taking the plain-memory
// implementation when the host's mlock limit rules out the locked one.
func newTestVault(t *testing.T) Vault {
	t.Helper()

	v, err := NewVault()
	if err == nil {
		return v
	}

	t.Logf("locked memory unavailable (%v), using plain-memory vault", err)
	return newInsecureVault()
}
