package testutil

import (
	"testing"

	"fhirsync/internal/encryption"
	"fhirsync/internal/fhir"
)

// NewTestSealer returns a payload sealer backed by the test encryptor.
func NewTestSealer(t *testing.T) fhir.PayloadSealer {
	t.Helper()
	sealer, err := encryption.UnlockSealer(encryption.NewTestEncryptor(), "")
	if err != nil {
		t.Fatalf("failed to unlock test sealer: %v", err)
	}
	return sealer
}
