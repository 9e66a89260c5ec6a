package encryption

import (
	"fmt"

	"fhirsync/internal/config"
	"fhirsync/internal/fhir"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (fhir.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}

// UnlockSealer unlocks enc with the passphrase and returns a sealer for the
// encrypted storage mode.
func UnlockSealer(enc fhir.Encryptor, passphrase string) (*Sealer, error) {
	if !enc.IsConfigured() {
		return nil, fmt.Errorf("encryption keys are not set up (run 'fhirsync keys setup')")
	}
	dec, err := enc.Unlock(passphrase)
	if err != nil {
		return nil, fmt.Errorf("unlocking encryption key: %w", err)
	}
	return NewSealer(enc, dec), nil
}
