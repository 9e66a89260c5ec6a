package encryption

import (
	"bytes"
	"fmt"

	"fhirsync/internal/fhir"
)

// Sealer adapts an Encryptor and an unlocked DecryptionContext to the
// byte-slice interface the resource store seals payloads with.
type Sealer struct {
	enc fhir.Encryptor
	dec fhir.DecryptionContext
}

var _ fhir.PayloadSealer = (*Sealer)(nil)

// NewSealer creates a Sealer. dec may be nil for a write-only sealer; Open then fails.
func NewSealer(enc fhir.Encryptor, dec fhir.DecryptionContext) *Sealer {
	return &Sealer{enc: enc, dec: dec}
}

func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := s.enc.Encrypt(bytes.NewReader(plaintext), &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if s.dec == nil {
		return nil, fmt.Errorf("database is locked: no decryption key")
	}
	var out bytes.Buffer
	if err := s.dec.Decrypt(bytes.NewReader(sealed), &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
