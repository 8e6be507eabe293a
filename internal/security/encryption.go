package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// sealedPrefix versions the stored format.
const sealedPrefix = "v1."

var ErrSealedValue = errors.New("malformed sealed value")

// FieldEncryptor seals contact details (mobile, email) before they reach
// the database. Each value is bound to its column through the GCM
// additional data, so a sealed mobile number does not open as an email.
// Empty values stay empty so "not provided" survives a round trip.
type FieldEncryptor struct {
	aead cipher.AEAD
}

// NewFieldEncryptor builds an AES-256-GCM encryptor from a 32-byte key
func NewFieldEncryptor(key []byte) (*FieldEncryptor, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("field key must be %d bytes, got %d", keyLength, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &FieldEncryptor{aead: aead}, nil
}

// Seal encrypts value for column and returns "v1." + base64(nonce||ciphertext)
func (fe *FieldEncryptor) Seal(column, value string) (string, error) {
	if value == "" {
		return "", nil
	}

	nonce := make([]byte, fe.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := fe.aead.Seal(nonce, nonce, []byte(value), []byte(column))
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. It fails when sealed was produced for another column.
func (fe *FieldEncryptor) Open(column, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	encoded, ok := strings.CutPrefix(sealed, sealedPrefix)
	if !ok {
		return "", ErrSealedValue
	}
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedValue, err)
	}

	n := fe.aead.NonceSize()
	if len(data) < n+fe.aead.Overhead() {
		return "", ErrSealedValue
	}

	value, err := fe.aead.Open(nil, data[:n], data[n:], []byte(column))
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", column, err)
	}
	return string(value), nil
}
