package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	minSecretLength = 32
	keyLength       = 32
)

// KeyManager derives the database passphrase and the field-encryption key
// from the configured secrets. Each key is bound to its purpose through the
// HKDF info string.
type KeyManager struct {
	dbKey  []byte
	appKey []byte
}

func NewKeyManager(dbSecret, appSecret string) (*KeyManager, error) {
	if len(dbSecret) < minSecretLength {
		return nil, fmt.Errorf("database secret too short (minimum %d characters)", minSecretLength)
	}
	if len(appSecret) < minSecretLength {
		return nil, fmt.Errorf("application secret too short (minimum %d characters)", minSecretLength)
	}

	dbKey, err := deriveKey(dbSecret, "serendib/sqlcipher")
	if err != nil {
		return nil, err
	}
	appKey, err := deriveKey(appSecret, "serendib/field-encryption")
	if err != nil {
		return nil, err
	}

	return &KeyManager{
		dbKey:  dbKey,
		appKey: appKey,
	}, nil
}

// DBKey returns the SQLCipher passphrase, hex encoded
func (km *KeyManager) DBKey() string {
	return hex.EncodeToString(km.dbKey)
}

// AppKey returns the 32-byte AES key for contact-field encryption
func (km *KeyManager) AppKey() []byte {
	return km.appKey
}

func deriveKey(secret, info string) ([]byte, error) {
	key := make([]byte, keyLength)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}
