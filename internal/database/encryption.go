package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"satsync/internal/constants"

	"golang.org/x/crypto/pbkdf2"
)

const (
	secretKeySize    = 32
	secretIterations = 100000
	// sealedPrefix marks a sealed mailbox password. Values without it were
	// stored before encryption was enabled and are read as plain text.
	sealedPrefix = "sealed:v1:"
)

// secretBox seals mailbox passwords at rest with AES-256-GCM. A box without
// an AEAD stores passwords as given.
type secretBox struct {
	aead cipher.AEAD
}

// newSecretBox reads SATSYNC_ENABLE_ENCRYPTION and SATSYNC_ENCRYPTION_SECRET
func newSecretBox() (*secretBox, error) {
	if os.Getenv(constants.EnvEnableEncryption) != "true" {
		return &secretBox{}, nil
	}

	secret := os.Getenv(constants.EnvEncryptionSecret)
	if len(secret) < 32 {
		return nil, fmt.Errorf("%s must be set to at least 32 characters when encryption is enabled", constants.EnvEncryptionSecret)
	}
	key := pbkdf2.Key([]byte(secret), []byte(constants.EncryptionSalt), secretIterations, secretKeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &secretBox{aead: aead}, nil
}

func (b *secretBox) enabled() bool {
	return b.aead != nil
}

// Seal returns the stored form of a password
func (b *secretBox) Seal(password string) (string, error) {
	if !b.enabled() || password == "" {
		return password, nil
	}
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(password), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. A sealed value read without a key is an error.
func (b *secretBox) Open(stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, sealedPrefix)
	if !ok {
		return stored, nil
	}
	if !b.enabled() {
		return "", fmt.Errorf("mailbox password is sealed but %s is not enabled", constants.EnvEnableEncryption)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed password: %w", err)
	}
	n := b.aead.NonceSize()
	if len(data) < n {
		return "", fmt.Errorf("sealed password too short")
	}
	plain, err := b.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to open sealed password: %w", err)
	}
	return string(plain), nil
}
