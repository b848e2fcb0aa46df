// Package crypto seals exchange credentials at rest with AES-256-GCM.
//
// Sealed values look like "ENC[v2]:base64(nonce|ciphertext|tag)" so keys can
// rotate without rewriting stored rows.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	KeySize   = 32
	nonceSize = 12
	prefix    = "ENC[v"
)

var (
	ErrInvalidKey       = errors.New("encryption key must be 32 bytes")
	ErrMalformed        = errors.New("malformed sealed value")
	ErrOpenFailed       = errors.New("sealed value could not be opened")
	ErrUnknownVersion   = errors.New("key version not loaded")
	ErrNoKeys           = errors.New("no encryption keys loaded")
	ErrPlaintextRefused = errors.New("credential is not sealed")
)

type sealer struct {
	aead    cipher.AEAD
	version int
}

func newSealer(key []byte, version int) (*sealer, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &sealer{aead: aead, version: version}, nil
}

func (s *sealer) seal(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return fmt.Sprintf("%s%d]:%s", prefix, s.version, base64.StdEncoding.EncodeToString(out)), nil
}

func (s *sealer) open(payload string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) < nonceSize {
		return "", ErrMalformed
	}
	plain, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrOpenFailed
	}
	return string(plain), nil
}

// IsSealed reports whether v carries the sealed-value prefix.
func IsSealed(v string) bool {
	return strings.HasPrefix(v, prefix)
}

// splitSealed returns the key version and base64 payload of a sealed value.
func splitSealed(v string) (int, string, error) {
	if !IsSealed(v) {
		return 0, "", ErrMalformed
	}
	end := strings.Index(v, "]:")
	if end == -1 {
		return 0, "", ErrMalformed
	}
	var version int
	if _, err := fmt.Sscanf(v[len(prefix):end], "%d", &version); err != nil || version <= 0 {
		return 0, "", ErrMalformed
	}
	return version, v[end+2:], nil
}

// GenerateKey returns a random base64 key suitable for MASTER_ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
