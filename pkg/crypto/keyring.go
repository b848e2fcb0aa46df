package crypto

import (
	"encoding/base64"
	"fmt"
	"os"
	"sync"
)

// EnvKeyPrefix names the environment variables holding base64 keys:
// MASTER_ENCRYPTION_KEY is version 1, MASTER_ENCRYPTION_KEY_V2 version 2, ...
const EnvKeyPrefix = "MASTER_ENCRYPTION_KEY"

const maxKeyVersion = 10

// Keyring holds every loaded key version and seals with the newest one.
type Keyring struct {
	mu             sync.RWMutex
	sealers        map[int]*sealer
	current        int
	allowPlaintext bool
}

// NewKeyring builds a keyring from base64 keys indexed by version.
// allowPlaintext lets Open pass unsealed credentials through, which is only
// meant for local development and dry runs.
func NewKeyring(keys map[int]string, allowPlaintext bool) (*Keyring, error) {
	kr := &Keyring{sealers: make(map[int]*sealer), allowPlaintext: allowPlaintext}
	for version, encoded := range keys {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode key v%d: %w", version, err)
		}
		s, err := newSealer(raw, version)
		if err != nil {
			return nil, fmt.Errorf("key v%d: %w", version, err)
		}
		kr.sealers[version] = s
		if version > kr.current {
			kr.current = version
		}
	}
	return kr, nil
}

// KeyringFromEnv loads MASTER_ENCRYPTION_KEY[_Vn] from the environment.
// A missing primary key yields an empty keyring.
func KeyringFromEnv(allowPlaintext bool) (*Keyring, error) {
	keys := make(map[int]string)
	if v := os.Getenv(EnvKeyPrefix); v != "" {
		keys[1] = v
	}
	for version := 2; version <= maxKeyVersion; version++ {
		if v := os.Getenv(fmt.Sprintf("%s_V%d", EnvKeyPrefix, version)); v != "" {
			keys[version] = v
		}
	}
	return NewKeyring(keys, allowPlaintext)
}

// CurrentVersion is the version new values are sealed with, 0 when empty.
func (kr *Keyring) CurrentVersion() int {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	return kr.current
}

// Seal encrypts plaintext with the current key.
func (kr *Keyring) Seal(plaintext string) (string, error) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	s, ok := kr.sealers[kr.current]
	if !ok {
		return "", ErrNoKeys
	}
	return s.seal(plaintext)
}

// Open decrypts a sealed value with the key version it names.
func (kr *Keyring) Open(value string) (string, error) {
	if !IsSealed(value) {
		if kr.allowPlaintext {
			return value, nil
		}
		return "", ErrPlaintextRefused
	}
	version, payload, err := splitSealed(value)
	if err != nil {
		return "", err
	}
	kr.mu.RLock()
	s, ok := kr.sealers[version]
	kr.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: v%d", ErrUnknownVersion, version)
	}
	return s.open(payload)
}

// Rotate re-seals value with the current key.
func (kr *Keyring) Rotate(value string) (string, error) {
	plain, err := kr.Open(value)
	if err != nil {
		return "", fmt.Errorf("open for rotation: %w", err)
	}
	return kr.Seal(plain)
}
