package infra

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	keyFileName = ".store.key"
	keySize     = 32 // 256-bit SQLCipher key
)

// KeyFile holds the store encryption key in a 0600 file next to the database.
type KeyFile struct {
	path string
}

// NewKeyFile returns the key file for a data directory.
func NewKeyFile(dataDir string) *KeyFile {
	return &KeyFile{path: filepath.Join(dataDir, keyFileName)}
}

// Path returns the key file location.
func (k *KeyFile) Path() string {
	return k.path
}

// Exists reports whether a key has been written.
func (k *KeyFile) Exists() bool {
	_, err := os.Stat(k.path)
	return err == nil
}

// Load reads and validates the stored key.
func (k *KeyFile) Load() ([]byte, error) {
	encoded, err := os.ReadFile(k.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	return key, nil
}

// Save writes key with owner-only permissions.
func (k *KeyFile) Save(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	if err := os.MkdirAll(filepath.Dir(k.path), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(k.path, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// LoadOrCreate returns the existing key, generating and saving one on first use.
func (k *KeyFile) LoadOrCreate() ([]byte, error) {
	if k.Exists() {
		return k.Load()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := k.Save(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateKey creates a new random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// OpenStore opens the encrypted store in dataDir, creating its key on first use.
func OpenStore(dataDir string) (*Store, error) {
	key, err := NewKeyFile(dataDir).LoadOrCreate()
	if err != nil {
		return nil, err
	}
	return NewStore(dataDir, key)
}
