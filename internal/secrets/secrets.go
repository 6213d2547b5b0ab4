// Package secrets stores the remote API key encrypted at rest. A random
// 32-byte master key lives next to the data directory with 0600 permissions;
// the API key itself is sealed with NaCl secretbox. Losing the master key
// just means re-entering the API key.
package secrets

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keyFileName    = "master.key"
	secretFileName = "apikey.enc"

	keySize   = 32
	nonceSize = 24
)

// Manager reads and writes the encrypted API key under a data directory.
type Manager struct {
	dir string
}

// New creates a manager rooted at dir. The directory is created on first
// write, not here.
func New(dir string) *Manager {
	return &Manager{dir: dir}
}

// APIKey returns the decrypted API key. The second return is false when no
// key has been stored yet; decryption failures also report false so a
// corrupt file degrades to "not configured" instead of blocking startup.
func (m *Manager) APIKey() (string, bool) {
	masterKey, err := m.readMasterKey()
	if err != nil {
		return "", false
	}

	sealed, err := os.ReadFile(filepath.Join(m.dir, secretFileName))
	if err != nil {
		return "", false
	}
	if len(sealed) < nonceSize {
		log.Warn().Msg("stored api key is truncated, ignoring")
		return "", false
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, masterKey)
	if !ok {
		log.Warn().Msg("stored api key failed to decrypt, ignoring")
		return "", false
	}
	return string(plain), true
}

// Store encrypts and writes the API key, generating a master key on first
// use. Both files are written 0600.
func (m *Manager) Store(apiKey string) error {
	if apiKey == "" {
		return errors.New("api key cannot be empty")
	}

	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return fmt.Errorf("create secrets directory: %w", err)
	}

	masterKey, err := m.readMasterKey()
	if err != nil {
		masterKey, err = m.generateMasterKey()
		if err != nil {
			return err
		}
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(apiKey), &nonce, masterKey)
	path := filepath.Join(m.dir, secretFileName)
	if err := os.WriteFile(path, sealed, 0600); err != nil {
		return fmt.Errorf("write api key: %w", err)
	}

	log.Info().Str("path", path).Msg("api key stored")
	return nil
}

// Delete removes the stored API key. The master key is kept so a future
// Store reuses it. Missing files are not an error.
func (m *Manager) Delete() error {
	err := os.Remove(filepath.Join(m.dir, secretFileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove api key: %w", err)
	}
	return nil
}

// Configured reports whether an API key is stored and decryptable.
func (m *Manager) Configured() bool {
	_, ok := m.APIKey()
	return ok
}

func (m *Manager) readMasterKey() (*[keySize]byte, error) {
	raw, err := os.ReadFile(filepath.Join(m.dir, keyFileName))
	if err != nil {
		return nil, err
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("master key has wrong size %d", len(raw))
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &key, nil
}

func (m *Manager) generateMasterKey() (*[keySize]byte, error) {
	var key [keySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, keyFileName), key[:], 0600); err != nil {
		return nil, fmt.Errorf("write master key: %w", err)
	}
	return &key, nil
}
