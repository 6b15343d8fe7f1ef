// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

// Package secrets is the host-supplied secured key-value store. Plugins
// never read it directly: the host injects configured values into the
// argument payload under the reserved secrets field, and only for the
// secret ids a tool's manifest declares.
package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// OWASP-recommended argon2id parameters for key derivation.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
)

// ErrEmptyPassphrase is returned when opening a store with no passphrase.
var ErrEmptyPassphrase = oops.Code("SECRETS_EMPTY_PASSPHRASE").Errorf("passphrase cannot be empty")

// sealedFile is the on-disk envelope.
type sealedFile struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

const sealedVersion = 1

// Store is a sealed file of secret id to value mappings. Values are
// encrypted with chacha20poly1305 under a key derived from the host
// passphrase with argon2id.
//
// Store is safe for concurrent use.
type Store struct {
	path       string
	passphrase []byte
	mu         sync.Mutex
}

// Open creates a store handle. The file need not exist yet; a missing file
// reads as an empty store.
func Open(path string, passphrase []byte) (*Store, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	return &Store{path: path, passphrase: passphrase}, nil
}

// Load reads and unseals all secrets.
func (s *Store) Load() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, oops.Code("SECRETS_READ_FAILED").With("path", s.path).Wrap(err)
	}

	var sealed sealedFile
	if err := json.Unmarshal(data, &sealed); err != nil {
		return nil, oops.Code("SECRETS_CORRUPT").With("path", s.path).Hint("sealed file is not valid JSON").Wrap(err)
	}
	if sealed.Version != sealedVersion {
		return nil, oops.Code("SECRETS_CORRUPT").With("version", sealed.Version).Errorf("unsupported sealed file version")
	}

	salt, err := base64.RawStdEncoding.DecodeString(sealed.Salt)
	if err != nil {
		return nil, oops.Code("SECRETS_CORRUPT").Hint("invalid salt encoding").Wrap(err)
	}
	nonce, err := base64.RawStdEncoding.DecodeString(sealed.Nonce)
	if err != nil {
		return nil, oops.Code("SECRETS_CORRUPT").Hint("invalid nonce encoding").Wrap(err)
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(sealed.Ciphertext)
	if err != nil {
		return nil, oops.Code("SECRETS_CORRUPT").Hint("invalid ciphertext encoding").Wrap(err)
	}

	aead, err := s.aead(salt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, oops.Code("SECRETS_CORRUPT").Errorf("nonce length %d, want %d", len(nonce), aead.NonceSize())
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, oops.Code("SECRETS_UNSEAL_FAILED").Hint("wrong passphrase or tampered file").Wrap(err)
	}

	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, oops.Code("SECRETS_CORRUPT").Wrap(err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return values, nil
}

// Save seals and writes the full secret mapping, replacing the file
// contents. A fresh salt and nonce are generated on every save.
func (s *Store) Save(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(values)
}

func (s *Store) save(values map[string]string) error {
	if values == nil {
		values = map[string]string{}
	}

	plaintext, err := json.Marshal(values)
	if err != nil {
		return oops.Code("SECRETS_ENCODE_FAILED").Wrap(err)
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return oops.Code("SECRETS_SALT_FAILED").Wrap(err)
	}

	aead, err := s.aead(salt)
	if err != nil {
		return err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return oops.Code("SECRETS_NONCE_FAILED").Wrap(err)
	}

	sealed := sealedFile{
		Version:    sealedVersion,
		Salt:       base64.RawStdEncoding.EncodeToString(salt),
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawStdEncoding.EncodeToString(aead.Seal(nil, nonce, plaintext, nil)),
	}

	data, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return oops.Code("SECRETS_ENCODE_FAILED").Wrap(err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return oops.Code("SECRETS_WRITE_FAILED").With("path", s.path).Wrap(err)
	}

	// Write-then-rename so a crash mid-write cannot corrupt the store.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return oops.Code("SECRETS_WRITE_FAILED").With("path", tmp).Wrap(err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return oops.Code("SECRETS_WRITE_FAILED").With("path", s.path).Wrap(err)
	}
	return nil
}

// Set stores one secret value.
func (s *Store) Set(id, value string) error {
	if id == "" {
		return oops.Code("SECRETS_EMPTY_ID").Errorf("secret id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[id] = value
	return s.save(values)
}

// Delete removes one secret. Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := values[id]; !ok {
		return nil
	}
	delete(values, id)
	return s.save(values)
}

func (s *Store) aead(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(s.passphrase, salt, argon2Time, argon2Memory, argon2Threads, chacha20poly1305.KeySize)
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, oops.Code("SECRETS_KEY_FAILED").Wrap(err)
	}
	return a, nil
}
