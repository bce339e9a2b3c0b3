package session

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

var ErrSealedSession = errors.New("session file cannot be opened with the configured key")

type fileEnvelope struct {
	Values map[string]string `json:"values,omitempty"`
	Salt   []byte            `json:"salt,omitempty"`
	Sealed []byte            `json:"sealed,omitempty"`
}

// FileStore persists the session as a JSON file. With a passphrase the
// values are sealed with secretbox under a scrypt-derived key.
type FileStore struct {
	mu     sync.Mutex
	path   string
	key    *[32]byte
	salt   []byte
	values map[string]string
}

func NewFileStore(path string, passphrase string) (*FileStore, error) {
	store := &FileStore{path: path, values: make(map[string]string)}

	var envelope fileEnvelope
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read session file: %w", err)
	default:
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("decode session file: %w", err)
		}
	}

	if passphrase != "" {
		store.salt = envelope.Salt
		if len(store.salt) == 0 {
			store.salt = make([]byte, 16)
			if _, err := io.ReadFull(rand.Reader, store.salt); err != nil {
				return nil, fmt.Errorf("generate salt: %w", err)
			}
		}
		key, err := deriveKey(passphrase, store.salt)
		if err != nil {
			return nil, err
		}
		store.key = key
	}

	switch {
	case len(envelope.Sealed) > 0:
		if store.key == nil {
			return nil, ErrSealedSession
		}
		values, err := open(envelope.Sealed, store.key)
		if err != nil {
			return nil, err
		}
		store.values = values
	case envelope.Values != nil:
		store.values = envelope.Values
	}

	return store, nil
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.values[key]
	return val, ok, nil
}

func (s *FileStore) Set(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.values[key]
	s.values[key] = value
	if err := s.persist(); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.values[key]
	if !ok {
		return nil
	}
	delete(s.values, key)
	if err := s.persist(); err != nil {
		s.values[key] = prev
		return err
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

// persist replaces the file atomically. Callers hold s.mu.
func (s *FileStore) persist() error {
	envelope := fileEnvelope{Values: s.values}
	if s.key != nil {
		sealed, err := seal(s.values, s.key)
		if err != nil {
			return err
		}
		envelope = fileEnvelope{Salt: s.salt, Sealed: sealed}
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create session temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

func deriveKey(passphrase string, salt []byte) (*[32]byte, error) {
	derived, err := scrypt.Key([]byte(passphrase), salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	var key [32]byte
	copy(key[:], derived)
	return &key, nil
}

func seal(values map[string]string, key *[32]byte) ([]byte, error) {
	plain, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, key), nil
}

func open(sealed []byte, key *[32]byte) (map[string]string, error) {
	if len(sealed) < 24 {
		return nil, ErrSealedSession
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, key)
	if !ok {
		return nil, ErrSealedSession
	}
	values := make(map[string]string)
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, fmt.Errorf("decode sealed session: %w", err)
	}
	return values, nil
}
