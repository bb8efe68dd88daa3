// Package keyring keeps the master key of the secret store in the
// operating system keyring, falling back to a key file when no keyring
// service is available.
package keyring

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyStore persists one 32-byte key.
type KeyStore interface {
	SetKey() ([]byte, error)
	GetKey() ([]byte, error)
	DeleteKey() error
}

type Keyring struct {
	AppName  string
	KeyField string
}

var _ KeyStore = (*Keyring)(nil)

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
	randRead      = rand.Read
)

func NewKeyring() *Keyring {
	return &Keyring{
		AppName:  "metronom",
		KeyField: "secrets",
	}
}

func (k *Keyring) SetKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := randRead(key); err != nil {
		return nil, err
	}
	if err := keyringSet(k.AppName, k.KeyField, hex.EncodeToString(key)); err != nil {
		return nil, err
	}
	return key, nil
}

func (k *Keyring) GetKey() ([]byte, error) {
	s, err := keyringGet(k.AppName, k.KeyField)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid key format: %w", err)
	}
	return key, nil
}

func (k *Keyring) DeleteKey() error {
	return keyringDelete(k.AppName, k.KeyField)
}

// ErrNoKeyStore is returned by LoadOrCreate when every store failed.
var ErrNoKeyStore = errors.New("no usable key store")

// LoadOrCreate returns the key held by the first store that has one,
// otherwise creates a key in the first store that accepts it.
func LoadOrCreate(stores ...KeyStore) ([]byte, error) {
	for _, s := range stores {
		if key, err := s.GetKey(); err == nil && len(key) == 32 {
			return key, nil
		}
	}
	var errs []error
	for _, s := range stores {
		key, err := s.SetKey()
		if err == nil {
			return key, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrNoKeyStore, errors.Join(errs...))
}
