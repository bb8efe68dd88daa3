// Package credman stores named secrets encrypted with a master key held
// by the keyring package.
package credman

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/energylab/metronom/pkg/credman/encryption"
	"github.com/energylab/metronom/pkg/credman/types"
)

var ErrSecretNotFound = errors.New("secret not found")

// SecretManager keeps secrets in a gob-encoded file. Values stay
// encrypted in memory and on disk; Get decrypts on demand.
type SecretManager struct {
	mu       sync.Mutex
	filePath string
	key      []byte
	secrets  map[string]*types.Secret
}

// NewSecretManager loads the secrets at filePath. A missing file is an
// empty store.
func NewSecretManager(filePath string, key []byte) (*SecretManager, error) {
	sm := &SecretManager{
		filePath: filePath,
		key:      key,
		secrets:  make(map[string]*types.Secret),
	}
	if err := sm.load(); err != nil {
		return nil, err
	}
	return sm, nil
}

func (sm *SecretManager) load() error {
	data, err := os.ReadFile(sm.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&sm.secrets); err != nil {
		return fmt.Errorf("decode %s: %w", sm.filePath, err)
	}
	return nil
}

func (sm *SecretManager) save() error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sm.secrets); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(sm.filePath), 0755); err != nil {
		return err
	}
	tmp := sm.filePath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return err
	}
	return os.Rename(tmp, sm.filePath)
}

// Set stores or replaces the secret called name.
func (sm *SecretManager) Set(name, value string) error {
	sealed, err := encryption.EncryptValue(value, sm.key)
	if err != nil {
		return err
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.secrets[name] = &types.Secret{Name: name, Value: string(sealed), UpdatedAt: time.Now()}
	return sm.save()
}

// Get returns the decrypted value of name.
func (sm *SecretManager) Get(name string) (string, error) {
	sm.mu.Lock()
	s, ok := sm.secrets[name]
	sm.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	plain, err := encryption.DecryptValue([]byte(s.Value), sm.key)
	if err != nil {
		return "", fmt.Errorf("decrypt %s: %w", name, err)
	}
	return string(plain), nil
}

// Delete removes name.
func (sm *SecretManager) Delete(name string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.secrets[name]; !ok {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	delete(sm.secrets, name)
	return sm.save()
}

// Names lists the stored secret names in order.
func (sm *SecretManager) Names() []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	names := make([]string, 0, len(sm.secrets))
	for n := range sm.secrets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
