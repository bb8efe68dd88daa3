package keyring

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	keyFileName = "secrets.key"
	keyFileMode = 0600
	keySize     = 32
)

// FileKeyStore keeps the key hex-encoded in a 0600 file under the config
// directory. It is used when the system keyring is unavailable.
type FileKeyStore struct {
	fs   afero.Fs
	dir  string
	rand io.Reader
}

var _ KeyStore = (*FileKeyStore)(nil)

func NewFileKeyStore(configDir string) *FileKeyStore {
	return NewFileKeyStoreFs(afero.NewOsFs(), configDir)
}

// NewFileKeyStoreFs keeps the key file of dir on fs.
func NewFileKeyStoreFs(fs afero.Fs, dir string) *FileKeyStore {
	return &FileKeyStore{fs: fs, dir: dir, rand: rand.Reader}
}

func (f *FileKeyStore) path() string {
	return filepath.Join(f.dir, keyFileName)
}

// SetKey generates a new key and replaces the key file atomically.
func (f *FileKeyStore) SetKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(f.rand, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := f.fs.MkdirAll(f.dir, 0755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := afero.TempFile(f.fs, f.dir, ".secrets.key.tmp.*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	_, err = tmp.WriteString(hex.EncodeToString(key))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = f.fs.Chmod(name, keyFileMode)
	}
	if err == nil {
		err = f.fs.Rename(name, f.path())
	}
	if err != nil {
		_ = f.fs.Remove(name)
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return key, nil
}

// GetKey reads and decodes the key file.
func (f *FileKeyStore) GetKey() ([]byte, error) {
	data, err := afero.ReadFile(f.fs, f.path())
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("invalid key format: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key length: expected %d, got %d", keySize, len(key))
	}
	return key, nil
}

func (f *FileKeyStore) DeleteKey() error {
	return f.fs.Remove(f.path())
}
