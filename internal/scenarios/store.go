// Package scenarios stores scenario files in the scenarios directory.
package scenarios

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/spf13/afero"
)

var (
	ErrNotFound    = errors.New("scenario not found")
	ErrInvalidName = errors.New("invalid scenario name")
)

// Store keeps one <name>.scenario file per scenario under dir.
type Store struct {
	fs  afero.Fs
	dir string
}

func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

// Name canonicalizes a scenario reference: directories and the
// .scenario suffix are dropped.
func Name(ref string) (string, error) {
	name := metrolib.ScenarioBase(ref)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\;`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, ref)
	}
	return name, nil
}

func (s *Store) file(name string) string {
	return path.Join(s.dir, name+metrolib.ScenarioSuffix)
}

// List returns the stored scenario names in sorted order.
func (s *Store) List() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metrolib.ScenarioSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), metrolib.ScenarioSuffix))
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the text of the scenario ref.
func (s *Store) Read(ref string) (string, error) {
	name, err := Name(ref)
	if err != nil {
		return "", err
	}
	b, err := afero.ReadFile(s.fs, s.file(name))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Write stores text under ref, replacing an existing scenario.
func (s *Store) Write(ref, text string) (string, error) {
	name, err := Name(ref)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return "", err
	}
	tmp := s.file(name) + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, []byte(text), 0644); err != nil {
		return "", err
	}
	if err := s.fs.Rename(tmp, s.file(name)); err != nil {
		_ = s.fs.Remove(tmp)
		return "", err
	}
	return name, nil
}

func (s *Store) Delete(ref string) error {
	name, err := Name(ref)
	if err != nil {
		return err
	}
	err = s.fs.Remove(s.file(name))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return err
}
