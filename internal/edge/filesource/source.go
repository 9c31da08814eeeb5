// Package filesource keeps each owner's clipboard in a file under one
// directory: <dir>/<owner>.clip. Creating <dir>/<owner>.nosync pauses sync for
// that owner.
package filesource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/filex"
)

const (
	clipExt   = ".clip"
	noSyncExt = ".nosync"
)

type Source struct {
	dir string
}

// New creates dir if needed.
func New(dir string) (*Source, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &Source{dir: abs}, nil
}

func (s *Source) Dir() string { return s.dir }

func (s *Source) path(owner, ext string) (string, error) {
	if owner == "" || owner != filepath.Base(owner) || strings.HasPrefix(owner, ".") {
		return "", fmt.Errorf("owner %q: %w", owner, common.ErrValidation)
	}
	return filepath.Join(s.dir, owner+ext), nil
}

// Snapshot returns the owner's clipboard, or nil when there is none.
func (s *Source) Snapshot(_ context.Context, owner string) ([]byte, error) {
	p, err := s.path(owner, clipExt)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read clipboard: %w", err)
	}
	return data, nil
}

// Apply replaces the owner's clipboard.
func (s *Source) Apply(_ context.Context, owner string, data []byte) error {
	p, err := s.path(owner, clipExt)
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(p, data, 0o600)
}

// Online is true for every owner; an edge node hosts whoever it was told to.
func (s *Source) Online(string) bool { return true }

// CanSync is false while a .nosync marker exists for owner.
func (s *Source) CanSync(owner string) bool {
	p, err := s.path(owner, noSyncExt)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return errors.Is(err, fs.ErrNotExist)
}

// Owners lists the owners that have a clipboard file.
func (s *Source) Owners() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), clipExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), clipExt))
	}
	return out, nil
}
