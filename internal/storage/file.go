package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	logx "stockbot/pkg/logx"
)

// fileStore keeps state in memory and rewrites <path> as a JSON snapshot after
// every change (write to <path>.tmp, then rename).
type fileStore struct {
	*memBackend
	fs   afero.Fs
	path string
	log  logx.Logger
}

func openFile(cfg Config, log logx.Logger) (backend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{memBackend: newMemBackend(), fs: fs, path: path, log: log}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.onChange = s.persist
	return s, nil
}

func (s *fileStore) load() error {
	b, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}
	if snap.Commands == nil {
		snap.Commands = map[string][]string{}
	}
	s.state = snap
	return nil
}

func (s *fileStore) persist(snap snapshot) error {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0o600); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		s.log.Warn("snapshot rename failed", logx.String("path", s.path), logx.Err(err))
		return err
	}
	return nil
}
