package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"locallens/application/ports"
	pkgerrors "locallens/pkg/errors"
)

// FileStore keeps every key in one JSON object on disk, so values must be
// valid JSON. Writes go to a temp file that is renamed over the original.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path, creating its directory.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create storage directory")
	}
	return &FileStore{path: path}, nil
}

var _ ports.KeyValueStore = (*FileStore)(nil)

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return nil, err
	}
	v, ok := values[key]
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = json.RawMessage(append([]byte(nil), value...))
	return s.save(values)
}

func (s *FileStore) load() (map[string]json.RawMessage, error) {
	values := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return values, nil
	}
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("read "+s.path, err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, pkgerrors.Wrapf(err, "corrupt storage file %s", s.path)
	}
	return values, nil
}

func (s *FileStore) save(values map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to encode storage file")
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".locallens-*.tmp")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return pkgerrors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return pkgerrors.Wrap(err, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return pkgerrors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return pkgerrors.NewDatabaseError("replace "+s.path, err)
	}
	return nil
}
