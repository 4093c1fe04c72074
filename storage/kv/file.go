package kvstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/loopverse/campus/core"
)

// FileStore keeps every item in a single JSON object on disk.
// Writes go to a temp file that is renamed over the original.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ core.KVStore = (*FileStore)(nil) // interface compliance check

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "creating storage directory")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) load() (map[string]string, error) {
	items := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return items, nil
		}
		return nil, errors.Wrap(err, "reading storage file")
	}
	if len(data) == 0 {
		return items, nil
	}
	if err = json.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrap(err, "decoding storage file")
	}
	return items, nil
}

func (s *FileStore) save(items map[string]string) error {
	data, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "encoding storage file")
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".storage-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "writing temp file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path), "replacing storage file")
}

func (s *FileStore) GetItem(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return "", err
	}
	val, ok := items[key]
	if !ok {
		return "", core.ErrItemNotFound
	}
	return val, nil
}

func (s *FileStore) SetItem(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return err
	}
	items[key] = value
	return s.save(items)
}

func (s *FileStore) RemoveItem(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := items[key]; !ok {
		return nil
	}
	delete(items, key)
	return s.save(items)
}
