package store

import (
	"context"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/razfaz/razfaz/internal/logger"
)

// FileStore keeps one JSON file per document under a data directory.
// Each file holds the body with _id and _rev embedded, as CouchDB returns it.
type FileStore struct {
	mu      sync.Mutex
	dataDir string
}

// NewFileStore creates a FileStore rooted at dataDir, creating it if needed
func NewFileStore(dataDir string) (*FileStore, error) {
	dir, err := ExpandHome(dataDir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating data directory")
	}

	return &FileStore{dataDir: dir}, nil
}

// ExpandHome replaces a leading "~/" with the user's home directory
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "getting home directory")
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
}

// Dir returns the resolved data directory
func (s *FileStore) Dir() string {
	return s.dataDir
}

// path returns the file for id. PathEscape keeps ids from leaving the data dir.
func (s *FileStore) path(id string) string {
	return filepath.Join(s.dataDir, url.PathEscape(id)+".json")
}

func (s *FileStore) Get(_ context.Context, id string) (Document, error) {
	if id == "" {
		return Document{}, ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, _, err := s.read(id)
	return doc, err
}

func (s *FileStore) Put(_ context.Context, doc Document) (string, error) {
	if doc.ID == "" {
		return "", ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists, err := s.read(doc.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if err := checkWrite(doc.ID, current, exists, doc.Rev); err != nil {
		return "", err
	}

	rev := NextRev(current.Rev, doc.Body)
	data, err := mergeMeta(doc.Body, doc.ID, rev)
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(s.path(doc.ID), data); err != nil {
		return "", errors.Wrapf(err, "writing document %s", doc.ID)
	}
	return rev, nil
}

func (s *FileStore) Delete(_ context.Context, id, rev string) error {
	if id == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists, err := s.read(id)
	if err != nil {
		return err
	}
	if err := checkWrite(id, current, exists, rev); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil {
		return errors.Wrapf(err, "removing document %s", id)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// read loads id from disk. Callers hold s.mu.
func (s *FileStore) read(id string) (Document, bool, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Document{}, false, errors.Wrapf(ErrNotFound, "get %s", id)
		}
		return Document{}, false, errors.Wrapf(err, "reading document %s", id)
	}

	doc, err := splitMeta(data)
	if err != nil {
		// Hand the raw bytes up without a revision so callers can see the
		// document is malformed and overwrite or delete it
		logger.Warn("document envelope does not decode", logger.Fields{"id": id, "error": err.Error()})
		return Document{ID: id, Body: data}, true, nil
	}
	doc.ID = id
	return doc, true, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
