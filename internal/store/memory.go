package store

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// MemoryStore keeps documents in a map. It is safe for concurrent use.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]Document
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return Document{}, errors.Wrapf(ErrNotFound, "get %s", id)
	}
	return clone(doc), nil
}

func (m *MemoryStore) Put(_ context.Context, doc Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.docs[doc.ID]
	if err := checkWrite(doc.ID, current, exists, doc.Rev); err != nil {
		return "", err
	}

	doc.Rev = NextRev(current.Rev, doc.Body)
	m.docs[doc.ID] = clone(doc)
	return doc.Rev, nil
}

func (m *MemoryStore) Delete(_ context.Context, id, rev string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.docs[id]
	if !exists {
		return errors.Wrapf(ErrNotFound, "delete %s", id)
	}
	if err := checkWrite(id, current, exists, rev); err != nil {
		return err
	}
	delete(m.docs, id)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Len returns the number of stored documents
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func clone(doc Document) Document {
	doc.Body = append([]byte(nil), doc.Body...)
	return doc
}
