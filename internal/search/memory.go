package search

import (
	"context"
	"sync"
)

// MemoryIndex is an in-process Index used for tests and single-node
// deployments.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: map[string]Document{}}
}

func (i *MemoryIndex) Upsert(_ context.Context, doc Document) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.docs[doc.ID] = doc
	return nil
}

func (i *MemoryIndex) Delete(_ context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.docs, id)
	return nil
}

func (i *MemoryIndex) Get(_ context.Context, id string) (Document, bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	doc, ok := i.docs[id]
	return doc, ok, nil
}

// Len reports the number of indexed documents.
func (i *MemoryIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}
