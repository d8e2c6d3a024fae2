// Package doi assigns persistent identifiers when a dataset version is
// published.
package doi

import (
	"context"
	"fmt"
	"sync"
)

// Minter produces a DOI for a dataset version. Minting happens exactly
// once per version, at publication time.
type Minter interface {
	Mint(ctx context.Context, datasetID string, versionNumber int) (string, error)
}

// DefaultPrefix is the reserved example prefix used when no registrar
// prefix is configured.
const DefaultPrefix = "10.5555"

// Local derives DOIs from the dataset identity under a fixed prefix.
// It talks to no registrar and is deterministic, which makes published
// identifiers stable across restarts.
type Local struct {
	prefix string

	mu     sync.Mutex
	minted map[string]string
}

func NewLocal(prefix string) *Local {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Local{prefix: prefix, minted: map[string]string{}}
}

func (l *Local) Mint(_ context.Context, datasetID string, versionNumber int) (string, error) {
	if datasetID == "" {
		return "", fmt.Errorf("mint doi: dataset id is empty")
	}
	key := fmt.Sprintf("%s_%d", datasetID, versionNumber)
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.minted[key]; ok {
		return existing, nil
	}
	value := fmt.Sprintf("%s/%s", l.prefix, key)
	l.minted[key] = value
	return value, nil
}
