package export

import (
	"context"
	"sync"
)

// MemoryAuditLog keeps audit entries in memory. Suitable for tests and
// single-process deployments.
type MemoryAuditLog struct {
	mu      sync.RWMutex
	entries []AuditEntry
}

func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a snapshot of the recorded entries in order.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]AuditEntry(nil), l.entries...)
}
