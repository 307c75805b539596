//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// MemoryLegacy implements an in-memory legacy store.
type MemoryLegacy struct {
	mu      sync.RWMutex
	records map[uint64]LegacyRecord
	closed  bool
}

// NewMemoryLegacy creates a new in-memory legacy store.
func NewMemoryLegacy() *MemoryLegacy {
	return &MemoryLegacy{
		records: make(map[uint64]LegacyRecord),
	}
}

// Put stores the record.
func (m *MemoryLegacy) Put(ctx context.Context, record LegacyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.records[record.ID] = cloneLegacy(record)
	return nil
}

// ReadRange implements LegacyStore.ReadRange.
func (m *MemoryLegacy) ReadRange(ctx context.Context, start, end uint64) (
	[]LegacyRecord, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	var result []LegacyRecord
	for id, record := range m.records {
		if id >= start && id < end {
			result = append(result, cloneLegacy(record))
		}
	}
	slices.SortFunc(result, func(a, b LegacyRecord) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

// IDs implements LegacyStore.IDs.
func (m *MemoryLegacy) IDs(ctx context.Context, start, end uint64) (
	[]uint64, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	var result []uint64
	for id := range m.records {
		if id >= start && id < end {
			result = append(result, id)
		}
	}
	slices.Sort(result)
	return result, nil
}

// Count implements LegacyStore.Count.
func (m *MemoryLegacy) Count(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}
	return uint64(len(m.records)), nil
}

// Close closes the store.
func (m *MemoryLegacy) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	return nil
}

// MemoryReplicated implements an in-memory replicated store.
type MemoryReplicated struct {
	mu      sync.RWMutex
	records map[uint64]ReplicatedRecord
	closed  bool
}

// NewMemoryReplicated creates a new in-memory replicated store.
func NewMemoryReplicated() *MemoryReplicated {
	return &MemoryReplicated{
		records: make(map[uint64]ReplicatedRecord),
	}
}

// Upsert implements ReplicatedStore.Upsert.
func (m *MemoryReplicated) Upsert(ctx context.Context,
	record ReplicatedRecord) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.records[record.ID] = cloneReplicated(record)
	return nil
}

// Read implements ReplicatedStore.Read.
func (m *MemoryReplicated) Read(ctx context.Context, id uint64) (
	ReplicatedRecord, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ReplicatedRecord{}, ErrClosed
	}
	record, ok := m.records[id]
	if !ok {
		return ReplicatedRecord{}, ErrNotFound
	}
	return cloneReplicated(record), nil
}

// IDs implements ReplicatedStore.IDs.
func (m *MemoryReplicated) IDs(ctx context.Context) ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	result := make([]uint64, 0, len(m.records))
	for id := range m.records {
		result = append(result, id)
	}
	slices.Sort(result)
	return result, nil
}

// Close closes the store.
func (m *MemoryReplicated) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	return nil
}
