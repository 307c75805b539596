//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
)

const (
	defaultDirPerms  = 0700
	defaultFilePerms = 0600
	recordSuffix     = ".rec"
)

// fileDir implements a directory of identity keyed record files.
// Records are written to a temporary file and renamed into place so
// readers never see partial records.
type fileDir struct {
	mu     sync.RWMutex
	root   string
	closed bool
}

func newFileDir(root string) (*fileDir, error) {
	if root == "" {
		return nil, errors.New("store: root directory required")
	}
	if err := os.MkdirAll(root, defaultDirPerms); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", root, err)
	}
	return &fileDir{
		root: root,
	}, nil
}

func (f *fileDir) path(id uint64) string {
	return filepath.Join(f.root, fmt.Sprintf("%016x%s", id, recordSuffix))
}

func (f *fileDir) write(id uint64, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	tmp, err := os.CreateTemp(f.root, ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(name, defaultFilePerms)
	}
	if err == nil {
		err = os.Rename(name, f.path(id))
	}
	if err != nil {
		os.Remove(name)
		return fmt.Errorf("store: write %d: %w", id, err)
	}
	return nil
}

func (f *fileDir) read(id uint64) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrClosed
	}
	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (f *fileDir) ids() ([]uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrClosed
	}
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, err
	}
	var result []uint64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(name, recordSuffix),
			16, 64)
		if err != nil {
			continue
		}
		result = append(result, id)
	}
	slices.Sort(result)
	return result, nil
}

func (f *fileDir) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// FileLegacy implements a file backed legacy store.
type FileLegacy struct {
	dir *fileDir
}

// NewFileLegacy creates a legacy store in the root directory.
func NewFileLegacy(root string) (*FileLegacy, error) {
	dir, err := newFileDir(root)
	if err != nil {
		return nil, err
	}
	return &FileLegacy{
		dir: dir,
	}, nil
}

// Put stores the record.
func (f *FileLegacy) Put(ctx context.Context, record LegacyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.dir.write(record.ID, MarshalLegacy(record))
}

// ReadRange implements LegacyStore.ReadRange.
func (f *FileLegacy) ReadRange(ctx context.Context, start, end uint64) (
	[]LegacyRecord, error) {

	ids, err := f.dir.ids()
	if err != nil {
		return nil, err
	}
	var result []LegacyRecord
	for _, id := range ids {
		if id < start || id >= end {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := f.dir.read(id)
		if err != nil {
			return nil, err
		}
		record, err := UnmarshalLegacy(data)
		if err != nil {
			return nil, fmt.Errorf("store: legacy record %d: %w", id, err)
		}
		result = append(result, record)
	}
	return result, nil
}

// IDs implements LegacyStore.IDs.
func (f *FileLegacy) IDs(ctx context.Context, start, end uint64) (
	[]uint64, error) {

	ids, err := f.dir.ids()
	if err != nil {
		return nil, err
	}
	var result []uint64
	for _, id := range ids {
		if id >= start && id < end {
			result = append(result, id)
		}
	}
	return result, nil
}

// Count implements LegacyStore.Count.
func (f *FileLegacy) Count(ctx context.Context) (uint64, error) {
	ids, err := f.dir.ids()
	if err != nil {
		return 0, err
	}
	return uint64(len(ids)), nil
}

// Close closes the store.
func (f *FileLegacy) Close() error {
	return f.dir.close()
}

// FileReplicated implements a file backed replicated store.
type FileReplicated struct {
	dir *fileDir
}

// NewFileReplicated creates a replicated store in the root
// directory.
func NewFileReplicated(root string) (*FileReplicated, error) {
	dir, err := newFileDir(root)
	if err != nil {
		return nil, err
	}
	return &FileReplicated{
		dir: dir,
	}, nil
}

// Upsert implements ReplicatedStore.Upsert.
func (f *FileReplicated) Upsert(ctx context.Context,
	record ReplicatedRecord) error {

	if err := ctx.Err(); err != nil {
		return err
	}
	return f.dir.write(record.ID, MarshalReplicated(record))
}

// Read implements ReplicatedStore.Read.
func (f *FileReplicated) Read(ctx context.Context, id uint64) (
	ReplicatedRecord, error) {

	data, err := f.dir.read(id)
	if err != nil {
		return ReplicatedRecord{}, err
	}
	record, err := UnmarshalReplicated(data)
	if err != nil {
		return ReplicatedRecord{}, fmt.Errorf("store: replicated record %d: %w",
			id, err)
	}
	return record, nil
}

// IDs implements ReplicatedStore.IDs.
func (f *FileReplicated) IDs(ctx context.Context) ([]uint64, error) {
	return f.dir.ids()
}

// Close closes the store.
func (f *FileReplicated) Close() error {
	return f.dir.close()
}
