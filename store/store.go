//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package store defines the legacy and replicated share stores and
// implements in-memory and file backed versions of them.
package store

import (
	"context"
	"errors"

	"github.com/markkurossi/irismpc/shares"
)

var (
	// ErrClosed is returned when using a closed store.
	ErrClosed = errors.New("store: closed")

	// ErrNotFound is returned when an identity is not found.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidData is returned for malformed records.
	ErrInvalidData = errors.New("store: invalid data")
)

// LegacyRecord holds the legacy shares of one identity. Code and
// Mask hold the Shamir shares of the encoded iris code and mask.
type LegacyRecord struct {
	ID   uint64
	Code []shares.LegacyShare
	Mask []shares.LegacyShare
}

// ReplicatedRecord holds one party's replicated shares of one
// identity.
type ReplicatedRecord struct {
	ID   uint64
	Role shares.Role
	Code shares.Pair
	Mask shares.Pair
}

// LegacyStore is the read interface of the legacy store. Identities
// are serial indices but the store may hold any subset of them.
// ReadRange returns the records of the range [start, end) and IDs
// their identities, both in identity order.
type LegacyStore interface {
	ReadRange(ctx context.Context, start, end uint64) ([]LegacyRecord, error)
	IDs(ctx context.Context, start, end uint64) ([]uint64, error)
	Count(ctx context.Context) (uint64, error)
}

// LegacyWriter writes legacy records.
type LegacyWriter interface {
	Put(ctx context.Context, record LegacyRecord) error
}

// Legacy is a legacy store backend.
type Legacy interface {
	LegacyStore
	LegacyWriter
	Close() error
}

// Replicated is a replicated store backend.
type Replicated interface {
	ReplicatedStore
	Close() error
}

// ReplicatedStore stores one party's replicated records. Upsert
// replaces any existing record of the same identity.
type ReplicatedStore interface {
	Upsert(ctx context.Context, record ReplicatedRecord) error
	Read(ctx context.Context, id uint64) (ReplicatedRecord, error)
	IDs(ctx context.Context) ([]uint64, error)
}

func cloneElements[T any](v []T) []T {
	if v == nil {
		return nil
	}
	result := make([]T, len(v))
	copy(result, v)
	return result
}

func cloneLegacy(r LegacyRecord) LegacyRecord {
	clone := func(s []shares.LegacyShare) []shares.LegacyShare {
		result := make([]shares.LegacyShare, len(s))
		for i, share := range s {
			result[i] = shares.LegacyShare{
				X: share.X,
				Y: cloneElements(share.Y),
			}
		}
		return result
	}
	return LegacyRecord{
		ID:   r.ID,
		Code: clone(r.Code),
		Mask: clone(r.Mask),
	}
}

func cloneReplicated(r ReplicatedRecord) ReplicatedRecord {
	clone := func(p shares.Pair) shares.Pair {
		return shares.Pair{
			Share0: cloneElements(p.Share0),
			Share1: cloneElements(p.Share1),
		}
	}
	return ReplicatedRecord{
		ID:   r.ID,
		Role: r.Role,
		Code: clone(r.Code),
		Mask: clone(r.Mask),
	}
}
