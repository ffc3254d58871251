package storage

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
)

// ErrQuotaExceeded is returned when a write would push a value past the sync
// tier's capacity. Callers are expected to swallow it and keep the local tier
// authoritative.
var ErrQuotaExceeded = errors.New("sync storage quota exceeded")

// DefaultSyncQuotaBytes mirrors the per-item capacity of browser sync
// storage, the tier this store models.
const DefaultSyncQuotaBytes = 8192

// SyncStore is a Store with a hard per-value size cap. It models the
// small-capacity, eventually cross-device-consistent sync tier: oversized
// writes are rejected rather than truncated.
type SyncStore struct {
	store *Store
	quota int
}

// NewSyncStore creates a capacity-limited store rooted at dir.
// quota <= 0 selects DefaultSyncQuotaBytes.
func NewSyncStore(fsys afero.Fs, dir string, quota int) (*SyncStore, error) {
	store, err := NewStore(fsys, dir)
	if err != nil {
		return nil, err
	}
	if quota <= 0 {
		quota = DefaultSyncQuotaBytes
	}
	return &SyncStore{store: store, quota: quota}, nil
}

// Get decodes the blob stored under key into v.
func (s *SyncStore) Get(key string, v any) (bool, error) {
	return s.store.Get(key, v)
}

// Put stores v under key, rejecting values whose encoded size exceeds the
// quota with ErrQuotaExceeded.
func (s *SyncStore) Put(key string, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	if len(data) > s.quota {
		return fmt.Errorf("%w: %d bytes > %d", ErrQuotaExceeded, len(data), s.quota)
	}
	return s.store.putBytes(key, data)
}

// Delete removes the blob stored under key.
func (s *SyncStore) Delete(key string) error {
	return s.store.Delete(key)
}
