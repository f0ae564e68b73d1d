// Package storage is the binary storage port. Templates, generated documents,
// and signature images live here as opaque blobs addressed by a string ref.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"vellum/pkg/platform/sentinel"
)

// BlobStore stores and retrieves binary content.
type BlobStore interface {
	Store(ctx context.Context, data []byte, filename, contentType string) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// Memory keeps blobs in process. Used in tests and development wiring.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Store(_ context.Context, data []byte, filename, _ string) (string, error) {
	ref := fmt.Sprintf("%d/%s_%s", time.Now().Unix(), uuid.NewString(), filename)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (m *Memory) Get(_ context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[ref]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[ref]; !ok {
		return sentinel.ErrNotFound
	}
	delete(m.blobs, ref)
	return nil
}
