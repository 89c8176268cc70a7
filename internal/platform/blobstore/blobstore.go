// Package blobstore provides object storage for raw ingestion payloads.
// It defines the Store interface, an in-memory implementation for tests and
// development, and an S3 implementation used in deployment.
package blobstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrObjectNotFound indicates the requested key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Store is the contract for blob storage backends.
type Store interface {
	// Put writes an object under key, overwriting any existing object.
	Put(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error

	// Get reads an object's content by key.
	Get(ctx context.Context, key string) ([]byte, error)

	// PresignPut issues a URL a client can PUT the object to directly,
	// valid for the given duration.
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
}

// Memory is an in-memory Store for tests and local development.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

type memObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memObject)}
}

func (m *Memory) Put(_ context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(body))
	copy(buf, body)
	m.objects[key] = memObject{body: buf, contentType: contentType, metadata: metadata}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return obj.body, nil
}

func (m *Memory) PresignPut(_ context.Context, key, _ string, expiry time.Duration) (string, error) {
	// A stable fake URL; tests only assert shape, not reachability.
	return "memory://upload/" + key, nil
}

// Keys returns the stored keys; test helper.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

// ContentType returns the stored content type for key; test helper.
func (m *Memory) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[key].contentType
}
