package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStorage keeps uploads in memory. Used in tests.
type MemoryStorage struct {
	mu      sync.Mutex
	baseURL string
	Objects map[string][]byte
}

func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{baseURL: baseURL, Objects: make(map[string][]byte)}
}

func (m *MemoryStorage) Upload(ctx context.Context, dir, filename string, r io.Reader, size int64, contentType string) (*Object, error) {
	key, err := ObjectKey(dir, filename)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	m.mu.Lock()
	m.Objects[key] = buf.Bytes()
	m.mu.Unlock()

	return &Object{Key: key, URL: m.baseURL + "/" + key}, nil
}
