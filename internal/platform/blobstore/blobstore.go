// Package blobstore stores generated artifacts such as compliance export
// bundles and PIA packs. It defines the Store interface, an in-memory
// implementation for tests, and a filesystem implementation for deployments
// without object storage.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("artifact not found")

// Artifact describes a stored blob.
type Artifact struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256"`
}

// Store persists artifact bytes under a caller-chosen key. Put overwrites any
// existing artifact with the same key.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (Artifact, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MemoryStore keeps artifacts in memory. Used in tests and dev mode.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]Artifact
	data  map[string][]byte
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string]Artifact),
		data:  make(map[string][]byte),
	}
}

func (s *MemoryStore) Put(_ context.Context, key, contentType string, data []byte) (Artifact, error) {
	art := Artifact{
		Key:         key,
		URL:         "memory://" + key,
		ContentType: contentType,
		Size:        int64(len(data)),
		SHA256:      digest(data),
	}
	s.mu.Lock()
	s.blobs[key] = art
	s.data[key] = append([]byte(nil), data...)
	s.mu.Unlock()
	return art, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// FSStore writes artifacts under a root directory. Keys may contain slashes;
// path traversal outside the root is rejected.
type FSStore struct {
	root string
}

func NewFS(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &FSStore{root: abs}, nil
}

func (s *FSStore) path(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(p, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return p, nil
}

func (s *FSStore) Put(_ context.Context, key, contentType string, data []byte) (Artifact, error) {
	p, err := s.path(key)
	if err != nil {
		return Artifact{}, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Artifact{}, fmt.Errorf("creating artifact subdir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("writing artifact %s: %w", key, err)
	}
	return Artifact{
		Key:         key,
		URL:         "file://" + p,
		ContentType: contentType,
		Size:        int64(len(data)),
		SHA256:      digest(data),
	}, nil
}

func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}
