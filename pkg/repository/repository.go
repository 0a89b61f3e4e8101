// Package repository persists the active discovery result.
package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/specvital/explorer/pkg/domain"
)

// Repository loads, saves and clears a single discovery result.
type Repository interface {
	// Load returns the stored result, or nil when nothing is stored.
	Load() (*domain.DiscoveryResult, error)
	Save(result *domain.DiscoveryResult) error
	Clear() error
}

// Memory keeps the result in memory. It is safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	result *domain.DiscoveryResult
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load() (*domain.DiscoveryResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.result, nil
}

func (m *Memory) Save(result *domain.DiscoveryResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = result
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = nil
	return nil
}

// File stores the result as a JSON document on disk.
type File struct {
	path string
}

// NewFile returns a repository backed by the JSON file at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the location of the backing file.
func (f *File) Path() string {
	return f.path
}

// Load reads the stored result. A missing file yields nil without error.
func (f *File) Load() (*domain.DiscoveryResult, error) {
	result, err := domain.ReadReport(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: load: %w", err)
	}
	return result, nil
}

// Save writes result to a temporary file and renames it over the target.
func (f *File) Save(result *domain.DiscoveryResult) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("repository: save: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("repository: save: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := domain.WriteReport(tmp, result); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("repository: save: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("repository: save: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("repository: save: %w", err)
	}
	return nil
}

// Clear removes the backing file. A missing file is not an error.
func (f *File) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("repository: clear: %w", err)
	}
	return nil
}
