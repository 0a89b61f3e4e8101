package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specvital/explorer/pkg/domain"
)

func sample() *domain.DiscoveryResult {
	return &domain.DiscoveryResult{
		PytestVersion: "8.0.0",
		PluginVersion: "0.1.0",
		Items: []domain.TestItem{
			{NodeID: "a/test.py::test_x", File: "a/test.py", Name: "test_x", Markers: []string{"slow"}, Parameters: map[string]string{}},
		},
		Errors:   []domain.ErrorMessage{},
		Warnings: []domain.WarningMessage{},
	}
}

func TestRepositories(t *testing.T) {
	tests := []struct {
		name string
		repo func(t *testing.T) Repository
	}{
		{"memory", func(*testing.T) Repository { return NewMemory() }},
		{"file", func(t *testing.T) Repository {
			return NewFile(filepath.Join(t.TempDir(), "state", "report.json"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := tt.repo(t)

			loaded, err := repo.Load()
			require.NoError(t, err)
			assert.Nil(t, loaded, "should load nothing initially")

			require.NoError(t, repo.Save(sample()))
			loaded, err = repo.Load()
			require.NoError(t, err)
			require.NotNil(t, loaded)
			assert.Equal(t, sample().Items, loaded.Items)

			require.NoError(t, repo.Clear())
			loaded, err = repo.Load()
			require.NoError(t, err)
			assert.Nil(t, loaded)

			require.NoError(t, repo.Clear(), "should clear twice")
		})
	}
}

func TestFile_LoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"items": 1}`), 0o644))

	_, err := NewFile(path).Load()
	assert.ErrorIs(t, err, domain.ErrInvalidReport)
}

func TestFile_SaveLeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	repo := NewFile(filepath.Join(dir, "report.json"))

	require.NoError(t, repo.Save(sample()))
	require.NoError(t, repo.Save(sample()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "report.json", entries[0].Name())
}
