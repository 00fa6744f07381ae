package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"locallens/application/ports"
	pkgerrors "locallens/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyValueStores(t *testing.T) {
	ctx := context.Background()

	stores := map[string]func(t *testing.T) ports.KeyValueStore{
		"memory": func(t *testing.T) ports.KeyValueStore { return NewMemoryStore() },
		"file": func(t *testing.T) ports.KeyValueStore {
			s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "offline.json"))
			require.NoError(t, err)
			return s
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			v, err := s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.Nil(t, v)

			require.NoError(t, s.Set(ctx, "a", []byte(`[{"id":"1"}]`)))
			require.NoError(t, s.Set(ctx, "b", []byte(`{"x":2}`)))
			require.NoError(t, s.Set(ctx, "a", []byte(`[]`)))

			v, err = s.Get(ctx, "a")
			require.NoError(t, err)
			assert.JSONEq(t, `[]`, string(v))

			v, err = s.Get(ctx, "b")
			require.NoError(t, err)
			assert.JSONEq(t, `{"x":2}`, string(v))
		})
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "offline.json")

	first, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "locallens_offline_notes", []byte(`[{"id":"offline_1"}]`)))

	second, err := NewFileStore(path)
	require.NoError(t, err)
	v, err := second.Get(ctx, "locallens_offline_notes")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"offline_1"}]`, string(v))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offline.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestFileStore_UnreadablePathIsDatabaseError(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFileStore(dir)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "k")
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeDatabase))
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	value := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", value))
	value[0] = 'z'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}
