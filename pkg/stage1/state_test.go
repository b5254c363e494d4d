package stage1

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreGetMissingReturnsNil(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "gravel-state.json"))
	require.Nil(t, s.Get("batch-0001"))
}

func TestStorePutThenGet(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "gravel-state.json"))
	require.NoError(t, s.Put(Record{Name: "batch-0001", Status: StatusCompleted, PearlsAdded: 3}))

	rec := s.Get("batch-0001")
	require.NotNil(t, rec)
	require.Equal(t, StatusCompleted, rec.Status)
	require.Equal(t, 3, rec.PearlsAdded)
}

func TestStorePersistsAndBacksUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gravel-state.json")

	s1 := NewStore(path)
	require.NoError(t, s1.Put(Record{Name: "batch-0001", Status: StatusCompleted}))
	require.NoError(t, s1.Put(Record{Name: "batch-0001", Status: StatusFailed, Error: "boom"}))

	require.FileExists(t, path+".bak")

	s2 := NewStore(path)
	rec := s2.Get("batch-0001")
	require.NotNil(t, rec)
	require.Equal(t, StatusFailed, rec.Status)
	require.Equal(t, "boom", rec.Error)
}
