package keyring

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lwkgo/lwk/descriptor"
)

func TestMemoryIndexStoreNeverDecreases(t *testing.T) {
	s := NewMemoryIndexStore()

	require.NoError(t, s.SetCurrentIndex(descriptor.ChainExternal, 5))
	require.NoError(t, s.SetCurrentIndex(descriptor.ChainExternal, 2))

	idx, err := s.CurrentIndex(descriptor.ChainExternal)
	require.NoError(t, err)
	require.Equal(t, uint32(5), idx)
}

func TestFileIndexStorePersistsAcrossLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexes.json")

	s1, err := NewFileIndexStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.SetCurrentIndex(descriptor.ChainExternal, 3))
	require.NoError(t, s1.SetCurrentIndex(descriptor.ChainInternal, 1))

	s2, err := NewFileIndexStore(path)
	require.NoError(t, err)

	all, err := s2.AllIndexes()
	require.NoError(t, err)
	require.Equal(t, uint32(3), all[descriptor.ChainExternal])
	require.Equal(t, uint32(1), all[descriptor.ChainInternal])
}
