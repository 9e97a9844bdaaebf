package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lwkgo/lwk/elements"
)

type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Put(_ context.Context, key string, value []byte) error {
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestWalletPersistsAcrossReload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := testDescriptor(t)
	store := newMemStore()

	w, err := New(ctx, elements.NetworkLocaltestLiquid, d, store)
	require.NoError(t, err)

	idx := uint32(7)
	require.NoError(t, w.ApplyUpdate(ctx, &Update{Version: 0, LastUsedExternal: &idx}))

	w2, err := New(ctx, elements.NetworkLocaltestLiquid, d, store)
	require.NoError(t, err)
	require.NotNil(t, w2.state.LastUsedExternal)
	require.Equal(t, idx, *w2.state.LastUsedExternal)
}

func TestWalletRejectsStaleUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := testDescriptor(t)
	w, err := New(ctx, elements.NetworkLocaltestLiquid, d, nil)
	require.NoError(t, err)

	staleHash := w.Snapshot().StatusHash()

	idx := uint32(1)
	require.NoError(t, w.ApplyUpdate(ctx, &Update{Version: 0, LastUsedExternal: &idx}))

	err = w.ApplyUpdate(ctx, &Update{Version: 1, StatusHash: staleHash})
	require.Error(t, err)
}

func TestWalletAddressDefaultsToNextIndex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := testDescriptor(t)
	w, err := New(ctx, elements.NetworkLocaltestLiquid, d, nil)
	require.NoError(t, err)

	net := elements.Networks[elements.NetworkLocaltestLiquid]

	res, err := w.Address(ctx, nil, net)
	require.NoError(t, err)
	require.Equal(t, uint32(0), res.Index)

	idx := uint32(4)
	require.NoError(t, w.ApplyUpdate(ctx, &Update{Version: 0, LastUsedExternal: &idx}))

	res, err = w.Address(ctx, nil, net)
	require.NoError(t, err)
	require.Equal(t, uint32(5), res.Index)
}
