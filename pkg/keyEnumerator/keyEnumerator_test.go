package keyEnumerator

import (
	"context"
	"fmt"
	"testing"

	"github.com/Layr-Labs/storage-locator/internal/tests"
	"github.com/Layr-Labs/storage-locator/pkg/chainErrors"
	"github.com/Layr-Labs/storage-locator/pkg/clients/substrate"
	"github.com/Layr-Labs/storage-locator/pkg/scale"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupChain(keyCount int) *tests.FakeChain {
	chain := tests.NewFakeChain(10, "", tests.StepSchedule(tests.Transition{State: tests.FakeBlockState{Version: 1}}))
	for i := 0; i < keyCount; i++ {
		chain.AddRootEntry(append([]byte{0xaa}, scale.EncodeU32(uint32(i))...), []byte{byte(i)})
	}
	// outside the enumerated prefix
	chain.AddRootEntry([]byte{0xbb, 0x01}, []byte{0x01})
	return chain
}

func Test_HasMore(t *testing.T) {
	assert.True(t, FullPageHasMore(10, 10))
	assert.False(t, FullPageHasMore(9, 10))
	assert.False(t, OverfullPageHasMore(10, 10))
	assert.True(t, OverfullPageHasMore(11, 10))
}

func Test_KeyEnumerator(t *testing.T) {
	l := tests.GetTestLogger()
	prefix := []byte{0xaa}

	cases := []struct {
		keys      int
		pageSize  int
		roundTrip int
	}{
		{keys: 0, pageSize: 10, roundTrip: 1},
		{keys: 7, pageSize: 10, roundTrip: 1},
		{keys: 10, pageSize: 10, roundTrip: 2},
		{keys: 25, pageSize: 10, roundTrip: 3},
		{keys: 30, pageSize: 10, roundTrip: 4},
		{keys: 5, pageSize: 1, roundTrip: 6},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("Should list %d keys with page size %d", c.keys, c.pageSize), func(t *testing.T) {
			chain := setupChain(c.keys)
			e := NewRootKeyEnumerator(&KeyEnumeratorConfig{PageSize: c.pageSize}, chain, nil, l)

			keys, err := e.Enumerate(context.Background(), prefix, nil)
			require.NoError(t, err)
			assert.Len(t, keys, c.keys)
			for i, k := range keys {
				assert.Equal(t, append([]byte{0xaa}, scale.EncodeU32(uint32(i))...), []byte(k))
			}
			assert.Equal(t, c.roundTrip, chain.Calls(substrate.RPCMethod_GetKeysPaged))
		})
	}

	t.Run("Should not reserve a full page for an empty listing", func(t *testing.T) {
		chain := setupChain(0)
		e := NewRootKeyEnumerator(&KeyEnumeratorConfig{PageSize: 1_000_000}, chain, nil, l)

		keys, err := e.Enumerate(context.Background(), prefix, nil)
		require.NoError(t, err)
		assert.NotNil(t, keys)
		assert.Empty(t, keys)
		assert.Equal(t, 0, cap(keys))
	})
	t.Run("Should stop after the first page with the overfull predicate", func(t *testing.T) {
		chain := setupChain(25)
		e := NewRootKeyEnumerator(&KeyEnumeratorConfig{PageSize: 10, HasMore: OverfullPageHasMore}, chain, nil, l)

		keys, err := e.Enumerate(context.Background(), prefix, nil)
		require.NoError(t, err)
		assert.Len(t, keys, 10)
		assert.Equal(t, 1, chain.Calls(substrate.RPCMethod_GetKeysPaged))
	})
	t.Run("Should return nothing when a later page fails", func(t *testing.T) {
		chain := setupChain(25)
		chain.FailAfter[substrate.RPCMethod_GetKeysPaged] = 2
		e := NewRootKeyEnumerator(&KeyEnumeratorConfig{PageSize: 10}, chain, nil, l)

		keys, err := e.Enumerate(context.Background(), prefix, nil)
		assert.Nil(t, keys)
		assert.True(t, errors.Is(err, chainErrors.ErrRpcFailure))
	})
	t.Run("Should reject a cursor that does not advance", func(t *testing.T) {
		chain := setupChain(25)
		chain.StaleCursor = true
		e := NewRootKeyEnumerator(&KeyEnumeratorConfig{PageSize: 10}, chain, nil, l)

		_, err := e.Enumerate(context.Background(), prefix, nil)
		assert.True(t, errors.Is(err, chainErrors.ErrRpcFailure))
		assert.Equal(t, 2, chain.Calls(substrate.RPCMethod_GetKeysPaged))
	})
	t.Run("Should enumerate a child trie", func(t *testing.T) {
		chain := setupChain(0)
		entries := map[string][]byte{}
		for i := 0; i < 12; i++ {
			entries[string([]byte{byte(i)})] = []byte{byte(i)}
		}
		ns := chain.AddChildTrie([]byte{0x01}, entries)

		root := NewRootKeyEnumerator(&KeyEnumeratorConfig{PageSize: 5}, chain, nil, l)
		keys, err := root.ForChild(chain, ns).Enumerate(context.Background(), []byte{}, nil)
		require.NoError(t, err)
		assert.Len(t, keys, 12)
		assert.Equal(t, 3, chain.Calls(substrate.RPCMethod_GetChildKeysPaged))
		assert.Equal(t, 0, chain.Calls(substrate.RPCMethod_GetKeysPaged))
	})
	t.Run("Should fall back to the default page size", func(t *testing.T) {
		e := NewRootKeyEnumerator(&KeyEnumeratorConfig{}, setupChain(0), nil, l)
		assert.Equal(t, 100, e.PageSize())
	})
}
