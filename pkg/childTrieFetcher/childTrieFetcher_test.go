package childTrieFetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Layr-Labs/storage-locator/internal/tests"
	"github.com/Layr-Labs/storage-locator/pkg/chainErrors"
	"github.com/Layr-Labs/storage-locator/pkg/chainTypes"
	"github.com/Layr-Labs/storage-locator/pkg/clients/substrate"
	"github.com/Layr-Labs/storage-locator/pkg/keyEnumerator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	chain      *tests.FakeChain
	namespaces [][]byte
	contents   []map[string][]byte
}

func setup(namespaceCount int, entriesPerNamespace int) *fixture {
	chain := tests.NewFakeChain(10, "", tests.StepSchedule(tests.Transition{State: tests.FakeBlockState{Version: 1}}))
	chain.AddRootEntry([]byte{0x01, 0x02}, []byte{0xff})
	chain.AddRootEntry([]byte{0x01, 0x03}, []byte{0xfe})

	f := &fixture{chain: chain}
	for n := 0; n < namespaceCount; n++ {
		entries := make(map[string][]byte)
		for e := 0; e < entriesPerNamespace; e++ {
			entries[string([]byte{byte(e), 0x00})] = []byte{byte(n), byte(e)}
		}
		f.namespaces = append(f.namespaces, chain.AddChildTrie([]byte{byte(n)}, entries))
		f.contents = append(f.contents, entries)
	}
	return f
}

func (f *fixture) rootKeys(t *testing.T) []chainTypes.StorageKey {
	keys, err := keyEnumerator.NewRootKeyEnumerator(keyEnumerator.DefaultKeyEnumeratorConfig(), f.chain, nil, tests.GetTestLogger()).
		Enumerate(context.Background(), []byte{}, nil)
	require.NoError(t, err)
	return keys
}

func newFetcher(chain *tests.FakeChain, maxConcurrency int, pageSize int) *ChildTrieFetcher {
	return NewChildTrieFetcher(&ChildTrieFetcherConfig{
		MaxConcurrency: maxConcurrency,
		Enumerator:     &keyEnumerator.KeyEnumeratorConfig{PageSize: pageSize},
	}, chain, nil, tests.GetTestLogger())
}

// slowFirstChain delays earlier namespaces and earlier keys the longest, so requests complete in
// the reverse of the order they were issued.
type slowFirstChain struct {
	*tests.FakeChain
	namespaces int
	keys       int

	mu        sync.Mutex
	completed [][]byte
}

func (c *slowFirstChain) ListChildKeysPaged(ctx context.Context, namespace []byte, prefix []byte, pageSize uint32, cursor []byte, at *common.Hash) ([]chainTypes.StorageKey, error) {
	time.Sleep(time.Duration(c.namespaces-int(namespace[len(namespace)-1])) * 10 * time.Millisecond)
	return c.FakeChain.ListChildKeysPaged(ctx, namespace, prefix, pageSize, cursor, at)
}

func (c *slowFirstChain) ReadChildStorage(ctx context.Context, namespace []byte, key []byte, at *common.Hash) (*hexutil.Bytes, error) {
	time.Sleep(time.Duration(c.keys-int(key[0])) * 2 * time.Millisecond)
	value, err := c.FakeChain.ReadChildStorage(ctx, namespace, key, at)
	c.mu.Lock()
	c.completed = append(c.completed, append(append([]byte{}, namespace[len(namespace)-1]), key...))
	c.mu.Unlock()
	return value, err
}

func (c *slowFirstChain) completedBefore(a []byte, b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.completed {
		if bytes.Equal(k, a) {
			return true
		}
		if bytes.Equal(k, b) {
			return false
		}
	}
	return false
}

func Test_ChildTrieFetcher(t *testing.T) {
	t.Run("Should return every child trie in root key order", func(t *testing.T) {
		f := setup(5, 7)
		fetcher := newFetcher(f.chain, 4, 3)

		tries, err := fetcher.FetchAllChildren(context.Background(), f.rootKeys(t), nil)
		require.NoError(t, err)
		assert.Equal(t, 5, tries.Len())
		assert.Equal(t, f.namespaces, tries.Namespaces())

		for i, ns := range f.namespaces {
			entries, ok := tries.Get(ns)
			require.True(t, ok)
			require.Len(t, entries, 7)
			for e, entry := range entries {
				assert.Equal(t, []byte{byte(e), 0x00}, []byte(entry.Key))
				require.NotNil(t, entry.Value)
				assert.Equal(t, f.contents[i][string(entry.Key)], []byte(*entry.Value))
			}
		}
	})
	t.Run("Should keep listing order when requests complete in reverse", func(t *testing.T) {
		f := setup(2, 10)
		chain := &slowFirstChain{FakeChain: f.chain, namespaces: 2, keys: 10}
		fetcher := NewChildTrieFetcher(&ChildTrieFetcherConfig{
			MaxConcurrency: 20,
			Enumerator:     &keyEnumerator.KeyEnumeratorConfig{PageSize: 100},
		}, chain, nil, tests.GetTestLogger())

		tries, err := fetcher.FetchAllChildren(context.Background(), f.rootKeys(t), nil)
		require.NoError(t, err)
		assert.True(t, chain.completedBefore([]byte{0, 9, 0}, []byte{0, 0, 0}))
		assert.True(t, chain.completedBefore([]byte{1, 0, 0}, []byte{0, 0, 0}))

		assert.Equal(t, f.namespaces, tries.Namespaces())
		for i, ns := range f.namespaces {
			entries, ok := tries.Get(ns)
			require.True(t, ok)
			require.Len(t, entries, 10)
			for e, entry := range entries {
				assert.Equal(t, []byte{byte(e), 0x00}, []byte(entry.Key))
				require.NotNil(t, entry.Value)
				assert.Equal(t, []byte{byte(i), byte(e)}, []byte(*entry.Value))
			}
		}
	})
	t.Run("Should return an empty map when there are no namespaces", func(t *testing.T) {
		f := setup(0, 0)
		fetcher := newFetcher(f.chain, 4, 3)

		tries, err := fetcher.FetchAllChildren(context.Background(), f.rootKeys(t), nil)
		require.NoError(t, err)
		assert.Equal(t, 0, tries.Len())
		assert.Equal(t, 0, f.chain.Calls(substrate.RPCMethod_GetChildKeysPaged))
	})
	t.Run("Should keep an empty child trie", func(t *testing.T) {
		f := setup(1, 0)
		fetcher := newFetcher(f.chain, 4, 3)

		tries, err := fetcher.FetchAllChildren(context.Background(), f.rootKeys(t), nil)
		require.NoError(t, err)
		entries, ok := tries.Get(f.namespaces[0])
		assert.True(t, ok)
		assert.Len(t, entries, 0)
	})
	t.Run("Should never exceed the concurrency limit", func(t *testing.T) {
		f := setup(8, 6)
		f.chain.Delay = 2 * time.Millisecond
		rootKeys := f.rootKeys(t)
		f.chain.ResetCalls()

		fetcher := newFetcher(f.chain, 3, 2)
		_, err := fetcher.FetchAllChildren(context.Background(), rootKeys, nil)
		require.NoError(t, err)
		assert.LessOrEqual(t, f.chain.MaxInFlight(), 3)
		assert.Greater(t, f.chain.MaxInFlight(), 1)
	})
	t.Run("Should fail as a whole when one read fails", func(t *testing.T) {
		f := setup(4, 5)
		f.chain.FailAfter[substrate.RPCMethod_GetChildStorage] = 7
		fetcher := newFetcher(f.chain, 2, 10)

		tries, err := fetcher.FetchAllChildren(context.Background(), f.rootKeys(t), nil)
		assert.Nil(t, tries)
		assert.True(t, errors.Is(err, chainErrors.ErrRpcFailure))
	})
	t.Run("Should fail as a whole when a page fails", func(t *testing.T) {
		f := setup(4, 5)
		f.chain.FailAfter[substrate.RPCMethod_GetChildKeysPaged] = 2
		fetcher := newFetcher(f.chain, 2, 10)

		_, err := fetcher.FetchAllChildren(context.Background(), f.rootKeys(t), nil)
		assert.True(t, errors.Is(err, chainErrors.ErrRpcFailure))
	})
	t.Run("Should fetch root values in key order and report progress", func(t *testing.T) {
		f := setup(2, 1)
		keys := append(f.rootKeys(t), chainTypes.StorageKey{0x09, 0x09})

		var seen atomic.Int64
		fetcher := newFetcher(f.chain, 3, 10).WithProgress(func() { seen.Add(1) })
		entries, err := fetcher.FetchValues(context.Background(), keys, nil)
		require.NoError(t, err)
		require.Len(t, entries, len(keys))
		for i, entry := range entries {
			assert.Equal(t, keys[i], entry.Key)
		}
		assert.Equal(t, hexutil.Bytes{0xff}, *entries[0].Value)
		assert.Nil(t, entries[len(entries)-1].Value)
		assert.Equal(t, int64(len(keys)), seen.Load())
	})
}

func Test_ChildTrieMap(t *testing.T) {
	t.Run("Should round trip through JSON in insertion order", func(t *testing.T) {
		value := hexutil.Bytes{0x05}
		m := NewChildTrieMap()
		m.Set([]byte{0x0b}, []*chainTypes.StorageEntry{{Key: chainTypes.StorageKey{0x01}, Value: &value}})
		m.Set([]byte{0x0a}, []*chainTypes.StorageEntry{})

		data, err := json.Marshal(m)
		require.NoError(t, err)
		assert.JSONEq(t, `{"0x0b":[{"key":"0x01","value":"0x05"}],"0x0a":[]}`, string(data))
		assert.Less(t, strings.Index(string(data), "0x0b"), strings.Index(string(data), "0x0a"))

		decoded := NewChildTrieMap()
		require.NoError(t, json.Unmarshal(data, decoded))
		assert.Equal(t, [][]byte{{0x0b}, {0x0a}}, decoded.Namespaces())
		entries, _ := decoded.Get([]byte{0x0b})
		assert.Equal(t, value, *entries[0].Value)
	})
}
