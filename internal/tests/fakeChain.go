package tests

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Layr-Labs/storage-locator/pkg/chainErrors"
	"github.com/Layr-Labs/storage-locator/pkg/chainTypes"
	"github.com/Layr-Labs/storage-locator/pkg/clients/substrate"
	"github.com/Layr-Labs/storage-locator/pkg/scale"
	"github.com/Layr-Labs/storage-locator/pkg/storageKeys"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// GenesisTimestamp is Timestamp::Now at block 0 on a FakeChain; every block adds six seconds.
var GenesisTimestamp = time.UnixMilli(1_700_000_000_000)

// FakeBlockState is what the monitored pallet holds at one height.
type FakeBlockState struct {
	Version   uint16
	Migrating bool
	// MissingVersion leaves the version slot empty.
	MissingVersion bool
	// RawVersion, when set, replaces the encoded version bytes.
	RawVersion []byte
}

// Schedule maps a height to the pallet state at that height.
type Schedule func(number uint32) FakeBlockState

// Transition describes a schedule that changes at From and stays until the next transition.
type Transition struct {
	From  uint32
	State FakeBlockState
}

// StepSchedule builds a schedule from transitions sorted by ascending From. Heights before the
// first transition take the first state.
func StepSchedule(transitions ...Transition) Schedule {
	return func(number uint32) FakeBlockState {
		state := transitions[0].State
		for _, t := range transitions {
			if t.From > number {
				break
			}
			state = t.State
		}
		return state
	}
}

type fakeChildTrie struct {
	keys   [][]byte
	values map[string][]byte
}

// FakeChain is an in-memory chainTypes.HistoryQuerier. Pallet state follows a Schedule per height;
// root and child entries are the same at every height.
type FakeChain struct {
	Head     uint32
	Keys     *storageKeys.PalletKeys
	Schedule Schedule
	// Delay is added to every call, to make concurrency observable.
	Delay time.Duration
	// FailAfter makes a method fail with ErrRpcFailure once it has been called this many times.
	FailAfter map[string]int
	// StaleCursor makes key pages start at the cursor instead of strictly after it.
	StaleCursor bool

	mu          sync.Mutex
	calls       map[string]int
	inFlight    int
	maxInFlight int
	rootKeys    [][]byte
	rootValues  map[string][]byte
	children    map[string]*fakeChildTrie
}

var _ chainTypes.HistoryQuerier = (*FakeChain)(nil)

func NewFakeChain(head uint32, pallet string, schedule Schedule) *FakeChain {
	return &FakeChain{
		Head:       head,
		Keys:       storageKeys.NewPalletKeys(pallet),
		Schedule:   schedule,
		FailAfter:  make(map[string]int),
		calls:      make(map[string]int),
		rootValues: make(map[string][]byte),
		children:   make(map[string]*fakeChildTrie),
	}
}

// HashOf is the deterministic hash of a height on every FakeChain.
func HashOf(number uint32) common.Hash {
	h := common.Hash{}
	h[0] = 0xb1
	copy(h[28:], scale.EncodeU32(number))
	return h
}

func numberOf(hash common.Hash) (uint32, bool) {
	if hash[0] != 0xb1 {
		return 0, false
	}
	n, _ := scale.DecodeU32(hash[28:])
	return n, true
}

func insertSorted(keys [][]byte, key []byte) [][]byte {
	i, found := slices.BinarySearchFunc(keys, key, bytes.Compare)
	if found {
		return keys
	}
	return slices.Insert(keys, i, key)
}

// AddRootEntry stores a root trie entry.
func (f *FakeChain) AddRootEntry(key []byte, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rootKeys = insertSorted(f.rootKeys, key)
	f.rootValues[string(key)] = value
}

// AddChildTrie registers a child trie under ChildStorageKeyPrefix ++ id and returns its namespace key.
func (f *FakeChain) AddChildTrie(id []byte, entries map[string][]byte) []byte {
	ns := append(append([]byte{}, storageKeys.ChildStorageKeyPrefix...), id...)
	trie := &fakeChildTrie{values: make(map[string][]byte)}
	for k, v := range entries {
		trie.keys = insertSorted(trie.keys, []byte(k))
		trie.values[k] = v
	}
	f.AddRootEntry(ns, common.BytesToHash(id).Bytes())

	f.mu.Lock()
	defer f.mu.Unlock()
	f.children[string(ns)] = trie
	return ns
}

// Calls returns how many times method was called.
func (f *FakeChain) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls returns the number of calls across all methods.
func (f *FakeChain) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, c := range f.calls {
		total += c
	}
	return total
}

// MaxInFlight is the highest number of calls that were ever running at once.
func (f *FakeChain) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *FakeChain) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
	f.maxInFlight = 0
}

func (f *FakeChain) enter(ctx context.Context, method string) (func(), error) {
	f.mu.Lock()
	f.calls[method]++
	limit, limited := f.FailAfter[method]
	failed := limited && f.calls[method] > limit
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	done := func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			done()
			return nil, chainErrors.RpcFailure(ctx.Err(), "%s", method)
		}
	}
	if failed {
		done()
		return nil, chainErrors.RpcFailure(errors.New("injected failure"), "%s", method)
	}
	return done, nil
}

func (f *FakeChain) resolve(at *common.Hash) (uint32, error) {
	if at == nil {
		return f.Head, nil
	}
	n, ok := numberOf(*at)
	if !ok || n > f.Head {
		return 0, chainErrors.RpcFailure(errors.New("unknown block"), "%s", at.Hex())
	}
	return n, nil
}

func (f *FakeChain) BlockHashAt(ctx context.Context, number uint32) (common.Hash, error) {
	done, err := f.enter(ctx, substrate.RPCMethod_GetBlockHash)
	if err != nil {
		return common.Hash{}, err
	}
	defer done()
	if number > f.Head {
		return common.Hash{}, chainErrors.NotFound("block hash for #%d", number)
	}
	return HashOf(number), nil
}

func (f *FakeChain) LatestBlockNumber(ctx context.Context) (uint32, error) {
	value, err := f.ReadStorage(ctx, storageKeys.SystemNumber(), nil)
	if err != nil {
		return 0, err
	}
	return scale.DecodeU32(*value)
}

func (f *FakeChain) ReadStorage(ctx context.Context, key []byte, at *common.Hash) (*hexutil.Bytes, error) {
	done, err := f.enter(ctx, substrate.RPCMethod_GetStorage)
	if err != nil {
		return nil, err
	}
	defer done()

	n, err := f.resolve(at)
	if err != nil {
		return nil, err
	}

	var value []byte
	switch {
	case bytes.Equal(key, storageKeys.SystemNumber()):
		value = scale.EncodeU32(n)
	case bytes.Equal(key, storageKeys.TimestampNow()):
		value = scale.EncodeU64(uint64(GenesisTimestamp.UnixMilli()) + uint64(n)*6000)
	case bytes.Equal(key, f.Keys.StorageVersion):
		state := f.Schedule(n)
		if state.MissingVersion {
			return nil, nil
		}
		value = scale.EncodeU16(state.Version)
		if state.RawVersion != nil {
			value = state.RawVersion
		}
	case bytes.Equal(key, f.Keys.MigrationInProgress):
		if !f.Schedule(n).Migrating {
			return nil, nil
		}
		value = []byte{0x01}
	default:
		f.mu.Lock()
		v, ok := f.rootValues[string(key)]
		f.mu.Unlock()
		if !ok {
			return nil, nil
		}
		value = v
	}
	out := hexutil.Bytes(value)
	return &out, nil
}

func (f *FakeChain) page(keys [][]byte, prefix []byte, pageSize uint32, cursor []byte) []chainTypes.StorageKey {
	// a stale cursor repeats the cursor key itself at the head of the next page
	floor := 1
	if f.StaleCursor {
		floor = 0
	}
	page := make([]chainTypes.StorageKey, 0, pageSize)
	for _, k := range keys {
		if uint32(len(page)) >= pageSize {
			break
		}
		if !bytes.HasPrefix(k, prefix) {
			continue
		}
		if cursor != nil && bytes.Compare(k, cursor) < floor {
			continue
		}
		page = append(page, k)
	}
	return page
}

func (f *FakeChain) ListKeysPaged(ctx context.Context, prefix []byte, pageSize uint32, cursor []byte, at *common.Hash) ([]chainTypes.StorageKey, error) {
	done, err := f.enter(ctx, substrate.RPCMethod_GetKeysPaged)
	if err != nil {
		return nil, err
	}
	defer done()
	if _, err := f.resolve(at); err != nil {
		return nil, err
	}

	f.mu.Lock()
	keys := slices.Clone(f.rootKeys)
	f.mu.Unlock()
	return f.page(keys, prefix, pageSize, cursor), nil
}

func (f *FakeChain) ListChildKeysPaged(ctx context.Context, namespace []byte, prefix []byte, pageSize uint32, cursor []byte, at *common.Hash) ([]chainTypes.StorageKey, error) {
	done, err := f.enter(ctx, substrate.RPCMethod_GetChildKeysPaged)
	if err != nil {
		return nil, err
	}
	defer done()
	if _, err := f.resolve(at); err != nil {
		return nil, err
	}

	f.mu.Lock()
	trie, ok := f.children[string(namespace)]
	f.mu.Unlock()
	if !ok {
		return []chainTypes.StorageKey{}, nil
	}
	return f.page(trie.keys, prefix, pageSize, cursor), nil
}

func (f *FakeChain) ReadChildStorage(ctx context.Context, namespace []byte, key []byte, at *common.Hash) (*hexutil.Bytes, error) {
	done, err := f.enter(ctx, substrate.RPCMethod_GetChildStorage)
	if err != nil {
		return nil, err
	}
	defer done()
	if _, err := f.resolve(at); err != nil {
		return nil, err
	}

	f.mu.Lock()
	trie, ok := f.children[string(namespace)]
	f.mu.Unlock()
	if !ok {
		return nil, nil
	}
	v, ok := trie.values[string(key)]
	if !ok {
		return nil, nil
	}
	out := hexutil.Bytes(v)
	return &out, nil
}

func (f *FakeChain) Timestamp(ctx context.Context, at common.Hash) (time.Time, error) {
	value, err := f.ReadStorage(ctx, storageKeys.TimestampNow(), &at)
	if err != nil {
		return time.Time{}, err
	}
	millis, err := scale.DecodeU64(*value)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(millis)), nil
}

// QueryStorage reports every requested key in the first block of the range; values never change
// afterwards on a FakeChain.
func (f *FakeChain) QueryStorage(ctx context.Context, keys []chainTypes.StorageKey, from common.Hash, to *common.Hash) ([]*chainTypes.ChangeSet, error) {
	if _, err := f.resolve(&from); err != nil {
		return nil, err
	}
	changes := make([]chainTypes.StorageChange, 0, len(keys))
	for _, k := range keys {
		value, err := f.ReadStorage(ctx, k, &from)
		if err != nil {
			return nil, err
		}
		changes = append(changes, chainTypes.StorageChange{Key: k, Value: value})
	}

	done, err := f.enter(ctx, substrate.RPCMethod_QueryStorage)
	if err != nil {
		return nil, err
	}
	defer done()
	return []*chainTypes.ChangeSet{{Block: from, Changes: changes}}, nil
}

func (f *FakeChain) GetBlock(ctx context.Context, at *common.Hash) (*chainTypes.SignedBlock, error) {
	done, err := f.enter(ctx, substrate.RPCMethod_GetBlock)
	if err != nil {
		return nil, err
	}
	defer done()

	n, err := f.resolve(at)
	if err != nil {
		return nil, chainErrors.NotFound("block %s", at.Hex())
	}
	parent := common.Hash{}
	if n > 0 {
		parent = HashOf(n - 1)
	}
	return &chainTypes.SignedBlock{
		Block: chainTypes.Block{
			Header: chainTypes.Header{
				ParentHash: parent,
				Number:     hexutil.Uint64(n),
				Digest:     []byte(`{"logs":[]}`),
			},
			Extrinsics: []hexutil.Bytes{scale.EncodeU64(uint64(n))},
		},
	}, nil
}
