package childTrieFetcher

import (
	"encoding/json"

	"github.com/Layr-Labs/storage-locator/pkg/chainTypes"
	"github.com/ethereum/go-ethereum/common/hexutil"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ChildTrieMap maps a child trie namespace key to its entries, keeping namespaces in the order
// they were inserted.
type ChildTrieMap struct {
	tries *orderedmap.OrderedMap[string, []*chainTypes.StorageEntry]
}

func NewChildTrieMap() *ChildTrieMap {
	return &ChildTrieMap{
		tries: orderedmap.New[string, []*chainTypes.StorageEntry](),
	}
}

func (m *ChildTrieMap) Set(namespace []byte, entries []*chainTypes.StorageEntry) {
	m.tries.Set(string(namespace), entries)
}

func (m *ChildTrieMap) Get(namespace []byte) ([]*chainTypes.StorageEntry, bool) {
	return m.tries.Get(string(namespace))
}

func (m *ChildTrieMap) Len() int {
	return m.tries.Len()
}

// Namespaces returns the namespace keys in insertion order.
func (m *ChildTrieMap) Namespaces() [][]byte {
	namespaces := make([][]byte, 0, m.tries.Len())
	for pair := m.tries.Oldest(); pair != nil; pair = pair.Next() {
		namespaces = append(namespaces, []byte(pair.Key))
	}
	return namespaces
}

// Each calls fn for every namespace in insertion order, stopping at the first error.
func (m *ChildTrieMap) Each(fn func(namespace []byte, entries []*chainTypes.StorageEntry) error) error {
	for pair := m.tries.Oldest(); pair != nil; pair = pair.Next() {
		if err := fn([]byte(pair.Key), pair.Value); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON renders the map as an object keyed by hex namespace, in insertion order.
func (m *ChildTrieMap) MarshalJSON() ([]byte, error) {
	out := orderedmap.New[string, []*chainTypes.StorageEntry]()
	for pair := m.tries.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(hexutil.Encode([]byte(pair.Key)), pair.Value)
	}
	return json.Marshal(out)
}

func (m *ChildTrieMap) UnmarshalJSON(data []byte) error {
	decoded := orderedmap.New[string, []*chainTypes.StorageEntry]()
	if err := json.Unmarshal(data, decoded); err != nil {
		return err
	}
	m.tries = orderedmap.New[string, []*chainTypes.StorageEntry]()
	for pair := decoded.Oldest(); pair != nil; pair = pair.Next() {
		ns, err := hexutil.Decode(pair.Key)
		if err != nil {
			return err
		}
		m.tries.Set(string(ns), pair.Value)
	}
	return nil
}
