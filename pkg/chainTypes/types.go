// Package chainTypes holds the chain data shapes shared by the client, the enumerators and the
// exporters, and the ChainQuerier facade every component is written against.
package chainTypes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// StorageKey is an opaque raw storage key, hex encoded on the wire.
type StorageKey = hexutil.Bytes

// StorageEntry is a key and its value at some block. A nil Value means the key was absent.
type StorageEntry struct {
	Key   StorageKey     `json:"key"`
	Value *hexutil.Bytes `json:"value"`
}

// BlockIdentity pins a block height to the hash it resolved to.
type BlockIdentity struct {
	Number uint32      `json:"number"`
	Hash   common.Hash `json:"hash"`
}

func (b BlockIdentity) String() string {
	return fmt.Sprintf("#%d (%s)", b.Number, b.Hash.Hex())
}

// StorageChange is one [key, value] pair of a change set. A nil Value means the key was removed.
type StorageChange struct {
	Key   StorageKey
	Value *hexutil.Bytes
}

func (sc StorageChange) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{sc.Key, sc.Value})
}

func (sc *StorageChange) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("storage change must have 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &sc.Key); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &sc.Value)
}

// ChangeSet lists the storage changes observed in one block.
type ChangeSet struct {
	Block   common.Hash     `json:"block"`
	Changes []StorageChange `json:"changes"`
}

type Header struct {
	ParentHash     common.Hash     `json:"parentHash"`
	Number         hexutil.Uint64  `json:"number"`
	StateRoot      common.Hash     `json:"stateRoot"`
	ExtrinsicsRoot common.Hash     `json:"extrinsicsRoot"`
	Digest         json.RawMessage `json:"digest"`
}

// Block keeps extrinsics in their raw encoded form; decoding them is out of scope.
type Block struct {
	Header     Header          `json:"header"`
	Extrinsics []hexutil.Bytes `json:"extrinsics"`
}

type SignedBlock struct {
	Block          Block           `json:"block"`
	Justifications json.RawMessage `json:"justifications,omitempty"`
}

// ChainQuerier is the read-only view of a chain node used by every component.
// A nil at means the node's best block.
type ChainQuerier interface {
	BlockHashAt(ctx context.Context, number uint32) (common.Hash, error)
	LatestBlockNumber(ctx context.Context) (uint32, error)
	ReadStorage(ctx context.Context, key []byte, at *common.Hash) (*hexutil.Bytes, error)
	ListKeysPaged(ctx context.Context, prefix []byte, pageSize uint32, cursor []byte, at *common.Hash) ([]StorageKey, error)
	ListChildKeysPaged(ctx context.Context, namespace []byte, prefix []byte, pageSize uint32, cursor []byte, at *common.Hash) ([]StorageKey, error)
	ReadChildStorage(ctx context.Context, namespace []byte, key []byte, at *common.Hash) (*hexutil.Bytes, error)
}

// HistoryQuerier adds the block metadata reads used by the CLI and exporters.
type HistoryQuerier interface {
	ChainQuerier
	Timestamp(ctx context.Context, at common.Hash) (time.Time, error)
	QueryStorage(ctx context.Context, keys []StorageKey, from common.Hash, to *common.Hash) ([]*ChangeSet, error)
	GetBlock(ctx context.Context, at *common.Hash) (*SignedBlock, error)
}
