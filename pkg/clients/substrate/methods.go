package substrate

import (
	"context"
	"time"

	"github.com/Layr-Labs/storage-locator/pkg/chainErrors"
	"github.com/Layr-Labs/storage-locator/pkg/chainTypes"
	"github.com/Layr-Labs/storage-locator/pkg/scale"
	"github.com/Layr-Labs/storage-locator/pkg/storageKeys"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

const (
	RPCMethod_GetBlockHash      = "chain_getBlockHash"
	RPCMethod_GetBlock          = "chain_getBlock"
	RPCMethod_GetStorage        = "state_getStorage"
	RPCMethod_GetKeysPaged      = "state_getKeysPaged"
	RPCMethod_QueryStorage      = "state_queryStorage"
	RPCMethod_GetChildKeysPaged = "childstate_getKeysPaged"
	RPCMethod_GetChildStorage   = "childstate_getStorage"
)

var (
	_ chainTypes.ChainQuerier   = (*Client)(nil)
	_ chainTypes.HistoryQuerier = (*Client)(nil)
)

// atParam renders an optional block hash; null asks the node for its best block.
func atParam(at *common.Hash) interface{} {
	if at == nil {
		return nil
	}
	return *at
}

// cursorParam renders an optional pagination cursor; null starts from the beginning.
func cursorParam(cursor []byte) interface{} {
	if cursor == nil {
		return nil
	}
	return hexutil.Bytes(cursor)
}

// BlockHashAt resolves a block number to its hash. Heights beyond the chain head are
// chainErrors.ErrNotFound.
func (c *Client) BlockHashAt(ctx context.Context, number uint32) (common.Hash, error) {
	res, err := c.Call(ctx, c.NewRequest(RPCMethod_GetBlockHash, number))
	if err != nil {
		return common.Hash{}, err
	}
	if res.IsNull() {
		return common.Hash{}, chainErrors.NotFound("block hash for #%d", number)
	}
	return decodeResult[common.Hash](RPCMethod_GetBlockHash, res)
}

// LatestBlockNumber reads System::Number at the best block.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint32, error) {
	value, err := c.ReadStorage(ctx, storageKeys.SystemNumber(), nil)
	if err != nil {
		return 0, err
	}
	if value == nil {
		return 0, chainErrors.NotFound("System::Number")
	}
	return scale.DecodeU32(*value)
}

// ReadStorage returns the value under key at the given block, or nil if the key is absent.
func (c *Client) ReadStorage(ctx context.Context, key []byte, at *common.Hash) (*hexutil.Bytes, error) {
	res, err := c.Call(ctx, c.NewRequest(RPCMethod_GetStorage, hexutil.Bytes(key), atParam(at)))
	if err != nil {
		return nil, err
	}
	return decodeResult[*hexutil.Bytes](RPCMethod_GetStorage, res)
}

// ListKeysPaged returns up to pageSize keys under prefix that sort strictly after cursor.
func (c *Client) ListKeysPaged(ctx context.Context, prefix []byte, pageSize uint32, cursor []byte, at *common.Hash) ([]chainTypes.StorageKey, error) {
	req := c.NewRequest(RPCMethod_GetKeysPaged, hexutil.Bytes(prefix), pageSize, cursorParam(cursor), atParam(at))
	res, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	keys, err := decodeResult[[]chainTypes.StorageKey](RPCMethod_GetKeysPaged, res)
	if err != nil {
		return nil, err
	}
	c.logger.Sugar().Debugw("Fetched keys page",
		zap.String("prefix", hexutil.Encode(prefix)),
		zap.Int("count", len(keys)),
	)
	return keys, nil
}

// ListChildKeysPaged is ListKeysPaged scoped to the child trie addressed by namespace, the
// prefixed child storage key as it appears in the root trie.
func (c *Client) ListChildKeysPaged(ctx context.Context, namespace []byte, prefix []byte, pageSize uint32, cursor []byte, at *common.Hash) ([]chainTypes.StorageKey, error) {
	req := c.NewRequest(RPCMethod_GetChildKeysPaged, hexutil.Bytes(namespace), hexutil.Bytes(prefix), pageSize, cursorParam(cursor), atParam(at))
	res, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeResult[[]chainTypes.StorageKey](RPCMethod_GetChildKeysPaged, res)
}

// ReadChildStorage returns the value under key inside a child trie, or nil if absent.
func (c *Client) ReadChildStorage(ctx context.Context, namespace []byte, key []byte, at *common.Hash) (*hexutil.Bytes, error) {
	req := c.NewRequest(RPCMethod_GetChildStorage, hexutil.Bytes(namespace), hexutil.Bytes(key), atParam(at))
	res, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeResult[*hexutil.Bytes](RPCMethod_GetChildStorage, res)
}

// Timestamp reads Timestamp::Now at a block.
func (c *Client) Timestamp(ctx context.Context, at common.Hash) (time.Time, error) {
	value, err := c.ReadStorage(ctx, storageKeys.TimestampNow(), &at)
	if err != nil {
		return time.Time{}, err
	}
	if value == nil {
		return time.Time{}, chainErrors.NotFound("Timestamp::Now at %s", at.Hex())
	}
	millis, err := scale.DecodeU64(*value)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(millis)), nil
}

// QueryStorage returns the change sets of keys for every block in [from, to]. A nil to means
// the best block.
func (c *Client) QueryStorage(ctx context.Context, keys []chainTypes.StorageKey, from common.Hash, to *common.Hash) ([]*chainTypes.ChangeSet, error) {
	res, err := c.Call(ctx, c.NewRequest(RPCMethod_QueryStorage, keys, from, atParam(to)))
	if err != nil {
		return nil, err
	}
	return decodeResult[[]*chainTypes.ChangeSet](RPCMethod_QueryStorage, res)
}

// GetBlock returns the block with the given hash, or the best block when at is nil.
func (c *Client) GetBlock(ctx context.Context, at *common.Hash) (*chainTypes.SignedBlock, error) {
	res, err := c.Call(ctx, c.NewRequest(RPCMethod_GetBlock, atParam(at)))
	if err != nil {
		return nil, err
	}
	if res.IsNull() {
		return nil, chainErrors.NotFound("block")
	}
	return decodeResult[*chainTypes.SignedBlock](RPCMethod_GetBlock, res)
}

// GetBlockHashes resolves many block numbers in one batch.
func (c *Client) GetBlockHashes(ctx context.Context, numbers []uint32) ([]common.Hash, error) {
	requests := make([]*RPCRequest, 0, len(numbers))
	for _, n := range numbers {
		requests = append(requests, c.NewRequest(RPCMethod_GetBlockHash, n))
	}
	responses, err := c.BatchCall(ctx, requests)
	if err != nil {
		return nil, err
	}
	hashes := make([]common.Hash, 0, len(responses))
	for i, res := range responses {
		if res.IsNull() {
			return nil, chainErrors.NotFound("block hash for #%d", numbers[i])
		}
		h, err := decodeResult[common.Hash](RPCMethod_GetBlockHash, res)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}
