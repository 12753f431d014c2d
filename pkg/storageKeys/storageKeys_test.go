package storageKeys

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
)

func Test_StorageKeys(t *testing.T) {
	t.Run("Should derive System::Number", func(t *testing.T) {
		assert.Equal(t,
			"0x26aa394eea5630e07c48ae0c9558cef702a5c1b19ab7a04f536c519aca4983ac",
			hexutil.Encode(SystemNumber()),
		)
	})
	t.Run("Should derive Timestamp::Now", func(t *testing.T) {
		assert.Equal(t,
			"0xf0c365c3cf59d671eb72da0e7a4113c49f1f0515f462cdcf84e0f1d6045dfcbb",
			hexutil.Encode(TimestampNow()),
		)
	})
	t.Run("Should suffix the storage version item hash", func(t *testing.T) {
		keys := NewPalletKeys("")
		assert.Equal(t, DefaultPallet, keys.Pallet)
		assert.Len(t, keys.StorageVersion, 32)
		assert.Equal(t, "0x4e7b9012096b41c4eb3aaf947f6ea429", hexutil.Encode(keys.StorageVersion[16:]))
		assert.Equal(t, keys.StorageVersion[:16], keys.MigrationInProgress[:16])
	})
	t.Run("Should detect child trie root keys", func(t *testing.T) {
		assert.True(t, IsChildTrieKey([]byte(":child_storage:default:contract-1")))
		assert.False(t, IsChildTrieKey([]byte(":code")))
		assert.False(t, IsChildTrieKey(SystemNumber()))
	})
}
