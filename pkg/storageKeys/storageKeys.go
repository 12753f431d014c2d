// Package storageKeys derives the raw storage keys of the well-known values the locator reads.
//
// A plain storage value lives under twox128(pallet) ++ twox128(item). twox128 is the
// concatenation of two little-endian xxHash64 digests seeded with 0 and 1.
package storageKeys

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

const (
	// StorageVersionItem is the item name FRAME stores a pallet's on-chain storage version under.
	StorageVersionItem = ":__STORAGE_VERSION__:"

	// MigrationInProgressItem is the item whose presence marks a multi-block migration as running.
	MigrationInProgressItem = "MigrationInProgress"

	// DefaultPallet is the pallet whose storage version is tracked when none is configured.
	DefaultPallet = "Contracts"
)

// ChildStorageKeyPrefix marks a root key that addresses a default child trie.
var ChildStorageKeyPrefix = []byte(":child_storage:default:")

// Twox128 hashes data the way FRAME hashes pallet and item names.
func Twox128(data []byte) []byte {
	out := make([]byte, 0, 16)
	for seed := uint64(0); seed < 2; seed++ {
		d := xxhash.NewWithSeed(seed)
		_, _ = d.Write(data)
		out = binary.LittleEndian.AppendUint64(out, d.Sum64())
	}
	return out
}

// StoragePrefix returns twox128(pallet) ++ twox128(item).
func StoragePrefix(pallet string, item string) []byte {
	return append(Twox128([]byte(pallet)), Twox128([]byte(item))...)
}

// SystemNumber is the key of System::Number, the current block height.
func SystemNumber() []byte {
	return StoragePrefix("System", "Number")
}

// TimestampNow is the key of Timestamp::Now, milliseconds since the epoch.
func TimestampNow() []byte {
	return StoragePrefix("Timestamp", "Now")
}

// PalletKeys holds the keys of the monitored pallet.
type PalletKeys struct {
	Pallet              string
	StorageVersion      []byte
	MigrationInProgress []byte
}

// NewPalletKeys derives the monitored keys for pallet, falling back to DefaultPallet.
func NewPalletKeys(pallet string) *PalletKeys {
	if pallet == "" {
		pallet = DefaultPallet
	}
	return &PalletKeys{
		Pallet:              pallet,
		StorageVersion:      StoragePrefix(pallet, StorageVersionItem),
		MigrationInProgress: StoragePrefix(pallet, MigrationInProgressItem),
	}
}

// IsChildTrieKey reports whether a root key addresses a child trie namespace.
func IsChildTrieKey(key []byte) bool {
	return bytes.HasPrefix(key, ChildStorageKeyPrefix)
}
