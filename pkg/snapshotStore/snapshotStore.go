// Package snapshotStore persists storage snapshots into a LevelDB directory and reads them back.
//
// Layout:
//
//	m:block                      JSON block identity
//	r:<key>                      root entry
//	n:<u32 ordinal>              child trie namespace, in insertion order
//	c:<u32 len(ns)><ns><key>     child trie entry
//
// Values are stored with a one byte tag so that absent values survive the round trip.
package snapshotStore

import (
	"encoding/binary"
	"encoding/json"

	"github.com/Layr-Labs/storage-locator/pkg/chainTypes"
	"github.com/Layr-Labs/storage-locator/pkg/childTrieFetcher"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

var (
	blockKey        = []byte("m:block")
	rootPrefix      = []byte("r:")
	namespacePrefix = []byte("n:")
	childPrefix     = []byte("c:")
)

const (
	tagAbsent  byte = 0x00
	tagPresent byte = 0x01
)

// Snapshot is the storage of one block.
type Snapshot struct {
	Block      chainTypes.BlockIdentity       `json:"block"`
	Entries    []*chainTypes.StorageEntry     `json:"entries"`
	ChildTries *childTrieFetcher.ChildTrieMap `json:"childTries,omitempty"`
}

type SnapshotStore struct {
	db     *leveldb.DB
	logger *zap.Logger
}

// NewSnapshotStore opens, or creates, the LevelDB database at path.
func NewSnapshotStore(path string, l *zap.Logger) (*SnapshotStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open snapshot store at %s", path)
	}
	return &SnapshotStore{db: db, logger: l}, nil
}

func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

func withPrefix(prefix []byte, parts ...[]byte) []byte {
	out := append([]byte{}, prefix...)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func childScope(namespace []byte) []byte {
	return withPrefix(childPrefix, binary.BigEndian.AppendUint32(nil, uint32(len(namespace))), namespace)
}

func encodeValue(value *hexutil.Bytes) []byte {
	if value == nil {
		return []byte{tagAbsent}
	}
	return append([]byte{tagPresent}, *value...)
}

func decodeValue(raw []byte) (*hexutil.Bytes, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty stored value")
	}
	switch raw[0] {
	case tagAbsent:
		return nil, nil
	case tagPresent:
		v := hexutil.Bytes(append([]byte{}, raw[1:]...))
		return &v, nil
	default:
		return nil, errors.Errorf("unknown value tag %#x", raw[0])
	}
}

// Save replaces whatever the store held with snapshot, in a single batch.
func (s *SnapshotStore) Save(snapshot *Snapshot) error {
	batch := new(leveldb.Batch)

	iter := s.db.NewIterator(nil, nil)
	for iter.Next() {
		batch.Delete(append([]byte{}, iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return errors.Wrap(err, "failed to clear snapshot store")
	}

	block, err := json.Marshal(snapshot.Block)
	if err != nil {
		return errors.Wrap(err, "failed to encode block identity")
	}
	batch.Put(blockKey, block)

	for _, entry := range snapshot.Entries {
		batch.Put(withPrefix(rootPrefix, entry.Key), encodeValue(entry.Value))
	}

	if snapshot.ChildTries != nil {
		ordinal := uint32(0)
		err := snapshot.ChildTries.Each(func(namespace []byte, entries []*chainTypes.StorageEntry) error {
			batch.Put(withPrefix(namespacePrefix, binary.BigEndian.AppendUint32(nil, ordinal)), namespace)
			ordinal++
			scope := childScope(namespace)
			for _, entry := range entries {
				batch.Put(withPrefix(scope, entry.Key), encodeValue(entry.Value))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	if err := s.db.Write(batch, nil); err != nil {
		s.logger.Sugar().Errorw("Failed to write snapshot", zap.Error(err))
		return errors.Wrap(err, "failed to write snapshot")
	}
	s.logger.Sugar().Infow("Saved snapshot",
		zap.Uint32("blockNumber", snapshot.Block.Number),
		zap.Int("entries", len(snapshot.Entries)),
		zap.Int("records", batch.Len()),
	)
	return nil
}

func (s *SnapshotStore) scan(prefix []byte) ([]*chainTypes.StorageEntry, error) {
	entries := make([]*chainTypes.StorageEntry, 0)
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		value, err := decodeValue(iter.Value())
		if err != nil {
			return nil, errors.Wrapf(err, "corrupt entry %s", hexutil.Encode(iter.Key()))
		}
		entries = append(entries, &chainTypes.StorageEntry{
			Key:   chainTypes.StorageKey(append([]byte{}, iter.Key()[len(prefix):]...)),
			Value: value,
		})
	}
	return entries, iter.Error()
}

// Load reads the stored snapshot. Root entries come back in key order and child tries in the
// order they were saved.
func (s *SnapshotStore) Load() (*Snapshot, error) {
	raw, err := s.db.Get(blockKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, errors.New("snapshot store is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read block identity")
	}

	snapshot := &Snapshot{}
	if err := json.Unmarshal(raw, &snapshot.Block); err != nil {
		return nil, errors.Wrap(err, "failed to decode block identity")
	}

	if snapshot.Entries, err = s.scan(rootPrefix); err != nil {
		return nil, err
	}

	namespaces := make([][]byte, 0)
	iter := s.db.NewIterator(util.BytesPrefix(namespacePrefix), nil)
	for iter.Next() {
		namespaces = append(namespaces, append([]byte{}, iter.Value()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to read namespaces")
	}

	if len(namespaces) > 0 {
		snapshot.ChildTries = childTrieFetcher.NewChildTrieMap()
		for _, ns := range namespaces {
			entries, err := s.scan(childScope(ns))
			if err != nil {
				return nil, err
			}
			snapshot.ChildTries.Set(ns, entries)
		}
	}
	return snapshot, nil
}
