package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"
	ldb_util "github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

// counterSize is the fixed big-endian counter header stored before every value
const counterSize = 8

// LevelDBStore implements Store on an embedded LevelDB database. Every row
// lives under EncodeKey(table, partition) + EncodeKey(clustering key), so a
// partition is a contiguous key range.
type LevelDBStore struct {
	db *leveldb.DB

	// serialises read-modify-write operations; LevelDB has no conditional writes
	writeLock sync.Mutex
	logger    *zap.Logger
}

// NewLevelDBStore opens (or creates) a LevelDB database at path
func NewLevelDBStore(path string, logger *zap.Logger) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, &ldb_opt.Options{
		ErrorIfMissing: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}

	logger.Info("LevelDB store opened", zap.String("path", path))

	return &LevelDBStore{
		db:     db,
		logger: logger,
	}, nil
}

func partitionPrefix(table, partition string) []byte {
	return EncodeKey(Key{table, partition})
}

func rowKey(table, partition string, key Key) []byte {
	return append(partitionPrefix(table, partition), EncodeKey(key)...)
}

func packValue(counter int64, value []byte) []byte {
	out := make([]byte, counterSize+len(value))
	binary.BigEndian.PutUint64(out, uint64(counter))
	copy(out[counterSize:], value)
	return out
}

func unpackValue(raw []byte) (int64, []byte, error) {
	if len(raw) < counterSize {
		return 0, nil, fmt.Errorf("corrupted row: %d bytes", len(raw))
	}
	value := make([]byte, len(raw)-counterSize)
	copy(value, raw[counterSize:])
	return int64(binary.BigEndian.Uint64(raw)), value, nil
}

// Get retrieves a single row
func (s *LevelDBStore) Get(ctx context.Context, table, partition string, key Key) (*Row, error) {
	raw, err := s.db.Get(rowKey(table, partition, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	counter, value, err := unpackValue(raw)
	if err != nil {
		return nil, err
	}
	return &Row{Key: key, Value: value, Counter: counter}, nil
}

// Put inserts or replaces a row value, keeping its counter
func (s *LevelDBStore) Put(ctx context.Context, table, partition string, key Key, value []byte) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	k := rowKey(table, partition, key)
	var counter int64
	raw, err := s.db.Get(k, nil)
	switch {
	case err == nil:
		if counter, _, err = unpackValue(raw); err != nil {
			return err
		}
	case err != leveldb.ErrNotFound:
		return err
	}
	return s.db.Put(k, packValue(counter, value), nil)
}

// InsertIfNotExists inserts a row only when the key is absent
func (s *LevelDBStore) InsertIfNotExists(ctx context.Context, table, partition string, key Key, value []byte) (bool, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	k := rowKey(table, partition, key)
	exists, err := s.db.Has(k, nil)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := s.db.Put(k, packValue(0, value), nil); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteIfExists deletes a row and reports whether it was present
func (s *LevelDBStore) DeleteIfExists(ctx context.Context, table, partition string, key Key) (bool, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	k := rowKey(table, partition, key)
	exists, err := s.db.Has(k, nil)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if err := s.db.Delete(k, nil); err != nil {
		return false, err
	}
	return true, nil
}

// Query scans a partition in key order
func (s *LevelDBStore) Query(ctx context.Context, table, partition string, q Query) (*Page, error) {
	base := partitionPrefix(table, partition)
	lo, hi := keyRange(q)

	searchRange := &ldb_util.Range{
		Start: append(append([]byte{}, base...), lo...),
	}
	if hi != nil {
		searchRange.Limit = append(append([]byte{}, base...), hi...)
	} else {
		searchRange.Limit = prefixEnd(base)
	}

	iter := s.db.NewIterator(searchRange, nil)
	defer iter.Release()

	page := &Page{Rows: make([]Row, 0)}
	var ok bool
	if q.Reverse {
		ok = iter.Last()
	} else {
		ok = iter.First()
	}
	for ; ok; ok = s.advance(iter, q.Reverse) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if q.Limit > 0 && len(page.Rows) == q.Limit {
			page.More = true
			break
		}

		// contents of Key and Value are only valid until the next call to Next
		key, err := DecodeKey(iter.Key()[len(base):])
		if err != nil {
			return nil, err
		}
		counter, value, err := unpackValue(iter.Value())
		if err != nil {
			return nil, err
		}
		page.Rows = append(page.Rows, Row{Key: key, Value: value, Counter: counter})
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return page, nil
}

func (s *LevelDBStore) advance(iter interface {
	Next() bool
	Prev() bool
}, reverse bool) bool {
	if reverse {
		return iter.Prev()
	}
	return iter.Next()
}

// Increment adds delta to the counter of an existing row
func (s *LevelDBStore) Increment(ctx context.Context, table, partition string, key Key, delta int64) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	k := rowKey(table, partition, key)
	raw, err := s.db.Get(k, nil)
	if err == leveldb.ErrNotFound {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	counter, value, err := unpackValue(raw)
	if err != nil {
		return err
	}
	return s.db.Put(k, packValue(counter+delta, value), nil)
}

// DeletePartition drops every row of a partition in one batch
func (s *LevelDBStore) DeletePartition(ctx context.Context, table, partition string) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	iter := s.db.NewIterator(ldb_util.BytesPrefix(partitionPrefix(table, partition)), nil)
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte{}, iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}
	return s.db.Write(batch, nil)
}

// Ping checks that the database is still open
func (s *LevelDBStore) Ping(ctx context.Context) error {
	_, err := s.db.GetProperty("leveldb.num-files-at-level0")
	return err
}

// Close closes the database
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
