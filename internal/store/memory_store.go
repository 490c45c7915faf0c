package store

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
	"go.uber.org/zap"
)

const memoryBTreeDegree = 32

type memoryRow struct {
	encoded []byte
	key     Key
	value   []byte
	counter int64
}

func lessMemoryRow(a, b *memoryRow) bool {
	return bytes.Compare(a.encoded, b.encoded) < 0
}

// MemoryStore implements Store with one B-tree per partition
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]*btree.BTreeG[*memoryRow]
	logger     *zap.Logger
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		partitions: make(map[string]*btree.BTreeG[*memoryRow]),
		logger:     logger,
	}
}

func memoryPartitionID(table, partition string) string {
	return table + "\x00" + partition
}

func (s *MemoryStore) partition(table, partition string, create bool) *btree.BTreeG[*memoryRow] {
	id := memoryPartitionID(table, partition)
	tree, ok := s.partitions[id]
	if !ok && create {
		tree = btree.NewG(memoryBTreeDegree, lessMemoryRow)
		s.partitions[id] = tree
	}
	return tree
}

func copyRow(r *memoryRow) Row {
	value := make([]byte, len(r.value))
	copy(value, r.value)
	key := make(Key, len(r.key))
	copy(key, r.key)
	return Row{Key: key, Value: value, Counter: r.counter}
}

func newMemoryRow(key Key, value []byte) *memoryRow {
	k := make(Key, len(key))
	copy(k, key)
	v := make([]byte, len(value))
	copy(v, value)
	return &memoryRow{encoded: EncodeKey(key), key: k, value: v}
}

// Get retrieves a single row
func (s *MemoryStore) Get(ctx context.Context, table, partition string, key Key) (*Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree := s.partition(table, partition, false)
	if tree == nil {
		return nil, ErrNotFound
	}
	item, ok := tree.Get(&memoryRow{encoded: EncodeKey(key)})
	if !ok {
		return nil, ErrNotFound
	}
	row := copyRow(item)
	return &row, nil
}

// Put inserts or replaces a row value, keeping its counter
func (s *MemoryStore) Put(ctx context.Context, table, partition string, key Key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.partition(table, partition, true)
	row := newMemoryRow(key, value)
	if existing, ok := tree.Get(row); ok {
		row.counter = existing.counter
	}
	tree.ReplaceOrInsert(row)
	return nil
}

// InsertIfNotExists inserts a row only when the key is absent
func (s *MemoryStore) InsertIfNotExists(ctx context.Context, table, partition string, key Key, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.partition(table, partition, true)
	row := newMemoryRow(key, value)
	if tree.Has(row) {
		return false, nil
	}
	tree.ReplaceOrInsert(row)
	return true, nil
}

// DeleteIfExists deletes a row and reports whether it was present
func (s *MemoryStore) DeleteIfExists(ctx context.Context, table, partition string, key Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.partition(table, partition, false)
	if tree == nil {
		return false, nil
	}
	_, ok := tree.Delete(&memoryRow{encoded: EncodeKey(key)})
	if tree.Len() == 0 {
		delete(s.partitions, memoryPartitionID(table, partition))
	}
	return ok, nil
}

// Query scans a partition in key order
func (s *MemoryStore) Query(ctx context.Context, table, partition string, q Query) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	page := &Page{Rows: make([]Row, 0)}
	tree := s.partition(table, partition, false)
	if tree == nil {
		return page, nil
	}

	lo, hi := keyRange(q)
	visit := func(item *memoryRow) bool {
		if !inRange(item.encoded, lo, hi) {
			// Ascending scans stop past hi, descending scans stop below lo.
			if q.Reverse {
				return lo == nil || bytes.Compare(item.encoded, lo) >= 0
			}
			return hi == nil || bytes.Compare(item.encoded, hi) < 0
		}
		if q.Limit > 0 && len(page.Rows) == q.Limit {
			page.More = true
			return false
		}
		page.Rows = append(page.Rows, copyRow(item))
		return true
	}

	if q.Reverse {
		if hi == nil {
			tree.Descend(visit)
		} else {
			tree.DescendLessOrEqual(&memoryRow{encoded: hi}, visit)
		}
	} else {
		if lo == nil {
			tree.Ascend(visit)
		} else {
			tree.AscendGreaterOrEqual(&memoryRow{encoded: lo}, visit)
		}
	}
	return page, nil
}

// Increment adds delta to the counter of an existing row
func (s *MemoryStore) Increment(ctx context.Context, table, partition string, key Key, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.partition(table, partition, false)
	if tree == nil {
		return ErrNotFound
	}
	existing, ok := tree.Get(&memoryRow{encoded: EncodeKey(key)})
	if !ok {
		return ErrNotFound
	}
	existing.counter += delta
	return nil
}

// DeletePartition drops every row of a partition
func (s *MemoryStore) DeletePartition(ctx context.Context, table, partition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.partitions, memoryPartitionID(table, partition))
	return nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close releases all partitions
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.partitions = make(map[string]*btree.BTreeG[*memoryRow])
	return nil
}
