package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/bucket"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/metrics"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/model"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// putFailingStore delegates to a real store but lets tests fail Put per table
type putFailingStore struct {
	store.Store
	mock.Mock
}

func (m *putFailingStore) Put(ctx context.Context, table, partition string, key store.Key, value []byte) error {
	args := m.Called(table)
	if err := args.Error(0); err != nil {
		return err
	}
	return m.Store.Put(ctx, table, partition, key, value)
}

type fixture struct {
	store       store.Store
	buckets     *bucket.Directory
	metrics     *metrics.Metrics
	assignments *AssignmentStore
	revisions   *RevisionIndex
	latest      *LatestRevisionTracker
}

func newFixture(s store.Store, ceiling int64) *fixture {
	logger := zap.NewNop()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	dir := bucket.NewDirectory(s, map[model.Purpose]int64{
		model.PurposeAssignment:     ceiling,
		model.PurposeRevision:       ceiling,
		model.PurposeLatestRevision: ceiling,
	}, logger, m)

	return &fixture{
		store:       s,
		buckets:     dir,
		metrics:     m,
		assignments: NewAssignmentStore(s, dir, logger, m),
		revisions:   NewRevisionIndex(s, dir, logger, m),
		latest:      NewLatestRevisionTracker(s, dir, logger, m),
	}
}

func newMemoryFixture(ceiling int64) *fixture {
	return newFixture(store.NewMemoryStore(zap.NewNop()), ceiling)
}

func cloudID(i int) string {
	return fmt.Sprintf("C%06d", i)
}

func bucketCount(t *testing.T, f *fixture, purpose model.Purpose, ownerKey string) int {
	t.Helper()
	all, err := f.buckets.GetAllBuckets(context.Background(), purpose, ownerKey)
	require.NoError(t, err)
	return len(all)
}
