package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	catalogerrors "github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/errors"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/model"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var created = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func addAssignments(t *testing.T, f *fixture, providerID, dataSetID string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		require.NoError(t, f.assignments.Add(ctx, &model.Assignment{
			ProviderID:   providerID,
			DataSetID:    dataSetID,
			CloudID:      cloudID(i),
			Schema:       "edm",
			Version:      "v1",
			CreationDate: created,
		}))
	}
}

func listAllAssignments(t *testing.T, f *fixture, providerID, dataSetID string, limit int) ([]model.Assignment, int) {
	t.Helper()
	ctx := context.Background()

	var (
		all   []model.Assignment
		token string
		pages int
	)
	for {
		res, err := f.assignments.List(ctx, providerID, dataSetID, token, limit)
		require.NoError(t, err)
		require.LessOrEqual(t, len(res.Items), limit)
		all = append(all, res.Items...)
		pages++
		if res.NextToken == "" {
			return all, pages
		}
		token = res.NextToken
	}
}

func TestAssignmentStore_ListReturnsEveryAssignmentOnce(t *testing.T) {
	f := newMemoryFixture(7)
	addAssignments(t, f, "P1", "D1", 30)
	assert.Equal(t, 5, bucketCount(t, f, model.PurposeAssignment, "P1/D1"))

	for _, limit := range []int{1, 3, 7, 10, 30, 100} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			all, _ := listAllAssignments(t, f, "P1", "D1", limit)
			require.Len(t, all, 30)

			seen := make(map[string]bool)
			for _, a := range all {
				assert.False(t, seen[a.CloudID], "duplicate %s", a.CloudID)
				seen[a.CloudID] = true
				assert.Equal(t, "edm", a.Schema)
				assert.Equal(t, "v1", a.Version)
				assert.True(t, created.Equal(a.CreationDate))
			}
		})
	}
}

func TestAssignmentStore_RolloverAtCeilingPlusOne(t *testing.T) {
	f := newMemoryFixture(10)
	addAssignments(t, f, "P1", "D1", 11)

	assert.GreaterOrEqual(t, bucketCount(t, f, model.PurposeAssignment, "P1/D1"), 2)
	all, _ := listAllAssignments(t, f, "P1", "D1", 4)
	assert.Len(t, all, 11)
}

func TestAssignmentStore_ScaledPageCount(t *testing.T) {
	// 2500 assignments with a ceiling of 1000 and pages of 10
	f := newMemoryFixture(1000)
	addAssignments(t, f, "P1", "D1", 2500)

	all, pages := listAllAssignments(t, f, "P1", "D1", 10)
	assert.Len(t, all, 2500)
	assert.Equal(t, 250, pages)
}

func TestAssignmentStore_ExistsAndReverseLookup(t *testing.T) {
	f := newMemoryFixture(100)
	ctx := context.Background()

	for _, ds := range []string{"D1", "D2"} {
		require.NoError(t, f.assignments.Add(ctx, &model.Assignment{
			ProviderID: "P1", DataSetID: ds, CloudID: "C1", Schema: "edm", Version: "v1", CreationDate: created,
		}))
	}

	exists, err := f.assignments.Exists(ctx, "P1", "D1", "C1", "edm", "v1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = f.assignments.Exists(ctx, "P1", "D1", "C1", "edm", "v2")
	require.NoError(t, err)
	assert.False(t, exists)

	refs, err := f.assignments.ListDataSetsForVersion(ctx, "C1", "edm", "v1")
	require.NoError(t, err)
	assert.Equal(t, []model.DataSetRef{{ProviderID: "P1", DataSetID: "D1"}, {ProviderID: "P1", DataSetID: "D2"}}, refs)
}

func TestAssignmentStore_RemoveIsIdempotent(t *testing.T) {
	f := newMemoryFixture(3)
	addAssignments(t, f, "P1", "D1", 8)
	ctx := context.Background()

	removed, err := f.assignments.Remove(ctx, "P1", "D1", cloudID(5), "edm", "v1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.assignments.Remove(ctx, "P1", "D1", cloudID(5), "edm", "v1")
	require.NoError(t, err)
	assert.False(t, removed)

	exists, err := f.assignments.Exists(ctx, "P1", "D1", cloudID(5), "edm", "v1")
	require.NoError(t, err)
	assert.False(t, exists)

	all, _ := listAllAssignments(t, f, "P1", "D1", 100)
	assert.Len(t, all, 7)
	for _, a := range all {
		assert.NotEqual(t, cloudID(5), a.CloudID)
	}

	buckets, err := f.buckets.GetAllBuckets(ctx, model.PurposeAssignment, "P1/D1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), buckets[1].RowsCount)
}

func TestAssignmentStore_RemoveClearsDuplicateRows(t *testing.T) {
	f := newMemoryFixture(1)
	ctx := context.Background()
	a := &model.Assignment{ProviderID: "P1", DataSetID: "D1", CloudID: "C1", Schema: "edm", Version: "v1", CreationDate: created}

	require.NoError(t, f.assignments.Add(ctx, a))

	// concurrent adders of one assignment can each land a forward row
	b, err := f.buckets.ResolveWriteBucket(ctx, model.PurposeAssignment, "P1/D1")
	require.NoError(t, err)
	inserted, err := f.store.InsertIfNotExists(ctx, TableAssignmentsByDataSet, forwardPartition("P1/D1", b.BucketID),
		store.Key{"edm", "C1", "v1"}, []byte(`{"creation_date":"2024-03-01T10:00:00Z"}`))
	require.NoError(t, err)
	require.True(t, inserted)
	f.buckets.IncreaseBucketCount(ctx, b)

	all, _ := listAllAssignments(t, f, "P1", "D1", 10)
	require.Len(t, all, 2)

	removed, err := f.assignments.Remove(ctx, "P1", "D1", "C1", "edm", "v1")
	require.NoError(t, err)
	assert.True(t, removed)

	all, _ = listAllAssignments(t, f, "P1", "D1", 10)
	assert.Empty(t, all)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.DuplicateRows.WithLabelValues("assignment")))
}

func TestAssignmentStore_HasAnyAssignment(t *testing.T) {
	f := newMemoryFixture(2)
	ctx := context.Background()

	has, err := f.assignments.HasAnyAssignment(ctx, "P1", "D1", "")
	require.NoError(t, err)
	assert.False(t, has)

	addAssignments(t, f, "P1", "D1", 5)
	require.NoError(t, f.assignments.Add(ctx, &model.Assignment{
		ProviderID: "P1", DataSetID: "D1", CloudID: "X", Schema: "mets", Version: "v1", CreationDate: created,
	}))

	has, err = f.assignments.HasAnyAssignment(ctx, "P1", "D1", "mets")
	require.NoError(t, err)
	assert.True(t, has)

	_, err = f.assignments.Remove(ctx, "P1", "D1", "X", "mets", "v1")
	require.NoError(t, err)

	has, err = f.assignments.HasAnyAssignment(ctx, "P1", "D1", "mets")
	require.NoError(t, err)
	assert.False(t, has)

	has, err = f.assignments.HasAnyAssignment(ctx, "P1", "D1", "")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestAssignmentStore_ReverseWriteFailureIsSurfaced(t *testing.T) {
	s := &putFailingStore{Store: store.NewMemoryStore(zap.NewNop())}
	s.On("Put", TableAssignmentsByRepresentation).Return(errors.New("timeout")).Once()
	s.On("Put", TableAssignmentsByRepresentation).Return(nil)
	f := newFixture(s, 100)
	ctx := context.Background()
	a := &model.Assignment{ProviderID: "P1", DataSetID: "D1", CloudID: "C1", Schema: "edm", Version: "v1", CreationDate: created}

	err := f.assignments.Add(ctx, a)
	require.Error(t, err)
	assert.True(t, catalogerrors.IsStoreUnavailable(err))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.InconsistentState.WithLabelValues("reverse_index")))

	// retrying converges without a second forward row
	require.NoError(t, f.assignments.Add(ctx, a))
	exists, err := f.assignments.Exists(ctx, "P1", "D1", "C1", "edm", "v1")
	require.NoError(t, err)
	assert.True(t, exists)

	all, _ := listAllAssignments(t, f, "P1", "D1", 10)
	assert.Len(t, all, 1)

	buckets, err := f.buckets.GetAllBuckets(ctx, model.PurposeAssignment, "P1/D1")
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(1), buckets[0].RowsCount)
}

func TestAssignmentStore_RetryAfterFillingBucketDoesNotDuplicate(t *testing.T) {
	s := &putFailingStore{Store: store.NewMemoryStore(zap.NewNop())}
	s.On("Put", TableAssignmentsByRepresentation).Return(errors.New("timeout")).Once()
	s.On("Put", TableAssignmentsByRepresentation).Return(nil)
	f := newFixture(s, 3)
	ctx := context.Background()

	// two rows leave the bucket at ceiling-1, the failed add fills it
	for _, cloud := range []string{"A", "B"} {
		require.NoError(t, f.assignments.Add(ctx, &model.Assignment{
			ProviderID: "P1", DataSetID: "D1", CloudID: cloud, Schema: "edm", Version: "v1", CreationDate: created,
		}))
	}
	x := &model.Assignment{ProviderID: "P1", DataSetID: "D1", CloudID: "X", Schema: "edm", Version: "v1", CreationDate: created}
	require.Error(t, f.assignments.Add(ctx, x))

	exists, err := f.assignments.Exists(ctx, "P1", "D1", "X", "edm", "v1")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, f.assignments.Add(ctx, x))

	all, _ := listAllAssignments(t, f, "P1", "D1", 10)
	copies := 0
	for _, a := range all {
		if a.CloudID == "X" {
			copies++
		}
	}
	assert.Len(t, all, 3)
	assert.Equal(t, 1, copies)

	buckets, err := f.buckets.GetAllBuckets(ctx, model.PurposeAssignment, "P1/D1")
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(3), buckets[0].RowsCount)

	exists, err = f.assignments.Exists(ctx, "P1", "D1", "X", "edm", "v1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAssignmentStore_ConcurrentWritersListEveryRowOnce(t *testing.T) {
	const (
		writers   = 16
		perWriter = 50
	)
	f := newMemoryFixture(5)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				errs <- f.assignments.Add(ctx, &model.Assignment{
					ProviderID:   "P1",
					DataSetID:    "D1",
					CloudID:      cloudID(w*perWriter + i),
					Schema:       "edm",
					Version:      "v1",
					CreationDate: created,
				})
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, limit := range []int{1, 7, 100} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			all, _ := listAllAssignments(t, f, "P1", "D1", limit)
			seen := make(map[string]bool, len(all))
			for _, a := range all {
				assert.False(t, seen[a.CloudID], "duplicate %s", a.CloudID)
				seen[a.CloudID] = true
			}
			assert.Len(t, all, writers*perWriter)
			assert.Len(t, seen, writers*perWriter)
		})
	}
	assert.Greater(t, bucketCount(t, f, model.PurposeAssignment, "P1/D1"), 1)
}

func TestAssignmentStore_ListErrors(t *testing.T) {
	f := newMemoryFixture(5)
	addAssignments(t, f, "P1", "D1", 3)
	ctx := context.Background()

	_, err := f.assignments.List(ctx, "P1", "D1", "", 0)
	assert.Equal(t, catalogerrors.ErrCodeInvalidArgument, catalogerrors.GetCode(err))

	_, err = f.assignments.List(ctx, "P1", "D1", "garbage", 10)
	assert.True(t, catalogerrors.IsMalformedToken(err))

	first, err := f.buckets.GetFirstBucket(ctx, model.PurposeAssignment, "P1/D1")
	require.NoError(t, err)
	_, err = f.assignments.List(ctx, "P1", "D1", "zz_"+first.BucketID, 10)
	assert.True(t, catalogerrors.IsMalformedToken(err))
}

func TestAssignmentStore_RepresentationNames(t *testing.T) {
	f := newMemoryFixture(5)
	ctx := context.Background()

	require.NoError(t, f.assignments.AddRepresentationName(ctx, "P1", "D1", "mets"))
	require.NoError(t, f.assignments.AddRepresentationName(ctx, "P1", "D1", "edm"))
	require.NoError(t, f.assignments.AddRepresentationName(ctx, "P1", "D1", "edm"))

	names, err := f.assignments.ListRepresentationNames(ctx, "P1", "D1")
	require.NoError(t, err)
	assert.Equal(t, []string{"edm", "mets"}, names)

	require.NoError(t, f.assignments.RemoveRepresentationName(ctx, "P1", "D1", "mets"))
	names, err = f.assignments.ListRepresentationNames(ctx, "P1", "D1")
	require.NoError(t, err)
	assert.Equal(t, []string{"edm"}, names)

	require.NoError(t, f.assignments.DeleteRepresentationNames(ctx, "P1", "D1"))
	names, err = f.assignments.ListRepresentationNames(ctx, "P1", "D1")
	require.NoError(t, err)
	assert.Empty(t, names)
}
