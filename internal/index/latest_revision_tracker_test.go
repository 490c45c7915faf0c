package index

import (
	"context"
	"testing"
	"time"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/model"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func latestKey(cloud string) model.LatestRevisionKey {
	return model.LatestRevisionKey{
		ProviderID:         "P1",
		DataSetID:          "D1",
		RepresentationID:   "edm",
		RevisionName:       "R",
		RevisionProviderID: "RP",
		CloudID:            cloud,
	}
}

func latestEntry(cloud string, ts time.Time, deleted bool) *model.LatestRevisionEntry {
	return &model.LatestRevisionEntry{
		LatestRevisionKey: latestKey(cloud),
		MarkDeleted:       deleted,
		Timestamp:         ts,
	}
}

// liveRows counts the rows stored for key across every bucket and flag
func liveRows(t *testing.T, f *fixture, key model.LatestRevisionKey) int {
	t.Helper()
	ctx := context.Background()
	buckets, err := f.buckets.GetAllBuckets(ctx, model.PurposeLatestRevision, "P1/D1")
	require.NoError(t, err)

	n := 0
	for _, loc := range everyLocation {
		for _, b := range buckets {
			_, err := f.store.Get(ctx, TableLatestRevisions, latestPartition(b.BucketID, &key, loc), store.Key{key.CloudID})
			if err == nil {
				n++
			}
		}
	}
	return n
}

func TestPriorLocations_OppositeFlagFirst(t *testing.T) {
	assert.Equal(t, []flagLocation{{markDeleted: true}, {markDeleted: false}}, priorLocations(false))
	assert.Equal(t, []flagLocation{{markDeleted: false}, {markDeleted: true}}, priorLocations(true))
}

func TestLatestRevisionTracker_UpsertTwiceKeepsOneEntry(t *testing.T) {
	f := newMemoryFixture(100)
	ctx := context.Background()
	key := latestKey("C1")

	ts, err := f.latest.GetLatestTimestamp(ctx, &key)
	require.NoError(t, err)
	assert.Nil(t, ts)

	require.NoError(t, f.latest.Upsert(ctx, latestEntry("C1", t1, false)))
	require.NoError(t, f.latest.Upsert(ctx, latestEntry("C1", t2, false)))

	ts, err = f.latest.GetLatestTimestamp(ctx, &key)
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.True(t, t2.Equal(*ts))
	assert.Equal(t, 1, liveRows(t, f, key))
}

func TestLatestRevisionTracker_FlagFlipStaysInBucket(t *testing.T) {
	f := newMemoryFixture(1)
	ctx := context.Background()
	key := latestKey("C1")

	first := latestEntry("C1", t1, false)
	require.NoError(t, f.latest.Upsert(ctx, first))

	// fill the bucket so any fresh write would roll over
	require.NoError(t, f.latest.Upsert(ctx, latestEntry("C2", t1, false)))
	require.Equal(t, 2, bucketCount(t, f, model.PurposeLatestRevision, "P1/D1"))

	flipped := latestEntry("C1", t2, true)
	require.NoError(t, f.latest.Upsert(ctx, flipped))
	assert.Equal(t, first.BucketID, flipped.BucketID)
	assert.Equal(t, 2, bucketCount(t, f, model.PurposeLatestRevision, "P1/D1"))

	e, err := f.latest.Lookup(ctx, &key)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.MarkDeleted)
	assert.True(t, t2.Equal(e.Timestamp))
	assert.Equal(t, 1, liveRows(t, f, key))

	// and back again
	require.NoError(t, f.latest.Upsert(ctx, latestEntry("C1", t2.Add(time.Minute), false)))
	e, err = f.latest.Lookup(ctx, &key)
	require.NoError(t, err)
	assert.False(t, e.MarkDeleted)
	assert.Equal(t, 1, liveRows(t, f, key))
}

func TestLatestRevisionTracker_RemoveAndPurge(t *testing.T) {
	f := newMemoryFixture(100)
	ctx := context.Background()
	key := latestKey("C1")

	require.NoError(t, f.latest.Upsert(ctx, latestEntry("C1", t1, true)))

	removed, err := f.latest.Remove(ctx, &key, false)
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = f.latest.Remove(ctx, &key, true)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 0, liveRows(t, f, key))

	require.NoError(t, f.latest.Upsert(ctx, latestEntry("C1", t1, false)))
	purged, err := f.latest.Purge(ctx, &key)
	require.NoError(t, err)
	assert.True(t, purged)

	e, err := f.latest.Lookup(ctx, &key)
	require.NoError(t, err)
	assert.Nil(t, e)

	buckets, err := f.buckets.GetAllBuckets(ctx, model.PurposeLatestRevision, "P1/D1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), buckets[0].RowsCount)
}

func TestLatestRevisionTracker_ListByFlag(t *testing.T) {
	f := newMemoryFixture(3)
	ctx := context.Background()

	for _, cloud := range []string{"C1", "C2", "C3", "C4", "C5", "C6", "C7"} {
		require.NoError(t, f.latest.Upsert(ctx, latestEntry(cloud, t1, false)))
	}
	require.NoError(t, f.latest.Upsert(ctx, latestEntry("C4", t2, true)))

	q := model.LatestRevisionQuery{
		ProviderID:         "P1",
		DataSetID:          "D1",
		RepresentationID:   "edm",
		RevisionName:       "R",
		RevisionProviderID: "RP",
	}

	var (
		live  []string
		token string
	)
	for {
		res, err := f.latest.List(ctx, q, token, 2)
		require.NoError(t, err)
		for _, e := range res.Items {
			assert.False(t, e.MarkDeleted)
			live = append(live, e.CloudID)
		}
		if res.NextToken == "" {
			break
		}
		token = res.NextToken
	}
	assert.Equal(t, []string{"C1", "C2", "C3", "C5", "C6", "C7"}, live)

	q.MarkDeleted = true
	res, err := f.latest.List(ctx, q, "", 10)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "C4", res.Items[0].CloudID)
	assert.True(t, t2.Equal(res.Items[0].Timestamp))
}

func TestLatestRevisionTracker_ListFromStartCloudID(t *testing.T) {
	f := newMemoryFixture(3)
	ctx := context.Background()

	for _, cloud := range []string{"C1", "C2", "C3", "C4", "C5", "C6", "C7"} {
		require.NoError(t, f.latest.Upsert(ctx, latestEntry(cloud, t1, false)))
	}

	q := model.LatestRevisionQuery{
		ProviderID:         "P1",
		DataSetID:          "D1",
		RepresentationID:   "edm",
		RevisionName:       "R",
		RevisionProviderID: "RP",
		StartCloudID:       "C2",
	}

	var (
		clouds []string
		token  string
	)
	for {
		res, err := f.latest.List(ctx, q, token, 2)
		require.NoError(t, err)
		for _, e := range res.Items {
			clouds = append(clouds, e.CloudID)
		}
		if res.NextToken == "" {
			break
		}
		token = res.NextToken
	}
	assert.Equal(t, []string{"C3", "C4", "C5", "C6", "C7"}, clouds)
}
