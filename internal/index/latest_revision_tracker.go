package index

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/bucket"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/errors"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/metrics"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/model"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/pagination"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/store"
	"go.uber.org/zap"
)

type latestValue struct {
	Timestamp  time.Time `json:"timestamp"`
	Published  bool      `json:"published"`
	Acceptance bool      `json:"acceptance"`
}

// flagLocation is one place an entry may be filed: the markDeleted flag is
// part of the partition key, so an entry moves partitions when it flips.
type flagLocation struct {
	markDeleted bool
}

// everyLocation is the search order used when the caller knows no flag
var everyLocation = []flagLocation{{markDeleted: false}, {markDeleted: true}}

// priorLocations is the search order for the entry a new value replaces:
// the opposite flag first, then the same flag.
func priorLocations(deleted bool) []flagLocation {
	return []flagLocation{{markDeleted: !deleted}, {markDeleted: deleted}}
}

// LatestRevisionTracker keeps at most one live entry per
// (data set, representation, revision name, revision provider, cloud id).
// Entries live in bucketed partitions
// (ownerKey, bucketId, representation, revisionName, revisionProvider, markDeleted)
// clustered by cloudId.
type LatestRevisionTracker struct {
	store   store.Store
	buckets *bucket.Directory
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewLatestRevisionTracker creates a latest-revision tracker
func NewLatestRevisionTracker(s store.Store, buckets *bucket.Directory, logger *zap.Logger, m *metrics.Metrics) *LatestRevisionTracker {
	return &LatestRevisionTracker{
		store:   s,
		buckets: buckets,
		logger:  logger,
		metrics: m,
	}
}

func latestPartition(bucketID string, k *model.LatestRevisionKey, loc flagLocation) string {
	return store.PartitionKey(
		model.OwnerKey(k.ProviderID, k.DataSetID),
		bucketID,
		k.RepresentationID,
		k.RevisionName,
		k.RevisionProviderID,
		boolString(loc.markDeleted),
	)
}

func (t *LatestRevisionTracker) allBuckets(ctx context.Context, k *model.LatestRevisionKey) ([]*model.Bucket, error) {
	return t.buckets.GetAllBuckets(ctx, model.PurposeLatestRevision, model.OwnerKey(k.ProviderID, k.DataSetID))
}

// Upsert installs e as the live entry of its key. The prior entry, filed
// under either flag, is deleted first and the new one takes its bucket; a
// first write goes to the current bucket. e.BucketID is set on return.
func (t *LatestRevisionTracker) Upsert(ctx context.Context, e *model.LatestRevisionEntry) error {
	value, err := json.Marshal(latestValue{Timestamp: e.Timestamp, Published: e.Published, Acceptance: e.Acceptance})
	if err != nil {
		return errors.InternalError("failed to marshal latest revision", err)
	}
	key := store.Key{e.CloudID}

	buckets, err := t.allBuckets(ctx, &e.LatestRevisionKey)
	if err != nil {
		return err
	}

	for _, loc := range priorLocations(e.MarkDeleted) {
		for _, b := range buckets {
			deleted, err := t.store.DeleteIfExists(ctx, TableLatestRevisions, latestPartition(b.BucketID, &e.LatestRevisionKey, loc), key)
			if err != nil {
				return storeError("failed to replace latest revision", err)
			}
			if !deleted {
				continue
			}
			if err := t.store.Put(ctx, TableLatestRevisions,
				latestPartition(b.BucketID, &e.LatestRevisionKey, flagLocation{markDeleted: e.MarkDeleted}), key, value); err != nil {
				t.metrics.RecordInconsistentState("latest_revision")
				t.logger.Warn("Inconsistent state: latest revision removed but not replaced",
					zap.String("provider_id", e.ProviderID),
					zap.String("dataset_id", e.DataSetID),
					zap.String("bucket_id", b.BucketID),
					zap.String("cloud_id", e.CloudID),
					zap.Error(err))
				return storeError("failed to write latest revision", err)
			}
			e.BucketID = b.BucketID
			return nil
		}
	}

	b, err := t.buckets.ResolveWriteBucket(ctx, model.PurposeLatestRevision, model.OwnerKey(e.ProviderID, e.DataSetID))
	if err != nil {
		return err
	}
	if err := t.store.Put(ctx, TableLatestRevisions,
		latestPartition(b.BucketID, &e.LatestRevisionKey, flagLocation{markDeleted: e.MarkDeleted}), key, value); err != nil {
		return storeError("failed to write latest revision", err)
	}
	t.buckets.IncreaseBucketCount(ctx, b)
	e.BucketID = b.BucketID
	return nil
}

// Lookup returns the live entry of k, or nil when nothing is recorded
func (t *LatestRevisionTracker) Lookup(ctx context.Context, k *model.LatestRevisionKey) (*model.LatestRevisionEntry, error) {
	buckets, err := t.allBuckets(ctx, k)
	if err != nil {
		return nil, err
	}

	for _, loc := range everyLocation {
		for _, b := range buckets {
			row, err := t.store.Get(ctx, TableLatestRevisions, latestPartition(b.BucketID, k, loc), store.Key{k.CloudID})
			if err == store.ErrNotFound {
				continue
			}
			if err != nil {
				return nil, storeError("failed to read latest revision", err)
			}
			return decodeLatest(*k, b.BucketID, loc, row.Value)
		}
	}
	return nil, nil
}

// GetLatestTimestamp returns the timestamp of the live entry of k, or nil
// when nothing is recorded
func (t *LatestRevisionTracker) GetLatestTimestamp(ctx context.Context, k *model.LatestRevisionKey) (*time.Time, error) {
	e, err := t.Lookup(ctx, k)
	if err != nil || e == nil {
		return nil, err
	}
	return &e.Timestamp, nil
}

// Remove deletes the entry of k filed under markDeleted from the first bucket
// holding it
func (t *LatestRevisionTracker) Remove(ctx context.Context, k *model.LatestRevisionKey, markDeleted bool) (bool, error) {
	buckets, err := t.allBuckets(ctx, k)
	if err != nil {
		return false, err
	}
	return t.removeAt(ctx, k, buckets, flagLocation{markDeleted: markDeleted}, true)
}

// Purge deletes every entry of k under either flag
func (t *LatestRevisionTracker) Purge(ctx context.Context, k *model.LatestRevisionKey) (bool, error) {
	buckets, err := t.allBuckets(ctx, k)
	if err != nil {
		return false, err
	}

	found := false
	for _, loc := range everyLocation {
		removed, err := t.removeAt(ctx, k, buckets, loc, false)
		if err != nil {
			return found, err
		}
		found = found || removed
	}
	return found, nil
}

func (t *LatestRevisionTracker) removeAt(ctx context.Context, k *model.LatestRevisionKey, buckets []*model.Bucket, loc flagLocation, firstOnly bool) (bool, error) {
	found := false
	for _, b := range buckets {
		deleted, err := t.store.DeleteIfExists(ctx, TableLatestRevisions, latestPartition(b.BucketID, k, loc), store.Key{k.CloudID})
		if err != nil {
			return found, storeError("failed to delete latest revision", err)
		}
		if !deleted {
			continue
		}
		t.buckets.DecreaseBucketCount(ctx, b)
		found = true
		if firstOnly {
			break
		}
	}
	return found, nil
}

// List returns one page of the live entries of a revision and representation
// filed under q.MarkDeleted, ordered by cloud id within each bucket. Cloud ids
// not past q.StartCloudID are skipped in every bucket.
func (t *LatestRevisionTracker) List(ctx context.Context, q model.LatestRevisionQuery, token string, limit int) (*pagination.Result[model.LatestRevisionEntry], error) {
	base := model.LatestRevisionKey{
		ProviderID:         q.ProviderID,
		DataSetID:          q.DataSetID,
		RepresentationID:   q.RepresentationID,
		RevisionName:       q.RevisionName,
		RevisionProviderID: q.RevisionProviderID,
	}
	loc := flagLocation{markDeleted: q.MarkDeleted}
	walker := t.buckets.Walker(model.PurposeLatestRevision, model.OwnerKey(q.ProviderID, q.DataSetID))

	fetch := func(ctx context.Context, b *model.Bucket, cursor string, limit int) ([]model.LatestRevisionEntry, string, error) {
		after, err := afterKey(cursor)
		if err != nil {
			return nil, "", err
		}
		if after == nil && q.StartCloudID != "" {
			after = store.Key{q.StartCloudID}
		}
		page, err := t.store.Query(ctx, TableLatestRevisions, latestPartition(b.BucketID, &base, loc),
			store.Query{After: after, Limit: limit})
		if err != nil {
			return nil, "", storeError("failed to list latest revisions", err)
		}

		items := make([]model.LatestRevisionEntry, 0, len(page.Rows))
		for _, row := range page.Rows {
			k := base
			k.CloudID = row.Key[0]
			e, err := decodeLatest(k, b.BucketID, loc, row.Value)
			if err != nil {
				return nil, "", err
			}
			items = append(items, *e)
		}
		return items, nextCursor(page), nil
	}

	return pagination.Paginate[model.LatestRevisionEntry](ctx, walker, token, limit, fetch)
}

func decodeLatest(k model.LatestRevisionKey, bucketID string, loc flagLocation, raw []byte) (*model.LatestRevisionEntry, error) {
	var v latestValue
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.InternalError("failed to unmarshal latest revision", err)
		}
	}
	return &model.LatestRevisionEntry{
		LatestRevisionKey: k,
		BucketID:          bucketID,
		MarkDeleted:       loc.markDeleted,
		Timestamp:         v.Timestamp,
		Published:         v.Published,
		Acceptance:        v.Acceptance,
	}, nil
}

// DeleteBuckets drops the latest-revision bucket metadata of a data set.
// Entries are purged key by key beforehand.
func (t *LatestRevisionTracker) DeleteBuckets(ctx context.Context, providerID, dataSetID string) error {
	return t.buckets.DeleteBuckets(ctx, model.PurposeLatestRevision, model.OwnerKey(providerID, dataSetID))
}
