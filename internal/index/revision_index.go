package index

import (
	"context"
	"encoding/json"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/bucket"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/errors"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/metrics"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/model"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/pagination"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/store"
	"go.uber.org/zap"
)

type revisionTags struct {
	Published  bool `json:"published"`
	Acceptance bool `json:"acceptance"`
	Deleted    bool `json:"deleted"`
}

// RevisionIndex is the per-data-set index of every revision seen, in bucketed
// partitions (ownerKey, bucketId) clustered by
// (revisionProviderId, revisionName, timestamp, representationId, cloudId).
type RevisionIndex struct {
	store   store.Store
	buckets *bucket.Directory
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRevisionIndex creates a revision index
func NewRevisionIndex(s store.Store, buckets *bucket.Directory, logger *zap.Logger, m *metrics.Metrics) *RevisionIndex {
	return &RevisionIndex{
		store:   s,
		buckets: buckets,
		logger:  logger,
		metrics: m,
	}
}

func revisionPartition(ownerKey, bucketID string) string {
	return store.PartitionKey(ownerKey, bucketID)
}

func revisionKey(r *model.DataSetRevision) store.Key {
	return store.Key{
		r.RevisionProviderID,
		r.RevisionName,
		store.FormatTime(r.CreationTimestamp),
		r.RepresentationID,
		r.CloudID,
	}
}

// filterPrefix turns a filter into a clustering prefix. A field may only be
// set when every field before it is set.
func filterPrefix(f model.RevisionFilter) (store.Key, error) {
	var ts string
	if f.Timestamp != nil {
		ts = store.FormatTime(*f.Timestamp)
	}
	steps := []struct {
		name  string
		value string
		set   bool
	}{
		{"revision provider", f.RevisionProviderID, f.RevisionProviderID != ""},
		{"revision name", f.RevisionName, f.RevisionName != ""},
		{"timestamp", ts, f.Timestamp != nil},
		{"representation", f.RepresentationID, f.RepresentationID != ""},
	}

	var prefix store.Key
	for i, step := range steps {
		if !step.set {
			continue
		}
		if len(prefix) != i {
			return nil, errors.InvalidArgument(step.name + " filter requires every preceding revision filter")
		}
		prefix = append(prefix, step.value)
	}
	return prefix, nil
}

// Add records a revision. A row already present in any bucket has its tags
// refreshed in place; otherwise the row goes to the current revision bucket.
func (x *RevisionIndex) Add(ctx context.Context, r *model.DataSetRevision) error {
	ownerKey := model.OwnerKey(r.ProviderID, r.DataSetID)
	value, err := json.Marshal(revisionTags{Published: r.Published, Acceptance: r.Acceptance, Deleted: r.Deleted})
	if err != nil {
		return errors.InternalError("failed to marshal revision", err)
	}

	key := revisionKey(r)
	held, err := x.holding(ctx, ownerKey, key)
	if err != nil {
		return err
	}
	if len(held) > 0 {
		if err := x.store.Put(ctx, TableAssignmentsByRevision, revisionPartition(ownerKey, held[0].BucketID), key, value); err != nil {
			return storeError("failed to update revision", err)
		}
		return nil
	}

	b, err := x.buckets.ResolveWriteBucket(ctx, model.PurposeRevision, ownerKey)
	if err != nil {
		return err
	}
	inserted, err := x.store.InsertIfNotExists(ctx, TableAssignmentsByRevision, revisionPartition(ownerKey, b.BucketID), key, value)
	if err != nil {
		return storeError("failed to write revision", err)
	}
	if !inserted {
		// a concurrent add of the same row won the insert
		if err := x.store.Put(ctx, TableAssignmentsByRevision, revisionPartition(ownerKey, b.BucketID), key, value); err != nil {
			return storeError("failed to update revision", err)
		}
		return nil
	}

	x.buckets.IncreaseBucketCount(ctx, b)
	return nil
}

// holding returns the buckets, oldest first, that hold the row at key
func (x *RevisionIndex) holding(ctx context.Context, ownerKey string, key store.Key) ([]*model.Bucket, error) {
	buckets, err := x.buckets.GetAllBuckets(ctx, model.PurposeRevision, ownerKey)
	if err != nil {
		return nil, err
	}

	var held []*model.Bucket
	for _, b := range buckets {
		_, err := x.store.Get(ctx, TableAssignmentsByRevision, revisionPartition(ownerKey, b.BucketID), key)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, storeError("failed to read revision", err)
		}
		held = append(held, b)
	}
	return held, nil
}

// Remove deletes the revision row from every bucket holding it. Removing an
// absent row is not an error.
func (x *RevisionIndex) Remove(ctx context.Context, r *model.DataSetRevision) (bool, error) {
	ownerKey := model.OwnerKey(r.ProviderID, r.DataSetID)
	buckets, err := x.buckets.GetAllBuckets(ctx, model.PurposeRevision, ownerKey)
	if err != nil {
		return false, err
	}

	key := revisionKey(r)
	matches := 0
	for _, b := range buckets {
		deleted, err := x.store.DeleteIfExists(ctx, TableAssignmentsByRevision, revisionPartition(ownerKey, b.BucketID), key)
		if err != nil {
			return false, storeError("failed to delete revision", err)
		}
		if deleted {
			matches++
			x.buckets.DecreaseBucketCount(ctx, b)
		}
	}
	if matches > 1 {
		x.metrics.RecordDuplicateRows(string(model.PurposeRevision), matches-1)
		x.logger.Warn("Inconsistent state: revision found in more than one bucket",
			zap.String("owner_key", ownerKey),
			zap.String("cloud_id", r.CloudID),
			zap.String("representation", r.RepresentationID),
			zap.String("revision_name", r.RevisionName),
			zap.Int("matches", matches))
	}
	return matches > 0, nil
}

// List returns one page of the data set's revisions matching filter
func (x *RevisionIndex) List(ctx context.Context, providerID, dataSetID string, filter model.RevisionFilter, token string, limit int) (*pagination.Result[model.DataSetRevision], error) {
	prefix, err := filterPrefix(filter)
	if err != nil {
		return nil, err
	}

	ownerKey := model.OwnerKey(providerID, dataSetID)
	walker := x.buckets.Walker(model.PurposeRevision, ownerKey)

	fetch := func(ctx context.Context, b *model.Bucket, cursor string, limit int) ([]model.DataSetRevision, string, error) {
		after, err := afterKey(cursor)
		if err != nil {
			return nil, "", err
		}
		page, err := x.store.Query(ctx, TableAssignmentsByRevision, revisionPartition(ownerKey, b.BucketID),
			store.Query{Prefix: prefix, After: after, Limit: limit})
		if err != nil {
			return nil, "", storeError("failed to list revisions", err)
		}

		items := make([]model.DataSetRevision, 0, len(page.Rows))
		for _, row := range page.Rows {
			r, err := decodeRevision(providerID, dataSetID, row)
			if err != nil {
				return nil, "", err
			}
			items = append(items, *r)
		}
		return items, nextCursor(page), nil
	}

	return pagination.Paginate[model.DataSetRevision](ctx, walker, token, limit, fetch)
}

func decodeRevision(providerID, dataSetID string, row store.Row) (*model.DataSetRevision, error) {
	if len(row.Key) != 5 {
		return nil, errors.InternalError("malformed revision key", nil)
	}
	ts, err := store.ParseTime(row.Key[2])
	if err != nil {
		return nil, errors.InternalError("malformed revision timestamp", err)
	}
	var tags revisionTags
	if len(row.Value) > 0 {
		if err := json.Unmarshal(row.Value, &tags); err != nil {
			return nil, errors.InternalError("failed to unmarshal revision", err)
		}
	}
	return &model.DataSetRevision{
		ProviderID:       providerID,
		DataSetID:        dataSetID,
		RepresentationID: row.Key[3],
		CloudID:          row.Key[4],
		Revision: model.Revision{
			RevisionProviderID: row.Key[0],
			RevisionName:       row.Key[1],
			CreationTimestamp:  ts,
			Published:          tags.Published,
			Acceptance:         tags.Acceptance,
			Deleted:            tags.Deleted,
		},
	}, nil
}

// ForEach calls fn for every revision row of the data set, bucket by bucket
func (x *RevisionIndex) ForEach(ctx context.Context, providerID, dataSetID string, fn func(*model.DataSetRevision) error) error {
	ownerKey := model.OwnerKey(providerID, dataSetID)
	buckets, err := x.buckets.GetAllBuckets(ctx, model.PurposeRevision, ownerKey)
	if err != nil {
		return err
	}

	for _, b := range buckets {
		var after store.Key
		for {
			page, err := x.store.Query(ctx, TableAssignmentsByRevision, revisionPartition(ownerKey, b.BucketID),
				store.Query{After: after, Limit: scanBatchSize})
			if err != nil {
				return storeError("failed to scan revisions", err)
			}
			for _, row := range page.Rows {
				r, err := decodeRevision(providerID, dataSetID, row)
				if err != nil {
					return err
				}
				if err := fn(r); err != nil {
					return err
				}
			}
			if !page.More {
				break
			}
			after = page.Rows[len(page.Rows)-1].Key
		}
	}
	return nil
}

// DeleteAll drops every revision partition of the data set and its bucket metadata
func (x *RevisionIndex) DeleteAll(ctx context.Context, providerID, dataSetID string) error {
	ownerKey := model.OwnerKey(providerID, dataSetID)
	buckets, err := x.buckets.GetAllBuckets(ctx, model.PurposeRevision, ownerKey)
	if err != nil {
		return err
	}
	for _, b := range buckets {
		if err := x.store.DeletePartition(ctx, TableAssignmentsByRevision, revisionPartition(ownerKey, b.BucketID)); err != nil {
			return storeError("failed to delete revisions", err)
		}
	}
	x.logger.Debug("Deleted revision index",
		zap.String("owner_key", ownerKey),
		zap.Int("buckets", len(buckets)))
	return x.buckets.DeleteBuckets(ctx, model.PurposeRevision, ownerKey)
}
