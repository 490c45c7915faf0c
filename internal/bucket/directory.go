package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/errors"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/metrics"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/model"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultCeilings are the rollover thresholds used when none are configured
var DefaultCeilings = map[model.Purpose]int64{
	model.PurposeAssignment:     100000,
	model.PurposeRevision:       250000,
	model.PurposeLatestRevision: 100000,
}

// metadataTables maps each purpose to its bucket metadata table
var metadataTables = map[model.Purpose]string{
	model.PurposeAssignment:     "data_set_assignments_by_data_set_buckets",
	model.PurposeRevision:       "data_set_assignments_by_revision_buckets",
	model.PurposeLatestRevision: "latest_dataset_representation_revision_buckets",
}

// Directory tracks the ordered buckets of every owner key, per purpose.
//
// Buckets are stored in one metadata partition per owner key, clustered by
// (createdAt, bucketId), so iteration order is creation order. The row counter
// holds the approximate number of data rows in the bucket.
type Directory struct {
	store    store.Store
	ceilings map[model.Purpose]int64
	logger   *zap.Logger
	metrics  *metrics.Metrics

	now   func() time.Time
	newID func() string
}

// NewDirectory creates a bucket directory. Purposes missing from ceilings use
// DefaultCeilings.
func NewDirectory(s store.Store, ceilings map[model.Purpose]int64, logger *zap.Logger, m *metrics.Metrics) *Directory {
	merged := make(map[model.Purpose]int64, len(DefaultCeilings))
	for p, c := range DefaultCeilings {
		merged[p] = c
	}
	for p, c := range ceilings {
		if c > 0 {
			merged[p] = c
		}
	}

	return &Directory{
		store:    s,
		ceilings: merged,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Ceiling returns the rollover threshold for purpose
func (d *Directory) Ceiling(purpose model.Purpose) int64 {
	return d.ceilings[purpose]
}

// MetadataTable returns the bucket metadata table for purpose
func MetadataTable(purpose model.Purpose) string {
	return metadataTables[purpose]
}

func bucketKey(b *model.Bucket) store.Key {
	return store.Key{store.FormatTime(b.CreatedAt), b.BucketID}
}

func (d *Directory) decode(purpose model.Purpose, ownerKey string, row store.Row) (*model.Bucket, error) {
	if len(row.Key) != 2 {
		return nil, errors.InternalError(fmt.Sprintf("malformed bucket key with %d components", len(row.Key)), nil)
	}
	createdAt, err := store.ParseTime(row.Key[0])
	if err != nil {
		return nil, errors.InternalError("malformed bucket creation time", err)
	}
	return &model.Bucket{
		OwnerKey:  ownerKey,
		Purpose:   purpose,
		BucketID:  row.Key[1],
		CreatedAt: createdAt,
		RowsCount: row.Counter,
	}, nil
}

func (d *Directory) queryOne(ctx context.Context, purpose model.Purpose, ownerKey string, q store.Query) (*model.Bucket, error) {
	q.Limit = 1
	page, err := d.store.Query(ctx, MetadataTable(purpose), ownerKey, q)
	if err != nil {
		return nil, errors.StoreUnavailable("failed to query buckets", err).
			WithDetail("purpose", string(purpose)).
			WithDetail("owner_key", ownerKey)
	}
	if len(page.Rows) == 0 {
		return nil, nil
	}
	return d.decode(purpose, ownerKey, page.Rows[0])
}

// GetCurrentBucket returns the most recently created bucket, or nil if none exist
func (d *Directory) GetCurrentBucket(ctx context.Context, purpose model.Purpose, ownerKey string) (*model.Bucket, error) {
	return d.queryOne(ctx, purpose, ownerKey, store.Query{Reverse: true})
}

// GetFirstBucket returns the oldest bucket, or nil if none exist
func (d *Directory) GetFirstBucket(ctx context.Context, purpose model.Purpose, ownerKey string) (*model.Bucket, error) {
	return d.queryOne(ctx, purpose, ownerKey, store.Query{})
}

// GetNextBucket returns the bucket created after b, or nil if b is the last one
func (d *Directory) GetNextBucket(ctx context.Context, b *model.Bucket) (*model.Bucket, error) {
	return d.queryOne(ctx, b.Purpose, b.OwnerKey, store.Query{After: bucketKey(b)})
}

// GetBucket looks a bucket up by id. The metadata table is clustered by
// creation time, so this scans the owner's buckets.
func (d *Directory) GetBucket(ctx context.Context, purpose model.Purpose, ownerKey, bucketID string) (*model.Bucket, error) {
	buckets, err := d.GetAllBuckets(ctx, purpose, ownerKey)
	if err != nil {
		return nil, err
	}
	for _, b := range buckets {
		if b.BucketID == bucketID {
			return b, nil
		}
	}
	return nil, nil
}

// GetAllBuckets returns every bucket of ownerKey in creation order
func (d *Directory) GetAllBuckets(ctx context.Context, purpose model.Purpose, ownerKey string) ([]*model.Bucket, error) {
	page, err := d.store.Query(ctx, MetadataTable(purpose), ownerKey, store.Query{})
	if err != nil {
		return nil, errors.StoreUnavailable("failed to list buckets", err).
			WithDetail("purpose", string(purpose)).
			WithDetail("owner_key", ownerKey)
	}

	buckets := make([]*model.Bucket, 0, len(page.Rows))
	for _, row := range page.Rows {
		b, err := d.decode(purpose, ownerKey, row)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}

// ResolveWriteBucket returns the bucket new rows of ownerKey should land in.
// When there is no bucket yet, or the current one has reached the purpose
// ceiling, a fresh bucket is registered first. Concurrent callers may each
// roll over; the surplus buckets are harmless.
func (d *Directory) ResolveWriteBucket(ctx context.Context, purpose model.Purpose, ownerKey string) (*model.Bucket, error) {
	current, err := d.GetCurrentBucket(ctx, purpose, ownerKey)
	if err != nil {
		return nil, err
	}
	if current != nil && current.RowsCount < d.Ceiling(purpose) {
		return current, nil
	}

	createdAt := d.now().UTC()
	if current != nil && !createdAt.After(current.CreatedAt) {
		// keep creation order strictly increasing under clock skew
		createdAt = current.CreatedAt.Add(time.Nanosecond)
	}

	b := &model.Bucket{
		OwnerKey:  ownerKey,
		Purpose:   purpose,
		BucketID:  d.newID(),
		CreatedAt: createdAt,
	}

	if _, err := d.store.InsertIfNotExists(ctx, MetadataTable(purpose), ownerKey, bucketKey(b), nil); err != nil {
		return nil, errors.StoreUnavailable("failed to register bucket", err).
			WithDetail("purpose", string(purpose)).
			WithDetail("owner_key", ownerKey)
	}

	d.metrics.RecordRollover(string(purpose))
	fields := []zap.Field{
		zap.String("purpose", string(purpose)),
		zap.String("owner_key", ownerKey),
		zap.String("bucket_id", b.BucketID),
	}
	if current != nil {
		fields = append(fields,
			zap.String("previous_bucket_id", current.BucketID),
			zap.Int64("previous_rows_count", current.RowsCount))
	}
	d.logger.Info("Created bucket", fields...)

	return b, nil
}

// IncreaseBucketCount adds one row to the bucket counter. Failures are logged.
func (d *Directory) IncreaseBucketCount(ctx context.Context, b *model.Bucket) {
	d.adjust(ctx, b, 1, "increase")
}

// DecreaseBucketCount removes one row from the bucket counter. Failures are logged.
func (d *Directory) DecreaseBucketCount(ctx context.Context, b *model.Bucket) {
	d.adjust(ctx, b, -1, "decrease")
}

// adjust only moves the counter of a registered bucket. A bucket deleted
// while the update was in flight stays deleted.
func (d *Directory) adjust(ctx context.Context, b *model.Bucket, delta int64, direction string) {
	err := d.store.Increment(ctx, MetadataTable(b.Purpose), b.OwnerKey, bucketKey(b), delta)
	if err == store.ErrNotFound {
		d.logger.Debug("Skipped counter update of deleted bucket",
			zap.String("purpose", string(b.Purpose)),
			zap.String("owner_key", b.OwnerKey),
			zap.String("bucket_id", b.BucketID),
			zap.String("direction", direction))
		return
	}
	if err != nil {
		d.metrics.RecordCounterFailure(string(b.Purpose), direction)
		d.logger.Warn("Inconsistent state: failed to update bucket counter",
			zap.String("purpose", string(b.Purpose)),
			zap.String("owner_key", b.OwnerKey),
			zap.String("bucket_id", b.BucketID),
			zap.String("direction", direction),
			zap.Error(err))
	}
}

// DeleteBuckets removes the bucket metadata of ownerKey for purpose
func (d *Directory) DeleteBuckets(ctx context.Context, purpose model.Purpose, ownerKey string) error {
	if err := d.store.DeletePartition(ctx, MetadataTable(purpose), ownerKey); err != nil {
		return errors.StoreUnavailable("failed to delete buckets", err).
			WithDetail("purpose", string(purpose)).
			WithDetail("owner_key", ownerKey)
	}
	return nil
}

// Walker iterates the buckets of one owner key and purpose
type Walker struct {
	dir      *Directory
	purpose  model.Purpose
	ownerKey string
}

// Walker returns a bucket iterator for ownerKey
func (d *Directory) Walker(purpose model.Purpose, ownerKey string) *Walker {
	return &Walker{dir: d, purpose: purpose, ownerKey: ownerKey}
}

// First returns the oldest bucket, or nil when there are none
func (w *Walker) First(ctx context.Context) (*model.Bucket, error) {
	return w.dir.GetFirstBucket(ctx, w.purpose, w.ownerKey)
}

// Next returns the bucket created after the given one, or nil at the end
func (w *Walker) Next(ctx context.Context, after *model.Bucket) (*model.Bucket, error) {
	return w.dir.GetNextBucket(ctx, after)
}

// Lookup resolves a bucket id carried by a pagination token. An unknown id
// yields nil.
func (w *Walker) Lookup(ctx context.Context, bucketID string) (*model.Bucket, error) {
	return w.dir.GetBucket(ctx, w.purpose, w.ownerKey, bucketID)
}
