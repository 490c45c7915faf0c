package index

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/bucket"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/errors"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/metrics"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/model"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/pagination"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/store"
	"go.uber.org/zap"
)

type assignmentValue struct {
	CreationDate time.Time `json:"creation_date"`
}

// AssignmentStore owns the forward (data set -> representation versions) and
// reverse (representation version -> data sets) assignment indices.
//
// Forward rows live in bucketed partitions (ownerKey, bucketId) clustered by
// (schema, cloudId, version). Reverse rows live in (cloudId, schema) partitions
// clustered by (version, ownerKey).
type AssignmentStore struct {
	store   store.Store
	buckets *bucket.Directory
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewAssignmentStore creates an assignment store
func NewAssignmentStore(s store.Store, buckets *bucket.Directory, logger *zap.Logger, m *metrics.Metrics) *AssignmentStore {
	return &AssignmentStore{
		store:   s,
		buckets: buckets,
		logger:  logger,
		metrics: m,
	}
}

func forwardPartition(ownerKey, bucketID string) string {
	return store.PartitionKey(ownerKey, bucketID)
}

func reversePartition(cloudID, schema string) string {
	return store.PartitionKey(cloudID, schema)
}

// Add writes the forward row, then the reverse row, then bumps the bucket
// counter. A forward row already present in any bucket is kept as is, so a
// retry after a failed reverse write only rewrites the reverse row.
func (s *AssignmentStore) Add(ctx context.Context, a *model.Assignment) error {
	ownerKey := model.OwnerKey(a.ProviderID, a.DataSetID)
	key := store.Key{a.Schema, a.CloudID, a.Version}

	b, existing, err := s.findForward(ctx, ownerKey, key)
	if err != nil {
		return err
	}

	var (
		value    []byte
		inserted bool
	)
	if existing != nil {
		value = existing.Value
	} else {
		if value, err = json.Marshal(assignmentValue{CreationDate: a.CreationDate}); err != nil {
			return errors.InternalError("failed to marshal assignment", err)
		}
		if b, err = s.buckets.ResolveWriteBucket(ctx, model.PurposeAssignment, ownerKey); err != nil {
			return err
		}
		inserted, err = s.store.InsertIfNotExists(ctx, TableAssignmentsByDataSet,
			forwardPartition(ownerKey, b.BucketID), key, value)
		if err != nil {
			return storeError("failed to write assignment", err)
		}
	}

	reverseErr := s.store.Put(ctx, TableAssignmentsByRepresentation,
		reversePartition(a.CloudID, a.Schema), store.Key{a.Version, ownerKey}, value)

	// the counter follows the forward row, whatever happened to the reverse one
	if inserted {
		s.buckets.IncreaseBucketCount(ctx, b)
	}

	if reverseErr != nil {
		s.metrics.RecordInconsistentState("reverse_index")
		s.logger.Warn("Inconsistent state: forward assignment written without reverse row",
			zap.String("owner_key", ownerKey),
			zap.String("bucket_id", b.BucketID),
			zap.String("cloud_id", a.CloudID),
			zap.String("schema", a.Schema),
			zap.String("version", a.Version),
			zap.Error(reverseErr))
		return storeError("failed to write reverse assignment", reverseErr)
	}
	return nil
}

// findForward returns the oldest bucket holding the forward row for key, with
// the row, or nils when no bucket holds it
func (s *AssignmentStore) findForward(ctx context.Context, ownerKey string, key store.Key) (*model.Bucket, *store.Row, error) {
	buckets, err := s.buckets.GetAllBuckets(ctx, model.PurposeAssignment, ownerKey)
	if err != nil {
		return nil, nil, err
	}
	for _, b := range buckets {
		row, err := s.store.Get(ctx, TableAssignmentsByDataSet, forwardPartition(ownerKey, b.BucketID), key)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, nil, storeError("failed to read assignment", err)
		}
		return b, row, nil
	}
	return nil, nil, nil
}

// Exists reports whether the reverse index holds the assignment
func (s *AssignmentStore) Exists(ctx context.Context, providerID, dataSetID, cloudID, schema, version string) (bool, error) {
	_, err := s.store.Get(ctx, TableAssignmentsByRepresentation,
		reversePartition(cloudID, schema), store.Key{version, model.OwnerKey(providerID, dataSetID)})
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, storeError("failed to read reverse assignment", err)
	}
	return true, nil
}

// Remove deletes the assignment from every bucket holding it and then drops
// the reverse row. Buckets are walked oldest first. Rows found after the first
// hit are duplicates and are removed as well. Removing an absent assignment is
// not an error; the result reports whether a forward row was found.
func (s *AssignmentStore) Remove(ctx context.Context, providerID, dataSetID, cloudID, schema, version string) (bool, error) {
	ownerKey := model.OwnerKey(providerID, dataSetID)
	key := store.Key{schema, cloudID, version}
	walker := s.buckets.Walker(model.PurposeAssignment, ownerKey)

	matches := 0
	b, err := walker.First(ctx)
	for err == nil && b != nil {
		deleted, delErr := s.store.DeleteIfExists(ctx, TableAssignmentsByDataSet, forwardPartition(ownerKey, b.BucketID), key)
		if delErr != nil {
			return false, storeError("failed to delete assignment", delErr)
		}
		if deleted {
			matches++
			s.buckets.DecreaseBucketCount(ctx, b)
		}
		b, err = walker.Next(ctx, b)
	}
	if err != nil {
		return false, err
	}

	if matches > 1 {
		s.metrics.RecordDuplicateRows(string(model.PurposeAssignment), matches-1)
		s.logger.Warn("Inconsistent state: assignment found in more than one bucket",
			zap.String("owner_key", ownerKey),
			zap.String("cloud_id", cloudID),
			zap.String("schema", schema),
			zap.String("version", version),
			zap.Int("matches", matches))
	}

	// the reverse row goes even when no forward row was found, so a retry
	// after a partial removal converges
	if _, err := s.store.DeleteIfExists(ctx, TableAssignmentsByRepresentation,
		reversePartition(cloudID, schema), store.Key{version, ownerKey}); err != nil {
		return matches > 0, storeError("failed to delete reverse assignment", err)
	}

	return matches > 0, nil
}

// List returns one page of the data set's assignments
func (s *AssignmentStore) List(ctx context.Context, providerID, dataSetID, token string, limit int) (*pagination.Result[model.Assignment], error) {
	ownerKey := model.OwnerKey(providerID, dataSetID)
	walker := s.buckets.Walker(model.PurposeAssignment, ownerKey)

	fetch := func(ctx context.Context, b *model.Bucket, cursor string, limit int) ([]model.Assignment, string, error) {
		after, err := afterKey(cursor)
		if err != nil {
			return nil, "", err
		}
		page, err := s.store.Query(ctx, TableAssignmentsByDataSet, forwardPartition(ownerKey, b.BucketID),
			store.Query{After: after, Limit: limit})
		if err != nil {
			return nil, "", storeError("failed to list assignments", err)
		}

		items := make([]model.Assignment, 0, len(page.Rows))
		for _, row := range page.Rows {
			a, err := decodeAssignment(providerID, dataSetID, row)
			if err != nil {
				return nil, "", err
			}
			items = append(items, *a)
		}
		return items, nextCursor(page), nil
	}

	return pagination.Paginate[model.Assignment](ctx, walker, token, limit, fetch)
}

func decodeAssignment(providerID, dataSetID string, row store.Row) (*model.Assignment, error) {
	if len(row.Key) != 3 {
		return nil, errors.InternalError("malformed assignment key", nil)
	}
	var v assignmentValue
	if len(row.Value) > 0 {
		if err := json.Unmarshal(row.Value, &v); err != nil {
			return nil, errors.InternalError("failed to unmarshal assignment", err)
		}
	}
	return &model.Assignment{
		ProviderID:   providerID,
		DataSetID:    dataSetID,
		Schema:       row.Key[0],
		CloudID:      row.Key[1],
		Version:      row.Key[2],
		CreationDate: v.CreationDate,
	}, nil
}

// HasAnyAssignment reports whether any bucket still holds an assignment of
// schema. An empty schema matches every assignment.
func (s *AssignmentStore) HasAnyAssignment(ctx context.Context, providerID, dataSetID, schema string) (bool, error) {
	ownerKey := model.OwnerKey(providerID, dataSetID)
	q := store.Query{Limit: 1}
	if schema != "" {
		q.Prefix = store.Key{schema}
	}

	buckets, err := s.buckets.GetAllBuckets(ctx, model.PurposeAssignment, ownerKey)
	if err != nil {
		return false, err
	}
	for _, b := range buckets {
		page, err := s.store.Query(ctx, TableAssignmentsByDataSet, forwardPartition(ownerKey, b.BucketID), q)
		if err != nil {
			return false, storeError("failed to probe assignments", err)
		}
		if len(page.Rows) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// ListDataSetsForVersion returns every data set the representation version is assigned to
func (s *AssignmentStore) ListDataSetsForVersion(ctx context.Context, cloudID, schema, version string) ([]model.DataSetRef, error) {
	var (
		refs  []model.DataSetRef
		after store.Key
	)
	for {
		page, err := s.store.Query(ctx, TableAssignmentsByRepresentation, reversePartition(cloudID, schema),
			store.Query{Prefix: store.Key{version}, After: after, Limit: scanBatchSize})
		if err != nil {
			return nil, storeError("failed to list data sets for representation version", err)
		}
		for _, row := range page.Rows {
			if len(row.Key) != 2 {
				return nil, errors.InternalError("malformed reverse assignment key", nil)
			}
			providerID, dataSetID, ok := strings.Cut(row.Key[1], "/")
			if !ok {
				return nil, errors.InternalError("malformed owner key: "+row.Key[1], nil)
			}
			refs = append(refs, model.DataSetRef{ProviderID: providerID, DataSetID: dataSetID})
		}
		if !page.More {
			return refs, nil
		}
		after = page.Rows[len(page.Rows)-1].Key
	}
}

// AddRepresentationName records that the data set holds a representation of schema
func (s *AssignmentStore) AddRepresentationName(ctx context.Context, providerID, dataSetID, schema string) error {
	if err := s.store.Put(ctx, TableRepresentationNames, model.OwnerKey(providerID, dataSetID), store.Key{schema}, nil); err != nil {
		return storeError("failed to add representation name", err)
	}
	return nil
}

// RemoveRepresentationName drops schema from the data set's representation names
func (s *AssignmentStore) RemoveRepresentationName(ctx context.Context, providerID, dataSetID, schema string) error {
	if _, err := s.store.DeleteIfExists(ctx, TableRepresentationNames, model.OwnerKey(providerID, dataSetID), store.Key{schema}); err != nil {
		return storeError("failed to remove representation name", err)
	}
	return nil
}

// ListRepresentationNames returns the schemas the data set holds, in order
func (s *AssignmentStore) ListRepresentationNames(ctx context.Context, providerID, dataSetID string) ([]string, error) {
	page, err := s.store.Query(ctx, TableRepresentationNames, model.OwnerKey(providerID, dataSetID), store.Query{})
	if err != nil {
		return nil, storeError("failed to list representation names", err)
	}
	names := make([]string, 0, len(page.Rows))
	for _, row := range page.Rows {
		names = append(names, row.Key[0])
	}
	return names, nil
}

// DeleteRepresentationNames drops the whole representation-name set of the data set
func (s *AssignmentStore) DeleteRepresentationNames(ctx context.Context, providerID, dataSetID string) error {
	if err := s.store.DeletePartition(ctx, TableRepresentationNames, model.OwnerKey(providerID, dataSetID)); err != nil {
		return storeError("failed to delete representation names", err)
	}
	return nil
}

// DeleteBuckets drops the assignment bucket metadata of an empty data set
func (s *AssignmentStore) DeleteBuckets(ctx context.Context, providerID, dataSetID string) error {
	return s.buckets.DeleteBuckets(ctx, model.PurposeAssignment, model.OwnerKey(providerID, dataSetID))
}
