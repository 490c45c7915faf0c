package index

import (
	"context"
	"encoding/json"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/errors"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/model"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/store"
	"go.uber.org/zap"
)

// providersPartition holds every provider row
const providersPartition = "providers"

// DataSetTable stores data sets in one partition per provider, clustered by data set id
type DataSetTable struct {
	store  store.Store
	logger *zap.Logger
}

// NewDataSetTable creates a data set table
func NewDataSetTable(s store.Store, logger *zap.Logger) *DataSetTable {
	return &DataSetTable{store: s, logger: logger}
}

// Get returns the data set, or DataSetNotFound
func (t *DataSetTable) Get(ctx context.Context, providerID, dataSetID string) (*model.DataSet, error) {
	row, err := t.store.Get(ctx, TableDataSets, providerID, store.Key{dataSetID})
	if err == store.ErrNotFound {
		return nil, errors.DataSetNotFound(providerID, dataSetID)
	}
	if err != nil {
		return nil, storeError("failed to read data set", err)
	}

	var ds model.DataSet
	if err := json.Unmarshal(row.Value, &ds); err != nil {
		return nil, errors.InternalError("failed to unmarshal data set", err)
	}
	return &ds, nil
}

// Create inserts the data set, or fails with AlreadyExists
func (t *DataSetTable) Create(ctx context.Context, ds *model.DataSet) error {
	data, err := json.Marshal(ds)
	if err != nil {
		return errors.InternalError("failed to marshal data set", err)
	}
	inserted, err := t.store.InsertIfNotExists(ctx, TableDataSets, ds.ProviderID, store.Key{ds.DataSetID}, data)
	if err != nil {
		return storeError("failed to create data set", err)
	}
	if !inserted {
		return errors.DataSetAlreadyExists(ds.ProviderID, ds.DataSetID)
	}
	return nil
}

// Update overwrites an existing data set row
func (t *DataSetTable) Update(ctx context.Context, ds *model.DataSet) error {
	data, err := json.Marshal(ds)
	if err != nil {
		return errors.InternalError("failed to marshal data set", err)
	}
	if err := t.store.Put(ctx, TableDataSets, ds.ProviderID, store.Key{ds.DataSetID}, data); err != nil {
		return storeError("failed to update data set", err)
	}
	return nil
}

// Delete removes the data set row
func (t *DataSetTable) Delete(ctx context.Context, providerID, dataSetID string) error {
	if _, err := t.store.DeleteIfExists(ctx, TableDataSets, providerID, store.Key{dataSetID}); err != nil {
		return storeError("failed to delete data set", err)
	}
	return nil
}

// List returns one page of the provider's data sets ordered by id. The token
// carries only a store cursor since the table is not bucketed.
func (t *DataSetTable) List(ctx context.Context, providerID, token string, limit int) ([]model.DataSet, string, error) {
	if limit <= 0 {
		return nil, "", errors.InvalidArgument("limit must be positive")
	}
	after, err := partitionCursor(token)
	if err != nil {
		return nil, "", err
	}

	page, err := t.store.Query(ctx, TableDataSets, providerID, store.Query{After: after, Limit: limit})
	if err != nil {
		return nil, "", storeError("failed to list data sets", err)
	}

	sets := make([]model.DataSet, 0, len(page.Rows))
	for _, row := range page.Rows {
		var ds model.DataSet
		if err := json.Unmarshal(row.Value, &ds); err != nil {
			return nil, "", errors.InternalError("failed to unmarshal data set", err)
		}
		sets = append(sets, ds)
	}
	return sets, partitionToken(page), nil
}

// ProviderTable stores data providers
type ProviderTable struct {
	store  store.Store
	logger *zap.Logger
}

// NewProviderTable creates a provider table
func NewProviderTable(s store.Store, logger *zap.Logger) *ProviderTable {
	return &ProviderTable{store: s, logger: logger}
}

// Create inserts the provider, or fails with AlreadyExists
func (t *ProviderTable) Create(ctx context.Context, p *model.DataProvider) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.InternalError("failed to marshal provider", err)
	}
	inserted, err := t.store.InsertIfNotExists(ctx, TableDataProviders, providersPartition, store.Key{p.ProviderID}, data)
	if err != nil {
		return storeError("failed to create provider", err)
	}
	if !inserted {
		return errors.ProviderAlreadyExists(p.ProviderID)
	}
	return nil
}

// Get returns the provider, or ProviderNotFound
func (t *ProviderTable) Get(ctx context.Context, providerID string) (*model.DataProvider, error) {
	row, err := t.store.Get(ctx, TableDataProviders, providersPartition, store.Key{providerID})
	if err == store.ErrNotFound {
		return nil, errors.ProviderNotFound(providerID)
	}
	if err != nil {
		return nil, storeError("failed to read provider", err)
	}

	var p model.DataProvider
	if err := json.Unmarshal(row.Value, &p); err != nil {
		return nil, errors.InternalError("failed to unmarshal provider", err)
	}
	return &p, nil
}

// RepresentationRegistry records the representation versions and revisions
// known to the platform
type RepresentationRegistry struct {
	store  store.Store
	logger *zap.Logger
}

// NewRepresentationRegistry creates a representation registry
func NewRepresentationRegistry(s store.Store, logger *zap.Logger) *RepresentationRegistry {
	return &RepresentationRegistry{store: s, logger: logger}
}

// RegisterVersion records a representation version. Registering twice keeps
// the first creation date.
func (r *RepresentationRegistry) RegisterVersion(ctx context.Context, v *model.RepresentationVersion) error {
	data, err := json.Marshal(assignmentValue{CreationDate: v.CreationDate})
	if err != nil {
		return errors.InternalError("failed to marshal representation version", err)
	}
	if _, err := r.store.InsertIfNotExists(ctx, TableRepresentationVersions,
		store.PartitionKey(v.CloudID, v.Schema), store.Key{v.Version}, data); err != nil {
		return storeError("failed to register representation version", err)
	}
	return nil
}

// GetVersion returns the representation version, or RepresentationNotFound
func (r *RepresentationRegistry) GetVersion(ctx context.Context, cloudID, schema, version string) (*model.RepresentationVersion, error) {
	row, err := r.store.Get(ctx, TableRepresentationVersions, store.PartitionKey(cloudID, schema), store.Key{version})
	if err == store.ErrNotFound {
		return nil, errors.RepresentationNotFound(cloudID, schema, version)
	}
	if err != nil {
		return nil, storeError("failed to read representation version", err)
	}

	var v assignmentValue
	if err := json.Unmarshal(row.Value, &v); err != nil {
		return nil, errors.InternalError("failed to unmarshal representation version", err)
	}
	return &model.RepresentationVersion{CloudID: cloudID, Schema: schema, Version: version, CreationDate: v.CreationDate}, nil
}

// HasRepresentation returns RepresentationNotFound unless some version of
// schema is registered for cloudID
func (r *RepresentationRegistry) HasRepresentation(ctx context.Context, cloudID, schema string) error {
	page, err := r.store.Query(ctx, TableRepresentationVersions, store.PartitionKey(cloudID, schema), store.Query{Limit: 1})
	if err != nil {
		return storeError("failed to read representation versions", err)
	}
	if len(page.Rows) == 0 {
		return errors.RepresentationNameNotFound(cloudID, schema)
	}
	return nil
}

func versionRevisionsPartition(cloudID, schema, version string) string {
	return store.PartitionKey(cloudID, schema, version)
}

// AddRevision records a revision against a representation version
func (r *RepresentationRegistry) AddRevision(ctx context.Context, cloudID, schema, version string, rev *model.Revision) error {
	data, err := json.Marshal(revisionTags{Published: rev.Published, Acceptance: rev.Acceptance, Deleted: rev.Deleted})
	if err != nil {
		return errors.InternalError("failed to marshal revision", err)
	}
	if err := r.store.Put(ctx, TableRepresentationRevisions, versionRevisionsPartition(cloudID, schema, version),
		store.Key{rev.RevisionProviderID, rev.RevisionName, store.FormatTime(rev.CreationTimestamp)}, data); err != nil {
		return storeError("failed to record representation revision", err)
	}
	return nil
}

// RemoveRevision drops a revision from a representation version
func (r *RepresentationRegistry) RemoveRevision(ctx context.Context, cloudID, schema, version string, rev *model.Revision) error {
	if _, err := r.store.DeleteIfExists(ctx, TableRepresentationRevisions, versionRevisionsPartition(cloudID, schema, version),
		store.Key{rev.RevisionProviderID, rev.RevisionName, store.FormatTime(rev.CreationTimestamp)}); err != nil {
		return storeError("failed to remove representation revision", err)
	}
	return nil
}

// ListRevisions returns every revision recorded against a representation version
func (r *RepresentationRegistry) ListRevisions(ctx context.Context, cloudID, schema, version string) ([]model.Revision, error) {
	page, err := r.store.Query(ctx, TableRepresentationRevisions, versionRevisionsPartition(cloudID, schema, version), store.Query{})
	if err != nil {
		return nil, storeError("failed to list representation revisions", err)
	}

	revisions := make([]model.Revision, 0, len(page.Rows))
	for _, row := range page.Rows {
		if len(row.Key) != 3 {
			return nil, errors.InternalError("malformed representation revision key", nil)
		}
		ts, err := store.ParseTime(row.Key[2])
		if err != nil {
			return nil, errors.InternalError("malformed representation revision timestamp", err)
		}
		var tags revisionTags
		if err := json.Unmarshal(row.Value, &tags); err != nil {
			return nil, errors.InternalError("failed to unmarshal representation revision", err)
		}
		revisions = append(revisions, model.Revision{
			RevisionProviderID: row.Key[0],
			RevisionName:       row.Key[1],
			CreationTimestamp:  ts,
			Published:          tags.Published,
			Acceptance:         tags.Acceptance,
			Deleted:            tags.Deleted,
		})
	}
	return revisions, nil
}
