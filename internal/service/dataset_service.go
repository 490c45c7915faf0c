package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/bucket"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/errors"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/index"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/metrics"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/model"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/store"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/validation"
	"go.uber.org/zap"
)

const (
	defaultCacheTTL          = 5 * time.Minute
	defaultFanOutConcurrency = 8
	dataSetCachePrefix       = "dataset:"
)

// Options tunes a DataSetService
type Options struct {
	// Ceilings overrides the rollover ceiling per bucket purpose
	Ceilings          map[model.Purpose]int64
	CacheTTL          time.Duration
	FanOutConcurrency int
}

// DataSetService is the public catalog API: it checks data set, provider and
// representation existence and then drives the bucketed indices. Multi-step
// operations are ordered sequences of idempotent steps; a failed call is
// retried as a whole.
type DataSetService struct {
	providers   *index.ProviderTable
	dataSets    *index.DataSetTable
	registry    *index.RepresentationRegistry
	assignments *index.AssignmentStore
	revisions   *index.RevisionIndex
	latest      *index.LatestRevisionTracker
	cache       store.Cache
	validator   *validation.Validator
	cacheTTL    time.Duration
	fanOut      int
	now         func() time.Time
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewDataSetService creates a catalog over s. cache holds data set rows.
func NewDataSetService(
	s store.Store,
	cache store.Cache,
	opts Options,
	logger *zap.Logger,
	m *metrics.Metrics,
) *DataSetService {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.FanOutConcurrency <= 0 {
		opts.FanOutConcurrency = defaultFanOutConcurrency
	}

	dir := bucket.NewDirectory(s, opts.Ceilings, logger, m)
	return &DataSetService{
		providers:   index.NewProviderTable(s, logger),
		dataSets:    index.NewDataSetTable(s, logger),
		registry:    index.NewRepresentationRegistry(s, logger),
		assignments: index.NewAssignmentStore(s, dir, logger, m),
		revisions:   index.NewRevisionIndex(s, dir, logger, m),
		latest:      index.NewLatestRevisionTracker(s, dir, logger, m),
		cache:       cache,
		validator:   validation.NewValidator(),
		cacheTTL:    opts.CacheTTL,
		fanOut:      opts.FanOutConcurrency,
		now:         time.Now,
		logger:      logger,
		metrics:     m,
	}
}

// observe records the outcome of a public operation. Deferred with the
// address of the named error result.
func (s *DataSetService) observe(operation string, start time.Time, errp *error) {
	s.metrics.RecordOperation(operation, errors.GetCode(*errp).String(), time.Since(start).Seconds())
}

// cleanupFailed reports a best-effort step that could not complete. The
// calling operation still succeeds.
func (s *DataSetService) cleanupFailed(step string, err error, fields ...zap.Field) {
	s.metrics.RecordInconsistentState("secondary_cleanup")
	s.logger.Warn("Inconsistent state: secondary cleanup failed",
		append(fields, zap.String("step", step), zap.Error(err))...)
}

func dataSetCacheKey(providerID, dataSetID string) string {
	return dataSetCachePrefix + model.OwnerKey(providerID, dataSetID)
}

// CreateProvider registers a data provider
func (s *DataSetService) CreateProvider(ctx context.Context, providerID string) (_ *model.DataProvider, err error) {
	defer s.observe("create_provider", time.Now(), &err)

	if err := s.validator.ValidateProviderID(providerID); err != nil {
		return nil, err
	}

	p := &model.DataProvider{ProviderID: providerID, CreatedAt: s.now().UTC()}
	if err := s.providers.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("Created provider", zap.String("provider_id", providerID))
	return p, nil
}

// CreateDataSet creates an empty data set owned by an existing provider
func (s *DataSetService) CreateDataSet(ctx context.Context, providerID, dataSetID, description string) (_ *model.DataSet, err error) {
	defer s.observe("create_dataset", time.Now(), &err)

	if err := s.validator.ValidateDataSet(providerID, dataSetID); err != nil {
		return nil, err
	}
	if _, err := s.providers.Get(ctx, providerID); err != nil {
		return nil, err
	}

	ds := &model.DataSet{
		ProviderID:   providerID,
		DataSetID:    dataSetID,
		Description:  description,
		CreationTime: s.now().UTC(),
	}
	if err := s.dataSets.Create(ctx, ds); err != nil {
		return nil, err
	}
	s.cacheDataSet(ctx, ds)

	s.logger.Info("Created data set",
		zap.String("provider_id", providerID),
		zap.String("dataset_id", dataSetID))
	return ds, nil
}

// GetDataSet returns a data set, or DataSetNotFound
func (s *DataSetService) GetDataSet(ctx context.Context, providerID, dataSetID string) (_ *model.DataSet, err error) {
	defer s.observe("get_dataset", time.Now(), &err)
	return s.getDataSet(ctx, providerID, dataSetID)
}

func (s *DataSetService) getDataSet(ctx context.Context, providerID, dataSetID string) (*model.DataSet, error) {
	if err := s.validator.ValidateDataSet(providerID, dataSetID); err != nil {
		return nil, err
	}

	if data, err := s.cache.Get(ctx, dataSetCacheKey(providerID, dataSetID)); err == nil {
		var ds model.DataSet
		if err := json.Unmarshal(data, &ds); err == nil {
			s.metrics.RecordCacheHit()
			return &ds, nil
		}
	} else if err != store.ErrNotFound {
		s.logger.Warn("Data set cache lookup failed",
			zap.String("provider_id", providerID),
			zap.String("dataset_id", dataSetID),
			zap.Error(err))
	}
	s.metrics.RecordCacheMiss()

	ds, err := s.dataSets.Get(ctx, providerID, dataSetID)
	if err != nil {
		return nil, err
	}
	s.cacheDataSet(ctx, ds)
	return ds, nil
}

func (s *DataSetService) cacheDataSet(ctx context.Context, ds *model.DataSet) {
	data, err := json.Marshal(ds)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, dataSetCacheKey(ds.ProviderID, ds.DataSetID), data, s.cacheTTL); err != nil {
		s.logger.Warn("Failed to cache data set",
			zap.String("provider_id", ds.ProviderID),
			zap.String("dataset_id", ds.DataSetID),
			zap.Error(err))
	}
}

func (s *DataSetService) evictDataSet(ctx context.Context, providerID, dataSetID string) {
	if err := s.cache.Delete(ctx, dataSetCacheKey(providerID, dataSetID)); err != nil {
		s.logger.Warn("Failed to evict data set from cache",
			zap.String("provider_id", providerID),
			zap.String("dataset_id", dataSetID),
			zap.Error(err))
	}
}

// UpdateDataSet replaces the description of an existing data set
func (s *DataSetService) UpdateDataSet(ctx context.Context, providerID, dataSetID, description string) (_ *model.DataSet, err error) {
	defer s.observe("update_dataset", time.Now(), &err)

	ds, err := s.getDataSet(ctx, providerID, dataSetID)
	if err != nil {
		return nil, err
	}

	ds.Description = description
	if err := s.dataSets.Update(ctx, ds); err != nil {
		return nil, err
	}
	s.evictDataSet(ctx, providerID, dataSetID)
	return ds, nil
}

// DeleteDataSet removes an empty data set together with its revision
// history, latest-revision entries, representation names and bucket
// metadata. The cascade visits every revision row and every bucket, so its
// cost grows with the data set's history.
func (s *DataSetService) DeleteDataSet(ctx context.Context, providerID, dataSetID string) (err error) {
	defer s.observe("delete_dataset", time.Now(), &err)

	if _, err := s.getDataSet(ctx, providerID, dataSetID); err != nil {
		return err
	}

	nonEmpty, err := s.assignments.HasAnyAssignment(ctx, providerID, dataSetID, "")
	if err != nil {
		return err
	}
	if nonEmpty {
		return errors.DataSetNotEmpty(providerID, dataSetID)
	}

	err = s.revisions.ForEach(ctx, providerID, dataSetID, func(r *model.DataSetRevision) error {
		_, err := s.latest.Purge(ctx, &model.LatestRevisionKey{
			ProviderID:         providerID,
			DataSetID:          dataSetID,
			RepresentationID:   r.RepresentationID,
			RevisionName:       r.RevisionName,
			RevisionProviderID: r.RevisionProviderID,
			CloudID:            r.CloudID,
		})
		return err
	})
	if err != nil {
		return err
	}

	steps := []func(context.Context, string, string) error{
		s.revisions.DeleteAll,
		s.latest.DeleteBuckets,
		s.assignments.DeleteRepresentationNames,
		s.assignments.DeleteBuckets,
		s.dataSets.Delete,
	}
	for _, step := range steps {
		if err := step(ctx, providerID, dataSetID); err != nil {
			return err
		}
	}
	s.evictDataSet(ctx, providerID, dataSetID)

	s.logger.Info("Deleted data set",
		zap.String("provider_id", providerID),
		zap.String("dataset_id", dataSetID))
	return nil
}

// ListDataSets returns one page of a provider's data sets
func (s *DataSetService) ListDataSets(ctx context.Context, providerID, token string, limit int) (_ []model.DataSet, _ string, err error) {
	defer s.observe("list_datasets", time.Now(), &err)

	if err := s.validator.ValidateProviderID(providerID); err != nil {
		return nil, "", err
	}
	if _, err := s.providers.Get(ctx, providerID); err != nil {
		return nil, "", err
	}
	return s.dataSets.List(ctx, providerID, token, limit)
}

// RegisterRepresentationVersion makes a representation version known to the
// catalog so it can be assigned. Registering twice is a no-op.
func (s *DataSetService) RegisterRepresentationVersion(ctx context.Context, cloudID, schema, version string) (_ *model.RepresentationVersion, err error) {
	defer s.observe("register_representation_version", time.Now(), &err)

	if err := s.validator.ValidateRepresentation(cloudID, schema, version); err != nil {
		return nil, err
	}
	if err := s.registry.RegisterVersion(ctx, &model.RepresentationVersion{
		CloudID:      cloudID,
		Schema:       schema,
		Version:      version,
		CreationDate: s.now().UTC(),
	}); err != nil {
		return nil, err
	}
	return s.registry.GetVersion(ctx, cloudID, schema, version)
}
