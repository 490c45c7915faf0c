package service

import (
	"context"
	"time"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/errors"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/model"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/pagination"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func latestKey(providerID, dataSetID, schema, cloudID string, rev *model.Revision) *model.LatestRevisionKey {
	return &model.LatestRevisionKey{
		ProviderID:         providerID,
		DataSetID:          dataSetID,
		RepresentationID:   schema,
		RevisionName:       rev.RevisionName,
		RevisionProviderID: rev.RevisionProviderID,
		CloudID:            cloudID,
	}
}

func validateRevision(rev *model.Revision) error {
	if rev == nil {
		return errors.InvalidArgument("revision is required")
	}
	if rev.RevisionName == "" || rev.RevisionProviderID == "" {
		return errors.InvalidArgument("revision name and revision provider are required")
	}
	if rev.CreationTimestamp.IsZero() {
		return errors.InvalidArgument("revision timestamp is required")
	}
	return nil
}

// applyRevision records rev in the data set's revision index and, unless a
// newer revision is already recorded, installs it as the latest entry
func (s *DataSetService) applyRevision(ctx context.Context, providerID, dataSetID, schema, cloudID string, rev *model.Revision) error {
	if err := s.revisions.Add(ctx, &model.DataSetRevision{
		ProviderID:       providerID,
		DataSetID:        dataSetID,
		RepresentationID: schema,
		CloudID:          cloudID,
		Revision:         *rev,
	}); err != nil {
		return err
	}

	key := latestKey(providerID, dataSetID, schema, cloudID, rev)
	current, err := s.latest.Lookup(ctx, key)
	if err != nil {
		return err
	}
	if current != nil && rev.CreationTimestamp.Before(current.Timestamp) {
		return nil
	}

	return s.latest.Upsert(ctx, &model.LatestRevisionEntry{
		LatestRevisionKey: *key,
		MarkDeleted:       rev.Deleted,
		Timestamp:         rev.CreationTimestamp,
		Published:         rev.Published,
		Acceptance:        rev.Acceptance,
	})
}

// unapplyRevision removes rev from the data set's revision index and purges
// the latest entry when it records this very revision
func (s *DataSetService) unapplyRevision(ctx context.Context, providerID, dataSetID, schema, cloudID string, rev *model.Revision) error {
	if _, err := s.revisions.Remove(ctx, &model.DataSetRevision{
		ProviderID:       providerID,
		DataSetID:        dataSetID,
		RepresentationID: schema,
		CloudID:          cloudID,
		Revision:         *rev,
	}); err != nil {
		return err
	}

	key := latestKey(providerID, dataSetID, schema, cloudID, rev)
	current, err := s.latest.Lookup(ctx, key)
	if err != nil || current == nil {
		return err
	}
	if !current.Timestamp.Equal(rev.CreationTimestamp) {
		return nil
	}
	_, err = s.latest.Purge(ctx, key)
	return err
}

// AddRevision records a revision of representation schema of cloudID against
// one data set
func (s *DataSetService) AddRevision(ctx context.Context, providerID, dataSetID, schema, cloudID string, rev *model.Revision) (err error) {
	defer s.observe("add_revision", time.Now(), &err)

	if err := s.checkRevisionTarget(ctx, providerID, dataSetID, schema, cloudID, rev); err != nil {
		return err
	}
	return s.applyRevision(ctx, providerID, dataSetID, schema, cloudID, rev)
}

// RecordRevision records a revision against a representation version and
// fans it out to every data set the version is assigned to. Data sets that
// gain the version later receive it when it is assigned.
func (s *DataSetService) RecordRevision(ctx context.Context, cloudID, schema, version string, rev *model.Revision) (err error) {
	defer s.observe("record_revision", time.Now(), &err)

	if err := s.validator.ValidateRepresentation(cloudID, schema, version); err != nil {
		return err
	}
	if err := validateRevision(rev); err != nil {
		return err
	}
	if _, err := s.registry.GetVersion(ctx, cloudID, schema, version); err != nil {
		return err
	}
	if err := s.registry.AddRevision(ctx, cloudID, schema, version, rev); err != nil {
		return err
	}

	refs, err := s.assignments.ListDataSetsForVersion(ctx, cloudID, schema, version)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			return s.applyRevision(gctx, ref.ProviderID, ref.DataSetID, schema, cloudID, rev)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Debug("Recorded revision",
		zap.String("cloud_id", cloudID),
		zap.String("schema", schema),
		zap.String("version", version),
		zap.String("revision_name", rev.RevisionName),
		zap.String("revision_provider_id", rev.RevisionProviderID),
		zap.Int("datasets", len(refs)))
	return nil
}

// RemoveRevision removes a revision from one data set. Removing a revision
// that was never recorded succeeds.
func (s *DataSetService) RemoveRevision(ctx context.Context, providerID, dataSetID, schema, cloudID string, rev *model.Revision) (err error) {
	defer s.observe("remove_revision", time.Now(), &err)

	if err := s.checkRevisionTarget(ctx, providerID, dataSetID, schema, cloudID, rev); err != nil {
		return err
	}
	return s.unapplyRevision(ctx, providerID, dataSetID, schema, cloudID, rev)
}

// checkRevisionTarget requires an existing data set, a valid revision and a
// registered representation
func (s *DataSetService) checkRevisionTarget(ctx context.Context, providerID, dataSetID, schema, cloudID string, rev *model.Revision) error {
	if _, err := s.getDataSet(ctx, providerID, dataSetID); err != nil {
		return err
	}
	if err := s.validator.ValidateRepresentationName(cloudID, schema); err != nil {
		return err
	}
	if err := validateRevision(rev); err != nil {
		return err
	}
	return s.registry.HasRepresentation(ctx, cloudID, schema)
}

// ListRevisions returns one page of a data set's revisions matching filter
func (s *DataSetService) ListRevisions(
	ctx context.Context,
	providerID, dataSetID string,
	filter model.RevisionFilter,
	token string,
	limit int,
) (_ *pagination.Result[model.DataSetRevision], err error) {
	defer s.observe("list_revisions", time.Now(), &err)

	if err := s.validator.ValidateDataSet(providerID, dataSetID); err != nil {
		return nil, err
	}
	return s.revisions.List(ctx, providerID, dataSetID, filter, token, limit)
}

// GetLatestRevisionTimestamp returns the timestamp of the latest revision
// recorded for key, or nil when none is
func (s *DataSetService) GetLatestRevisionTimestamp(ctx context.Context, key model.LatestRevisionKey) (_ *time.Time, err error) {
	defer s.observe("get_latest_revision_timestamp", time.Now(), &err)

	if err := s.validator.ValidateDataSet(key.ProviderID, key.DataSetID); err != nil {
		return nil, err
	}
	return s.latest.GetLatestTimestamp(ctx, &key)
}

// ListLatestByRevisionAndRepresentation returns one page of the records whose
// latest revision matches q, ordered by cloud id within each bucket
func (s *DataSetService) ListLatestByRevisionAndRepresentation(
	ctx context.Context,
	q model.LatestRevisionQuery,
	token string,
	limit int,
) (_ *pagination.Result[model.LatestRevisionEntry], err error) {
	defer s.observe("list_latest_revisions", time.Now(), &err)

	if err := s.validator.ValidateDataSet(q.ProviderID, q.DataSetID); err != nil {
		return nil, err
	}
	if q.RepresentationID == "" || q.RevisionName == "" || q.RevisionProviderID == "" {
		return nil, errors.InvalidArgument("representation, revision name and revision provider are required")
	}
	return s.latest.List(ctx, q, token, limit)
}
