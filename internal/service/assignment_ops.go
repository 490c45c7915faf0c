package service

import (
	"context"
	"time"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/model"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/pagination"
	"go.uber.org/zap"
)

// checkAssignable verifies the data set and the representation version exist
func (s *DataSetService) checkAssignable(ctx context.Context, providerID, dataSetID, cloudID, schema, version string) error {
	if _, err := s.getDataSet(ctx, providerID, dataSetID); err != nil {
		return err
	}
	if err := s.validator.ValidateRepresentation(cloudID, schema, version); err != nil {
		return err
	}
	_, err := s.registry.GetVersion(ctx, cloudID, schema, version)
	return err
}

// AddAssignment assigns a representation version to a data set: the forward
// and reverse rows are written unless the reverse index already holds them,
// the schema joins the data set's representation names and the revisions
// already recorded against the version are replayed into the data set's
// revision indices. Every step is keyed deterministically, so retrying a
// failed call converges.
func (s *DataSetService) AddAssignment(ctx context.Context, providerID, dataSetID, cloudID, schema, version string) (err error) {
	defer s.observe("add_assignment", time.Now(), &err)

	if err := s.checkAssignable(ctx, providerID, dataSetID, cloudID, schema, version); err != nil {
		return err
	}

	exists, err := s.assignments.Exists(ctx, providerID, dataSetID, cloudID, schema, version)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.assignments.Add(ctx, &model.Assignment{
			ProviderID:   providerID,
			DataSetID:    dataSetID,
			CloudID:      cloudID,
			Schema:       schema,
			Version:      version,
			CreationDate: s.now().UTC(),
		}); err != nil {
			return err
		}
	}

	if err := s.assignments.AddRepresentationName(ctx, providerID, dataSetID, schema); err != nil {
		return err
	}

	revisions, err := s.registry.ListRevisions(ctx, cloudID, schema, version)
	if err != nil {
		return err
	}
	for i := range revisions {
		if err := s.applyRevision(ctx, providerID, dataSetID, schema, cloudID, &revisions[i]); err != nil {
			return err
		}
	}

	s.logger.Debug("Assigned representation",
		zap.String("provider_id", providerID),
		zap.String("dataset_id", dataSetID),
		zap.String("cloud_id", cloudID),
		zap.String("schema", schema),
		zap.String("version", version),
		zap.Bool("already_assigned", exists),
		zap.Int("revisions", len(revisions)))
	return nil
}

// RemoveAssignment unassigns a representation version. Unassigning a version
// that is not assigned succeeds. The representation name is dropped once no
// assignment of the schema remains, and the version's revisions leave the
// data set's revision indices; both cleanups are best-effort.
func (s *DataSetService) RemoveAssignment(ctx context.Context, providerID, dataSetID, cloudID, schema, version string) (err error) {
	defer s.observe("remove_assignment", time.Now(), &err)

	if err := s.checkAssignable(ctx, providerID, dataSetID, cloudID, schema, version); err != nil {
		return err
	}

	removed, err := s.assignments.Remove(ctx, providerID, dataSetID, cloudID, schema, version)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("provider_id", providerID),
		zap.String("dataset_id", dataSetID),
		zap.String("cloud_id", cloudID),
		zap.String("schema", schema),
		zap.String("version", version),
	}

	if stillHeld, err := s.assignments.HasAnyAssignment(ctx, providerID, dataSetID, schema); err != nil {
		s.cleanupFailed("representation_name", err, fields...)
	} else if !stillHeld {
		if err := s.assignments.RemoveRepresentationName(ctx, providerID, dataSetID, schema); err != nil {
			s.cleanupFailed("representation_name", err, fields...)
		}
	}

	revisions, err := s.registry.ListRevisions(ctx, cloudID, schema, version)
	if err != nil {
		s.cleanupFailed("revisions", err, fields...)
		revisions = nil
	}
	for i := range revisions {
		if err := s.unapplyRevision(ctx, providerID, dataSetID, schema, cloudID, &revisions[i]); err != nil {
			s.cleanupFailed("revisions", err, fields...)
		}
	}

	s.logger.Debug("Unassigned representation", append(fields, zap.Bool("found", removed))...)
	return nil
}

// ListAssignments returns one page of a data set's assignments. A data set
// that does not exist lists as empty.
func (s *DataSetService) ListAssignments(ctx context.Context, providerID, dataSetID, token string, limit int) (_ *pagination.Result[model.Assignment], err error) {
	defer s.observe("list_assignments", time.Now(), &err)

	if err := s.validator.ValidateDataSet(providerID, dataSetID); err != nil {
		return nil, err
	}
	return s.assignments.List(ctx, providerID, dataSetID, token, limit)
}

// ListDataSetsForRepresentationVersion returns every data set holding the version
func (s *DataSetService) ListDataSetsForRepresentationVersion(ctx context.Context, cloudID, schema, version string) (_ []model.DataSetRef, err error) {
	defer s.observe("list_datasets_for_version", time.Now(), &err)

	if err := s.validator.ValidateRepresentation(cloudID, schema, version); err != nil {
		return nil, err
	}
	return s.assignments.ListDataSetsForVersion(ctx, cloudID, schema, version)
}

// ListRepresentationNames returns the schemas a data set currently holds
func (s *DataSetService) ListRepresentationNames(ctx context.Context, providerID, dataSetID string) (_ []string, err error) {
	defer s.observe("list_representation_names", time.Now(), &err)

	if _, err := s.getDataSet(ctx, providerID, dataSetID); err != nil {
		return nil, err
	}
	return s.assignments.ListRepresentationNames(ctx, providerID, dataSetID)
}
