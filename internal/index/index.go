// Package index implements the bucketed assignment, revision and latest-revision
// indices and the plain lookup tables of the data set catalog.
package index

import (
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/errors"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/pagination"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/store"
)

// Logical tables
const (
	TableDataProviders               = "data_providers"
	TableDataSets                    = "data_sets"
	TableAssignmentsByDataSet        = "data_set_assignments_by_data_set"
	TableAssignmentsByRepresentation = "data_set_assignments_by_representations"
	TableRepresentationNames         = "data_set_representation_names"
	TableAssignmentsByRevision       = "data_set_assignments_by_revision"
	TableLatestRevisions             = "latest_dataset_representation_revision"
	TableRepresentationVersions      = "representation_versions"
	TableRepresentationRevisions     = "representation_revisions"
)

// scanBatchSize bounds each query of an exhaustive scan
const scanBatchSize = 1000

// storeError wraps a driver error as StoreUnavailable, leaving catalog errors as they are
func storeError(message string, err error) error {
	if errors.IsCatalogError(err) {
		return err
	}
	return errors.StoreUnavailable(message, err)
}

// afterKey decodes the store cursor carried by a pagination token
func afterKey(cursor string) (store.Key, error) {
	if cursor == "" {
		return nil, nil
	}
	key, err := store.DecodeCursor(cursor)
	if err != nil {
		return nil, errors.MalformedToken(cursor, err.Error())
	}
	return key, nil
}

// nextCursor returns the cursor to resume page at, or "" when nothing remains
func nextCursor(page *store.Page) string {
	if !page.More || len(page.Rows) == 0 {
		return ""
	}
	return store.EncodeCursor(page.Rows[len(page.Rows)-1].Key)
}

// partitionToken renders the continuation of a single-partition listing
func partitionToken(page *store.Page) string {
	cursor := nextCursor(page)
	if cursor == "" {
		return ""
	}
	return pagination.Encode(cursor, "")
}

// partitionCursor extracts the store cursor from a single-partition listing token
func partitionCursor(token string) (store.Key, error) {
	if token == "" {
		return nil, nil
	}
	t, err := pagination.Decode(token)
	if err != nil {
		return nil, err
	}
	if t.BucketID != "" {
		return nil, errors.MalformedToken(token, "unexpected bucket id")
	}
	return afterKey(t.Cursor)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
