package model

import "time"

// Revision is a named, provider-scoped marker recorded against a representation version
type Revision struct {
	RevisionName       string    `json:"revision_name"`
	RevisionProviderID string    `json:"revision_provider_id"`
	CreationTimestamp  time.Time `json:"creation_timestamp"`
	Published          bool      `json:"published"`
	Acceptance         bool      `json:"acceptance"`
	Deleted            bool      `json:"deleted"`
}

// DataSetRevision is one row of the per-data-set "all revisions seen" index
type DataSetRevision struct {
	ProviderID       string `json:"provider_id"`
	DataSetID        string `json:"dataset_id"`
	RepresentationID string `json:"representation_id"`
	CloudID          string `json:"cloud_id"`
	Revision
}

// RevisionFilter restricts a revision listing. Fields form an ordered prefix:
// each one may only be set when all preceding fields are set.
type RevisionFilter struct {
	RevisionProviderID string
	RevisionName       string
	Timestamp          *time.Time
	RepresentationID   string
}

// LatestRevisionKey identifies a last-writer-wins register
type LatestRevisionKey struct {
	ProviderID         string `json:"provider_id"`
	DataSetID          string `json:"dataset_id"`
	RepresentationID   string `json:"representation_id"`
	RevisionName       string `json:"revision_name"`
	RevisionProviderID string `json:"revision_provider_id"`
	CloudID            string `json:"cloud_id"`
}

// LatestRevisionEntry is the live value of a LatestRevisionKey
type LatestRevisionEntry struct {
	LatestRevisionKey
	BucketID    string    `json:"bucket_id"`
	MarkDeleted bool      `json:"mark_deleted"`
	Timestamp   time.Time `json:"timestamp"`
	Published   bool      `json:"published"`
	Acceptance  bool      `json:"acceptance"`
}

// LatestRevisionQuery selects the current records of one revision and representation
type LatestRevisionQuery struct {
	ProviderID         string
	DataSetID          string
	RepresentationID   string
	RevisionName       string
	RevisionProviderID string
	MarkDeleted        bool

	// StartCloudID, when set, skips every cloud id up to and including it
	StartCloudID string
}
