package model

import "time"

// Purpose names the logical index a bucket belongs to
type Purpose string

const (
	PurposeAssignment     Purpose = "assignment"
	PurposeRevision       Purpose = "revision"
	PurposeLatestRevision Purpose = "latest_revision"
)

// Purposes lists every bucket purpose in a fixed order
var Purposes = []Purpose{PurposeAssignment, PurposeRevision, PurposeLatestRevision}

// Bucket is a partition-scoped shard of a logical table
type Bucket struct {
	OwnerKey  string    `json:"owner_key"`
	Purpose   Purpose   `json:"purpose"`
	BucketID  string    `json:"bucket_id"`
	CreatedAt time.Time `json:"created_at"`

	// RowsCount is approximate; concurrent writers may over- or under-count.
	RowsCount int64 `json:"-"`
}
