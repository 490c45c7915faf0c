package model

import "time"

// DataProvider represents a content provider that owns data sets
type DataProvider struct {
	ProviderID string    `json:"provider_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// DataSet represents a named collection of representation versions owned by a provider
type DataSet struct {
	ProviderID   string    `json:"provider_id"`
	DataSetID    string    `json:"dataset_id"`
	Description  string    `json:"description"`
	CreationTime time.Time `json:"creation_time"`
}

// OwnerKey returns the composite key buckets of this data set are tracked under
func (d *DataSet) OwnerKey() string {
	return OwnerKey(d.ProviderID, d.DataSetID)
}

// DataSetRef identifies a data set without its attributes
type DataSetRef struct {
	ProviderID string `json:"provider_id"`
	DataSetID  string `json:"dataset_id"`
}

// OwnerKey builds the "provider/dataset" key. Identifiers never contain '/'.
func OwnerKey(providerID, dataSetID string) string {
	return providerID + "/" + dataSetID
}

// Assignment links a representation version to a data set
type Assignment struct {
	ProviderID   string    `json:"provider_id"`
	DataSetID    string    `json:"dataset_id"`
	CloudID      string    `json:"cloud_id"`
	Schema       string    `json:"schema"`
	Version      string    `json:"version"`
	CreationDate time.Time `json:"creation_date"`
}

// RepresentationVersion identifies one version of a record representation
type RepresentationVersion struct {
	CloudID      string    `json:"cloud_id"`
	Schema       string    `json:"schema"`
	Version      string    `json:"version"`
	CreationDate time.Time `json:"creation_date"`
}
