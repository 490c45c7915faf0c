package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/errors"
)

const (
	// Size limits
	MaxIDSize      = 256
	MaxSchemaSize  = 128
	MaxVersionSize = 128
)

// Validator validates catalog identifiers
type Validator struct {
	maxIDSize      int
	maxSchemaSize  int
	maxVersionSize int
}

// NewValidator creates a new validator with default limits
func NewValidator() *Validator {
	return &Validator{
		maxIDSize:      MaxIDSize,
		maxSchemaSize:  MaxSchemaSize,
		maxVersionSize: MaxVersionSize,
	}
}

// ValidateDataSet validates a provider and data set id pair
func (v *Validator) ValidateDataSet(providerID, dataSetID string) error {
	if err := v.ValidateProviderID(providerID); err != nil {
		return err
	}
	return v.validate("data set ID", dataSetID, v.maxIDSize)
}

// ValidateProviderID validates a provider id
func (v *Validator) ValidateProviderID(providerID string) error {
	return v.validate("provider ID", providerID, v.maxIDSize)
}

// ValidateRepresentationName validates a representation reference without a version
func (v *Validator) ValidateRepresentationName(cloudID, schema string) error {
	if err := v.validate("cloud ID", cloudID, v.maxIDSize); err != nil {
		return err
	}
	return v.validate("schema", schema, v.maxSchemaSize)
}

// ValidateRepresentation validates a representation version reference
func (v *Validator) ValidateRepresentation(cloudID, schema, version string) error {
	if err := v.ValidateRepresentationName(cloudID, schema); err != nil {
		return err
	}
	return v.validate("version", version, v.maxVersionSize)
}

func (v *Validator) validate(field, value string, maxSize int) error {
	if value == "" {
		return errors.InvalidArgument(fmt.Sprintf("%s cannot be empty", field))
	}

	if len(value) > maxSize {
		return errors.InvalidArgument(fmt.Sprintf("%s exceeds maximum size of %d bytes", field, maxSize))
	}

	// '/' joins provider and data set ids into owner keys
	if strings.Contains(value, "/") {
		return errors.InvalidArgument(fmt.Sprintf("%s cannot contain '/' character", field))
	}

	// Check for control characters, null bytes included
	for _, r := range value {
		if unicode.IsControl(r) {
			return errors.InvalidArgument(fmt.Sprintf("%s cannot contain control characters", field))
		}
	}

	return nil
}
