package validation

import (
	"strings"
	"testing"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestValidator_ValidateDataSet(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name       string
		providerID string
		dataSetID  string
		wantErr    bool
	}{
		{name: "valid", providerID: "europeana", dataSetID: "ds-2024_01"},
		{name: "empty provider", providerID: "", dataSetID: "d", wantErr: true},
		{name: "empty data set", providerID: "p", dataSetID: "", wantErr: true},
		{name: "slash in provider", providerID: "a/b", dataSetID: "d", wantErr: true},
		{name: "slash in data set", providerID: "p", dataSetID: "a/b", wantErr: true},
		{name: "null byte", providerID: "p", dataSetID: "a\x00b", wantErr: true},
		{name: "newline", providerID: "p\n", dataSetID: "d", wantErr: true},
		{name: "too long", providerID: strings.Repeat("p", MaxIDSize+1), dataSetID: "d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateDataSet(tt.providerID, tt.dataSetID)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(err))
		})
	}
}

func TestValidator_ValidateRepresentation(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateRepresentation("C1", "edm", "v1"))
	assert.Error(t, v.ValidateRepresentation("", "edm", "v1"))
	assert.Error(t, v.ValidateRepresentation("C1", "", "v1"))
	assert.Error(t, v.ValidateRepresentation("C1", "edm", ""))
	assert.Error(t, v.ValidateRepresentation("C1", strings.Repeat("s", MaxSchemaSize+1), "v1"))
}

func TestValidator_ValidateRepresentationName(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateRepresentationName("C1", "edm"))
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(v.ValidateRepresentationName("", "edm")))
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(v.ValidateRepresentationName("C1", "")))
	assert.Equal(t, errors.ErrCodeInvalidArgument,
		errors.GetCode(v.ValidateRepresentationName("C1", strings.Repeat("s", MaxSchemaSize+1))))
}
