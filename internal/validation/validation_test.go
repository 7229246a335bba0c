package validation

import (
	"testing"

	"github.com/schoolresults/server/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	SchoolName string `json:"schoolName" validate:"required"`
	Months     int    `json:"validityMonths" validate:"min=1,max=120"`
	Email      string `json:"email" validate:"omitempty,email"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(sample{SchoolName: "Lincoln High", Months: 12}))

	err := Struct(sample{Months: 12})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, "schoolName is required", apperr.Message(err))

	err = Struct(sample{SchoolName: "x", Months: 0})
	assert.Equal(t, "validityMonths must be at least 1", apperr.Message(err))

	err = Struct(sample{SchoolName: "x", Months: 1, Email: "not-an-email"})
	assert.Equal(t, "email must be a valid email address", apperr.Message(err))
}
