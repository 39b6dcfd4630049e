package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type otpRequest struct {
	MobileNumber string `validate:"required,mobile"`
	Code         string `validate:"omitempty,len=6"`
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(otpRequest{MobileNumber: "+919876543210"}))
	assert.NoError(t, Validate(otpRequest{MobileNumber: "9876543210", Code: "123456"}))
}

func TestValidate_MobileTag(t *testing.T) {
	err := Validate(otpRequest{MobileNumber: "not-a-number"})
	require.Error(t, err)

	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Contains(t, verr.Fields()["MobileNumber"], "mobile number")
}

func TestValidate_Required(t *testing.T) {
	err := Validate(otpRequest{})
	require.Error(t, err)

	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "is required", verr.Fields()["MobileNumber"])
}

func TestValidate_CodeLength(t *testing.T) {
	err := Validate(otpRequest{MobileNumber: "9876543210", Code: "12"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Code")
}
