package validator

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signupBody struct {
	Username string `json:"username" validate:"required,alphanum,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin superadmin"`
	Birthday string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(signupBody{Username: "alice", Email: "alice@x.com"}))
}

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	err := Validate(signupBody{Email: "not-an-email"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "is required", fields["username"])
	assert.Equal(t, "must be a valid email address", fields["email"])
	assert.Contains(t, err.Error(), "field 'username' is required")
}

func TestValidate_TagMessages(t *testing.T) {
	err := Validate(signupBody{
		Username: "a!",
		Email:    "a@x.com",
		Role:     "root",
		Birthday: "31/12/1990",
	})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "must contain only letters and digits", fields["username"])
	assert.Equal(t, "must be one of: user admin superadmin", fields["role"])
	assert.Equal(t, "must be a date in the format 2006-01-02", fields["date_of_birth"])
}

func TestDecodeAndValidate(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"username":"bob","email":"bob@x.com"}`))
	var body signupBody
	require.NoError(t, DecodeAndValidate(req, &body))
	assert.Equal(t, "bob", body.Username)

	bad := httptest.NewRequest("POST", "/", strings.NewReader(`{not json`))
	err := DecodeAndValidate(bad, &body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}
