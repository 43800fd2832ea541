package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func TestValidate_UsesJSONNames(t *testing.T) {
	errs := Validate(sample{Email: "nope", Password: "short"})

	assert.Equal(t, map[string]string{"email": "email", "password": "min"}, errs)
}

func TestValidate_OK(t *testing.T) {
	assert.Nil(t, Validate(sample{Email: "a@x.com", Password: "longenough"}))
}
