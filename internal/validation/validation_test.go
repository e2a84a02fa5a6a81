package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/flashdeck/internal/domain"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=8"`
	Nested   struct {
		Port int `json:"port" validate:"gte=1"`
	} `json:"nested"`
}

func TestStruct(t *testing.T) {
	v, err := New("json")
	require.NoError(t, err)

	valid := signup{Email: "ann@example.com", Password: "long enough"}
	valid.Nested.Port = 80
	assert.NoError(t, v.Struct(valid))

	bad := valid
	bad.Email = "not-an-email"
	err = v.Struct(bad)
	require.ErrorIs(t, err, domain.ErrValidation)

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "email", ve.Field)
	assert.Contains(t, ve.Message, "valid email")

	nested := valid
	nested.Nested.Port = 0
	err = v.Struct(nested)
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "nested.port", ve.Field)
}

func TestMessages(t *testing.T) {
	v, err := New("json")
	require.NoError(t, err)

	msgs := v.Messages(signup{})
	assert.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], "email:")
}
