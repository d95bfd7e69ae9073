package jwttoken

import (
	"testing"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	subject := Subject{UserID: 7, ShopID: 3, Role: entities.RoleDriver}

	token, err := Generate("secret", subject)
	require.NoError(t, err)

	parsed, err := Parse("secret", token)
	require.NoError(t, err)
	assert.Equal(t, subject, parsed)
}

func TestParseRejectsForeignSignature(t *testing.T) {
	token, err := Generate("secret", Subject{UserID: 7, ShopID: 3, Role: entities.RoleOwner})
	require.NoError(t, err)

	_, err = Parse("another", token)
	assert.Error(t, err)

	_, err = Parse("secret", "not-a-token")
	assert.Error(t, err)
}
