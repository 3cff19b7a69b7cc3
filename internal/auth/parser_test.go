package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/jurisconnect/internal/model"
)

func TestParserRoundTrip(t *testing.T) {
	parser := NewParser("secret")
	profileID := uuid.New()
	want := model.Principal{UserID: uuid.New(), Role: model.RoleCompany, ProfileID: &profileID}

	token, err := parser.Issue(want, time.Hour)
	require.NoError(t, err)

	got, err := parser.Parse(token)
	require.NoError(t, err)
	require.Equal(t, want.UserID, got.UserID)
	require.Equal(t, want.Role, got.Role)
	require.Equal(t, profileID, *got.ProfileID)
}

func TestParserRejects(t *testing.T) {
	parser := NewParser("secret")

	expired, err := parser.Issue(model.Principal{UserID: uuid.New(), Role: model.RoleAdmin}, -time.Minute)
	require.NoError(t, err)
	_, err = parser.Parse(expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewParser("other").Issue(model.Principal{UserID: uuid.New(), Role: model.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	_, err = parser.Parse(other)
	require.ErrorIs(t, err, ErrInvalidToken)

	noProfile, err := parser.Issue(model.Principal{UserID: uuid.New(), Role: model.RoleCorrespondent}, time.Hour)
	require.NoError(t, err)
	_, err = parser.Parse(noProfile)
	require.ErrorIs(t, err, ErrInvalidToken)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: uuid.NewString(),
		Role:   "driver",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = parser.Parse(badRole)
	require.ErrorIs(t, err, ErrInvalidToken)
}
