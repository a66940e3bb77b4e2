package auth_test

import (
	"strings"
	"testing"

	auth "github.com/hirelane/jobboard-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasherHash(t *testing.T) {
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)

	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "Valid password",
			password: "securePass123",
		},
		{
			name:     "Lower bound",
			password: strings.Repeat("a", 8),
		},
		{
			name:     "Upper bound",
			password: strings.Repeat("a", 32),
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  true,
		},
		{
			name:     "Too short",
			password: "1234567",
			wantErr:  true,
		},
		{
			name:     "Too long",
			password: strings.Repeat("a", 33),
			wantErr:  true,
		},
		{
			name:     "Multibyte at the byte limit",
			password: strings.Repeat("密", 24),
		},
		{
			name:     "Multibyte over the byte limit",
			password: strings.Repeat("密", 25),
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := hasher.Hash(tt.password)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, auth.Matches(err, auth.ErrPasswordLength))
				assert.Empty(t, hash)
				return
			}

			require.NoError(t, err)
			assert.NotEqual(t, tt.password, hash)
			assert.True(t, hasher.Verify(tt.password, hash))
		})
	}
}

func TestPasswordHasherVerify(t *testing.T) {
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	password := "testPassword123"
	hash, err := hasher.Hash(password)
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		hash     string
		want     bool
	}{
		{"Matching password", password, hash, true},
		{"Wrong password", "wrongPassword123", hash, false},
		{"Empty password", "", hash, false},
		{"Malformed hash", password, "not-a-bcrypt-hash", false},
		{"Empty hash", password, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasher.Verify(tt.password, tt.hash))
		})
	}
}

func TestPasswordHasherSaltsEachHash(t *testing.T) {
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)

	first, err := hasher.Hash("samePassword1")
	require.NoError(t, err)
	second, err := hasher.Hash("samePassword1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestNewPasswordHasherFallsBackOnInvalidCost(t *testing.T) {
	assert.Equal(t, bcrypt.MinCost, auth.NewPasswordHasher(bcrypt.MinCost).Cost())
	assert.GreaterOrEqual(t, auth.NewPasswordHasher(0).Cost(), bcrypt.MinCost)
	assert.LessOrEqual(t, auth.NewPasswordHasher(bcrypt.MaxCost+1).Cost(), bcrypt.DefaultCost)
}
