package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/zhouzirui/drafting/backend/internal/model/user"
)

func TestPasswordHashAndCheck(t *testing.T) {
	hash, err := HashPassword("secret123", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, CheckPassword("secret123", hash))
	assert.False(t, CheckPassword("wrong", hash))
}

func TestJWTRoundTrip(t *testing.T) {
	secret := []byte("s3cr3t")
	token, err := GenerateJWT(42, user.RoleAdmin, secret, time.Hour)
	require.NoError(t, err)

	p, err := ValidateJWT(token, secret)
	require.NoError(t, err)
	assert.Equal(t, user.Principal{UserID: 42, Role: user.RoleAdmin}, p)
	assert.True(t, p.IsAdmin())
}

func TestJWTValidationEdgeCases(t *testing.T) {
	secret := []byte("correct-secret")

	tests := []struct {
		name    string
		token   func() string
		wantErr error
	}{
		{
			name: "wrong secret",
			token: func() string {
				tok, _ := GenerateJWT(1, user.RoleUser, []byte("other"), time.Hour)
				return tok
			},
			wantErr: ErrInvalidJWT,
		},
		{
			name: "expired",
			token: func() string {
				tok, _ := GenerateJWT(1, user.RoleUser, secret, -time.Minute)
				return tok
			},
			wantErr: ErrExpiredJWT,
		},
		{
			name:    "garbage",
			token:   func() string { return "not.a.token" },
			wantErr: ErrInvalidJWT,
		},
		{
			name: "non numeric subject",
			token: func() string {
				claims := &Claims{Role: "USER", RegisteredClaims: jwt.RegisteredClaims{
					Subject:   "alice",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				}}
				tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
				return tok
			},
			wantErr: ErrInvalidJWT,
		},
		{
			name: "none algorithm",
			token: func() string {
				claims := &Claims{Role: "ADMIN", RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}}
				tok, _ := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
				return tok
			},
			wantErr: ErrInvalidJWT,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateJWT(tt.token(), secret)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUnknownRoleFallsBackToUser(t *testing.T) {
	secret := []byte("s")
	claims := &Claims{Role: "ROOT", RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	p, err := ValidateJWT(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, user.RoleUser, p.Role)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), user.Principal{UserID: 3, Role: user.RoleUser})
	p, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(3), p.UserID)
}
