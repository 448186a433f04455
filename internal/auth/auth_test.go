package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIssuer(t *testing.T, ttl time.Duration) *Issuer {
	t.Helper()
	secret, err := GenerateSecureSecret()
	require.NoError(t, err)
	issuer, err := NewIssuer(secret, ttl)
	require.NoError(t, err)
	return issuer
}

// TestGenerateAndValidate тестирует полный цикл токена
func TestGenerateAndValidate(t *testing.T) {
	issuer := newIssuer(t, time.Hour)
	op := &Operator{ID: 42, Username: "validuser", IsAdmin: true}

	token, err := issuer.Generate(op)
	require.NoError(t, err)
	// Токен из трёх частей
	assert.Equal(t, 2, strings.Count(token, "."))

	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, op.ID, claims.OperatorID)
	assert.Equal(t, "validuser", claims.Subject)
	assert.True(t, claims.IsAdmin)
}

// TestValidateInvalidJWT тестирует валидацию недействительного JWT
func TestValidateInvalidJWT(t *testing.T) {
	issuer := newIssuer(t, time.Hour)

	for _, invalid := range []string{
		"invalid.token.here",
		"",
		"not.a.jwt",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
	} {
		_, err := issuer.Validate(invalid)
		assert.Error(t, err, invalid)
	}
}

func TestValidateForeignSecret(t *testing.T) {
	token, err := newIssuer(t, time.Hour).Generate(&Operator{ID: 1, Username: "a"})
	require.NoError(t, err)

	_, err = newIssuer(t, time.Hour).Validate(token)
	assert.Error(t, err)
}

func signed(t *testing.T, issuer *Issuer, method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, &Claims{OperatorID: 1, RegisteredClaims: claims}).SignedString(issuer.secret)
	require.NoError(t, err)
	return token
}

func TestRejectedClaims(t *testing.T) {
	issuer := newIssuer(t, time.Hour)
	now := time.Now()
	cases := map[string]string{
		"истёк": signed(t, issuer, jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Issuer:    issuerName,
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		}),
		"без срока": signed(t, issuer, jwt.SigningMethodHS256, jwt.RegisteredClaims{Issuer: issuerName}),
		"чужой издатель": signed(t, issuer, jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Issuer:    "other",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		}),
		"HS512": signed(t, issuer, jwt.SigningMethodHS512, jwt.RegisteredClaims{
			Issuer:    issuerName,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		}),
	}
	for name, token := range cases {
		_, err := issuer.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}

	// расхождение часов в пределах clockSkew допускается
	skewed := signed(t, issuer, jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuerName,
		ExpiresAt: jwt.NewNumericDate(now.Add(-clockSkew / 2)),
	})
	_, err := issuer.Validate(skewed)
	assert.NoError(t, err)
}

func TestNewIssuerSecrets(t *testing.T) {
	issuer, err := NewIssuer("", 0)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, issuer.TTL())

	_, err = NewIssuer("dG9vLXNob3J0", time.Hour)
	assert.ErrorIs(t, err, ErrShortSecret)

	_, err = NewIssuer("invalid-base64-@#$%", time.Hour)
	assert.Error(t, err)

	s1, err := GenerateSecureSecret()
	require.NoError(t, err)
	s2, err := GenerateSecureSecret()
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
	assert.GreaterOrEqual(t, len(s1), 40)
}

func TestOperatorRepository(t *testing.T) {
	repo := NewOperatorRepository()
	hash, err := HashPassword("secret")
	require.NoError(t, err)

	op, err := repo.Create("Admin", hash, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), op.ID)

	_, err = repo.Create("admin", hash, false)
	assert.ErrorIs(t, err, ErrOperatorExists)
	_, err = repo.Create("  ", hash, false)
	assert.Error(t, err)
	_, err = repo.Create("plain", "secret", false)
	assert.ErrorIs(t, err, ErrInvalidHash)

	got, err := repo.Get("ADMIN")
	require.NoError(t, err)
	assert.True(t, got.IsAdmin)

	_, err = repo.Get("nobody")
	assert.ErrorIs(t, err, ErrOperatorNotFound)

	logged, err := repo.ValidateCredentials("admin", "secret")
	require.NoError(t, err)
	assert.False(t, logged.LastLogin.IsZero())

	_, err = repo.ValidateCredentials("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = repo.ValidateCredentials("nobody", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredential)
	assert.Equal(t, 1, repo.Len())
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("pa55")
	require.NoError(t, err)
	assert.NotEqual(t, "pa55", hash)
	assert.True(t, CheckPassword(hash, "pa55"))
	assert.False(t, CheckPassword(hash, "pa56"))
	assert.False(t, CheckPassword("not-a-hash", "pa55"))

	assert.True(t, IsHash(hash))
	assert.False(t, IsHash("pa55"))
	assert.False(t, IsHash(""))
}
