package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrShortSecret - секрет короче 32 байт
	ErrShortSecret = errors.New("secret key must be at least 32 bytes")
	// ErrInvalidToken - подпись, срок, издатель или формат токена не сошлись
	ErrInvalidToken = errors.New("invalid token")
)

const issuerName = "polyview"

// clockSkew - допустимое расхождение часов узлов при проверке exp/nbf
const clockSkew = 30 * time.Second

// Claims - содержимое токена оператора
type Claims struct {
	OperatorID uint64 `json:"operator_id"`
	Username   string `json:"username"`
	IsAdmin    bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Issuer выпускает и проверяет токены операторов
type Issuer struct {
	secret []byte
	ttl    time.Duration
	parser *jwt.Parser
}

// NewIssuer создаёт выпускающего с секретом в base64.
// Пустой секрет заменяется случайным: токены не переживут перезапуск.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if secret == "" {
		generated, err := GenerateSecureSecret()
		if err != nil {
			return nil, err
		}
		secret = generated
	}

	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("jwt secret: %w", err)
	}
	if len(decoded) < 32 {
		return nil, ErrShortSecret
	}
	return &Issuer{
		secret: decoded,
		ttl:    ttl,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuerName),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}, nil
}

// Generate подписывает токен оператора на ttl
func (i *Issuer) Generate(op *Operator) (string, error) {
	now := time.Now()
	claims := &Claims{
		OperatorID: op.ID,
		Username:   op.Username,
		IsAdmin:    op.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuerName,
			Subject:   op.Username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate проверяет токен. Любая причина отказа оборачивает ErrInvalidToken.
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := i.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// TTL возвращает время жизни токена
func (i *Issuer) TTL() time.Duration { return i.ttl }

// GenerateSecureSecret - случайный секрет в base64 для auth.secret
func GenerateSecureSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
