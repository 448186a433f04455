package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidHash - в конфиге вместо bcrypt-хеша лежит что-то другое
var ErrInvalidHash = errors.New("password hash is not bcrypt")

// HashPassword хеширует пароль оператора (для event-cli и тестов)
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword сверяет пароль с хешем; битый хеш считается несовпадением
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IsHash сообщает, похожа ли строка на bcrypt-хеш с допустимой стоимостью.
// Защищает от открытого пароля в auth.operators.
func IsHash(s string) bool {
	cost, err := bcrypt.Cost([]byte(s))
	return err == nil && cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost
}
