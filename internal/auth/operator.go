package auth

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// Operator - учётная запись оператора HTTP API
type Operator struct {
	ID           uint64 // с 1, в порядке конфига
	Username     string // уникально без учёта регистра
	PasswordHash string // bcrypt
	CreatedAt    time.Time
	LastLogin    time.Time // последний успешный вход
	IsAdmin      bool      // может менять блоки мира
}

// Ошибки репозитория операторов
var (
	ErrOperatorNotFound  = errors.New("operator not found")
	ErrOperatorExists    = errors.New("operator already exists")
	ErrInvalidCredential = errors.New("invalid credentials")
)

// OperatorRepository хранит операторов из конфига в памяти
type OperatorRepository struct {
	mu     sync.RWMutex
	byName map[string]*Operator // ключ - normalize(username)
	nextID uint64
}

func NewOperatorRepository() *OperatorRepository {
	return &OperatorRepository{
		byName: make(map[string]*Operator),
		nextID: 1,
	}
}

// Create добавляет оператора. passwordHash должен быть bcrypt-хешем,
// иначе ErrInvalidHash.
func (r *OperatorRepository) Create(username, passwordHash string, isAdmin bool) (*Operator, error) {
	key := normalize(username)
	if key == "" {
		return nil, errors.New("empty operator name")
	}
	if !IsHash(passwordHash) {
		return nil, ErrInvalidHash
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[key]; exists {
		return nil, ErrOperatorExists
	}

	op := &Operator{
		ID:           r.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
		IsAdmin:      isAdmin,
	}
	r.nextID++
	r.byName[key] = op
	return op, nil
}

// Get возвращает копию оператора
func (r *OperatorRepository) Get(username string) (*Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.byName[normalize(username)]
	if !ok {
		return nil, ErrOperatorNotFound
	}
	copied := *op
	return &copied, nil
}

// ValidateCredentials проверяет пароль и отмечает время входа.
// Неизвестное имя и неверный пароль неразличимы для вызывающего.
func (r *OperatorRepository) ValidateCredentials(username, password string) (*Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.byName[normalize(username)]
	if !ok || !CheckPassword(op.PasswordHash, password) {
		return nil, ErrInvalidCredential
	}
	op.LastLogin = time.Now()
	copied := *op
	return &copied, nil
}

// Len возвращает количество операторов
func (r *OperatorRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
