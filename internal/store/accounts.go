package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/models"
)

// Accounts stores auth accounts with gorm.
type Accounts struct {
	db *gorm.DB
}

func NewAccounts(db *gorm.DB) *Accounts {
	return &Accounts{db: db}
}

func (a *Accounts) CreateAccount(ctx context.Context, u *models.User) error {
	u.Email = normalizeEmail(u.Email)
	if err := a.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("email already in use: %w", backend.ErrConflict)
		}
		return err
	}
	return nil
}

func (a *Accounts) AccountByEmail(ctx context.Context, email string) (*models.User, error) {
	return a.first(ctx, "email = ?", normalizeEmail(email))
}

func (a *Accounts) AccountByID(ctx context.Context, id string) (*models.User, error) {
	return a.first(ctx, "id = ?", id)
}

func (a *Accounts) first(ctx context.Context, cond string, arg any) (*models.User, error) {
	var u models.User
	if err := a.db.WithContext(ctx).Where(cond, arg).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, backend.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// MemoryAccounts keeps accounts in process memory.
type MemoryAccounts struct {
	mu      sync.Mutex
	byEmail map[string]models.User
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{byEmail: make(map[string]models.User)}
}

func (m *MemoryAccounts) CreateAccount(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.Email = normalizeEmail(u.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEmail[u.Email]; exists {
		return fmt.Errorf("email already in use: %w", backend.ErrConflict)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.byEmail[u.Email] = *u
	return nil
}

func (m *MemoryAccounts) AccountByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return &u, nil
}

func (m *MemoryAccounts) AccountByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			found := u
			return &found, nil
		}
	}
	return nil, backend.ErrNotFound
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
