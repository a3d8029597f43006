package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pribylovaa/print3d-auth/internal/models"
)

var (
	// ErrNotFound - пользователь не найден.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists - нарушение уникальности (login/email).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создаёт пользователя и проставляет ему ID.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByLoginOrEmail ищет пользователя по логину или email (без учёта регистра).
	UserByLoginOrEmail(ctx context.Context, identifier string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id int64) (*models.User, error)
	// UpdateLastLogin записывает время последнего успешного входа.
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

// Storage задаёт контракт работы с БД.
type Storage interface {
	UserStorage
	Ping(ctx context.Context) error
	Close()
}
