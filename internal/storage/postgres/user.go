package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pribylovaa/print3d-auth/internal/models"
	"github.com/pribylovaa/print3d-auth/internal/storage"
)

const userColumns = `id, login, COALESCE(email, ''), password_hash, role, is_active,
	last_login_at, created_at, updated_at`

// SaveUser создаёт нового пользователя в БД. ID, created_at и updated_at
// возвращаются из базы и записываются в user.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users(login, email, password_hash, role, is_active)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query,
		user.Login,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.IsActive,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UserByLoginOrEmail ищет пользователя по логину или email.
// Оба поля CITEXT, сравнение регистронезависимое.
func (s *Storage) UserByLoginOrEmail(ctx context.Context, identifier string) (*models.User, error) {
	const op = "storage.postgres.UserByLoginOrEmail"

	query := `SELECT ` + userColumns + `
		FROM users
		WHERE login = $1 OR email = $1
		ORDER BY (login = $1) DESC
		LIMIT 1
	`

	user, err := scanUser(s.db.QueryRow(ctx, query, identifier))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.postgres.UserByID"

	query := `SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`

	user, err := scanUser(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateLastLogin записывает время последнего входа.
func (s *Storage) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	const op = "storage.postgres.UpdateLastLogin"

	query := `
		UPDATE users
		SET last_login_at = $2, updated_at = now()
		WHERE id = $1
	`

	tag, err := s.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Login,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.IsActive,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	return &user, nil
}
