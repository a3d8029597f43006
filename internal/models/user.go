package models

import "time"

// Роли пользователей студии.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// User - учётная запись сотрудника или клиента студии.
//
// PasswordHash заполняется только внутри сервисного слоя; всё, что уходит
// наружу, проходит через Sanitized.
type User struct {
	ID           int64
	Login        string
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sanitized возвращает копию пользователя без хэша пароля.
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}

	cp := *u
	cp.PasswordHash = ""

	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		cp.LastLoginAt = &t
	}

	return &cp
}

// ValidRole сообщает, известна ли роль.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	default:
		return false
	}
}
