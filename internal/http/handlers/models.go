package handlers

import (
	"time"

	"github.com/pribylovaa/print3d-auth/internal/models"
)

type loginRequest struct {
	Login    string `json:"login" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type createUserRequest struct {
	Login    string `json:"login" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=admin manager user"`
}

type userResponse struct {
	ID          int64      `json:"id"`
	Login       string     `json:"login"`
	Email       string     `json:"email,omitempty"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type tokenResponse struct {
	Token        string        `json:"token"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresIn    int64         `json:"expiresIn"`
	User         *userResponse `json:"user,omitempty"`
}

func userFromModel(u *models.User) *userResponse {
	if u == nil {
		return nil
	}

	return &userResponse{
		ID:          u.ID,
		Login:       u.Login,
		Email:       u.Email,
		Role:        u.Role,
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

func tokensFromModel(p *models.TokenPair, ttl time.Duration, u *models.User) tokenResponse {
	return tokenResponse{
		Token:        p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresIn:    int64(ttl / time.Second),
		User:         userFromModel(u),
	}
}
