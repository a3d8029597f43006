package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/pribylovaa/print3d-auth/internal/metrics"
	"github.com/pribylovaa/print3d-auth/internal/models"
	"github.com/pribylovaa/print3d-auth/internal/pkg/log"
	"github.com/pribylovaa/print3d-auth/internal/storage"
	"github.com/pribylovaa/print3d-auth/pkg/redact"
	"golang.org/x/crypto/bcrypt"
)

const (
	minLoginLen    = 3
	maxLoginLen    = 64
	minPasswordLen = 8
	// maxPasswordBytes - предел bcrypt, считается в байтах, а не в символах.
	maxPasswordBytes = 72
)

// Authenticate проверяет пару логин (или email)/пароль.
//
// Отсутствующий пользователь, неактивная учётная запись и неверный пароль дают
// одну и ту же ErrInvalidCredentials. Для отсутствующего пользователя всё равно
// выполняется сравнение bcrypt с фиктивным хэшем, чтобы время ответа не выдавало
// существование логина.
//
// После успеха last_login_at обновляется в фоне; ошибка обновления не влияет на вход.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	const op = "service.auth.Authenticate"

	lg := log.From(ctx)

	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByLoginOrEmail(ctx, login)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = checkPassword(dummyHash(), password)
			lg.Info("login_failed",
				slog.String("login", redact.Login(login)),
				slog.String("reason", "unknown_login"),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		lg.Error("user_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		lg.Info("login_failed",
			slog.String("login", redact.Login(login)),
			slog.String("reason", "password_mismatch"),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if !user.IsActive {
		lg.Info("login_failed",
			slog.String("login", redact.Login(login)),
			slog.String("reason", "inactive"),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	s.touchLastLogin(ctx, user.ID)

	return user.Sanitized(), nil
}

// Login - Authenticate + выпуск пары токенов.
func (s *Service) Login(ctx context.Context, login, password string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.Login"

	user, err := s.Authenticate(ctx, login, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.metrics.LoginAttempt(metrics.LoginInvalidCredentials)
		} else {
			s.metrics.LoginAttempt(metrics.LoginError)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		s.metrics.LoginAttempt(metrics.LoginError)
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.LoginAttempt(metrics.LoginSuccess)
	log.From(ctx).Info("login_succeeded",
		slog.Int64("user_id", user.ID),
		slog.String("role", user.Role),
	)

	return pair, user, nil
}

// touchLastLogin обновляет last_login_at в отдельной горутине. Контекст
// отвязан от запроса: ответ клиенту не ждёт записи, а отмена запроса не
// прерывает её.
func (s *Service) touchLastLogin(ctx context.Context, userID int64) {
	lg := log.From(ctx)
	bgCtx := context.WithoutCancel(ctx)
	at := s.now().UTC()

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()

		ctx, cancel := context.WithTimeout(bgCtx, s.cfg.LastLoginTimeout)
		defer cancel()

		if err := s.storage.UpdateLastLogin(ctx, userID, at); err != nil {
			lg.Warn("last_login_update_failed",
				slog.Int64("user_id", userID),
				slog.String("err", err.Error()),
			)
		}
	}()
}

// Me возвращает профиль текущего принципала.
func (s *Service) Me(ctx context.Context, userID int64) (*models.User, error) {
	const op = "service.auth.Me"

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user.Sanitized(), nil
}

// NewUser - входные данные для создания учётной записи.
type NewUser struct {
	Login    string
	Email    string
	Password string
	Role     string
}

// CreateUser создаёт учётную запись (операция администратора).
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	const op = "service.auth.CreateUser"

	user, err := s.createUser(ctx, in, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_created",
		slog.Int64("user_id", user.ID),
		slog.String("login", redact.Login(user.Login)),
		slog.String("role", user.Role),
	)

	return user, nil
}

// createUser валидирует вход, хэширует пароль и сохраняет пользователя.
// strict=false отключает политику сложности пароля (сидинг из файла).
func (s *Service) createUser(ctx context.Context, in NewUser, strict bool) (*models.User, error) {
	login, err := validateLogin(in.Login)
	if err != nil {
		return nil, err
	}

	var email string
	if strings.TrimSpace(in.Email) != "" {
		if email, err = validateEmail(in.Email); err != nil {
			return nil, err
		}
	}

	if strict {
		if err := validatePassword(in.Password); err != nil {
			return nil, err
		}
	} else if in.Password == "" || len(in.Password) > maxPasswordBytes {
		return nil, ErrWeakPassword
	}

	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Login:        login,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrLoginTaken
		}

		return nil, err
	}

	return user.Sanitized(), nil
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%s: %w", op, ErrWeakPassword)
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var (
	dummyOnce sync.Once
	dummy     string
)

// dummyHash - валидный bcrypt-хэш той же стоимости, что и у настоящих паролей.
func dummyHash() string {
	dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("print3d-dummy-password"), bcrypt.DefaultCost)
		if err == nil {
			dummy = string(h)
		}
	})

	return dummy
}

// validateLogin: 3..64 символа, без пробельных символов.
func validateLogin(raw string) (string, error) {
	login := strings.TrimSpace(raw)

	n := utf8.RuneCountInString(login)
	if n < minLoginLen || n > maxLoginLen {
		return "", ErrInvalidLogin
	}

	if strings.IndexFunc(login, unicode.IsSpace) >= 0 {
		return "", ErrInvalidLogin
	}

	return login, nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}

	return strings.ToLower(email), nil
}

// validatePassword: от 8 символов, но не длиннее 72 байт; хотя бы одна
// буква и одна цифра.
func validatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < minPasswordLen || len(pw) > maxPasswordBytes {
		return ErrWeakPassword
	}

	var hasLetter, hasDigit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasLetter || !hasDigit {
		return ErrWeakPassword
	}

	return nil
}
