package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pribylovaa/print3d-auth/internal/pkg/log"
	"github.com/pribylovaa/print3d-auth/internal/storage"
	"github.com/pribylovaa/print3d-auth/pkg/redact"
	"gopkg.in/yaml.v3"
)

// seedFile - формат файла начальных пользователей:
//
//	users:
//	  - login: admin
//	    email: admin@print3d.local
//	    password: admin123
//	    role: admin
type seedFile struct {
	Users []seedUser `yaml:"users"`
}

type seedUser struct {
	Login    string `yaml:"login"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// SeedFromFile создаёт пользователей из YAML-файла. Существующие логины
// пропускаются, поэтому повторный запуск ничего не меняет. Возвращает число
// созданных учётных записей.
func (s *Service) SeedFromFile(ctx context.Context, path string) (int, error) {
	const op = "service.seed.SeedFromFile"

	lg := log.From(ctx)

	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var file seedFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%s: parse %s: %w", op, path, err)
	}

	created := 0
	for i, u := range file.Users {
		_, err := s.storage.UserByLoginOrEmail(ctx, strings.TrimSpace(u.Login))
		switch {
		case err == nil:
			lg.Debug("seed_user_exists", slog.String("login", redact.Login(u.Login)))
			continue
		case !errors.Is(err, storage.ErrNotFound):
			return created, fmt.Errorf("%s: lookup #%d: %w", op, i, err)
		}

		_, err = s.createUser(ctx, NewUser{
			Login:    u.Login,
			Email:    u.Email,
			Password: u.Password,
			Role:     u.Role,
		}, false)
		if err != nil {
			if errors.Is(err, ErrLoginTaken) {
				continue
			}

			return created, fmt.Errorf("%s: user #%d: %w", op, i, err)
		}

		created++
		lg.Info("seed_user_created",
			slog.String("login", redact.Login(u.Login)),
			slog.String("role", u.Role),
		)
	}

	return created, nil
}
