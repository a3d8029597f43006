package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	apierrors "github.com/pribylovaa/print3d-auth/internal/http/errors"
	"github.com/pribylovaa/print3d-auth/internal/service"
)

// maxBodyBytes - ограничение размера тела запроса.
const maxBodyBytes = 1 << 20

// Handlers агрегирует зависимости REST-эндпойнтов.
type Handlers struct {
	Auth     *service.Service
	validate *validator.Validate
}

func New(svc *service.Service) *Handlers {
	return &Handlers{
		Auth:     svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// writeJSON - единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict - строгий JSON-декодер: запрещаем неизвестные поля и хвосты
// после объекта. Пустое тело даёт io.EOF.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		return err
	}

	if dec.More() {
		return errors.New("unexpected data after json object")
	}

	return nil
}

// bind = decodeStrict + валидация тегами validate. Любая ошибка -
// apierrors.ErrInvalidArgument (400).
func (h *Handlers) bind(w http.ResponseWriter, r *http.Request, value any, allowEmpty bool) error {
	if err := decodeStrict(w, r, value); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return fmt.Errorf("%w: %v", apierrors.ErrInvalidArgument, err)
		}
	}

	if err := h.validate.Struct(value); err != nil {
		return fmt.Errorf("%w: %v", apierrors.ErrInvalidArgument, err)
	}

	return nil
}
