// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход он принимает ошибку сервисного слоя (sentinel-значения из
// internal/service, pkg/jwt), а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
//
// Маппинг выполняется только здесь: сервисный слой о HTTP не знает.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/print3d-auth/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// ErrInvalidArgument - тело запроса не разбирается или не проходит валидацию.
var ErrInvalidArgument = stderrors.New("invalid argument")

// APIError - единый формат для фронта.
// Code - короткий стабильный код для машиночитаемой обработки на FE.
// Message - безопасное человекочитаемое описание.
// RequestID - прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse - корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку в HTTP-статус и унифицированный ответ.
//
// Поведение:
//   - err == nil - программная ошибка вызова: 500/internal, чтобы не послать
//     "200 OK" с телом ошибки;
//   - ErrInvalidCredentials -> 401 invalid_credentials;
//   - ErrUnauthorized/ErrInvalidToken (с любой причиной) -> 401 unauthorized;
//   - ErrForbidden -> 403; ошибки валидации -> 400; ErrLoginTaken -> 409;
//     ErrUserNotFound -> 404;
//   - отмена клиентом -> 499, дедлайн -> 504;
//   - прочее -> 500/internal (без утечки деталей).
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := classify(err)

	return status, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}
}

// WriteError - хелпер для HTTP-хендлеров и middleware.
// Пишет статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="print3d"`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func classify(err error) (int, string, string) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal", "internal error"
	case stderrors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid login or password"
	case stderrors.Is(err, service.ErrUnauthorized),
		stderrors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized", "unauthorized"
	case stderrors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden", "forbidden"
	case stderrors.Is(err, ErrInvalidArgument),
		stderrors.Is(err, service.ErrInvalidLogin),
		stderrors.Is(err, service.ErrInvalidEmail),
		stderrors.Is(err, service.ErrWeakPassword),
		stderrors.Is(err, service.ErrInvalidRole):
		return http.StatusBadRequest, "invalid_argument", "invalid argument"
	case stderrors.Is(err, service.ErrLoginTaken):
		return http.StatusConflict, "already_exists", "already exists"
	case stderrors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case stderrors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
