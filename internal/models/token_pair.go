package models

import "time"

// TokenPair - пара токенов, выдаваемая при входе и обновлении.
//
// Описание:
//   - AccessToken - короткоживущий JWT для доступа к API;
//   - RefreshToken - JWT с type=refresh для выпуска новой пары;
//   - AccessExpiresAt - момент истечения access-токена (UTC).
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}
