// Package jwt реализует компактный HS256 JWT-кодек, совместимый по формату
// с токенами, которые уже выданы существующим сайтом студии.
//
// Формат токена:
//
//	base64url(header) "." base64url(payload) "." base64url(signature)
//
// где header всегда равен {"typ":"JWT","alg":"HS256"}, base64url без паддинга,
// а signature = HMAC-SHA256(secret, header + "." + payload).
//
// Выпуск:
//
//	codec := jwt.New([]byte(secret))
//	token, err := codec.Issue(jwt.Claims{Subject: 42, Role: "admin"}, time.Hour)
//
// Проверка:
//
//	claims, err := codec.Verify(token)
//	switch {
//	case errors.Is(err, jwt.ErrTokenExpired):
//	    // срок действия истёк
//	case err != nil:
//	    // битый формат/подпись/payload
//	}
//
// Порядок проверок фиксирован: формат -> подпись -> payload -> exp.
// Payload не декодируется, пока подпись не сошлась.
package jwt
