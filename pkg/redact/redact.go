// redact предоставляет утилиты безопасного редактирования чувствительных
// данных для логов (логины, e-mail, токены, пароли). Полезный для отладки
// контекст (первые символы логина, домен e-mail) сохраняется.
package redact

import "strings"

// Login маскирует логин или e-mail, по которому пытались войти.
//
// Правила:
//   - строка с '@' обрабатывается как e-mail (см. Email);
//   - иначе остаются первые два символа (по рунам) + "***";
//   - логин из ≤ 2 символов и пустая строка превращаются в "***".
func Login(s string) string {
	if strings.Contains(s, "@") {
		return Email(s)
	}

	r := []rune(strings.TrimSpace(s))
	if len(r) <= 2 {
		return "***"
	}

	return string(r[:2]) + "***"
}

// Email маскирует e-mail: "foobar@example.com" -> "fo***@example.com".
// Строка не с одним '@' редактируется полностью.
func Email(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	lr := []rune(local)
	if len(lr) > 2 {
		local = string(lr[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Token возвращает литерал-заглушку для токена в логах.
func Token() string { return "[REDACTED_TOKEN]" }

// Password возвращает литерал-заглушку для пароля в логах.
func Password() string { return "[REDACTED_PASSWORD]" }
