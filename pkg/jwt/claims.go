package jwt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// TypeRefresh - значение claim "type" у refresh-токена.
// У access-токена claim "type" отсутствует.
const TypeRefresh = "refresh"

// Claims - полезная нагрузка токена.
//
// Именованные поля покрывают всё, на что опираются потребители токена;
// прочие ключи сохраняются в Extra и переживают round-trip без потерь.
type Claims struct {
	Subject   int64  // sub
	Login     string // login
	Email     string // email
	Role      string // role
	Type      string // type
	ID        string // jti
	IssuedAt  int64  // iat, unix-секунды
	ExpiresAt int64  // exp, unix-секунды

	Extra map[string]any
}

// IsRefresh сообщает, является ли токен refresh-токеном.
func (c *Claims) IsRefresh() bool { return c.Type == TypeRefresh }

var knownKeys = map[string]struct{}{
	"sub": {}, "login": {}, "email": {}, "role": {}, "type": {}, "jti": {}, "iat": {}, "exp": {},
}

// MarshalJSON кодирует claims в фиксированном порядке:
// sub, login, email, role, type, jti, extra (по алфавиту), iat, exp.
func (c Claims) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	write := func(key string, v any) error {
		val, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("claim %q: %w", key, err)
		}

		if !first {
			buf.WriteByte(',')
		}
		first = false

		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}

	if err := write("sub", c.Subject); err != nil {
		return nil, err
	}

	optional := []struct {
		key string
		val string
	}{
		{"login", c.Login},
		{"email", c.Email},
		{"role", c.Role},
		{"type", c.Type},
		{"jti", c.ID},
	}
	for _, o := range optional {
		if o.val == "" {
			continue
		}
		if err := write(o.key, o.val); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		if _, ok := knownKeys[k]; ok {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := write(k, c.Extra[k]); err != nil {
			return nil, err
		}
	}

	if err := write("iat", c.IssuedAt); err != nil {
		return nil, err
	}
	if err := write("exp", c.ExpiresAt); err != nil {
		return nil, err
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON разбирает payload. sub принимается числом или числовой строкой,
// exp обязателен.
func (c *Claims) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("claims: payload is not an object")
	}

	var out Claims

	if v, ok := raw["sub"]; ok {
		sub, err := parseInt(v)
		if err != nil {
			return fmt.Errorf("claims: sub: %w", err)
		}
		out.Subject = sub
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"login", &out.Login},
		{"email", &out.Email},
		{"role", &out.Role},
		{"type", &out.Type},
		{"jti", &out.ID},
	}
	for _, s := range strs {
		v, ok := raw[s.key]
		if !ok || string(v) == "null" {
			continue
		}
		if err := json.Unmarshal(v, s.dst); err != nil {
			return fmt.Errorf("claims: %s: %w", s.key, err)
		}
	}

	if v, ok := raw["iat"]; ok {
		iat, err := parseInt(v)
		if err != nil {
			return fmt.Errorf("claims: iat: %w", err)
		}
		out.IssuedAt = iat
	}

	v, ok := raw["exp"]
	if !ok {
		return fmt.Errorf("claims: exp is missing")
	}
	exp, err := parseInt(v)
	if err != nil {
		return fmt.Errorf("claims: exp: %w", err)
	}
	out.ExpiresAt = exp

	for k, v := range raw {
		if _, known := knownKeys[k]; known {
			continue
		}

		var val any
		d := json.NewDecoder(bytes.NewReader(v))
		d.UseNumber()
		if err := d.Decode(&val); err != nil {
			return fmt.Errorf("claims: %s: %w", k, err)
		}

		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[k] = val
	}

	*c = out
	return nil
}

// parseInt читает целое из JSON-числа или строки с числом.
func parseInt(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		// 1.7e9 и подобное - допускаем только целые значения.
		f, err := n.Float64()
		if err != nil || f != float64(int64(f)) {
			return 0, fmt.Errorf("not an integer: %s", raw)
		}
		return int64(f), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("unexpected value: %s", raw)
	}

	return strconv.ParseInt(s, 10, 64)
}
