package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Пакет unit-тестов для pkg/jwt.
//
// Покрытие:
//   - round-trip Issue/Verify, сохранение Extra-claims;
//   - истечение (ttl=-1 и сдвиг часов);
//   - подмена любого символа payload -> ErrInvalidSignature;
//   - неверное число сегментов -> ErrMalformedToken;
//   - байтовая совместимость формата (header, порядок ключей, HMAC).

const testSecret = "unit-test-secret"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCodec(t *testing.T) (*Codec, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	return New([]byte(testSecret), WithClock(clk.Now)), clk
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	codec, clk := newTestCodec(t)

	in := Claims{
		Subject: 42,
		Login:   "admin",
		Email:   "admin@print3d.local",
		Role:    "admin",
		ID:      "jti-1",
		Extra:   map[string]any{"tenant": "studio"},
	}

	token, err := codec.Issue(in, time.Hour)
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	got, err := codec.Verify(token)
	require.NoError(t, err)

	require.Equal(t, int64(42), got.Subject)
	require.Equal(t, "admin", got.Login)
	require.Equal(t, "admin@print3d.local", got.Email)
	require.Equal(t, "admin", got.Role)
	require.Equal(t, "jti-1", got.ID)
	require.Empty(t, got.Type)
	require.False(t, got.IsRefresh())
	require.Equal(t, "studio", got.Extra["tenant"])
	require.Equal(t, clk.Now().Unix(), got.IssuedAt)
	require.Equal(t, clk.Now().Add(time.Hour).Unix(), got.ExpiresAt)
}

// TestScenario_AdminToken_ExpiresAfterTTL - выпуск {sub:42, role:admin} на час,
// немедленная проверка проходит, после сдвига часов за exp - ErrTokenExpired.
func TestScenario_AdminToken_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	codec, clk := newTestCodec(t)

	token, err := codec.Issue(Claims{Subject: 42, Role: "admin"}, 3600*time.Second)
	require.NoError(t, err)

	got, err := codec.Verify(token)
	require.NoError(t, err)
	require.Equal(t, int64(42), got.Subject)
	require.Equal(t, "admin", got.Role)
	require.Equal(t, clk.Now().Unix()+3600, got.ExpiresAt)

	// ровно в секунду exp токен ещё действителен.
	clk.Advance(3600 * time.Second)
	_, err = codec.Verify(token)
	require.NoError(t, err)

	clk.Advance(time.Second)
	_, err = codec.Verify(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_NegativeTTL_Expired(t *testing.T) {
	t.Parallel()

	codec := New([]byte(testSecret))

	token, err := codec.Issue(Claims{Subject: 1}, -1*time.Second)
	require.NoError(t, err)

	_, err = codec.Verify(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

// TestVerify_TamperedPayload_EveryPosition - замена любого символа payload ломает подпись.
func TestVerify_TamperedPayload_EveryPosition(t *testing.T) {
	t.Parallel()

	codec, _ := newTestCodec(t)

	token, err := codec.Issue(Claims{Subject: 7, Role: "user", Login: "client"}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	payload := []byte(parts[1])

	for i := range payload {
		tampered := append([]byte(nil), payload...)
		if tampered[i] == 'A' {
			tampered[i] = 'B'
		} else {
			tampered[i] = 'A'
		}

		forged := parts[0] + "." + string(tampered) + "." + parts[2]
		_, err := codec.Verify(forged)
		require.ErrorIs(t, err, ErrInvalidSignature, "position %d", i)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	issuer := New([]byte("secret-a"))
	verifier := New([]byte("secret-b"))

	token, err := issuer.Issue(Claims{Subject: 1}, time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()

	codec, _ := newTestCodec(t)

	valid, err := codec.Issue(Claims{Subject: 1}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "one_segment", token: "abc"},
		{name: "two_segments", token: "abc.def"},
		{name: "four_segments", token: valid + ".extra"},
		{name: "five_segments", token: "a.b.c.d.e"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := codec.Verify(tt.token)
			require.ErrorIs(t, err, ErrMalformedToken)
		})
	}
}

func TestVerify_GarbageSignatureSegment(t *testing.T) {
	t.Parallel()

	codec, _ := newTestCodec(t)

	token, err := codec.Issue(Claims{Subject: 1}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	_, err = codec.Verify(parts[0] + "." + parts[1] + ".!!!")
	require.ErrorIs(t, err, ErrInvalidSignature)
}

// signRaw собирает токен с произвольным payload, подписанный правильным секретом.
func signRaw(t *testing.T, payload string) string {
	t.Helper()

	enc := base64.RawURLEncoding
	signing := headerSegment + "." + enc.EncodeToString([]byte(payload))

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(signing))

	return signing + "." + enc.EncodeToString(mac.Sum(nil))
}

func TestVerify_InvalidPayload(t *testing.T) {
	t.Parallel()

	codec, _ := newTestCodec(t)

	tests := []struct {
		name    string
		payload string
	}{
		{name: "not_json", payload: "not-json"},
		{name: "json_array", payload: `[1,2,3]`},
		{name: "json_null", payload: `null`},
		{name: "missing_exp", payload: `{"sub":1}`},
		{name: "sub_not_numeric", payload: `{"sub":"abc","exp":9999999999}`},
		{name: "role_not_string", payload: `{"sub":1,"role":5,"exp":9999999999}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := codec.Verify(signRaw(t, tt.payload))
			require.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

// TestVerify_AcceptsStringSubjectAndPaddedSegments - токены сторонних выпускателей:
// sub строкой, сегменты с '='.
func TestVerify_AcceptsStringSubjectAndPaddedSegments(t *testing.T) {
	t.Parallel()

	codec, _ := newTestCodec(t)

	// подпись HS256 - 32 байта, в стандартном base64 это 43 символа + один '='.
	token := signRaw(t, `{"sub":"42","role":"manager","exp":9999999999}`) + "="

	got, err := codec.Verify(token)
	require.NoError(t, err)
	require.Equal(t, int64(42), got.Subject)
	require.Equal(t, "manager", got.Role)
}

// TestIssue_WireFormat - байтовая совместимость: header, порядок ключей, HMAC.
func TestIssue_WireFormat(t *testing.T) {
	t.Parallel()

	codec, clk := newTestCodec(t)

	token, err := codec.Issue(Claims{Subject: 42, Login: "admin", Role: "admin"}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	for _, p := range parts {
		require.NotContains(t, p, "=")
		require.NotContains(t, p, "+")
		require.NotContains(t, p, "/")
	}

	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	require.Equal(t, `{"typ":"JWT","alg":"HS256"}`, string(header))

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	iat := clk.Now().Unix()
	want := `{"sub":42,"login":"admin","role":"admin","iat":` +
		jsonInt(iat) + `,"exp":` + jsonInt(iat+3600) + `}`
	require.Equal(t, want, string(payload))

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(parts[0] + "." + parts[1]))
	require.Equal(t, base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), parts[2])
}

func TestIssue_RefreshFlavour(t *testing.T) {
	t.Parallel()

	codec, _ := newTestCodec(t)

	token, err := codec.Issue(Claims{Subject: 9, Type: TypeRefresh}, 30*24*time.Hour)
	require.NoError(t, err)

	got, err := codec.Verify(token)
	require.NoError(t, err)
	require.True(t, got.IsRefresh())
	require.Empty(t, got.Role)
	require.Equal(t, got.IssuedAt+30*24*3600, got.ExpiresAt)
}

func TestEmptySecret(t *testing.T) {
	t.Parallel()

	codec := New(nil)

	_, err := codec.Issue(Claims{Subject: 1}, time.Hour)
	require.ErrorIs(t, err, ErrEmptySecret)

	_, err = codec.Verify("a.b.c")
	require.ErrorIs(t, err, ErrEmptySecret)
}

func TestClaims_ExtraDoesNotOverrideKnownKeys(t *testing.T) {
	t.Parallel()

	c := Claims{Subject: 5, ExpiresAt: 10, Extra: map[string]any{"sub": 999, "exp": 1}}

	b, err := json.Marshal(c)
	require.NoError(t, err)
	require.Equal(t, `{"sub":5,"iat":0,"exp":10}`, string(b))
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
