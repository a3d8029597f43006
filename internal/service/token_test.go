package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pribylovaa/print3d-auth/internal/models"
	"github.com/pribylovaa/print3d-auth/internal/storage"
	"github.com/pribylovaa/print3d-auth/mocks"
	"github.com/pribylovaa/print3d-auth/pkg/jwt"
	"github.com/stretchr/testify/require"
)

func newSvcWithDenylist(t *testing.T) (*Service, *mocks.MockStorage, *mocks.MockDenylist, *jwt.Codec) {
	t.Helper()
	svc, st, codec := newSvc(t)
	dl := mocks.NewMockDenylist(gomock.NewController(t))
	svc.SetDenylist(dl)
	return svc, st, dl, codec
}

func issue(t *testing.T, codec *jwt.Codec, c jwt.Claims, ttl time.Duration) string {
	t.Helper()
	tok, err := codec.Issue(c, ttl)
	require.NoError(t, err)
	return tok
}

func TestParseBearer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{header: "Bearer abc.def.ghi", token: "abc.def.ghi", ok: true},
		{header: "bearer abc", token: "abc", ok: true},
		{header: "BEARER    abc", token: "abc", ok: true},
		{header: "Bearer", ok: false},
		{header: "Bearer ", ok: false},
		{header: "Basic dXNlcjpwYXNz", ok: false},
		{header: "Bearer a b", ok: false},
		{header: "Token abc", ok: false},
		{header: "abc.def.ghi", ok: false},
	}

	for _, tt := range tests {
		token, ok := parseBearer(tt.header)
		require.Equal(t, tt.ok, ok, tt.header)
		require.Equal(t, tt.token, token, tt.header)
	}
}

// Сценарий: токен {sub:42, role:admin} проходит проверку заголовка.
func TestAuthenticateHeader_OK(t *testing.T) {
	t.Parallel()

	svc, _, codec := newSvc(t)
	tok := issue(t, codec, jwt.Claims{Subject: 42, Role: models.RoleAdmin}, time.Hour)

	claims, err := svc.AuthenticateHeader(context.Background(), "Bearer "+tok)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.Subject)
	require.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthenticateHeader_Errors(t *testing.T) {
	t.Parallel()

	svc, _, codec := newSvc(t)

	valid := issue(t, codec, jwt.Claims{Subject: 1, Role: models.RoleUser}, time.Hour)
	expired := issue(t, codec, jwt.Claims{Subject: 1}, -time.Second)
	refresh := issue(t, codec, jwt.Claims{Subject: 1, Type: jwt.TypeRefresh}, time.Hour)
	foreign := issue(t, jwt.New([]byte("other-secret")), jwt.Claims{Subject: 1}, time.Hour)

	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "A." + parts[2]

	tests := []struct {
		name   string
		header string
		cause  error
	}{
		{name: "missing", header: ""},
		{name: "wrong_scheme", header: "Basic " + valid},
		{name: "malformed", header: "Bearer abc.def", cause: jwt.ErrMalformedToken},
		{name: "foreign_secret", header: "Bearer " + foreign, cause: jwt.ErrInvalidSignature},
		{name: "tampered", header: "Bearer " + tampered, cause: jwt.ErrInvalidSignature},
		{name: "expired", header: "Bearer " + expired, cause: jwt.ErrTokenExpired},
		{name: "refresh_as_access", header: "Bearer " + refresh, cause: ErrWrongTokenType},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims, err := svc.AuthenticateHeader(context.Background(), tt.header)
			require.Nil(t, claims)
			require.ErrorIs(t, err, ErrUnauthorized)
			if tt.cause != nil {
				require.ErrorIs(t, err, tt.cause)
			}
		})
	}
}

func TestAuthenticateHeader_MissingMessage(t *testing.T) {
	t.Parallel()

	svc, _, _ := newSvc(t)

	_, err := svc.AuthenticateHeader(context.Background(), "")
	require.ErrorContains(t, err, "missing authorization header")

	_, err = svc.AuthenticateHeader(context.Background(), "Basic x")
	require.ErrorContains(t, err, "invalid authorization header format")
}

func TestAuthenticateHeader_Denylist(t *testing.T) {
	t.Parallel()

	svc, _, dl, codec := newSvcWithDenylist(t)
	tok := issue(t, codec, jwt.Claims{Subject: 1, ID: "jti-1"}, time.Hour)

	dl.EXPECT().IsRevoked(gomock.Any(), "jti-1").Return(false, nil)
	_, err := svc.AuthenticateHeader(context.Background(), "Bearer "+tok)
	require.NoError(t, err)

	dl.EXPECT().IsRevoked(gomock.Any(), "jti-1").Return(true, nil)
	_, err = svc.AuthenticateHeader(context.Background(), "Bearer "+tok)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.ErrorIs(t, err, ErrTokenRevoked)

	// недоступный denylist - отказ.
	dl.EXPECT().IsRevoked(gomock.Any(), "jti-1").Return(false, errors.New("redis down"))
	_, err = svc.AuthenticateHeader(context.Background(), "Bearer "+tok)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticateHeader_NoJTI_SkipsDenylist(t *testing.T) {
	t.Parallel()

	svc, _, _, codec := newSvcWithDenylist(t)
	tok := issue(t, codec, jwt.Claims{Subject: 1}, time.Hour)

	_, err := svc.AuthenticateHeader(context.Background(), "Bearer "+tok)
	require.NoError(t, err)
}

func TestAuthorize(t *testing.T) {
	t.Parallel()

	svc, _, _ := newSvc(t)
	admin := &jwt.Claims{Subject: 1, Role: models.RoleAdmin}
	client := &jwt.Claims{Subject: 2, Role: models.RoleUser}

	require.NoError(t, svc.Authorize(admin, models.RoleAdmin))
	require.NoError(t, svc.Authorize(admin, models.RoleManager, models.RoleAdmin))
	require.NoError(t, svc.Authorize(client))
	require.ErrorIs(t, svc.Authorize(client, models.RoleAdmin), ErrForbidden)
	require.ErrorIs(t, svc.Authorize(nil, models.RoleAdmin), ErrUnauthorized)
}

func TestRefresh_WithoutDenylist(t *testing.T) {
	t.Parallel()

	svc, st, codec := newSvc(t)
	rt := issue(t, codec, jwt.Claims{Subject: 1, Type: jwt.TypeRefresh, ID: "r1"}, time.Hour)

	st.EXPECT().UserByID(gomock.Any(), int64(1)).Return(adminUser(t), nil)

	pair, err := svc.Refresh(context.Background(), rt)
	require.NoError(t, err)

	access, err := codec.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, access.Role)

	refresh, err := codec.Verify(pair.RefreshToken)
	require.NoError(t, err)
	require.True(t, refresh.IsRefresh())
	require.NotEqual(t, "r1", refresh.ID)
}

// memDenylist - denylist в памяти с семантикой SETNX, как у Redis.
type memDenylist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func newMemDenylist() *memDenylist {
	return &memDenylist{revoked: make(map[string]time.Time)}
}

func (d *memDenylist) Revoke(_ context.Context, jti string, until time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.revoked[jti]; ok {
		return false, nil
	}
	d.revoked[jti] = until
	return true, nil
}

func (d *memDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.revoked[jti]
	return ok, nil
}

func (d *memDenylist) Ping(context.Context) error { return nil }
func (d *memDenylist) Close() error               { return nil }

func TestRefresh_RotatesAndDetectsReuse(t *testing.T) {
	t.Parallel()

	svc, st, codec := newSvc(t)
	dl := newMemDenylist()
	svc.SetDenylist(dl)

	rt := issue(t, codec, jwt.Claims{Subject: 1, Type: jwt.TypeRefresh, ID: "r1"}, time.Hour)

	st.EXPECT().UserByID(gomock.Any(), int64(1)).Return(adminUser(t), nil)

	_, err := svc.Refresh(context.Background(), rt)
	require.NoError(t, err)

	revoked, _ := dl.IsRevoked(context.Background(), "r1")
	require.True(t, revoked)

	// повтор отбивается ещё до обращения к БД.
	_, err = svc.Refresh(context.Background(), rt)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

// TestRefresh_StorageFailure_TokenSurvivesRetry - временный сбой БД не
// сжигает refresh-токен: повтор после восстановления выдаёт новую пару.
func TestRefresh_StorageFailure_TokenSurvivesRetry(t *testing.T) {
	t.Parallel()

	svc, st, codec := newSvc(t)
	dl := newMemDenylist()
	svc.SetDenylist(dl)

	rt := issue(t, codec, jwt.Claims{Subject: 1, Type: jwt.TypeRefresh, ID: "r1"}, time.Hour)

	gomock.InOrder(
		st.EXPECT().UserByID(gomock.Any(), int64(1)).Return(nil, errors.New("db timeout")),
		st.EXPECT().UserByID(gomock.Any(), int64(1)).Return(adminUser(t), nil),
	)

	_, err := svc.Refresh(context.Background(), rt)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidToken)

	revoked, _ := dl.IsRevoked(context.Background(), "r1")
	require.False(t, revoked)

	pair, err := svc.Refresh(context.Background(), rt)
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshToken)

	revoked, _ = dl.IsRevoked(context.Background(), "r1")
	require.True(t, revoked)
}

// TestRefresh_ConcurrentRotation_LosesRace - токен прошёл IsRevoked, но
// параллельный обмен успел занять jti первым.
func TestRefresh_ConcurrentRotation_LosesRace(t *testing.T) {
	t.Parallel()

	svc, st, dl, codec := newSvcWithDenylist(t)
	rt := issue(t, codec, jwt.Claims{Subject: 1, Type: jwt.TypeRefresh, ID: "r1"}, time.Hour)

	gomock.InOrder(
		dl.EXPECT().IsRevoked(gomock.Any(), "r1").Return(false, nil),
		st.EXPECT().UserByID(gomock.Any(), int64(1)).Return(adminUser(t), nil),
		dl.EXPECT().Revoke(gomock.Any(), "r1", gomock.Any()).Return(false, nil),
	)

	_, err := svc.Refresh(context.Background(), rt)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRefresh_InactiveUser_DoesNotConsumeToken(t *testing.T) {
	t.Parallel()

	svc, st, dl, codec := newSvcWithDenylist(t)
	rt := issue(t, codec, jwt.Claims{Subject: 8, Type: jwt.TypeRefresh, ID: "r8"}, time.Hour)

	dl.EXPECT().IsRevoked(gomock.Any(), "r8").Return(false, nil)
	st.EXPECT().UserByID(gomock.Any(), int64(8)).Return(&models.User{ID: 8, IsActive: false}, nil)

	_, err := svc.Refresh(context.Background(), rt)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_DenylistError(t *testing.T) {
	t.Parallel()

	t.Run("lookup", func(t *testing.T) {
		t.Parallel()

		svc, _, dl, codec := newSvcWithDenylist(t)
		rt := issue(t, codec, jwt.Claims{Subject: 1, Type: jwt.TypeRefresh, ID: "r1"}, time.Hour)

		dl.EXPECT().IsRevoked(gomock.Any(), "r1").Return(false, errors.New("redis down"))

		_, err := svc.Refresh(context.Background(), rt)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("revoke", func(t *testing.T) {
		t.Parallel()

		svc, st, dl, codec := newSvcWithDenylist(t)
		rt := issue(t, codec, jwt.Claims{Subject: 1, Type: jwt.TypeRefresh, ID: "r1"}, time.Hour)

		dl.EXPECT().IsRevoked(gomock.Any(), "r1").Return(false, nil)
		st.EXPECT().UserByID(gomock.Any(), int64(1)).Return(adminUser(t), nil)
		dl.EXPECT().Revoke(gomock.Any(), "r1", gomock.Any()).Return(false, errors.New("redis down"))

		_, err := svc.Refresh(context.Background(), rt)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRefresh_Rejections(t *testing.T) {
	t.Parallel()

	svc, st, codec := newSvc(t)

	access := issue(t, codec, jwt.Claims{Subject: 1, Role: models.RoleAdmin}, time.Hour)
	expired := issue(t, codec, jwt.Claims{Subject: 1, Type: jwt.TypeRefresh}, -time.Second)
	orphan := issue(t, codec, jwt.Claims{Subject: 7, Type: jwt.TypeRefresh}, time.Hour)
	blocked := issue(t, codec, jwt.Claims{Subject: 8, Type: jwt.TypeRefresh}, time.Hour)

	st.EXPECT().UserByID(gomock.Any(), int64(7)).Return(nil, storage.ErrNotFound)
	st.EXPECT().UserByID(gomock.Any(), int64(8)).Return(&models.User{ID: 8, IsActive: false}, nil)

	_, err := svc.Refresh(context.Background(), access)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.ErrorIs(t, err, ErrWrongTokenType)

	_, err = svc.Refresh(context.Background(), expired)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = svc.Refresh(context.Background(), "garbage")
	require.ErrorIs(t, err, jwt.ErrMalformedToken)

	_, err = svc.Refresh(context.Background(), orphan)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Refresh(context.Background(), blocked)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogout_WithoutDenylist_Noop(t *testing.T) {
	t.Parallel()

	svc, _, _ := newSvc(t)

	require.NoError(t, svc.Logout(context.Background(), &jwt.Claims{Subject: 1, ID: "a1"}, "whatever"))
	require.ErrorIs(t, svc.Logout(context.Background(), nil, ""), ErrUnauthorized)
}

func TestLogout_RevokesAccessAndRefresh(t *testing.T) {
	t.Parallel()

	svc, _, dl, codec := newSvcWithDenylist(t)

	access := &jwt.Claims{Subject: 1, ID: "a1", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	rt := issue(t, codec, jwt.Claims{Subject: 1, Type: jwt.TypeRefresh, ID: "r1"}, time.Hour)

	dl.EXPECT().Revoke(gomock.Any(), "a1", time.Unix(access.ExpiresAt, 0)).Return(true, nil)
	dl.EXPECT().Revoke(gomock.Any(), "r1", gomock.Any()).Return(true, nil)

	require.NoError(t, svc.Logout(context.Background(), access, rt))
}

func TestLogout_RefreshChecks(t *testing.T) {
	t.Parallel()

	svc, _, dl, codec := newSvcWithDenylist(t)

	access := &jwt.Claims{Subject: 1, ID: "a1", ExpiresAt: time.Now().Add(time.Hour).Unix()}

	// только истёкший refresh-токен доходит до отзыва access.
	dl.EXPECT().Revoke(gomock.Any(), "a1", gomock.Any()).Return(true, nil).Times(1)

	// чужой refresh-токен: 401, access не отозван.
	other := issue(t, codec, jwt.Claims{Subject: 2, Type: jwt.TypeRefresh, ID: "r2"}, time.Hour)
	require.ErrorIs(t, svc.Logout(context.Background(), access, other), ErrInvalidToken)

	// access-токен в поле refreshToken.
	notRefresh := issue(t, codec, jwt.Claims{Subject: 1, ID: "a2"}, time.Hour)
	require.ErrorIs(t, svc.Logout(context.Background(), access, notRefresh), ErrWrongTokenType)

	require.ErrorIs(t, svc.Logout(context.Background(), access, "garbage"), jwt.ErrMalformedToken)

	// истёкший refresh-токен просто игнорируется.
	expired := issue(t, codec, jwt.Claims{Subject: 1, Type: jwt.TypeRefresh, ID: "r3"}, -time.Second)
	require.NoError(t, svc.Logout(context.Background(), access, expired))
}
