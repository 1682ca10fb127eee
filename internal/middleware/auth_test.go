package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/marketchat/pkg/auth"
)

type fakeBlacklist struct {
	revoked map[string]bool
	err     error
}

func (b fakeBlacklist) IsRevoked(_ context.Context, token string) (bool, error) {
	return b.revoked[token], b.err
}

type fakeUsers struct {
	names map[uuid.UUID]string
	err   error
}

func (u *fakeUsers) EnsureUser(id uuid.UUID, name string) error {
	if u.err != nil {
		return u.err
	}
	u.names[id] = name
	return nil
}

func newRouter(a *Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := func(c *gin.Context) {
		id, ok := UserID(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.String(http.StatusOK, id.String())
	}
	r.GET("/api", a.AuthMiddleware(), handler)
	r.GET("/ws", a.WSAuthMiddleware(), handler)
	return r
}

func TestAuthenticator(t *testing.T) {
	jwtMgr := auth.NewJWTManager("secret", time.Hour)
	userID := uuid.New()
	token, err := jwtMgr.GenerateNamed(userID.String(), "Maya")
	require.NoError(t, err)
	revokedToken, err := jwtMgr.Generate(uuid.NewString())
	require.NoError(t, err)
	notUUID, err := jwtMgr.Generate("42")
	require.NoError(t, err)

	users := &fakeUsers{names: make(map[uuid.UUID]string)}
	a := NewAuthenticator(jwtMgr, fakeBlacklist{revoked: map[string]bool{revokedToken: true}}, users, zerolog.Nop())
	r := newRouter(a)

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"bearer header", "/api", "Bearer " + token, http.StatusOK},
		{"missing header", "/api", "", http.StatusUnauthorized},
		{"query token ignored for REST", "/api?token=" + token, "", http.StatusUnauthorized},
		{"socket query token", "/ws?token=" + token, "", http.StatusOK},
		{"socket header fallback", "/ws", "Bearer " + token, http.StatusOK},
		{"revoked", "/api", "Bearer " + revokedToken, http.StatusUnauthorized},
		{"bad signature", "/api", "Bearer " + token + "x", http.StatusUnauthorized},
		{"subject is not a uuid", "/api", "Bearer " + notUUID, http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, userID.String(), w.Body.String())
			}
		})
	}

	assert.Equal(t, "Maya", users.names[userID])
}

func TestAuthenticator_FailuresAreClosed(t *testing.T) {
	jwtMgr := auth.NewJWTManager("secret", time.Hour)
	token, err := jwtMgr.Generate(uuid.NewString())
	require.NoError(t, err)

	t.Run("blacklist unavailable", func(t *testing.T) {
		a := NewAuthenticator(jwtMgr, fakeBlacklist{err: errors.New("redis down")}, nil, zerolog.Nop())
		req := httptest.NewRequest(http.MethodGet, "/api", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		newRouter(a).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("provisioning fails", func(t *testing.T) {
		users := &fakeUsers{err: errors.New("db down")}
		a := NewAuthenticator(jwtMgr, nil, users, zerolog.Nop())
		req := httptest.NewRequest(http.MethodGet, "/api", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		newRouter(a).ServeHTTP(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
