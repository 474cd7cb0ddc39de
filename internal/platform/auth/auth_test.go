package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret []byte, sub string, roles []string) string {
	t.Helper()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return tok
}

func TestMiddlewareValidToken(t *testing.T) {
	secret := []byte("test-secret")
	e := echo.New()

	var gotActor string
	h := Middleware(secret)(func(c echo.Context) error {
		gotActor = Actor(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, secret, "nurse-1", []string{"nurse"}))
	rec := httptest.NewRecorder()

	err := h(e.NewContext(req, rec))
	require.NoError(t, err)
	assert.Equal(t, "nurse-1", gotActor)
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	e := echo.New()
	h := Middleware([]byte("s"))(func(c echo.Context) error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err := h(e.NewContext(req, httptest.NewRecorder()))

	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestMiddlewareRejectsWrongSecret(t *testing.T) {
	e := echo.New()
	h := Middleware([]byte("right"))(func(c echo.Context) error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, []byte("wrong"), "x", nil))
	err := h(e.NewContext(req, httptest.NewRecorder()))

	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestDevMiddlewareSetsDefaultActor(t *testing.T) {
	e := echo.New()
	var gotActor string
	h := DevMiddleware()(func(c echo.Context) error {
		gotActor = Actor(c.Request().Context())
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, h(e.NewContext(req, httptest.NewRecorder())))
	assert.Equal(t, "dev-admin", gotActor)
}

func TestActorFallsBackToSystem(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "system", Actor(req.Context()))
}
