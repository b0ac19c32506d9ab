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

func TestGenerateTokenClaims(t *testing.T) {
	t.Parallel()

	secret := "test-secret"
	signed, expiresAt, err := GenerateToken("ops", secret, 5*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, signed)

	token, err := jwt.Parse(signed, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	assert.True(t, token.Valid)

	claims, ok := token.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, "ops", claims[claimSubject])
	assert.Equal(t, operatorTokenType, claims[claimType])
	assert.Equal(t, expiresAt.Unix(), int64(claims["exp"].(float64)))
	assert.Equal(t, int64(5*60), int64(claims["exp"].(float64))-int64(claims["iat"].(float64)))
}

func TestGenerateTokenValidation(t *testing.T) {
	t.Parallel()

	_, _, err := GenerateToken("", "secret", time.Minute)
	assert.Error(t, err)
	_, _, err = GenerateToken("ops", " ", time.Minute)
	assert.Error(t, err)
	_, _, err = GenerateToken("ops", "secret", 0)
	assert.Error(t, err)
}

func TestJWTMiddleware(t *testing.T) {
	t.Parallel()

	secret := "test-secret"
	e := echo.New()
	e.Use(JWTMiddleware(secret, func(c echo.Context) bool {
		return c.Request().URL.Path == "/open"
	}))
	e.GET("/open", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/closed", func(c echo.Context) error {
		operator, err := OperatorFromContext(c)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, operator)
	})

	signed, _, err := GenerateToken("ops", secret, time.Minute)
	require.NoError(t, err)
	forged, _, err := GenerateToken("ops", "other-secret", time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{name: "skipped", path: "/open", status: http.StatusOK},
		{name: "missing token", path: "/closed", status: http.StatusUnauthorized},
		{name: "wrong secret", path: "/closed", header: "Bearer " + forged, status: http.StatusUnauthorized},
		{name: "valid", path: "/closed", header: "Bearer " + signed, status: http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set(echo.HeaderAuthorization, tc.header)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, tc.status, rec.Code, tc.name)
	}
}

func TestOperatorFromContextRejectsOtherTokenTypes(t *testing.T) {
	t.Parallel()

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, err := OperatorFromContext(c)
	assert.Error(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{claimSubject: "someone", claimType: "chat"})
	token.Valid = true
	c.Set("user", token)
	_, err = OperatorFromContext(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)
}
