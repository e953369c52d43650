package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWithToken(t *testing.T, configured, provided string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	e.POST("/update/execute", func(c echo.Context) error {
		return c.NoContent(http.StatusAccepted)
	}, RequireAdminToken(configured))

	req := httptest.NewRequest(http.MethodPost, "/update/execute", nil)
	if provided != "" {
		req.Header.Set(TokenHeader, provided)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRequireAdminToken(t *testing.T) {
	rec := runWithToken(t, "secret", "secret")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = runWithToken(t, "secret", "wrong")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = runWithToken(t, "secret", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdminToken_DisabledWhenUnset(t *testing.T) {
	rec := runWithToken(t, "", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
