package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/jurisconnect/internal/model"
)

type stubParser struct {
	principal model.Principal
	err       error
	got       string
}

func (p *stubParser) Parse(token string) (model.Principal, error) {
	p.got = token
	return p.principal, p.err
}

func newEngine(parser TokenParser, seen *model.Principal) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/me", Auth(parser), func(c *gin.Context) {
		principal, ok := MustPrincipal(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		*seen = principal
		c.Status(http.StatusNoContent)
	})
	return engine
}

func TestAuthStoresPrincipal(t *testing.T) {
	want := model.Principal{UserID: uuid.New(), Role: model.RoleAdmin}
	parser := &stubParser{principal: want}
	var seen model.Principal
	engine := newEngine(parser, &seen)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer  abc.def.ghi ")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "abc.def.ghi", parser.got)
	require.Equal(t, want, seen)
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	var seen model.Principal
	engine := newEngine(&stubParser{err: errors.New("expired")}, &seen)

	for _, header := range []string{"", "Basic dXNlcg==", "Bearer ", "Bearer token"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, header)
		require.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	}
	require.Equal(t, model.Principal{}, seen)
}
