package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type staticResolver map[string]string

func (r staticResolver) Resolve(_ context.Context, token string) (string, bool) {
	id, ok := r[token]
	return id, ok
}

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/who", mw, func(c *gin.Context) {
		id, _ := UserID(c)
		tok, _ := Token(c)
		c.String(http.StatusOK, id+"|"+tok)
	})
	return r
}

func TestTokenRequired(t *testing.T) {
	r := newRouter(TokenRequired(staticResolver{"good": "u1"}))

	cases := []struct {
		name   string
		token  string
		status int
		body   string
	}{
		{"valid", "good", http.StatusOK, "u1|good"},
		{"missing", "", http.StatusUnauthorized, `{"error":"Unauthorized"}`},
		{"unknown", "bad", http.StatusUnauthorized, `{"error":"Unauthorized"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/who", nil)
			if tc.token != "" {
				req.Header.Set(TokenHeader, tc.token)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.status || rec.Body.String() != tc.body {
				t.Fatalf("got %d %q want %d %q", rec.Code, rec.Body.String(), tc.status, tc.body)
			}
		})
	}
}

func TestTokenOptionalNeverAborts(t *testing.T) {
	r := newRouter(TokenOptional(staticResolver{"good": "u1"}))

	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set(TokenHeader, "bad")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "|" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}
