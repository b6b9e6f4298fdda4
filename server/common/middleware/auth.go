package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"files_manager/server/common/transport/httpresp"
)

const (
	TokenHeader   = "X-Token"
	ctxAuthToken  = "auth_token"
	ctxAuthUserID = "auth_user_id"
)

type tokenResolver interface {
	Resolve(ctx context.Context, token string) (userID string, ok bool)
}

// TokenRequired resolves the X-Token header and stores the caller in the
// gin context. Every failure is the same 401.
func TokenRequired(auth tokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticate(c, auth) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
			return
		}
		c.Next()
	}
}

// TokenOptional resolves X-Token when present and never aborts.
func TokenOptional(auth tokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authenticate(c, auth)
		c.Next()
	}
}

func authenticate(c *gin.Context, auth tokenResolver) bool {
	token := strings.TrimSpace(c.GetHeader(TokenHeader))
	if token == "" {
		return false
	}
	userID, ok := auth.Resolve(c.Request.Context(), token)
	if !ok {
		return false
	}
	c.Set(ctxAuthToken, token)
	c.Set(ctxAuthUserID, userID)
	return true
}

func UserID(c *gin.Context) (string, bool) {
	return stringFromContext(c, ctxAuthUserID)
}

func Token(c *gin.Context) (string, bool) {
	return stringFromContext(c, ctxAuthToken)
}

func stringFromContext(c *gin.Context, key string) (string, bool) {
	raw, ok := c.Get(key)
	if !ok {
		return "", false
	}
	v, ok := raw.(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
