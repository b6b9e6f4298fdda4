package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"files_manager/server/auth/credentials"
	commonlog "files_manager/server/common/log"
	"files_manager/server/common/middleware"
	"files_manager/server/common/transport/httpresp"
	"files_manager/server/fileman/domain"
)

func (h *Handler) getStats(c *gin.Context) {
	ctx := c.Request.Context()
	users, err := h.deps.Users.Count(ctx)
	if err != nil {
		commonlog.Errorf("count users: %v", err)
		users = 0
	}
	files, err := h.deps.Files.Count(ctx)
	if err != nil {
		commonlog.Errorf("count files: %v", err)
		files = 0
	}
	c.JSON(http.StatusOK, httpresp.StatsResponse{Users: users, Files: files})
}

func (h *Handler) postUser(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Email, req.Password = "", ""
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrMissingEmail))
		return
	}
	if req.Password == "" {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrMissingPassword))
		return
	}
	hash, err := h.deps.Hasher.Hash(req.Password)
	if err != nil {
		commonlog.Errorf("hash password: %v", err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(httpresp.ErrInternal))
		return
	}
	user, err := h.deps.Users.Create(c.Request.Context(), domain.User{ID: uuid.NewString(), Email: email, PasswordHash: hash})
	if errors.Is(err, domain.ErrUserExists) {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrAlreadyExist))
		return
	}
	if err != nil {
		commonlog.Errorf("create user: %v", err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(httpresp.ErrInternal))
		return
	}
	c.JSON(http.StatusCreated, httpresp.NewUserResponse(user.ID, user.Email))
}

// basicCredentials decodes "Authorization: Basic base64(email:password)".
func basicCredentials(header string) (string, string, bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return "", "", false
	}
	email, password, ok := strings.Cut(string(raw), ":")
	if !ok || email == "" || password == "" {
		return "", "", false
	}
	return email, password, true
}

func (h *Handler) getConnect(c *gin.Context) {
	email, password, ok := basicCredentials(c.GetHeader("Authorization"))
	if !ok {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	ctx := c.Request.Context()
	userID, err := h.deps.Credentials.Verify(ctx, email, password)
	if err != nil {
		if !isCredentialFailure(err) {
			commonlog.Errorf("verify credentials: %v", err)
			c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(httpresp.ErrInternal))
			return
		}
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	token, err := h.deps.Tokens.Issue(ctx, userID)
	if err != nil {
		commonlog.Errorf("issue token for user %s: %v", userID, err)
		c.JSON(http.StatusServiceUnavailable, httpresp.NewErrorResponse(httpresp.ErrInternal))
		return
	}
	c.JSON(http.StatusOK, httpresp.NewTokenResponse(token))
}

func (h *Handler) getDisconnect(c *gin.Context) {
	token, _ := middleware.Token(c)
	if err := h.deps.Tokens.Revoke(c.Request.Context(), token); err != nil {
		commonlog.Errorf("revoke token: %v", err)
		c.JSON(http.StatusServiceUnavailable, httpresp.NewErrorResponse(httpresp.ErrInternal))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getMe(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	user, err := h.deps.Users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			commonlog.Errorf("load user %s: %v", userID, err)
		}
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	c.JSON(http.StatusOK, httpresp.NewUserResponse(user.ID, user.Email))
}

func isCredentialFailure(err error) bool {
	return errors.Is(err, credentials.ErrNoCredentials) || errors.Is(err, credentials.ErrInvalidCredentials)
}
