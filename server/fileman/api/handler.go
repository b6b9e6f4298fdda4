package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"files_manager/server/common/middleware"
	"files_manager/server/common/transport/httpresp"
	"files_manager/server/fileman/domain"
	"files_manager/server/fileman/service"
)

type Tokens interface {
	Issue(ctx context.Context, userID string) (string, error)
	Resolve(ctx context.Context, token string) (string, bool)
	Revoke(ctx context.Context, token string) error
}

type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (string, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
}

type UserStore interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByID(ctx context.Context, userID string) (domain.User, error)
	Count(ctx context.Context) (int64, error)
}

type FileStore interface {
	Create(ctx context.Context, item domain.FileRecord) (domain.FileRecord, error)
	FindOwned(ctx context.Context, fileID, userID string) (domain.FileRecord, error)
	FindByID(ctx context.Context, fileID string) (domain.FileRecord, error)
	ListByParent(ctx context.Context, userID, parentID string, page, pageSize int) ([]domain.FileRecord, error)
	SetPublic(ctx context.Context, fileID, userID string, public bool) (domain.FileRecord, error)
	Count(ctx context.Context) (int64, error)
}

type Uploader interface {
	RegisterAndMaybeThumbnail(ctx context.Context, userID string, in service.NewFile) (domain.FileRecord, error)
}

type HealthCheck func(ctx context.Context) bool

type Deps struct {
	Tokens      Tokens
	Credentials CredentialVerifier
	Hasher      PasswordHasher
	Users       UserStore
	Files       FileStore
	Uploads     Uploader
	CacheAlive  HealthCheck
	DBAlive     HealthCheck
}

type Handler struct {
	deps Deps
}

func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/status", h.getStatus)
	r.GET("/stats", h.getStats)
	r.POST("/users", h.postUser)
	r.GET("/connect", h.getConnect)

	authed := r.Group("/")
	authed.Use(middleware.TokenRequired(h.deps.Tokens))
	{
		authed.GET("/disconnect", h.getDisconnect)
		authed.GET("/users/me", h.getMe)
		authed.POST("/files", h.postFile)
		authed.GET("/files", h.listFiles)
		authed.GET("/files/:id", h.getFile)
		authed.PUT("/files/:id/publish", h.publishFile)
		authed.PUT("/files/:id/unpublish", h.unpublishFile)
	}

	r.GET("/files/:id/data", middleware.TokenOptional(h.deps.Tokens), h.getFileData)
}

func alive(ctx context.Context, check HealthCheck) bool {
	return check != nil && check(ctx)
}

func (h *Handler) getStatus(c *gin.Context) {
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, httpresp.StatusResponse{
		Redis: alive(ctx, h.deps.CacheAlive),
		DB:    alive(ctx, h.deps.DBAlive),
	})
}
