package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	commonlog "files_manager/server/common/log"
	"files_manager/server/common/middleware"
	"files_manager/server/common/transport/httpresp"
	"files_manager/server/fileman/domain"
	"files_manager/server/fileman/service"
	"files_manager/server/fileman/worker"
)

const filesPageSize = 20

// parseParentID accepts the root marker as 0, "0", "" or null, and any other
// string as a folder id.
func parseParentID(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" || string(trimmed) == "0" {
		return domain.RootParentID, true
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.RootParentID, true
	}
	return s, true
}

func (h *Handler) postFile(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	var req struct {
		Name     string          `json:"name"`
		Type     domain.FileType `json:"type"`
		ParentID json.RawMessage `json:"parentId"`
		IsPublic bool            `json:"isPublic"`
		Data     string          `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrMissingName))
		return
	}
	parentID, ok := parseParentID(req.ParentID)
	if !ok {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrParentNotFound))
		return
	}

	created, err := h.deps.Uploads.RegisterAndMaybeThumbnail(c.Request.Context(), userID, service.NewFile{
		Name:     req.Name,
		Type:     req.Type,
		ParentID: parentID,
		IsPublic: req.IsPublic,
		Data:     req.Data,
	})
	if err != nil {
		if message, ok := uploadErrorMessage(err); ok {
			c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(message))
			return
		}
		commonlog.Errorf("upload for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(httpresp.ErrInternal))
		return
	}
	c.JSON(http.StatusCreated, created)
}

func uploadErrorMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, service.ErrMissingName):
		return httpresp.ErrMissingName, true
	case errors.Is(err, service.ErrMissingType):
		return httpresp.ErrMissingType, true
	case errors.Is(err, service.ErrMissingData):
		return httpresp.ErrMissingData, true
	case errors.Is(err, service.ErrInvalidData):
		return httpresp.ErrInvalidData, true
	case errors.Is(err, service.ErrParentNotFound):
		return httpresp.ErrParentNotFound, true
	case errors.Is(err, service.ErrParentNotFolder):
		return httpresp.ErrParentNotFolder, true
	default:
		return "", false
	}
}

func (h *Handler) getFile(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	item, err := h.deps.Files.FindOwned(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.notFoundOrInternal(c, err, "load file")
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) listFiles(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	parentID := strings.TrimSpace(c.Query("parentId"))
	if parentID == "" {
		parentID = domain.RootParentID
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		page = 0
	}
	items, err := h.deps.Files.ListByParent(c.Request.Context(), userID, parentID, page, filesPageSize)
	if err != nil {
		commonlog.Errorf("list files for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(httpresp.ErrInternal))
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) publishFile(c *gin.Context) {
	h.setPublic(c, true)
}

func (h *Handler) unpublishFile(c *gin.Context) {
	h.setPublic(c, false)
}

func (h *Handler) setPublic(c *gin.Context, public bool) {
	userID, _ := middleware.UserID(c)
	item, err := h.deps.Files.SetPublic(c.Request.Context(), c.Param("id"), userID, public)
	if err != nil {
		h.notFoundOrInternal(c, err, "update file visibility")
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) getFileData(c *gin.Context) {
	item, err := h.deps.Files.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.notFoundOrInternal(c, err, "load file")
		return
	}
	if !item.IsPublic {
		userID, ok := middleware.UserID(c)
		if !ok || userID != item.UserID {
			c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
			return
		}
	}
	if item.Type == domain.FileTypeFolder {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrFolderHasNoContent))
		return
	}

	path := item.LocalPath
	if raw := c.Query("size"); raw != "" {
		width, err := strconv.Atoi(raw)
		if err != nil || !worker.IsThumbnailWidth(width) {
			c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
			return
		}
		path = worker.ThumbnailPath(item.LocalPath, width)
	}
	if info, err := os.Stat(path); path == "" || err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
		return
	}
	if contentType := mime.TypeByExtension(filepath.Ext(item.Name)); contentType != "" {
		c.Header("Content-Type", contentType)
	}
	c.File(path)
}

func (h *Handler) notFoundOrInternal(c *gin.Context, err error, action string) {
	if errors.Is(err, domain.ErrFileNotFound) {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
		return
	}
	commonlog.Errorf("%s: %v", action, err)
	c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(httpresp.ErrInternal))
}
