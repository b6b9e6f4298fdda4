package domain

import (
	"errors"
	"strings"
	"time"
)

type FileType string

const (
	FileTypeFolder FileType = "folder"
	FileTypeFile   FileType = "file"
	FileTypeImage  FileType = "image"
)

// RootParentID is the parent of top-level files.
const RootParentID = "0"

func (t FileType) Valid() bool {
	switch t {
	case FileTypeFolder, FileTypeFile, FileTypeImage:
		return true
	default:
		return false
	}
}

type FileRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Type      FileType  `json:"type"`
	IsPublic  bool      `json:"isPublic"`
	ParentID  string    `json:"parentId"`
	LocalPath string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

var (
	ErrMissingFileID = errors.New("missing fileId")
	ErrMissingUserID = errors.New("missing userId")
	ErrFileNotFound  = errors.New("file not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrUserExists    = errors.New("user already exists")
)

// ThumbnailJob asks the worker to render thumbnails for one stored file.
type ThumbnailJob struct {
	FileID string `json:"fileId"`
	UserID string `json:"userId"`
}

func (j ThumbnailJob) Validate() error {
	if strings.TrimSpace(j.FileID) == "" {
		return ErrMissingFileID
	}
	if strings.TrimSpace(j.UserID) == "" {
		return ErrMissingUserID
	}
	return nil
}
