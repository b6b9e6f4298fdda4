package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	commonlog "files_manager/server/common/log"
	"files_manager/server/fileman/domain"
)

var (
	ErrMissingName     = errors.New("missing name")
	ErrMissingType     = errors.New("missing or unknown type")
	ErrMissingData     = errors.New("missing data")
	ErrInvalidData     = errors.New("data is not valid base64")
	ErrParentNotFound  = errors.New("parent not found")
	ErrParentNotFolder = errors.New("parent is not a folder")
)

type FileStore interface {
	Create(ctx context.Context, item domain.FileRecord) (domain.FileRecord, error)
	FindOwned(ctx context.Context, fileID, userID string) (domain.FileRecord, error)
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, job domain.ThumbnailJob) error
}

// NewFile is an upload request. Data is base64 and ignored for folders.
type NewFile struct {
	Name     string
	Type     domain.FileType
	ParentID string
	IsPublic bool
	Data     string
}

type FileService struct {
	files      FileStore
	jobs       JobEnqueuer
	folderPath string
}

func NewFileService(files FileStore, jobs JobEnqueuer, folderPath string) *FileService {
	return &FileService{files: files, jobs: jobs, folderPath: folderPath}
}

// RegisterAndMaybeThumbnail stores the content, records the file and, for
// images, queues thumbnail generation. A queueing failure does not fail the
// upload.
func (s *FileService) RegisterAndMaybeThumbnail(ctx context.Context, userID string, in NewFile) (domain.FileRecord, error) {
	item, content, err := s.validate(ctx, userID, in)
	if err != nil {
		return domain.FileRecord{}, err
	}
	if item.Type != domain.FileTypeFolder {
		localPath, err := s.storeContent(content)
		if err != nil {
			return domain.FileRecord{}, fmt.Errorf("store upload: %w", err)
		}
		item.LocalPath = localPath
	}

	created, err := s.files.Create(ctx, item)
	if err != nil {
		if item.LocalPath != "" {
			_ = os.Remove(item.LocalPath)
		}
		return domain.FileRecord{}, fmt.Errorf("create file record: %w", err)
	}

	if created.Type == domain.FileTypeImage && s.jobs != nil {
		job := domain.ThumbnailJob{FileID: created.ID, UserID: userID}
		if err := s.jobs.Enqueue(ctx, job); err != nil {
			commonlog.Errorf("enqueue thumbnail job for file %s: %v", created.ID, err)
		}
	}
	return created, nil
}

func (s *FileService) validate(ctx context.Context, userID string, in NewFile) (domain.FileRecord, []byte, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.FileRecord{}, nil, ErrMissingName
	}
	if !in.Type.Valid() {
		return domain.FileRecord{}, nil, ErrMissingType
	}
	if in.Type != domain.FileTypeFolder && in.Data == "" {
		return domain.FileRecord{}, nil, ErrMissingData
	}

	parentID := strings.TrimSpace(in.ParentID)
	if parentID == "" {
		parentID = domain.RootParentID
	}
	if parentID != domain.RootParentID {
		parent, err := s.files.FindOwned(ctx, parentID, userID)
		if errors.Is(err, domain.ErrFileNotFound) {
			return domain.FileRecord{}, nil, ErrParentNotFound
		}
		if err != nil {
			return domain.FileRecord{}, nil, fmt.Errorf("load parent %s: %w", parentID, err)
		}
		if parent.Type != domain.FileTypeFolder {
			return domain.FileRecord{}, nil, ErrParentNotFolder
		}
	}

	var content []byte
	if in.Type != domain.FileTypeFolder {
		decoded, err := base64.StdEncoding.DecodeString(in.Data)
		if err != nil {
			return domain.FileRecord{}, nil, ErrInvalidData
		}
		content = decoded
	}
	return domain.FileRecord{
		ID:       uuid.NewString(),
		UserID:   userID,
		Name:     name,
		Type:     in.Type,
		IsPublic: in.IsPublic,
		ParentID: parentID,
	}, content, nil
}

func (s *FileService) storeContent(content []byte) (string, error) {
	if err := os.MkdirAll(s.folderPath, 0o755); err != nil {
		return "", err
	}
	localPath := filepath.Join(s.folderPath, uuid.NewString())
	if err := os.WriteFile(localPath, content, 0o644); err != nil {
		return "", err
	}
	return localPath, nil
}
