package service

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	commonlog "files_manager/server/common/log"
	"files_manager/server/fileman/domain"
)

func TestMain(m *testing.M) {
	commonlog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type mockFiles struct {
	items     map[string]domain.FileRecord
	createErr error
}

func (m *mockFiles) Create(_ context.Context, item domain.FileRecord) (domain.FileRecord, error) {
	if m.createErr != nil {
		return domain.FileRecord{}, m.createErr
	}
	m.items[item.ID] = item
	return item, nil
}

func (m *mockFiles) FindOwned(_ context.Context, fileID, userID string) (domain.FileRecord, error) {
	item, ok := m.items[fileID]
	if !ok || item.UserID != userID {
		return domain.FileRecord{}, domain.ErrFileNotFound
	}
	return item, nil
}

type mockJobs struct {
	jobs []domain.ThumbnailJob
	err  error
}

func (m *mockJobs) Enqueue(_ context.Context, job domain.ThumbnailJob) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func newService(t *testing.T) (*FileService, *mockFiles, *mockJobs, string) {
	t.Helper()
	files := &mockFiles{items: map[string]domain.FileRecord{
		"dir":  {ID: "dir", UserID: "u1", Type: domain.FileTypeFolder},
		"doc":  {ID: "doc", UserID: "u1", Type: domain.FileTypeFile},
		"mine": {ID: "mine", UserID: "u2", Type: domain.FileTypeFolder},
	}}
	jobs := &mockJobs{}
	dir := t.TempDir()
	return NewFileService(files, jobs, dir), files, jobs, dir
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _, _ := newService(t)
	cases := []struct {
		name string
		in   NewFile
		want error
	}{
		{"blank name", NewFile{Name: " ", Type: domain.FileTypeFile, Data: "aGk="}, ErrMissingName},
		{"unknown type", NewFile{Name: "a", Type: "video", Data: "aGk="}, ErrMissingType},
		{"no data", NewFile{Name: "a", Type: domain.FileTypeImage}, ErrMissingData},
		{"missing parent", NewFile{Name: "a", Type: domain.FileTypeFolder, ParentID: "nope"}, ErrParentNotFound},
		{"foreign parent", NewFile{Name: "a", Type: domain.FileTypeFolder, ParentID: "mine"}, ErrParentNotFound},
		{"file parent", NewFile{Name: "a", Type: domain.FileTypeFolder, ParentID: "doc"}, ErrParentNotFolder},
		{"bad base64", NewFile{Name: "a", Type: domain.FileTypeFile, Data: "!!"}, ErrInvalidData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.RegisterAndMaybeThumbnail(context.Background(), "u1", tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("got %v want %v", err, tc.want)
			}
		})
	}
}

func TestRegisterImageStoresContentAndEnqueues(t *testing.T) {
	svc, _, jobs, dir := newService(t)
	item, err := svc.RegisterAndMaybeThumbnail(context.Background(), "u1", NewFile{Name: "p.png", Type: domain.FileTypeImage, ParentID: "dir", Data: "aGk="})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if item.ParentID != "dir" || item.ID == "" {
		t.Fatalf("unexpected record %+v", item)
	}
	b, err := os.ReadFile(item.LocalPath)
	if err != nil || string(b) != "hi" {
		t.Fatalf("stored content %q %v", b, err)
	}
	if len(item.LocalPath) <= len(dir) || item.LocalPath[:len(dir)] != dir {
		t.Fatalf("content stored outside %s: %s", dir, item.LocalPath)
	}
	if len(jobs.jobs) != 1 || jobs.jobs[0] != (domain.ThumbnailJob{FileID: item.ID, UserID: "u1"}) {
		t.Fatalf("unexpected jobs %+v", jobs.jobs)
	}
}

func TestRegisterFolderAndFileDoNotEnqueue(t *testing.T) {
	svc, _, jobs, _ := newService(t)
	folder, err := svc.RegisterAndMaybeThumbnail(context.Background(), "u1", NewFile{Name: "d", Type: domain.FileTypeFolder})
	if err != nil || folder.LocalPath != "" || folder.ParentID != domain.RootParentID {
		t.Fatalf("folder: %+v %v", folder, err)
	}
	if _, err := svc.RegisterAndMaybeThumbnail(context.Background(), "u1", NewFile{Name: "f", Type: domain.FileTypeFile, Data: "aGk="}); err != nil {
		t.Fatalf("file: %v", err)
	}
	if len(jobs.jobs) != 0 {
		t.Fatalf("expected no jobs, got %+v", jobs.jobs)
	}
}

func TestRegisterSurvivesEnqueueFailure(t *testing.T) {
	svc, _, jobs, _ := newService(t)
	jobs.err = errors.New("broker down")
	if _, err := svc.RegisterAndMaybeThumbnail(context.Background(), "u1", NewFile{Name: "p", Type: domain.FileTypeImage, Data: "aGk="}); err != nil {
		t.Fatalf("upload should succeed without the queue: %v", err)
	}
}

func TestRegisterRemovesContentWhenRecordFails(t *testing.T) {
	svc, files, _, dir := newService(t)
	files.createErr = errors.New("db down")
	if _, err := svc.RegisterAndMaybeThumbnail(context.Background(), "u1", NewFile{Name: "p", Type: domain.FileTypeFile, Data: "aGk="}); err == nil {
		t.Fatalf("expected an error")
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty folder, got %d entries (%v)", len(entries), err)
	}
}
