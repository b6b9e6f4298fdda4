// Package worker turns image uploads into a fixed set of thumbnails.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	commonlog "files_manager/server/common/log"
	"files_manager/server/fileman/domain"
	"files_manager/server/fileman/queue"
)

// ErrJobPanicked wraps a panic recovered while processing a job.
var ErrJobPanicked = errors.New("thumbnail job panicked")

// thumbnailWidths is a compatibility contract with readers of "<path>_<width>".
var thumbnailWidths = [...]int{500, 250, 100}

const consumeRetryDelay = time.Second

func Widths() []int {
	return append([]int(nil), thumbnailWidths[:]...)
}

func IsThumbnailWidth(width int) bool {
	for _, w := range thumbnailWidths {
		if w == width {
			return true
		}
	}
	return false
}

func ThumbnailPath(localPath string, width int) string {
	return localPath + "_" + strconv.Itoa(width)
}

type FileFinder interface {
	FindOwned(ctx context.Context, fileID, userID string) (domain.FileRecord, error)
}

// SizeError is a failure confined to one thumbnail width. It never fails the job.
type SizeError struct {
	Width int
	Path  string
	Err   error
}

func (e SizeError) Error() string {
	return fmt.Sprintf("thumbnail %d (%s): %v", e.Width, e.Path, e.Err)
}

func (e SizeError) Unwrap() error { return e.Err }

type Report struct {
	FileID  string
	Skipped bool
	Written []string
	Failed  []SizeError
}

type Worker struct {
	files  FileFinder
	thumbs Thumbnailer
	sink   Sink
}

func New(files FileFinder, thumbs Thumbnailer, sink Sink) *Worker {
	return &Worker{files: files, thumbs: thumbs, sink: sink}
}

// Process runs one job to completion. The returned error is a job failure
// (missing ids, unknown or foreign file, lookup failure); per-width failures
// are only recorded in the report.
func (w *Worker) Process(ctx context.Context, job domain.ThumbnailJob) (Report, error) {
	report := Report{FileID: job.FileID}
	if err := job.Validate(); err != nil {
		return report, err
	}

	file, err := w.files.FindOwned(ctx, job.FileID, job.UserID)
	if errors.Is(err, domain.ErrFileNotFound) {
		return report, domain.ErrFileNotFound
	}
	if err != nil {
		return report, fmt.Errorf("lookup file %s: %w", job.FileID, err)
	}
	if file.Type != domain.FileTypeImage {
		report.Skipped = true
		return report, nil
	}

	for _, width := range thumbnailWidths {
		path := ThumbnailPath(file.LocalPath, width)
		if err := w.renderOne(ctx, file.LocalPath, path, width); err != nil {
			sizeErr := SizeError{Width: width, Path: path, Err: err}
			commonlog.Errorf("generate thumbnail for file %s: %v", file.ID, sizeErr)
			report.Failed = append(report.Failed, sizeErr)
			continue
		}
		report.Written = append(report.Written, path)
	}
	return report, nil
}

func (w *Worker) renderOne(ctx context.Context, src, dst string, width int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	data, err := w.thumbs.Thumbnail(ctx, src, width)
	if err != nil {
		return err
	}
	return w.sink.Write(ctx, dst, data)
}

func (w *Worker) safeProcess(ctx context.Context, job domain.ThumbnailJob) (report Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return w.Process(ctx, job)
}

// Run consumes q until ctx is cancelled or q is closed. One job is in flight
// at a time, and a job that has started is not interrupted by cancellation.
func (w *Worker) Run(ctx context.Context, q queue.Queue) error {
	for {
		d, err := q.Consume(ctx)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrClosed), ctx.Err() != nil:
			return nil
		default:
			commonlog.Errorf("consume thumbnail job: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(consumeRetryDelay):
			}
			continue
		}
		w.handle(context.WithoutCancel(ctx), d)
	}
}

func (w *Worker) handle(ctx context.Context, d queue.Delivery) {
	job := d.Job()
	report, err := w.safeProcess(ctx, job)
	if err != nil {
		commonlog.Warnf("thumbnail job file=%s user=%s attempt=%d failed: %v", job.FileID, job.UserID, d.Attempt(), err)
		if ferr := d.Fail(err); ferr != nil {
			commonlog.Errorf("settle failed thumbnail job %s: %v", job.FileID, ferr)
		}
		return
	}
	if report.Skipped {
		commonlog.Debugf("thumbnail job file=%s skipped: not an image", job.FileID)
	} else {
		commonlog.Infof("thumbnail job file=%s done: %d written, %d failed", job.FileID, len(report.Written), len(report.Failed))
	}
	if err := d.Ack(); err != nil {
		commonlog.Errorf("ack thumbnail job %s: %v", job.FileID, err)
	}
}

// RunN runs n consumers against q and waits for all of them to stop.
func (w *Worker) RunN(ctx context.Context, q queue.Queue, n int) {
	if n < 1 {
		n = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Run(ctx, q)
		}()
	}
	wg.Wait()
}
