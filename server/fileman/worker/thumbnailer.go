package worker

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
)

type Thumbnailer interface {
	// Thumbnail returns srcPath resized to width, keeping the aspect ratio,
	// encoded in the source image format.
	Thumbnail(ctx context.Context, srcPath string, width int) ([]byte, error)
}

type ImagingThumbnailer struct {
	Filter imaging.ResampleFilter
}

func NewImagingThumbnailer() *ImagingThumbnailer {
	return &ImagingThumbnailer{Filter: imaging.Lanczos}
}

func (t *ImagingThumbnailer) Thumbnail(ctx context.Context, srcPath string, width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("invalid thumbnail width %d", width)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(srcPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	_, formatName, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("detect image format: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	thumb := imaging.Resize(img, width, 0, t.Filter)
	format, err := imaging.FormatFromExtension(formatName)
	if err != nil {
		format = imaging.PNG
	}
	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, thumb, format); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
