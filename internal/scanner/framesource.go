package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// ErrNoMoreFrames signals an exhausted frame stream.
var ErrNoMoreFrames = errors.New("no more frames")

// FrameSource abstracts the camera. Open acquires the device (returning
// ErrPermissionDenied or ErrNoDevice for the two distinguishable failure
// classes), Next blocks for the following frame, Close releases the device.
type FrameSource interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// FileSource feeds image files as frames. It stands in for a camera on
// hosts without one and drives the scanner CLI.
type FileSource struct {
	paths []string
	pos   int
	open  bool
}

// NewFileSource creates a source over the given image files.
func NewFileSource(paths ...string) *FileSource {
	return &FileSource{paths: paths}
}

// Open validates the source. An empty file list maps to the no-device case.
func (f *FileSource) Open(context.Context) error {
	if len(f.paths) == 0 {
		return ErrNoDevice
	}
	f.open = true
	f.pos = 0
	return nil
}

// Next decodes the following image file. Unreadable files map to the
// permission-denied case; undecodable ones are returned as plain errors and
// skipped by the capture loop's decode handling upstream.
func (f *FileSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !f.open {
		return nil, errors.New("frame source not open")
	}
	if f.pos >= len(f.paths) {
		return nil, ErrNoMoreFrames
	}
	path := f.paths[f.pos]
	f.pos++

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Close releases the source.
func (f *FileSource) Close() error {
	f.open = false
	return nil
}
