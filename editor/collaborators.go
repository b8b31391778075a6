package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// PickResult is what an ImagePicker returns.
type PickResult struct {
	URI      string
	Canceled bool
}

// ImagePicker lets the user choose an image.
type ImagePicker interface {
	PickImage(ctx context.Context) (PickResult, error)
}

// View is what gets captured.
type View struct {
	Image   string
	Sticker string
}

// CaptureOptions size the snapshot.
type CaptureOptions struct {
	Height  int
	Quality float64
}

// DefaultCaptureOptions matches the on-screen image size.
var DefaultCaptureOptions = CaptureOptions{Height: 440, Quality: 1}

// ViewCapturer snapshots a view to a local file and returns its URI.
type ViewCapturer interface {
	Capture(ctx context.Context, view View, opts CaptureOptions) (string, error)
}

// MediaLibrary persists a captured URI.
type MediaLibrary interface {
	SaveToLibrary(ctx context.Context, uri string) error
}

// PermissionStatus is the media library permission.
type PermissionStatus string

const (
	PermissionUndetermined PermissionStatus = "undetermined"
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
)

// PermissionRequester reads and requests the media library permission.
type PermissionRequester interface {
	PermissionStatus(ctx context.Context) (PermissionStatus, error)
	RequestPermission(ctx context.Context) (PermissionStatus, error)
}

// StaticPicker returns a fixed path. An empty Path behaves like the user
// cancelling the picker.
type StaticPicker struct {
	Path string
}

func (p *StaticPicker) PickImage(ctx context.Context) (PickResult, error) {
	if p.Path == "" {
		return PickResult{Canceled: true}, nil
	}
	if _, err := os.Stat(p.Path); err != nil {
		return PickResult{}, err
	}
	return PickResult{URI: p.Path}, nil
}

// FileCapturer "captures" a view by copying its image into Dir. Stickers are
// not composited.
type FileCapturer struct {
	Dir string
}

func (c *FileCapturer) Capture(ctx context.Context, view View, opts CaptureOptions) (string, error) {
	if view.Image == "" {
		return "", errors.New("nothing to capture")
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(c.Dir, "capture-"+uuid.NewString()+filepath.Ext(view.Image))
	if err := copyFile(view.Image, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// DirLibrary is a media library backed by a directory. Permission is
// granted when the directory exists and is writable; requesting permission
// creates it.
type DirLibrary struct {
	Dir string
}

func (l *DirLibrary) PermissionStatus(ctx context.Context) (PermissionStatus, error) {
	info, err := os.Stat(l.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return PermissionUndetermined, nil
	}
	if err != nil {
		return PermissionDenied, nil
	}
	if !info.IsDir() || !writable(l.Dir) {
		return PermissionDenied, nil
	}
	return PermissionGranted, nil
}

func (l *DirLibrary) RequestPermission(ctx context.Context) (PermissionStatus, error) {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return PermissionDenied, nil
	}
	return l.PermissionStatus(ctx)
}

func (l *DirLibrary) SaveToLibrary(ctx context.Context, uri string) error {
	return copyFile(uri, filepath.Join(l.Dir, filepath.Base(uri)))
}

func writable(dir string) bool {
	f, err := os.CreateTemp(dir, ".perm-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
