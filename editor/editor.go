// Package editor holds the photo and sticker flow that sits next to the NFC
// actions: pick a photo, pick a sticker, save a snapshot to the library.
//
// The flow is one explicit State value guarded by the Editor; the platform
// pieces (picker, capture, media library, permissions) are collaborators.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nedpals/vxtag-agent/logging"
	"github.com/nedpals/vxtag-agent/notify"
)

// Screen is the visible step of the flow.
type Screen string

const (
	ScreenChoosePhoto Screen = "choosePhoto"
	ScreenOptions     Screen = "options"
)

// Alert texts shown to the user.
const (
	AlertNoSelection      = "You did not select any image."
	AlertSaved            = "Saved!"
	AlertPermissionDenied = "Media library permission denied"
)

var (
	// ErrPermissionDenied is returned when the media library refuses access.
	ErrPermissionDenied = errors.New("media library permission denied")
	// ErrNoSelection is returned when the user cancels the picker.
	ErrNoSelection = errors.New("no image selected")
)

// State is the whole editor state.
type State struct {
	Screen               Screen `json:"screen"`
	SelectedImage        string `json:"selectedImage,omitempty"`
	StickerPickerVisible bool   `json:"stickerPickerVisible"`
	Sticker              string `json:"sticker,omitempty"`
}

// Image returns the image on display: the selected one, or placeholder.
func (s State) Image(placeholder string) string {
	if s.SelectedImage != "" {
		return s.SelectedImage
	}
	return placeholder
}

// Config wires an Editor. Picker, Capturer and Library are required for the
// operations that use them; Permissions may be nil to skip the check.
type Config struct {
	Picker      ImagePicker
	Capturer    ViewCapturer
	Library     MediaLibrary
	Permissions PermissionRequester
	Alerter     notify.Alerter
	Logger      *logrus.Entry

	// Placeholder is the image shown before one is picked.
	Placeholder string
	Capture     CaptureOptions
}

// Editor runs the flow. It is safe for concurrent use.
type Editor struct {
	cfg Config

	mu    sync.Mutex
	state State
}

// New creates an Editor on the ChoosePhoto screen.
func New(cfg Config) *Editor {
	if cfg.Logger == nil {
		cfg.Logger = logging.For("editor")
	}
	if cfg.Alerter == nil {
		cfg.Alerter = &notify.LogAlerter{Logger: cfg.Logger}
	}
	if cfg.Capture == (CaptureOptions{}) {
		cfg.Capture = DefaultCaptureOptions
	}
	return &Editor{cfg: cfg, state: State{Screen: ScreenChoosePhoto}}
}

// State returns a snapshot.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Editor) update(fn func(s *State)) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.state)
	return e.state
}

// PickImage asks the picker for an image. Cancelling leaves the state as it
// was and returns ErrNoSelection.
func (e *Editor) PickImage(ctx context.Context) (State, error) {
	if e.cfg.Picker == nil {
		return e.State(), fmt.Errorf("pick image: no picker configured")
	}

	res, err := e.cfg.Picker.PickImage(ctx)
	if err != nil {
		e.cfg.Logger.WithError(err).Warn("Image picker failed")
		return e.State(), fmt.Errorf("pick image: %w", err)
	}
	if res.Canceled {
		e.cfg.Alerter.Alert(notify.Info(AlertNoSelection, ""))
		return e.State(), ErrNoSelection
	}

	e.cfg.Logger.Infof("Image selected: %s", res.URI)
	return e.update(func(s *State) {
		s.SelectedImage = res.URI
		s.Screen = ScreenOptions
	}), nil
}

// UsePhoto moves on with whatever image is showing.
func (e *Editor) UsePhoto() State {
	return e.update(func(s *State) { s.Screen = ScreenOptions })
}

// Reset returns to the ChoosePhoto screen. The selected image is kept.
func (e *Editor) Reset() State {
	return e.update(func(s *State) { s.Screen = ScreenChoosePhoto })
}

func (e *Editor) OpenStickerPicker() State {
	return e.update(func(s *State) { s.StickerPickerVisible = true })
}

func (e *Editor) CloseStickerPicker() State {
	return e.update(func(s *State) { s.StickerPickerVisible = false })
}

// SelectSticker places the sticker and closes the picker.
func (e *Editor) SelectSticker(sticker string) State {
	return e.update(func(s *State) {
		s.Sticker = sticker
		s.StickerPickerVisible = false
	})
}

// SaveImage captures the current view and saves it to the media library.
// It returns the saved URI.
func (e *Editor) SaveImage(ctx context.Context) (string, error) {
	log := e.cfg.Logger

	if err := e.ensurePermission(ctx); err != nil {
		log.WithError(err).Warn("Cannot save image")
		if errors.Is(err, ErrPermissionDenied) {
			e.cfg.Alerter.Alert(notify.Error(AlertPermissionDenied, ""))
		}
		return "", err
	}
	if e.cfg.Capturer == nil || e.cfg.Library == nil {
		return "", fmt.Errorf("save image: capture or library not configured")
	}

	view := e.State()
	uri, err := e.cfg.Capturer.Capture(ctx, View{
		Image:   view.Image(e.cfg.Placeholder),
		Sticker: view.Sticker,
	}, e.cfg.Capture)
	if err != nil {
		log.WithError(err).Warn("Capture failed")
		return "", fmt.Errorf("capture: %w", err)
	}
	if uri == "" {
		err := errors.New("capture returned no image")
		log.Warn(err.Error())
		return "", err
	}

	if err := e.cfg.Library.SaveToLibrary(ctx, uri); err != nil {
		log.WithError(err).Warn("Save to library failed")
		return "", fmt.Errorf("save to library: %w", err)
	}

	log.Infof("Image saved: %s", uri)
	e.cfg.Alerter.Alert(notify.Info(AlertSaved, ""))
	return uri, nil
}

// ensurePermission asks for permission when it has not been decided yet.
func (e *Editor) ensurePermission(ctx context.Context) error {
	p := e.cfg.Permissions
	if p == nil {
		return nil
	}

	status, err := p.PermissionStatus(ctx)
	if err != nil {
		return fmt.Errorf("permission status: %w", err)
	}
	if status == PermissionUndetermined {
		if status, err = p.RequestPermission(ctx); err != nil {
			return fmt.Errorf("request permission: %w", err)
		}
	}
	if status != PermissionGranted {
		return ErrPermissionDenied
	}
	return nil
}
