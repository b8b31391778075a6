package nfc

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Scope is one technology session: acquire, run, release.
type Scope struct {
	Binding Binding
	Tech    Technology
	Logger  *logrus.Entry
	// BeforeRelease, if set, runs with the primary error right before the
	// technology is released.
	BeforeRelease func(err error)
}

// Run acquires the technology, runs body and releases the technology on
// every exit path, including a panic in body. The release also runs when
// acquisition fails, except for Busy, where the claim belongs to someone
// else. A release failure is logged and returned as cleanupErr; it never
// replaces err.
func (s Scope) Run(ctx context.Context, body func(ctx context.Context) error) (err, cleanupErr error) {
	if err := s.Binding.RequestTechnology(ctx, s.Tech); err != nil {
		if IsBusyError(err) {
			return err, nil
		}
		return err, s.finish(err)
	}

	defer func() {
		if r := recover(); r != nil {
			s.finish(fmt.Errorf("panic: %v", r))
			panic(r)
		}
		cleanupErr = s.finish(err)
	}()
	return body(ctx), nil
}

func (s Scope) finish(err error) error {
	if s.BeforeRelease != nil {
		s.BeforeRelease(err)
	}
	if rerr := s.Binding.CancelTechnologyRequest(); rerr != nil {
		if s.Logger != nil {
			s.Logger.WithError(rerr).Warn("Failed to release NFC technology")
		}
		return NewCleanupError("CancelTechnologyRequest", rerr)
	}
	return nil
}

// WithTechnology runs body inside a technology session. See Scope.Run.
func WithTechnology(ctx context.Context, b Binding, tech Technology, logger *logrus.Entry, body func(ctx context.Context) error) (err, cleanupErr error) {
	return Scope{Binding: b, Tech: tech, Logger: logger}.Run(ctx, body)
}
