package nfc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTechnologyReleasesOnPanic(t *testing.T) {
	b := NewMockBinding()

	assert.Panics(t, func() {
		_, _ = WithTechnology(context.Background(), b, TechNdef, quietLogger(), func(context.Context) error {
			panic("boom")
		})
	})
	assert.Equal(t, 1, b.CancelCount())
}

func TestWithTechnologyCleanupErrorIsSeparate(t *testing.T) {
	b := NewMockBinding()
	b.CancelError = errors.New("stuck")
	primary := errors.New("primary")

	err, cleanupErr := WithTechnology(context.Background(), b, TechNdef, quietLogger(), func(context.Context) error {
		return primary
	})

	assert.Same(t, primary, err)
	require.Error(t, cleanupErr)
	assert.True(t, errors.Is(cleanupErr, ErrCleanupFailure))
}

func TestWithTechnologyBusySkipsRelease(t *testing.T) {
	b := NewMockBinding()
	b.RequestError = NewBusyError("RequestTechnology")

	ran := false
	err, cleanupErr := WithTechnology(context.Background(), b, TechNdef, nil, func(context.Context) error {
		ran = true
		return nil
	})

	assert.True(t, IsBusyError(err))
	assert.NoError(t, cleanupErr)
	assert.False(t, ran)
	assert.Equal(t, 0, b.CancelCount())
}

func TestScopeBeforeReleaseSeesPrimaryError(t *testing.T) {
	b := NewMockBinding()
	primary := errors.New("primary")
	var seen error

	err, _ := Scope{
		Binding:       b,
		Tech:          TechNdef,
		BeforeRelease: func(err error) { seen = err },
	}.Run(context.Background(), func(context.Context) error { return primary })

	assert.Same(t, primary, err)
	assert.Same(t, primary, seen)
	assert.Equal(t, []string{"RequestTechnology(Ndef)", "CancelTechnologyRequest"}, b.GetCallLog())
}
