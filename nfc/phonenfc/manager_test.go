package phonenfc

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(ManagerConfig{Logger: quietLogger()})
	t.Cleanup(m.Close)
	return m
}

func TestManagerRegisterDevice(t *testing.T) {
	m := newTestManager(t)

	device, err := m.RegisterDevice(testRegistration())
	require.NoError(t, err)
	assert.NotEmpty(t, device.DeviceID())
	assert.Equal(t, WriteTimeout, device.writeTimeout)

	got, ok := m.GetDevice(device.DeviceID())
	require.True(t, ok)
	assert.Same(t, device, got)
	assert.Equal(t, 1, m.GetDeviceCount())
	assert.Equal(t, 1, m.GetActiveDeviceCount())
}

func TestManagerRegisterDeviceValidation(t *testing.T) {
	m := newTestManager(t)

	tests := []struct {
		name string
		req  DeviceRegistrationRequest
	}{
		{"missing name", DeviceRegistrationRequest{Platform: "ios"}},
		{"bad platform", DeviceRegistrationRequest{DeviceName: "Phone", Platform: "windows"}},
		{"missing platform", DeviceRegistrationRequest{DeviceName: "Phone"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.RegisterDevice(tt.req)
			assert.Error(t, err)
		})
	}
	assert.Zero(t, m.GetDeviceCount())
}

func TestManagerOpenDevice(t *testing.T) {
	m := newTestManager(t)

	_, err := m.OpenDevice("")
	assert.Error(t, err, "no phone connected yet")

	first, err := m.RegisterDevice(testRegistration())
	require.NoError(t, err)
	second, err := m.RegisterDevice(testRegistration())
	require.NoError(t, err)

	dev, err := m.OpenDevice("")
	require.NoError(t, err)
	assert.Same(t, first, dev)

	dev, err = m.OpenDevice(second.Connection())
	require.NoError(t, err)
	assert.Same(t, second, dev)

	dev, err = m.OpenDevice(second.DeviceID())
	require.NoError(t, err)
	assert.Same(t, second, dev)

	_, err = m.OpenDevice("smartphone:unknown")
	assert.Error(t, err)

	require.NoError(t, m.UnregisterDevice(first.DeviceID()))
	dev, err = m.OpenDevice("")
	require.NoError(t, err)
	assert.Same(t, second, dev)
	assert.False(t, first.IsActive())
}

func TestManagerListDevices(t *testing.T) {
	m := newTestManager(t)

	a, _ := m.RegisterDevice(testRegistration())
	b, _ := m.RegisterDevice(testRegistration())

	list, err := m.ListDevices()
	require.NoError(t, err)
	assert.Equal(t, []string{a.Connection(), b.Connection()}, list)
}

func TestManagerSendAndRemoveTag(t *testing.T) {
	m := newTestManager(t)
	device, err := m.RegisterDevice(testRegistration())
	require.NoError(t, err)

	tag, err := m.SendTagData(device.DeviceID(), TagData{DeviceID: device.DeviceID(), UID: "04abcdef"})
	require.NoError(t, err)
	assert.Equal(t, "04:AB:CD:EF", tag.UID())

	tags, err := device.GetTags()
	require.NoError(t, err)
	assert.Len(t, tags, 1)

	require.NoError(t, m.RemoveTag(device.DeviceID(), "04 AB CD EF"))
	tags, err = device.GetTags()
	require.NoError(t, err)
	assert.Empty(t, tags)

	_, err = m.SendTagData("unknown", TagData{UID: "04"})
	assert.Error(t, err)
	_, err = m.SendTagData(device.DeviceID(), TagData{UID: "zz"})
	assert.Error(t, err)
	assert.Error(t, m.RemoveTag(device.DeviceID(), "not-hex"))
}

func TestManagerCompleteWriteValidation(t *testing.T) {
	m := newTestManager(t)
	device, _ := m.RegisterDevice(testRegistration())

	assert.Error(t, m.CompleteWrite(device.DeviceID(), DeviceWriteResponse{}), "request ID is required")
	assert.Error(t, m.CompleteWrite(device.DeviceID(), DeviceWriteResponse{RequestID: "unknown"}))
	assert.Error(t, m.CompleteWrite("unknown", DeviceWriteResponse{RequestID: "r"}))
}

func TestManagerCleanupInactiveDevices(t *testing.T) {
	m := NewManager(ManagerConfig{InactivityTimeout: time.Minute, Logger: quietLogger()})
	defer m.Close()

	stale, _ := m.RegisterDevice(testRegistration())
	fresh, _ := m.RegisterDevice(testRegistration())
	stale.lastSeen = time.Now().Add(-2 * time.Minute)

	m.cleanupInactiveDevices()

	_, ok := m.GetDevice(stale.DeviceID())
	assert.False(t, ok)
	assert.False(t, stale.IsActive())
	_, ok = m.GetDevice(fresh.DeviceID())
	assert.True(t, ok)

	list, _ := m.ListDevices()
	assert.Equal(t, []string{fresh.Connection()}, list)
}

func TestManagerHeartbeat(t *testing.T) {
	m := newTestManager(t)
	device, _ := m.RegisterDevice(testRegistration())
	device.lastSeen = time.Now().Add(-time.Minute)

	require.NoError(t, m.UpdateHeartbeat(device.DeviceID()))
	assert.WithinDuration(t, time.Now(), device.LastSeen(), time.Second)
	assert.Error(t, m.UpdateHeartbeat("unknown"))
}

func TestManagerCloseIsIdempotent(t *testing.T) {
	m := NewManager(ManagerConfig{Logger: quietLogger()})
	device, _ := m.RegisterDevice(testRegistration())

	m.Close()
	m.Close()

	assert.False(t, device.IsActive())
	assert.Zero(t, m.GetDeviceCount())
}
