package nfc

import (
	"fmt"
	"sync"
)

// MockDevice is a test implementation of Device that simulates a reader.
//
// Example:
//
//	dev := NewMockDevice()
//	dev.AddTag(NewMockTag("04A1B2C3"))
type MockDevice struct {
	// DeviceName is the simulated device name returned by String()
	DeviceName string

	// DeviceConnection is the simulated connection string returned by Connection()
	DeviceConnection string

	// IsOpen tracks whether the device is currently open
	IsOpen bool

	// InitError, if set, will be returned by InitiatorInit()
	InitError error

	// CloseError, if set, will be returned by Close()
	CloseError error

	// GetTagsFunc allows custom GetTags behavior for testing
	GetTagsFunc func() ([]Tag, error)

	// Tags is the list of tags returned by GetTags()
	Tags []Tag

	// GetTagsError, if set, will be returned by GetTags()
	GetTagsError error

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	mu sync.Mutex
}

// NewMockDevice creates a new open MockDevice.
func NewMockDevice() *MockDevice {
	return &MockDevice{
		DeviceName:       "Mock NFC Reader",
		DeviceConnection: "mock:usb:001",
		IsOpen:           true,
		CallLog:          make([]string, 0),
	}
}

func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Close")
	if !m.IsOpen {
		return fmt.Errorf("device already closed")
	}
	if m.CloseError != nil {
		return m.CloseError
	}
	m.IsOpen = false
	return nil
}

func (m *MockDevice) InitiatorInit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "InitiatorInit")
	if !m.IsOpen {
		return fmt.Errorf("device not open")
	}
	return m.InitError
}

func (m *MockDevice) String() string {
	return m.DeviceName
}

func (m *MockDevice) Connection() string {
	return m.DeviceConnection
}

// GetTags returns the configured tags.
func (m *MockDevice) GetTags() ([]Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "GetTags")

	if !m.IsOpen {
		return nil, ErrDeviceClosed
	}
	if m.GetTagsFunc != nil {
		return m.GetTagsFunc()
	}
	if m.GetTagsError != nil {
		return nil, m.GetTagsError
	}

	tagsCopy := make([]Tag, len(m.Tags))
	copy(tagsCopy, m.Tags)
	return tagsCopy, nil
}

// SetTags sets the tags that will be returned by GetTags().
func (m *MockDevice) SetTags(tags []Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tags = tags
}

// AddTag adds a tag to the list returned by GetTags().
func (m *MockDevice) AddTag(tag Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tags = append(m.Tags, tag)
}

// ClearTags simulates every tag leaving the field.
func (m *MockDevice) ClearTags() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tags = nil
}

// GetCallLog returns a copy of the call log for verification.
func (m *MockDevice) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	logCopy := make([]string, len(m.CallLog))
	copy(logCopy, m.CallLog)
	return logCopy
}
