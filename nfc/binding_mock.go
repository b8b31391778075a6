package nfc

import (
	"context"
	"fmt"
	"sync"
)

// MockBinding is a test implementation of Binding that records every call.
//
// Example:
//
//	b := NewMockBinding()
//	b.WriteFunc = func(attempt int, msg []byte) error {
//	    return errors.New("tag lost")
//	}
type MockBinding struct {
	// RequestError, if set, will be returned by RequestTechnology()
	RequestError error

	// Info is returned by GetTag(); nil yields NoTagPresent
	Info *TagInfo

	// GetTagError, if set, will be returned by GetTag()
	GetTagError error

	// GetTagFunc, if set, replaces Info/GetTagError
	GetTagFunc func() (*TagInfo, error)

	// WriteFunc decides each WriteNdefMessage result; attempt is 1-based
	WriteFunc func(attempt int, msg []byte) error

	// CancelError, if set, will be returned by CancelTechnologyRequest()
	CancelError error

	// Written holds every message passed to a successful write
	Written [][]byte

	// LastOptions is the options of the last write call
	LastOptions WriteOptions

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	writes  int
	cancels int
	mu      sync.Mutex
}

var _ Binding = (*MockBinding)(nil)

// NewMockBinding creates a binding presenting a writable NTAG215.
func NewMockBinding() *MockBinding {
	return &MockBinding{
		Info: &TagInfo{
			ID:          "04A1B2C3D4E5F6",
			Type:        CardTypeNtag215,
			Technology:  TechNdef,
			TechTypes:   defaultTechTypes,
			MaxSize:     496,
			IsWritable:  true,
			NdefMessage: []NDEFRecordView{},
		},
		CallLog: make([]string, 0),
	}
}

func (m *MockBinding) RequestTechnology(ctx context.Context, tech Technology) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, fmt.Sprintf("RequestTechnology(%s)", tech))
	if m.RequestError != nil {
		return m.RequestError
	}
	return ctx.Err()
}

func (m *MockBinding) GetTag(ctx context.Context) (*TagInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "GetTag")
	if m.GetTagFunc != nil {
		return m.GetTagFunc()
	}
	if m.GetTagError != nil {
		return nil, m.GetTagError
	}
	if m.Info == nil {
		return nil, NewNoTagPresentError("GetTag", nil)
	}
	info := *m.Info
	return &info, nil
}

func (m *MockBinding) WriteNdefMessage(ctx context.Context, msg []byte, opts WriteOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	m.LastOptions = opts
	m.CallLog = append(m.CallLog, fmt.Sprintf("WriteNdefMessage(%d bytes)", len(msg)))
	if m.WriteFunc != nil {
		if err := m.WriteFunc(m.writes, msg); err != nil {
			return err
		}
	}
	m.Written = append(m.Written, append([]byte(nil), msg...))
	return nil
}

func (m *MockBinding) CancelTechnologyRequest() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancels++
	m.CallLog = append(m.CallLog, "CancelTechnologyRequest")
	return m.CancelError
}

// WriteCount returns how many writes were attempted.
func (m *MockBinding) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// CancelCount returns how many times the technology was released.
func (m *MockBinding) CancelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}

// GetCallLog returns a copy of the call log for verification.
func (m *MockBinding) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	logCopy := make([]string, len(m.CallLog))
	copy(logCopy, m.CallLog)
	return logCopy
}
