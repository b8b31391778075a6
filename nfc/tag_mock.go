package nfc

import (
	"fmt"
	"sync"
)

// MockTag is a test implementation of Tag that simulates an NDEF tag.
//
// Example:
//
//	tag := NewMockTag("04A1B2C3")
//	tag.WriteDataFunc = func(call int, data []byte) error {
//	    if call < 3 {
//	        return errors.New("transient")
//	    }
//	    return nil
//	}
type MockTag struct {
	// TagUID is the UID returned by UID()
	TagUID string

	// TagType is the type string returned by Type()
	TagType string

	// Capacity is returned by MaxSize()
	Capacity int

	// Data is the NDEF message returned by ReadData()
	Data []byte

	// ReadDataError, if set, will be returned by ReadData()
	ReadDataError error

	// WriteDataFunc, if set, decides the result of each WriteData call.
	// call is 1-based.
	WriteDataFunc func(call int, data []byte) error

	// WriteDataError, if set, will be returned by WriteData()
	WriteDataError error

	// IsReadOnly tracks whether the tag is in read-only mode
	IsReadOnly bool

	// IsWritableError, if set, will be returned by IsWritable()
	IsWritableError error

	// CanMakeReadOnlyError, if set, will be returned by CanMakeReadOnly()
	CanMakeReadOnlyError error

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	writes int
	mu     sync.Mutex
}

// NewMockTag creates a new writable MockTag.
func NewMockTag(uid string) *MockTag {
	return &MockTag{
		TagUID:   uid,
		TagType:  CardTypeNtag215,
		Capacity: 496,
		CallLog:  make([]string, 0),
	}
}

func (m *MockTag) UID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TagUID
}

func (m *MockTag) Type() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TagType
}

func (m *MockTag) MaxSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Capacity
}

// ReadData returns a copy of Data.
func (m *MockTag) ReadData() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "ReadData")

	if m.ReadDataError != nil {
		return nil, m.ReadDataError
	}
	if len(m.Data) == 0 {
		return nil, nil
	}

	dataCopy := make([]byte, len(m.Data))
	copy(dataCopy, m.Data)
	return dataCopy, nil
}

// WriteData simulates writing an NDEF message.
func (m *MockTag) WriteData(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	m.CallLog = append(m.CallLog, fmt.Sprintf("WriteData(%d bytes)", len(data)))

	if m.IsReadOnly {
		return fmt.Errorf("tag is read-only")
	}
	if m.WriteDataFunc != nil {
		if err := m.WriteDataFunc(m.writes, data); err != nil {
			return err
		}
	} else if m.WriteDataError != nil {
		return m.WriteDataError
	}

	m.Data = make([]byte, len(data))
	copy(m.Data, data)
	return nil
}

func (m *MockTag) IsWritable() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "IsWritable")
	if m.IsWritableError != nil {
		return false, m.IsWritableError
	}
	return !m.IsReadOnly, nil
}

func (m *MockTag) CanMakeReadOnly() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "CanMakeReadOnly")
	if m.CanMakeReadOnlyError != nil {
		return false, m.CanMakeReadOnlyError
	}
	return !m.IsReadOnly, nil
}

// WriteCount returns how many times WriteData was called.
func (m *MockTag) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// GetCallLog returns a copy of the call log for verification.
func (m *MockTag) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	logCopy := make([]string, len(m.CallLog))
	copy(logCopy, m.CallLog)
	return logCopy
}
