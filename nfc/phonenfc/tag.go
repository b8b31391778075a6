package phonenfc

import (
	"sync"
	"time"

	"github.com/nedpals/vxtag-agent/nfc"
)

// Tag is a tag held against a phone. Reads come from the phone's last
// report; writes are forwarded to the phone.
type Tag struct {
	uid             string
	tagType         string
	technology      string
	techTypes       []string
	maxSize         int
	writable        bool
	canMakeReadOnly bool
	ndefData        []byte // Encoded NDEF message
	scannedAt       time.Time
	device          *Device
	mu              sync.RWMutex
}

var _ nfc.Tag = (*Tag)(nil)

// UID returns the tag's unique identifier.
func (t *Tag) UID() string {
	return t.uid
}

// Type returns the tag type as reported by the phone.
func (t *Tag) Type() string {
	if t.tagType == "" {
		return nfc.CardTypeType2
	}
	return t.tagType
}

// Technology is the technology the phone read the tag with.
func (t *Tag) Technology() string {
	return t.technology
}

// TechTypes returns the phone's tech list for the tag, if it sent one.
func (t *Tag) TechTypes() []string {
	if len(t.techTypes) == 0 {
		return []string{"NfcA", "Ndef"}
	}
	return t.techTypes
}

func (t *Tag) MaxSize() int {
	return t.maxSize
}

// ReadData returns the NDEF message from the last report.
func (t *Tag) ReadData() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ndefData, nil
}

// WriteData asks the phone to write data and waits for its answer.
func (t *Tag) WriteData(data []byte) error {
	if !t.writable {
		return nfc.Errorf(nfc.ErrCodeReadOnly, "WriteData", "tag %s is not writable", t.uid)
	}
	if t.maxSize > 0 && len(data) > t.maxSize {
		return nfc.Errorf(nfc.ErrCodeInvalidData, "WriteData", "message of %d bytes exceeds tag capacity of %d bytes", len(data), t.maxSize)
	}
	if t.device == nil {
		return nfc.NewNotSupportedError("WriteData")
	}

	if err := t.device.RequestWrite(t.uid, data); err != nil {
		return err
	}

	t.mu.Lock()
	t.ndefData = append([]byte(nil), data...)
	t.mu.Unlock()
	return nil
}

func (t *Tag) IsWritable() (bool, error) {
	return t.writable, nil
}

func (t *Tag) CanMakeReadOnly() (bool, error) {
	return t.canMakeReadOnly, nil
}

// ScannedAt returns the timestamp when this tag was scanned.
func (t *Tag) ScannedAt() time.Time {
	return t.scannedAt
}

// SourceDevice returns the device ID that scanned this tag.
func (t *Tag) SourceDevice() string {
	if t.device == nil {
		return ""
	}
	return t.device.DeviceID()
}
