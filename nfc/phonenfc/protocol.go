package phonenfc

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nedpals/vxtag-agent/nfc"
)

// DeviceCapabilities defines the capabilities of a smartphone NFC device.
type DeviceCapabilities struct {
	CanRead  bool   `json:"canRead"`
	CanWrite bool   `json:"canWrite"`
	NFCType  string `json:"nfcType"` // "nfca", "nfcb", "nfcf", "nfcv", "isodep", etc.
}

// DeviceRegistrationRequest is sent by mobile app to register as an NFC device.
type DeviceRegistrationRequest struct {
	DeviceName   string             `json:"deviceName" validate:"required,max=128"` // e.g., "John's iPhone 12"
	Platform     string             `json:"platform" validate:"oneof=ios android"`
	AppVersion   string             `json:"appVersion"`
	Capabilities DeviceCapabilities `json:"capabilities"`
	Metadata     map[string]string  `json:"metadata"`
}

// DeviceRegistrationResponse is sent by server after successful registration.
type DeviceRegistrationResponse struct {
	DeviceID   string     `json:"deviceID"` // Unique device identifier (UUID)
	ServerInfo ServerInfo `json:"serverInfo"`
}

// ServerInfo contains information about the server.
type ServerInfo struct {
	Version           string   `json:"version"`
	SupportedNFC      []string `json:"supportedNFC"`
	HeartbeatInterval int      `json:"heartbeatInterval"` // seconds
}

// TagData is sent by mobile app when a tag is scanned.
type TagData struct {
	DeviceID        string           `json:"deviceID" validate:"required"`
	UID             string           `json:"uid" validate:"required"` // Tag UID (hex format)
	Technology      string           `json:"technology"`              // "ISO14443A", "Ndef", etc.
	Type            string           `json:"type"`                    // "NTAG215", "Type2", etc.
	TechTypes       []string         `json:"techTypes,omitempty"`
	MaxSize         int              `json:"maxSize,omitempty"`
	IsWritable      *bool            `json:"isWritable,omitempty"` // nil falls back to the device capability
	CanMakeReadOnly bool             `json:"canMakeReadOnly,omitempty"`
	ScannedAt       time.Time        `json:"scannedAt"`
	NDEFMessage     *NDEFMessageData `json:"ndefMessage"` // Parsed NDEF data (if available)
	RawData         []byte           `json:"rawData"`     // Raw NDEF bytes (base64 encoded)
}

// NDEFMessageData represents an NDEF message exchanged with the mobile app.
type NDEFMessageData struct {
	Records []NDEFRecordData `json:"records"`
}

// NDEFRecordData represents a single NDEF record.
type NDEFRecordData struct {
	TNF        uint8  `json:"tnf"`
	Type       []byte `json:"type"`
	ID         []byte `json:"id,omitempty"`
	Payload    []byte `json:"payload"`
	RecordType string `json:"recordType,omitempty"` // "text", "uri", "mime", etc.
	Content    string `json:"content,omitempty"`    // Decoded content (text/URI)
	Language   string `json:"language,omitempty"`   // For text records
}

// DeviceHeartbeat is sent by mobile app periodically.
type DeviceHeartbeat struct {
	DeviceID  string    `json:"deviceID"`
	Timestamp time.Time `json:"timestamp"`
}

// TagRemovedData is sent by mobile app when a tag leaves the NFC field.
type TagRemovedData struct {
	DeviceID  string    `json:"deviceID"`
	UID       string    `json:"uid"`
	RemovedAt time.Time `json:"removedAt"`
}

// DeviceWriteRequest is sent by server to the mobile app.
type DeviceWriteRequest struct {
	RequestID   string           `json:"requestID"`
	DeviceID    string           `json:"deviceID"`
	UID         string           `json:"uid"`
	NDEFMessage *NDEFMessageData `json:"ndefMessage"`
	RawNDEF     []byte           `json:"rawNDEF"`
	Options     nfc.WriteOptions `json:"options"`
}

// DeviceWriteResponse is sent by mobile app to server.
type DeviceWriteResponse struct {
	RequestID string `json:"requestID" validate:"required"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// ConvertTagData converts mobile app tag data to a Tag owned by device.
func ConvertTagData(data TagData, device *Device) (*Tag, error) {
	if data.UID == "" {
		return nil, fmt.Errorf("tag UID is required")
	}

	uid, err := parseUID(data.UID)
	if err != nil {
		return nil, fmt.Errorf("invalid UID format: %w", err)
	}

	ndefData := data.RawData
	if data.NDEFMessage != nil && len(data.NDEFMessage.Records) > 0 {
		msg, err := ConvertNDEFMessageData(data.NDEFMessage)
		if err != nil {
			return nil, fmt.Errorf("failed to parse NDEF message: %w", err)
		}
		if ndefData, err = msg.Encode(); err != nil {
			return nil, fmt.Errorf("failed to encode NDEF message: %w", err)
		}
	}

	writable := false
	if device != nil {
		writable = device.PhoneCapabilities().CanWrite
	}
	if data.IsWritable != nil {
		writable = *data.IsWritable
	}

	scannedAt := data.ScannedAt
	if scannedAt.IsZero() {
		scannedAt = time.Now()
	}

	return &Tag{
		uid:             uid,
		tagType:         data.Type,
		technology:      data.Technology,
		techTypes:       data.TechTypes,
		maxSize:         data.MaxSize,
		writable:        writable,
		canMakeReadOnly: data.CanMakeReadOnly,
		ndefData:        ndefData,
		scannedAt:       scannedAt,
		device:          device,
	}, nil
}

// ConvertNDEFMessageData converts mobile app NDEF format to internal nfc.NDEFMessage.
func ConvertNDEFMessageData(data *NDEFMessageData) (*nfc.NDEFMessage, error) {
	if data == nil || len(data.Records) == 0 {
		return nil, fmt.Errorf("empty NDEF message")
	}

	msg := nfc.NewNDEFMessage()
	for i, recordData := range data.Records {
		if recordData.TNF > 0x07 {
			return nil, fmt.Errorf("failed to convert record %d: invalid TNF value: 0x%02X", i, recordData.TNF)
		}
		msg.AddRecord(nfc.NDEFRecord{
			TNF:     recordData.TNF,
			Type:    recordData.Type,
			ID:      recordData.ID,
			Payload: recordData.Payload,
		})
	}
	return msg, nil
}

// NDEFMessageToData converts an encoded NDEF message to the app format,
// filling in the decoded content of text and URI records.
func NDEFMessageToData(ndef []byte) (*NDEFMessageData, error) {
	msg, err := nfc.DecodeNDEF(ndef)
	if err != nil {
		return nil, err
	}

	views := msg.Views()
	out := &NDEFMessageData{Records: make([]NDEFRecordData, 0, len(views))}
	for i, r := range msg.Records() {
		out.Records = append(out.Records, NDEFRecordData{
			TNF:        r.TNF,
			Type:       r.Type,
			ID:         r.ID,
			Payload:    r.Payload,
			RecordType: views[i].Type,
			Content:    views[i].Content,
			Language:   views[i].Language,
		})
	}
	return out, nil
}

var validHex = regexp.MustCompile(`^[0-9A-F]+$`)

// parseUID parses and normalizes UID from various formats.
// Supports: "04:AB:CD:EF", "04ABCDEF", "04 AB CD EF"
// Returns: normalized colon-separated uppercase hex (e.g., "04:AB:CD:EF")
func parseUID(uid string) (string, error) {
	if uid == "" {
		return "", fmt.Errorf("empty UID")
	}

	cleaned := strings.NewReplacer(":", "", " ", "", "-", "").Replace(uid)
	cleaned = strings.ToUpper(cleaned)

	if !validHex.MatchString(cleaned) {
		return "", fmt.Errorf("UID contains invalid characters: %s", uid)
	}
	if len(cleaned)%2 != 0 {
		return "", fmt.Errorf("UID has odd number of hex characters: %s", uid)
	}

	var result strings.Builder
	for i := 0; i < len(cleaned); i += 2 {
		if i > 0 {
			result.WriteByte(':')
		}
		result.WriteString(cleaned[i : i+2])
	}
	return result.String(), nil
}
