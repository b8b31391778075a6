package nfc

import "context"

// Technology names an NFC protocol a session can claim.
type Technology string

// TechNdef is the only technology the agent requests.
const TechNdef Technology = "Ndef"

// TagInfo describes the tag presented during a technology session. It is
// only meaningful between acquisition and release.
type TagInfo struct {
	ID              string           `json:"id"`
	Type            string           `json:"type"`
	Technology      Technology       `json:"technology"`
	TechTypes       []string         `json:"techTypes"`
	MaxSize         int              `json:"maxSize"`
	IsWritable      bool             `json:"isWritable"`
	CanMakeReadOnly bool             `json:"canMakeReadOnly"`
	NdefMessage     []NDEFRecordView `json:"ndefMessage"`
}

// WriteOptions tune WriteNdefMessage.
type WriteOptions struct {
	// ReconnectAfterWrite re-selects the tag after writing so later reads
	// see fresh memory.
	ReconnectAfterWrite bool `json:"reconnectAfterWrite"`
}

// Binding is the hardware collaborator a technology session runs against.
type Binding interface {
	// RequestTechnology claims exclusive access for tech and blocks until a
	// tag is presented or ctx ends.
	RequestTechnology(ctx context.Context, tech Technology) error
	// GetTag describes the presented tag.
	GetTag(ctx context.Context) (*TagInfo, error)
	// CancelTechnologyRequest releases the claim. It is idempotent.
	CancelTechnologyRequest() error
	// WriteNdefMessage writes an encoded NDEF message to the presented tag.
	WriteNdefMessage(ctx context.Context, msg []byte, opts WriteOptions) error
}

// techTyper is implemented by tags that know their own tech list.
type techTyper interface {
	TechTypes() []string
}

var defaultTechTypes = []string{"NfcA", "MifareUltralight", "Ndef"}

// InspectTag builds TagInfo from a tag. A read failure leaves NdefMessage
// empty rather than failing the inspection.
func InspectTag(tag Tag, tech Technology) (*TagInfo, error) {
	writable, err := tag.IsWritable()
	if err != nil {
		if IsTagRemovedError(err) {
			return nil, NewNoTagPresentError("GetTag", err)
		}
		return nil, err
	}
	canLock, err := tag.CanMakeReadOnly()
	if err != nil {
		canLock = false
	}

	info := &TagInfo{
		ID:              tag.UID(),
		Type:            tag.Type(),
		Technology:      tech,
		TechTypes:       defaultTechTypes,
		MaxSize:         tag.MaxSize(),
		IsWritable:      writable,
		CanMakeReadOnly: canLock,
		NdefMessage:     []NDEFRecordView{},
	}
	if tt, ok := tag.(techTyper); ok {
		info.TechTypes = tt.TechTypes()
	}

	if data, err := tag.ReadData(); err == nil && len(data) > 0 {
		if msg, err := DecodeNDEF(data); err == nil {
			info.NdefMessage = msg.Views()
		}
	}
	return info, nil
}
