package nfc

import (
	"encoding/json"
	"fmt"
)

// PayloadID is the identifier carried in every payload this agent writes.
const PayloadID = "vxMoneyMessage"

// Payload is the JSON document stored in the tag's text record.
type Payload struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// NewPayload returns a payload with the default identifier.
func NewPayload(message string) Payload {
	return Payload{ID: PayloadID, Message: message}
}

// EncodePayload serializes p as JSON and wraps it in an NDEF message holding
// exactly one text record. An empty ID is replaced by PayloadID.
func EncodePayload(p Payload, lang string) ([]byte, error) {
	if p.ID == "" {
		p.ID = PayloadID
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return nil, NewEncodeError("EncodePayload", err)
	}
	msg, err := NewNDEFMessage().AddText(string(doc), lang).Encode()
	if err != nil {
		return nil, NewEncodeError("EncodePayload", err)
	}
	if len(msg) == 0 {
		return nil, NewEncodeError("EncodePayload", fmt.Errorf("empty NDEF message"))
	}
	return msg, nil
}

// DecodePayload extracts the payload from the first text record of an NDEF
// message.
func DecodePayload(ndef []byte) (Payload, error) {
	var p Payload
	msg, err := DecodeNDEF(ndef)
	if err != nil {
		return p, WrapError(ErrCodeInvalidData, "DecodePayload", "invalid NDEF message", err)
	}
	text, err := msg.Text()
	if err != nil {
		return p, WrapError(ErrCodeInvalidData, "DecodePayload", "no text record", err)
	}
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return p, WrapError(ErrCodeInvalidData, "DecodePayload", "text record is not a payload", err)
	}
	return p, nil
}
