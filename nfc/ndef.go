package nfc

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
)

// Type Name Format values.
const (
	TNFEmpty     byte = 0x00
	TNFWellKnown byte = 0x01
	TNFMIME      byte = 0x02
	TNFExternal  byte = 0x04
)

// Record header flags.
const (
	flagMB byte = 0x80
	flagME byte = 0x40
	flagSR byte = 0x10
	flagIL byte = 0x08
)

// DefaultLanguage is used for text records when no language is given.
const DefaultLanguage = "en"

// EncodeTextRecord returns an NDEF message with a single well-known text
// record.
func EncodeTextRecord(text, lang string) []byte {
	out, _ := encodeRecords([]NDEFRecord{textRecord(text, lang)})
	return out
}

// DecodeTextRecord returns the text of the first text record in an NDEF
// message, or "" if there is none.
func DecodeTextRecord(ndef []byte) (string, error) {
	if len(ndef) == 0 {
		return "", nil
	}
	records, err := parseRecords(ndef)
	if err != nil {
		return "", err
	}
	for _, r := range records {
		if text, ok := r.Text(); ok {
			return text, nil
		}
	}
	return "", nil
}

func textRecord(text, lang string) NDEFRecord {
	return NDEFRecord{
		TNF:     TNFWellKnown,
		Type:    []byte("T"),
		Payload: textPayload(text, lang),
	}
}

// textPayload builds a UTF-8 text record payload: status byte, language
// code, text.
func textPayload(text, lang string) []byte {
	if lang == "" {
		lang = DefaultLanguage
	}
	code := []byte(lang)
	if len(code) > 0x3F {
		code = code[:0x3F]
	}
	payload := make([]byte, 0, 1+len(code)+len(text))
	payload = append(payload, byte(len(code)))
	payload = append(payload, code...)
	payload = append(payload, text...)
	return payload
}

func parseTextPayload(payload []byte) (text, lang string, err error) {
	if len(payload) < 1 {
		return "", "", fmt.Errorf("text record payload too short (status byte missing)")
	}
	status := payload[0]
	langLen := int(status & 0x3F)
	start := 1 + langLen
	if start > len(payload) {
		return "", "", fmt.Errorf("text record payload too short (language code or text missing)")
	}
	lang = string(payload[1:start])
	body := payload[start:]

	if status&0x80 == 0 {
		return string(body), lang, nil
	}
	if len(body)%2 != 0 {
		return "", "", fmt.Errorf("invalid UTF-16 text length: %d", len(body))
	}
	u16 := make([]uint16, len(body)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(body[i*2:])
	}
	return strings.TrimSpace(string(utf16.Decode(u16))), lang, nil
}

var uriPrefixes = map[byte]string{
	0x01: "http://www.",
	0x02: "https://www.",
	0x03: "http://",
	0x04: "https://",
	0x05: "tel:",
	0x06: "mailto:",
}

func uriPayload(uri string) []byte {
	return append([]byte{0x00}, uri...)
}

func parseURIPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", fmt.Errorf("URI record payload too short")
	}
	return uriPrefixes[payload[0]] + string(payload[1:]), nil
}

// parseRecords splits raw NDEF message bytes into records. Parsing stops
// after the record carrying the ME flag.
func parseRecords(msg []byte) ([]NDEFRecord, error) {
	if len(msg) == 0 {
		return nil, fmt.Errorf("empty NDEF message")
	}

	var records []NDEFRecord
	pos := 0
	for pos < len(msg) {
		header := msg[pos]
		pos++

		need := func(n int, what string) error {
			if pos+n > len(msg) {
				return fmt.Errorf("invalid NDEF message: truncated %s at offset %d", what, pos)
			}
			return nil
		}

		if err := need(1, "type length"); err != nil {
			return nil, err
		}
		typeLen := int(msg[pos])
		pos++

		var payloadLen int
		if header&flagSR != 0 {
			if err := need(1, "payload length"); err != nil {
				return nil, err
			}
			payloadLen = int(msg[pos])
			pos++
		} else {
			if err := need(4, "payload length"); err != nil {
				return nil, err
			}
			payloadLen = int(binary.BigEndian.Uint32(msg[pos:]))
			pos += 4
		}

		var idLen int
		if header&flagIL != 0 {
			if err := need(1, "ID length"); err != nil {
				return nil, err
			}
			idLen = int(msg[pos])
			pos++
		}

		if err := need(typeLen+idLen+payloadLen, "record body"); err != nil {
			return nil, err
		}
		rec := NDEFRecord{TNF: header & 0x07}
		rec.Type = append([]byte(nil), msg[pos:pos+typeLen]...)
		pos += typeLen
		if idLen > 0 {
			rec.ID = append([]byte(nil), msg[pos:pos+idLen]...)
			pos += idLen
		}
		rec.Payload = append([]byte(nil), msg[pos:pos+payloadLen]...)
		pos += payloadLen

		records = append(records, rec)
		if header&flagME != 0 {
			break
		}
	}
	return records, nil
}

// encodeRecords serializes records, setting MB on the first and ME on the
// last. Payloads up to 255 bytes use the short record form.
func encodeRecords(records []NDEFRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("cannot encode empty record list")
	}

	var out []byte
	for i, r := range records {
		header := r.TNF & 0x07
		if i == 0 {
			header |= flagMB
		}
		if i == len(records)-1 {
			header |= flagME
		}
		short := len(r.Payload) <= 0xFF
		if short {
			header |= flagSR
		}
		if len(r.ID) > 0 {
			header |= flagIL
		}

		out = append(out, header, byte(len(r.Type)))
		if short {
			out = append(out, byte(len(r.Payload)))
		} else {
			out = binary.BigEndian.AppendUint32(out, uint32(len(r.Payload)))
		}
		if len(r.ID) > 0 {
			out = append(out, byte(len(r.ID)))
		}
		out = append(out, r.Type...)
		out = append(out, r.ID...)
		out = append(out, r.Payload...)
	}
	return out, nil
}
