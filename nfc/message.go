package nfc

import "fmt"

// NDEFRecord represents a single NDEF record within a message.
type NDEFRecord struct {
	TNF     byte   // Type Name Format (0x00-0x07)
	Type    []byte // Record type (e.g., "T" for text, "U" for URI)
	ID      []byte // Optional record ID
	Payload []byte // Record payload data
}

// IsTextRecord returns true if this is a well-known Text record.
func (r *NDEFRecord) IsTextRecord() bool {
	return r.TNF == TNFWellKnown && len(r.Type) == 1 && r.Type[0] == 'T'
}

// IsURIRecord returns true if this is a well-known URI record.
func (r *NDEFRecord) IsURIRecord() bool {
	return r.TNF == TNFWellKnown && len(r.Type) == 1 && r.Type[0] == 'U'
}

// Text returns the decoded text of a text record.
func (r *NDEFRecord) Text() (string, bool) {
	if !r.IsTextRecord() {
		return "", false
	}
	text, _, err := parseTextPayload(r.Payload)
	if err != nil {
		return "", false
	}
	return text, true
}

// URI returns the expanded URI of a URI record.
func (r *NDEFRecord) URI() (string, bool) {
	if !r.IsURIRecord() {
		return "", false
	}
	uri, err := parseURIPayload(r.Payload)
	if err != nil {
		return "", false
	}
	return uri, true
}

// NDEFMessage is an ordered list of NDEF records.
type NDEFMessage struct {
	records []NDEFRecord
}

// NewNDEFMessage creates a new empty NDEF message.
func NewNDEFMessage() *NDEFMessage {
	return &NDEFMessage{}
}

// AddRecord appends a raw record.
func (m *NDEFMessage) AddRecord(record NDEFRecord) *NDEFMessage {
	m.records = append(m.records, record)
	return m
}

// AddText appends a text record.
func (m *NDEFMessage) AddText(text, lang string) *NDEFMessage {
	return m.AddRecord(textRecord(text, lang))
}

// AddURI appends a URI record without prefix abbreviation.
func (m *NDEFMessage) AddURI(uri string) *NDEFMessage {
	return m.AddRecord(NDEFRecord{
		TNF:     TNFWellKnown,
		Type:    []byte("U"),
		Payload: uriPayload(uri),
	})
}

// Encode converts the message to bytes.
func (m *NDEFMessage) Encode() ([]byte, error) {
	if len(m.records) == 0 {
		return nil, fmt.Errorf("cannot encode empty NDEF message")
	}
	return encodeRecords(m.records)
}

// Records returns the records in order.
func (m *NDEFMessage) Records() []NDEFRecord {
	return m.records
}

// Text returns the content of the first text record.
func (m *NDEFMessage) Text() (string, error) {
	for _, r := range m.records {
		if text, ok := r.Text(); ok {
			return text, nil
		}
	}
	return "", fmt.Errorf("no text record found in NDEF message")
}

// DecodeNDEF parses raw bytes into an NDEFMessage.
func DecodeNDEF(data []byte) (*NDEFMessage, error) {
	records, err := parseRecords(data)
	if err != nil {
		return nil, err
	}
	return &NDEFMessage{records: records}, nil
}

// NDEFRecordView is the JSON form of a record used in TagInfo and API
// responses.
type NDEFRecordView struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	Language string `json:"language,omitempty"`
	TNF      uint8  `json:"tnf"`
	ID       string `json:"id,omitempty"`
	Payload  []byte `json:"payload"`
}

// Views converts every record to its JSON form.
func (m *NDEFMessage) Views() []NDEFRecordView {
	if m == nil {
		return nil
	}
	views := make([]NDEFRecordView, 0, len(m.records))
	for _, r := range m.records {
		v := NDEFRecordView{TNF: r.TNF, Payload: r.Payload, ID: string(r.ID)}
		switch {
		case r.IsTextRecord():
			text, lang, err := parseTextPayload(r.Payload)
			if err != nil {
				v.Type = "T"
				break
			}
			v.Type, v.Content, v.Language = "text", text, lang
		case r.IsURIRecord():
			v.Type = "uri"
			v.Content, _ = r.URI()
		default:
			v.Type = string(r.Type)
		}
		views = append(views, v)
	}
	return views
}
