package nfc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextRecordEncodeDecode(t *testing.T) {
	tests := []struct {
		text string
		lang string
	}{
		{"Hello", "en"},
		{"Bonjour", "fr"},
		{"こんにちは", "ja"},
		{"", ""},
		{"Test", ""},
	}

	for _, tt := range tests {
		encoded := EncodeTextRecord(tt.text, tt.lang)
		decoded, err := DecodeTextRecord(encoded)
		if err != nil {
			t.Errorf("failed to decode text=%q lang=%q: %v", tt.text, tt.lang, err)
			continue
		}
		if decoded != tt.text {
			t.Errorf("text mismatch for lang=%q: got %q, want %q", tt.lang, decoded, tt.text)
		}
	}
}

func TestTextRecordShortAndLong(t *testing.T) {
	short := EncodeTextRecord("Short", "en")
	if short[0]&flagSR == 0 {
		t.Error("short record should have SR flag set")
	}
	if short[0]&(flagMB|flagME) != flagMB|flagME {
		t.Error("single record should carry MB and ME")
	}

	longText := strings.Repeat("x", 300)
	long := EncodeTextRecord(longText, "en")
	if long[0]&flagSR != 0 {
		t.Error("long record should not have SR flag set")
	}
	decoded, err := DecodeTextRecord(long)
	if err != nil {
		t.Fatalf("failed to decode long record: %v", err)
	}
	if decoded != longText {
		t.Errorf("long record length mismatch: got %d, want %d", len(decoded), len(longText))
	}
}

func TestTextRecordUTF16(t *testing.T) {
	// status: UTF-16 flag plus 2-byte language
	payload := []byte{0x82, 'e', 'n', 'H', 0x00, 'i', 0x00}
	msg, err := NewNDEFMessage().AddRecord(NDEFRecord{TNF: TNFWellKnown, Type: []byte("T"), Payload: payload}).Encode()
	require.NoError(t, err)

	text, err := DecodeTextRecord(msg)
	require.NoError(t, err)
	assert.Equal(t, "Hi", text)
}

func TestMultipleRecordsWithID(t *testing.T) {
	msg := NewNDEFMessage().
		AddRecord(NDEFRecord{TNF: TNFMIME, Type: []byte("application/json"), ID: []byte("r1"), Payload: []byte(`{}`)}).
		AddURI("https://example.com").
		AddText("after", "en")

	encoded, err := msg.Encode()
	require.NoError(t, err)

	decoded, err := DecodeNDEF(encoded)
	require.NoError(t, err)
	require.Len(t, decoded.Records(), 3)

	assert.Equal(t, []byte("r1"), decoded.Records()[0].ID)
	uri, ok := decoded.Records()[1].URI()
	assert.True(t, ok)
	assert.Equal(t, "https://example.com", uri)

	text, err := decoded.Text()
	require.NoError(t, err)
	assert.Equal(t, "after", text)
}

func TestURIPrefixExpansion(t *testing.T) {
	rec := NDEFRecord{TNF: TNFWellKnown, Type: []byte("U"), Payload: append([]byte{0x04}, "example.com"...)}
	uri, ok := rec.URI()
	assert.True(t, ok)
	assert.Equal(t, "https://example.com", uri)
}

func TestParseRecordsTruncated(t *testing.T) {
	full := EncodeTextRecord("truncate me", "en")
	for _, n := range []int{1, 2, 5, len(full) - 1} {
		if _, err := DecodeNDEF(full[:n]); err == nil {
			t.Errorf("expected error for %d of %d bytes", n, len(full))
		}
	}
	if _, err := DecodeNDEF(nil); err == nil {
		t.Error("expected error for empty message")
	}
}

func TestViews(t *testing.T) {
	msg := NewNDEFMessage().AddText("hola", "es").AddURI("tel:123")
	views := msg.Views()
	require.Len(t, views, 2)
	assert.Equal(t, "text", views[0].Type)
	assert.Equal(t, "hola", views[0].Content)
	assert.Equal(t, "es", views[0].Language)
	assert.Equal(t, "uri", views[1].Type)
	assert.Equal(t, "tel:123", views[1].Content)
}
