package nfc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNDEFMessageEncodeEmpty(t *testing.T) {
	_, err := NewNDEFMessage().Encode()
	assert.Error(t, err)
}

func TestNDEFMessageRoundTrip(t *testing.T) {
	mime := NDEFRecord{TNF: TNFMIME, Type: []byte("application/json"), Payload: []byte(`{"a":1}`)}
	data, err := NewNDEFMessage().
		AddURI("https://example.com/tag").
		AddRecord(mime).
		AddText("first", "en").
		AddText("second", "de").
		Encode()
	require.NoError(t, err)

	msg, err := DecodeNDEF(data)
	require.NoError(t, err)
	records := msg.Records()
	require.Len(t, records, 4)

	uri, ok := records[0].URI()
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/tag", uri)

	assert.Equal(t, TNFMIME, records[1].TNF)
	assert.Equal(t, "application/json", string(records[1].Type))
	assert.Equal(t, `{"a":1}`, string(records[1].Payload))

	// Text picks the first text record.
	text, err := msg.Text()
	require.NoError(t, err)
	assert.Equal(t, "first", text)
}

func TestNDEFMessageTextMissing(t *testing.T) {
	data, err := NewNDEFMessage().AddURI("tel:5551234").Encode()
	require.NoError(t, err)
	msg, err := DecodeNDEF(data)
	require.NoError(t, err)

	_, err = msg.Text()
	assert.Error(t, err)
}

func TestRecordKindChecks(t *testing.T) {
	text := textRecord("hi", "en")
	assert.True(t, text.IsTextRecord())
	assert.False(t, text.IsURIRecord())
	_, ok := text.URI()
	assert.False(t, ok)

	external := NDEFRecord{TNF: TNFExternal, Type: []byte("example.com:t"), Payload: []byte{1}}
	assert.False(t, external.IsTextRecord())
	_, ok = external.Text()
	assert.False(t, ok)

	// Well-known "T" with an empty payload is not a usable text record.
	broken := NDEFRecord{TNF: TNFWellKnown, Type: []byte("T")}
	_, ok = broken.Text()
	assert.False(t, ok)
}

func TestViewsUnknownRecord(t *testing.T) {
	msg := NewNDEFMessage().AddRecord(NDEFRecord{
		TNF:     TNFExternal,
		Type:    []byte("example.com:t"),
		ID:      []byte("r1"),
		Payload: []byte{0x01, 0x02},
	})
	views := msg.Views()
	require.Len(t, views, 1)
	assert.Equal(t, "example.com:t", views[0].Type)
	assert.Equal(t, "r1", views[0].ID)
	assert.Equal(t, TNFExternal, views[0].TNF)
	assert.Empty(t, views[0].Content)
}

func TestViewsNilMessage(t *testing.T) {
	var msg *NDEFMessage
	assert.Nil(t, msg.Views())
}
