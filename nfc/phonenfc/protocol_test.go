package phonenfc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedpals/vxtag-agent/nfc"
)

func TestParseUID(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"04:AB:CD:EF", "04:AB:CD:EF", false},
		{"04abcdef", "04:AB:CD:EF", false},
		{"04 AB CD EF", "04:AB:CD:EF", false},
		{"04-ab-cd-ef", "04:AB:CD:EF", false},
		{"", "", true},
		{"04ABC", "", true},
		{"04:GG", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseUID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertTagData(t *testing.T) {
	device := NewDevice("dev-1", testRegistration())
	scannedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tag, err := ConvertTagData(TagData{
		DeviceID:   "dev-1",
		UID:        "04abcdef",
		Technology: "NfcA",
		Type:       "NTAG215",
		TechTypes:  []string{"NfcA", "MifareUltralight", "Ndef"},
		MaxSize:    504,
		ScannedAt:  scannedAt,
		NDEFMessage: &NDEFMessageData{Records: []NDEFRecordData{
			{TNF: nfc.TNFWellKnown, Type: []byte("T"), Payload: append([]byte{0x02, 'e', 'n'}, "hi"...)},
		}},
	}, device)
	require.NoError(t, err)

	assert.Equal(t, "04:AB:CD:EF", tag.UID())
	assert.Equal(t, "NTAG215", tag.Type())
	assert.Equal(t, "NfcA", tag.Technology())
	assert.Equal(t, []string{"NfcA", "MifareUltralight", "Ndef"}, tag.TechTypes())
	assert.Equal(t, 504, tag.MaxSize())
	assert.Equal(t, scannedAt, tag.ScannedAt())

	writable, _ := tag.IsWritable()
	assert.True(t, writable, "falls back to the device capability")

	data, err := tag.ReadData()
	require.NoError(t, err)
	msg, err := nfc.DecodeNDEF(data)
	require.NoError(t, err)
	text, err := msg.Text()
	require.NoError(t, err)
	assert.Equal(t, "hi", text)
}

func TestConvertTagDataWritableOverride(t *testing.T) {
	device := NewDevice("dev-1", testRegistration())
	no := false

	tag, err := ConvertTagData(TagData{UID: "04", IsWritable: &no}, device)
	require.NoError(t, err)
	writable, _ := tag.IsWritable()
	assert.False(t, writable)
	assert.False(t, tag.ScannedAt().IsZero())
}

func TestConvertTagDataRawData(t *testing.T) {
	raw := nfc.EncodeTextRecord("raw", "en")

	tag, err := ConvertTagData(TagData{UID: "04", RawData: raw}, nil)
	require.NoError(t, err)
	data, _ := tag.ReadData()
	assert.Equal(t, raw, data)
}

func TestConvertTagDataErrors(t *testing.T) {
	_, err := ConvertTagData(TagData{}, nil)
	assert.Error(t, err)

	_, err = ConvertTagData(TagData{UID: "xyz"}, nil)
	assert.Error(t, err)

	_, err = ConvertTagData(TagData{UID: "04", NDEFMessage: &NDEFMessageData{Records: []NDEFRecordData{{TNF: 0x09}}}}, nil)
	assert.Error(t, err)
}

func TestNDEFMessageToData(t *testing.T) {
	ndef, err := nfc.NewNDEFMessage().AddText("hello", "en").AddURI("https://example.com").Encode()
	require.NoError(t, err)

	data, err := NDEFMessageToData(ndef)
	require.NoError(t, err)
	require.Len(t, data.Records, 2)

	assert.Equal(t, "text", data.Records[0].RecordType)
	assert.Equal(t, "hello", data.Records[0].Content)
	assert.Equal(t, "en", data.Records[0].Language)
	assert.Equal(t, "uri", data.Records[1].RecordType)
	assert.Equal(t, "https://example.com", data.Records[1].Content)

	back, err := ConvertNDEFMessageData(data)
	require.NoError(t, err)
	encoded, err := back.Encode()
	require.NoError(t, err)
	assert.Equal(t, ndef, encoded)

	_, err = NDEFMessageToData([]byte{0xFF})
	assert.Error(t, err)
}
