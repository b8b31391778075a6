package nfc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTLVEncode(t *testing.T, ndef []byte) []byte {
	t.Helper()
	block, err := TLVEncode(ndef)
	require.NoError(t, err)
	return block
}

func TestTLVEncode_ShortMessage(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	result := mustTLVEncode(t, data)

	// Type (0x03) + Length (0x04) + Data + Terminator (0xFE)
	expected := []byte{0x03, 0x04, 0x01, 0x02, 0x03, 0x04, 0xFE}
	assert.Equal(t, expected, result)
}

func TestTLVEncode_LongMessage(t *testing.T) {
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i % 256)
	}

	result := mustTLVEncode(t, data)

	// Type (0x03) + 0xFF + Length (2 bytes big-endian) + Data + Terminator
	require.Len(t, result, 305)
	assert.Equal(t, []byte{0x03, 0xFF, 0x01, 0x2C}, result[:4])
	assert.Equal(t, data, result[4:304])
	assert.Equal(t, byte(TLVTerminator), result[304])
}

func TestTLVEncode_EmptyMessage(t *testing.T) {
	assert.Equal(t, []byte{0x03, 0x00, 0xFE}, mustTLVEncode(t, nil))
}

func TestTLVEncode_LengthBoundary(t *testing.T) {
	assert.Equal(t, byte(0xFE), mustTLVEncode(t, make([]byte, 254))[1])
	assert.Equal(t, []byte{0x03, 0xFF, 0x00, 0xFF}, mustTLVEncode(t, make([]byte, 255))[:4])
}

func TestTLVEncode_MaxLength(t *testing.T) {
	block := mustTLVEncode(t, make([]byte, TLVMaxLength))
	assert.Equal(t, []byte{0x03, 0xFF, 0xFF, 0xFF}, block[:4])

	_, err := TLVEncode(make([]byte, TLVMaxLength+1))
	assert.ErrorContains(t, err, "exceeds TLV limit")
}

func TestTLV_Roundtrip(t *testing.T) {
	for _, size := range []int{0, 10, 254, 255, 600} {
		ndef := bytes.Repeat([]byte{0xAB}, size)
		block := mustTLVEncode(t, ndef)
		assert.Len(t, block, TLVEncodedSize(size))
		assert.Equal(t, byte(TLVTerminator), block[len(block)-1])

		got, err := TLVFindNDEF(block)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, ndef, got, "size %d", size)
	}
}

func TestTLVFindNDEF_WithNullTLVs(t *testing.T) {
	data := []byte{TLVNull, TLVNull, TLVNDEF, 0x02, 0xD1, 0x01, TLVTerminator}
	got, err := TLVFindNDEF(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xD1, 0x01}, got)
}

func TestTLVFindNDEF_SkipsControlTLVs(t *testing.T) {
	data := []byte{
		TLVLockCtrl, 0x03, 0xA0, 0x10, 0x44,
		TLVMemCtrl, 0x03, 0x00, 0x00, 0x00,
		TLVNDEF, 0x01, 0x42,
		TLVTerminator,
	}
	got, err := TLVFindNDEF(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x42}, got)
}

func TestTLVFindNDEF_LongFormat(t *testing.T) {
	ndef := bytes.Repeat([]byte{0x11}, 400)
	data := append([]byte{TLVNull}, mustTLVEncode(t, ndef)...)
	got, err := TLVFindNDEF(data)
	require.NoError(t, err)
	assert.Len(t, got, 400)
}

func TestTLVFindNDEF_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"only nulls", []byte{TLVNull, TLVNull}},
		{"terminator first", []byte{TLVTerminator}},
		{"length past end", []byte{TLVNDEF, 0x10, 0x01}},
		{"truncated header", []byte{TLVNDEF}},
		{"truncated long length", []byte{TLVNDEF, 0xFF, 0x01}},
		{"control TLV past end", []byte{TLVLockCtrl, 0x05, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TLVFindNDEF(tt.data)
			assert.Error(t, err)
		})
	}
}
