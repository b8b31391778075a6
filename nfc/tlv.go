package nfc

import "fmt"

// TLV block types used in Type 2 tag memory.
const (
	TLVNull       = 0x00
	TLVLockCtrl   = 0x01
	TLVMemCtrl    = 0x02
	TLVNDEF       = 0x03
	TLVTerminator = 0xFE
)

// TLVMaxLength is the largest value the three-byte length form can carry.
const TLVMaxLength = 0xFFFF

// TLVEncode wraps an NDEF message in an NDEF TLV followed by a terminator.
// Lengths of 255 and above use the 0xFF three-byte form; messages longer
// than TLVMaxLength are rejected.
func TLVEncode(ndef []byte) ([]byte, error) {
	if len(ndef) > TLVMaxLength {
		return nil, fmt.Errorf("NDEF message of %d bytes exceeds TLV limit of %d", len(ndef), TLVMaxLength)
	}
	out := make([]byte, 0, len(ndef)+5)
	out = append(out, TLVNDEF)
	if len(ndef) < 0xFF {
		out = append(out, byte(len(ndef)))
	} else {
		out = append(out, 0xFF, byte(len(ndef)>>8), byte(len(ndef)))
	}
	out = append(out, ndef...)
	return append(out, TLVTerminator), nil
}

// TLVEncodedSize returns the number of bytes TLVEncode produces.
func TLVEncodedSize(ndefLen int) int {
	if ndefLen < 0xFF {
		return ndefLen + 3
	}
	return ndefLen + 5
}

// TLVFindNDEF walks a TLV block and returns the value of the first NDEF TLV.
// Null TLVs are skipped and other TLVs are stepped over.
func TLVFindNDEF(data []byte) ([]byte, error) {
	pos := 0
	for pos < len(data) {
		t := data[pos]
		switch t {
		case TLVNull:
			pos++
			continue
		case TLVTerminator:
			return nil, fmt.Errorf("no NDEF TLV before terminator")
		}

		length, hdr, err := tlvLength(data[pos:])
		if err != nil {
			return nil, err
		}
		start := pos + hdr
		if start+length > len(data) {
			return nil, fmt.Errorf("TLV 0x%02X length %d exceeds data", t, length)
		}
		if t == TLVNDEF {
			return data[start : start+length], nil
		}
		pos = start + length
	}
	return nil, fmt.Errorf("no NDEF TLV found")
}

// tlvLength decodes the length field of the TLV at data[0] and returns it
// together with the header size (type plus length bytes).
func tlvLength(data []byte) (length, header int, err error) {
	if len(data) < 2 {
		return 0, 0, fmt.Errorf("truncated TLV header")
	}
	if data[1] != 0xFF {
		return int(data[1]), 2, nil
	}
	if len(data) < 4 {
		return 0, 0, fmt.Errorf("truncated TLV long length")
	}
	return int(data[2])<<8 | int(data[3]), 4, nil
}
