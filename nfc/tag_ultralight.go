package nfc

import (
	"fmt"
	"sync"

	"github.com/clausecker/freefare"
)

// Type 2 tag memory layout.
const (
	lockPage      = 2
	ccPage        = 3
	userStartPage = 4
	ccMagic       = 0xE1
)

// pageIO is the subset of freefare.UltralightTag the adapter needs.
type pageIO interface {
	UID() string
	Connect() error
	Disconnect() error
	ReadPage(page byte) ([4]byte, error)
	WritePage(page byte, data [4]byte) error
}

// UltralightTag wraps a MIFARE Ultralight or NTAG21x tag. freefare detects
// every NFC Forum Type 2 tag as Ultralight; the capability container tells
// them apart.
type UltralightTag struct {
	io       pageIO
	fallback int // user bytes assumed when the CC is blank
	family   string

	once sync.Once
	cc   [4]byte
	ccOK bool
}

var _ Tag = (*UltralightTag)(nil)

// NewUltralightTag creates an adapter for a freefare Ultralight tag.
func NewUltralightTag(tag freefare.UltralightTag) *UltralightTag {
	if tag.Type() == freefare.UltralightC {
		return newUltralightTag(tag, CardTypeMifareUltralightC, 144)
	}
	return newUltralightTag(tag, CardTypeMifareUltralight, 48)
}

func newUltralightTag(io pageIO, family string, fallback int) *UltralightTag {
	return &UltralightTag{io: io, family: family, fallback: fallback}
}

func (u *UltralightTag) UID() string {
	return u.io.UID()
}

// Type reports the NTAG variant when the CC size identifies one.
func (u *UltralightTag) Type() string {
	u.loadCC()
	if u.family == CardTypeMifareUltralightC || !u.ccOK {
		return u.family
	}
	switch u.cc[2] {
	case 0x12:
		return CardTypeNtag213
	case 0x3E:
		return CardTypeNtag215
	case 0x6D:
		return CardTypeNtag216
	case 0x06:
		return CardTypeMifareUltralight
	}
	return CardTypeType2
}

// MaxSize returns the NDEF data area size in bytes.
func (u *UltralightTag) MaxSize() int {
	u.loadCC()
	if u.ccOK && u.cc[2] != 0 {
		return int(u.cc[2]) * 8
	}
	return u.fallback
}

func (u *UltralightTag) loadCC() {
	u.once.Do(func() {
		_ = u.withConn(func() error {
			cc, err := u.io.ReadPage(ccPage)
			if err != nil {
				return err
			}
			u.cc = cc
			u.ccOK = cc[0] == ccMagic
			return nil
		})
	})
}

func (u *UltralightTag) withConn(fn func() error) error {
	if err := u.io.Connect(); err != nil {
		return NewTagRemovedError("Connect", err)
	}
	defer u.io.Disconnect()
	return fn()
}

// ReadData reads the NDEF TLV from the user area. A blank tag returns nil.
func (u *UltralightTag) ReadData() ([]byte, error) {
	pages := (u.MaxSize() + 3) / 4
	var mem []byte
	err := u.withConn(func() error {
		for p := 0; p < pages; p++ {
			data, err := u.io.ReadPage(byte(userStartPage + p))
			if err != nil {
				return NewReadError("ReadData", fmt.Errorf("page %d: %w", userStartPage+p, err))
			}
			mem = append(mem, data[:]...)
			if ndef, err := TLVFindNDEF(mem); err == nil {
				mem = ndef
				return nil
			}
		}
		mem = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(mem) == 0 {
		return nil, nil
	}
	return mem, nil
}

// WriteData stores data as an NDEF TLV starting at page 4.
func (u *UltralightTag) WriteData(data []byte) error {
	block, err := TLVEncode(data)
	if err != nil {
		return WrapError(ErrCodeInvalidData, "WriteData", err.Error(), nil)
	}
	if capacity := u.MaxSize(); len(block) > capacity {
		return WrapError(ErrCodeInvalidData, "WriteData",
			fmt.Sprintf("NDEF message too large (%d bytes, capacity %d)", len(block), capacity), nil)
	}

	return u.withConn(func() error {
		for off := 0; off < len(block); off += 4 {
			var page [4]byte
			copy(page[:], block[off:])
			p := userStartPage + off/4
			if err := u.io.WritePage(byte(p), page); err != nil {
				return NewWriteError("WriteData", fmt.Errorf("page %d: %w", p, err))
			}
		}
		return nil
	})
}

// IsWritable checks the CC access byte and the static lock bytes.
func (u *UltralightTag) IsWritable() (bool, error) {
	u.loadCC()
	if u.ccOK && u.cc[3]&0x0F != 0 {
		return false, nil
	}
	locked, err := u.staticLocked()
	if err != nil {
		return false, err
	}
	return !locked, nil
}

// CanMakeReadOnly reports whether the static lock bits are still open.
func (u *UltralightTag) CanMakeReadOnly() (bool, error) {
	locked, err := u.staticLocked()
	if err != nil {
		return false, err
	}
	return !locked, nil
}

func (u *UltralightTag) staticLocked() (bool, error) {
	var lock [4]byte
	err := u.withConn(func() error {
		var err error
		lock, err = u.io.ReadPage(lockPage)
		return err
	})
	if err != nil {
		return false, NewReadError("IsWritable", err)
	}
	return lock[2] == 0xFF && lock[3] == 0xFF, nil
}
