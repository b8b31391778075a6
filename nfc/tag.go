package nfc

// Tag represents an NFC tag at the hardware protocol level.
//
// Tag provides a unified interface for reading and writing NDEF data
// regardless of where the tag lives: a libnfc reader or a phone acting as
// a remote reader.
//
// Example:
//
//	tags, _ := device.GetTags()
//	for _, tag := range tags {
//	    data, _ := tag.ReadData()
//	}
type Tag interface {
	UID() string
	Type() string
	// ReadData returns the raw NDEF message stored on the tag, or nil if the
	// tag is blank.
	ReadData() ([]byte, error)
	// WriteData stores a raw NDEF message.
	WriteData(data []byte) error
	IsWritable() (bool, error)
	CanMakeReadOnly() (bool, error)
	// MaxSize is the NDEF capacity in bytes, 0 when unknown.
	MaxSize() int
}
