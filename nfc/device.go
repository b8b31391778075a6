package nfc

import "errors"

// ErrDeviceClosed is returned by a Device used after Close or after its
// connection went away.
var ErrDeviceClosed = errors.New("device is closed")

// Device represents an NFC reader/writer.
//
// A Device is obtained from a Manager.
//
// Example:
//
//	manager := nfc.NewManager()
//	device, err := manager.OpenDevice("")
//	defer device.Close()
type Device interface {
	Close() error
	InitiatorInit() error
	String() string
	Connection() string
	GetTags() ([]Tag, error)
}
