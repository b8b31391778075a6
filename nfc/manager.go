package nfc

// Manager handles NFC device discovery.
//
// Example:
//
//	manager := nfc.NewManager()
//	devices, _ := manager.ListDevices()
//	device, _ := manager.OpenDevice(devices[0])
//	tags, _ := device.GetTags()
type Manager interface {
	OpenDevice(deviceStr string) (Device, error)
	ListDevices() ([]string, error)
}

// NewManager creates a Manager backed by libnfc and freefare.
func NewManager() Manager {
	return &libnfcManager{}
}
