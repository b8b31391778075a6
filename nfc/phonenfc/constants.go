package phonenfc

import "time"

// Device timing constants
const (
	DeviceTimeout     = 30 * time.Second // Device inactivity timeout
	HeartbeatInterval = 10 * time.Second // Expected heartbeat frequency
	CleanupInterval   = 15 * time.Second // Cleanup check interval
	WriteTimeout      = 15 * time.Second // How long a phone has to answer a write
)

// WebSocket message types for smartphone device communication
const (
	MessageTypeRegisterDevice         = "registerDevice"
	MessageTypeRegisterDeviceResponse = "registerDeviceResponse"
	MessageTypeTagScanned             = "tagScanned"
	MessageTypeTagRemoved             = "tagRemoved"
	MessageTypeDeviceHeartbeat        = "deviceHeartbeat"
	MessageTypeWriteRequest           = "writeRequest"
	MessageTypeWriteResponse          = "writeResponse"
	MessageTypeError                  = "error"
)

// ConnectionPrefix prefixes phone device connection strings.
const ConnectionPrefix = "smartphone:"
