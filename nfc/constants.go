package nfc

import "time"

// Card type constants reported in TagInfo.Type
const (
	CardTypeMifareUltralight  = "MIFARE Ultralight"
	CardTypeMifareUltralightC = "MIFARE Ultralight C"
	CardTypeNtag213           = "NTAG213"
	CardTypeNtag215           = "NTAG215"
	CardTypeNtag216           = "NTAG216"
	CardTypeType2             = "NFC Forum Type 2"
)

const (
	DeviceEnumRetries   = 3                      // Number of retries for device enumeration
	DefaultPollInterval = 250 * time.Millisecond // Tag polling interval while acquiring
	DefaultMaxAttempts  = 3                      // Write attempts before giving up
)
