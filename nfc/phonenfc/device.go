package phonenfc

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nedpals/vxtag-agent/nfc"
	"github.com/nedpals/vxtag-agent/server"
)

// SendFunc delivers a message to the phone.
type SendFunc func(v any) error

// Device implements the nfc.Device interface for a phone acting as a
// reader. The phone reports tags entering and leaving its field; GetTags
// returns the tags currently in the field.
type Device struct {
	deviceID     string // Unique ID for this smartphone (UUID)
	connection   string // Connection info (e.g., "smartphone:uuid")
	deviceName   string
	platform     string // "ios" or "android"
	appVersion   string
	registeredAt time.Time
	capabilities DeviceCapabilities
	metadata     map[string]string
	writeTimeout time.Duration

	mu       sync.RWMutex
	isActive bool
	lastSeen time.Time
	tags     map[string]*Tag // UID -> tag in field
	send     SendFunc
	pending  map[string]chan DeviceWriteResponse
	closed   chan struct{}
}

var _ nfc.Device = (*Device)(nil)

// NewDevice creates a new smartphone device instance.
func NewDevice(deviceID string, req DeviceRegistrationRequest) *Device {
	now := time.Now()
	return &Device{
		deviceID:     deviceID,
		connection:   ConnectionPrefix + deviceID,
		deviceName:   req.DeviceName,
		platform:     req.Platform,
		appVersion:   req.AppVersion,
		registeredAt: now,
		capabilities: req.Capabilities,
		metadata:     req.Metadata,
		writeTimeout: WriteTimeout,
		isActive:     true,
		lastSeen:     now,
		tags:         make(map[string]*Tag),
		pending:      make(map[string]chan DeviceWriteResponse),
		closed:       make(chan struct{}),
	}
}

// Close closes the device. Pending writes fail.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isActive {
		return nil
	}
	d.isActive = false
	d.tags = make(map[string]*Tag)
	d.send = nil
	close(d.closed)
	return nil
}

// IsHealthy checks the device is active and has been heard from recently.
func (d *Device) IsHealthy() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.isActive {
		return nfc.ErrDeviceClosed
	}
	if since := time.Since(d.lastSeen); since > DeviceTimeout {
		return fmt.Errorf("device timeout: last seen %v ago", since)
	}
	return nil
}

// InitiatorInit only checks health; the phone drives its own radio.
func (d *Device) InitiatorInit() error {
	return d.IsHealthy()
}

// String returns a human-readable device name.
func (d *Device) String() string {
	return fmt.Sprintf("%s [%s]", d.deviceName, d.connection)
}

// Connection returns the device connection string.
func (d *Device) Connection() string {
	return d.connection
}

// GetTags returns the tags in the phone's field, oldest scan first.
func (d *Device) GetTags() ([]nfc.Tag, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.isActive {
		return nil, nfc.ErrDeviceClosed
	}

	present := make([]*Tag, 0, len(d.tags))
	for _, t := range d.tags {
		present = append(present, t)
	}
	sort.Slice(present, func(i, j int) bool {
		return present[i].scannedAt.Before(present[j].scannedAt)
	})

	tags := make([]nfc.Tag, len(present))
	for i, t := range present {
		tags[i] = t
	}
	return tags, nil
}

// PutTag records a tag entering the field, replacing an earlier report of
// the same UID.
func (d *Device) PutTag(tag *Tag) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isActive {
		return nfc.ErrDeviceClosed
	}
	d.tags[tag.UID()] = tag
	d.lastSeen = time.Now()
	return nil
}

// RemoveTag records a tag leaving the field.
func (d *Device) RemoveTag(uid string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.tags[uid]
	delete(d.tags, uid)
	d.lastSeen = time.Now()
	return ok
}

// SetSender sets how messages reach the phone.
func (d *Device) SetSender(send SendFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.send = send
}

// RequestWrite sends a write request for tagUID and waits for the phone's
// writeResponse.
func (d *Device) RequestWrite(tagUID string, ndef []byte) error {
	msg, err := NDEFMessageToData(ndef)
	if err != nil {
		return nfc.Errorf(nfc.ErrCodeInvalidData, "WriteData", "invalid NDEF message: %v", err)
	}

	requestID := uuid.NewString()
	done := make(chan DeviceWriteResponse, 1)

	d.mu.Lock()
	if !d.isActive {
		d.mu.Unlock()
		return nfc.NewTagRemovedError("WriteData", nfc.ErrDeviceClosed)
	}
	send, timeout, closed := d.send, d.writeTimeout, d.closed
	d.pending[requestID] = done
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.pending, requestID)
		d.mu.Unlock()
	}()

	if send == nil {
		return nfc.NewWriteError("WriteData", errors.New("device has no connection"))
	}

	err = send(server.WebsocketMessage{
		ID:   requestID,
		Type: MessageTypeWriteRequest,
		Payload: DeviceWriteRequest{
			RequestID:   requestID,
			DeviceID:    d.deviceID,
			UID:         tagUID,
			NDEFMessage: msg,
			RawNDEF:     ndef,
		},
	})
	if err != nil {
		return nfc.NewWriteError("WriteData", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-done:
		if !resp.Success {
			return nfc.NewWriteError("WriteData", errors.New(resp.Error))
		}
		return nil
	case <-timer.C:
		return nfc.NewWriteError("WriteData", fmt.Errorf("no write response after %v", timeout))
	case <-closed:
		return nfc.NewTagRemovedError("WriteData", nfc.ErrDeviceClosed)
	}
}

// ResolveWrite completes a pending write.
func (d *Device) ResolveWrite(resp DeviceWriteResponse) error {
	d.mu.Lock()
	done, ok := d.pending[resp.RequestID]
	d.lastSeen = time.Now()
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("no pending write with request ID %s", resp.RequestID)
	}
	select {
	case done <- resp:
	default:
	}
	return nil
}

// UpdateLastSeen updates the device's last activity timestamp.
func (d *Device) UpdateLastSeen() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSeen = time.Now()
}

// IsActive returns whether the device is currently active.
func (d *Device) IsActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isActive
}

// LastSeen returns the last activity timestamp.
func (d *Device) LastSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeen
}

// DeviceID returns the device's unique identifier.
func (d *Device) DeviceID() string {
	return d.deviceID
}

// Platform returns the device platform ("ios" or "android").
func (d *Device) Platform() string {
	return d.platform
}

// AppVersion returns the mobile app version.
func (d *Device) AppVersion() string {
	return d.appVersion
}

// PhoneCapabilities returns the smartphone-specific device capabilities.
func (d *Device) PhoneCapabilities() DeviceCapabilities {
	return d.capabilities
}

// Metadata returns a copy of the device metadata.
func (d *Device) Metadata() map[string]string {
	metadataCopy := make(map[string]string, len(d.metadata))
	for k, v := range d.metadata {
		metadataCopy[k] = v
	}
	return metadataCopy
}
