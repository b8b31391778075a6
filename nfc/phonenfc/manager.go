package phonenfc

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nedpals/vxtag-agent/logging"
	"github.com/nedpals/vxtag-agent/nfc"
	"github.com/nedpals/vxtag-agent/server"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// InactivityTimeout is how long a silent phone stays registered.
	InactivityTimeout time.Duration
	// WriteTimeout is how long a phone has to answer a writeRequest.
	WriteTimeout time.Duration
	Logger       *logrus.Entry
}

// Manager implements the nfc.Manager interface for phones connected over
// WebSocket.
type Manager struct {
	devices           map[string]*Device // deviceID -> device
	order             []string           // registration order
	mu                sync.RWMutex
	cleanupTicker     *time.Ticker
	stopCleanup       chan struct{}
	closeOnce         sync.Once
	inactivityTimeout time.Duration
	writeTimeout      time.Duration
	log               *logrus.Entry
}

var _ nfc.Manager = (*Manager)(nil)

// NewManager creates a phone manager and starts its cleanup routine.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = DeviceTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = WriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.For("phonenfc")
	}

	m := &Manager{
		devices:           make(map[string]*Device),
		inactivityTimeout: cfg.InactivityTimeout,
		writeTimeout:      cfg.WriteTimeout,
		stopCleanup:       make(chan struct{}),
		log:               cfg.Logger,
	}
	m.startCleanupRoutine()
	return m
}

// OpenDevice returns a registered phone. deviceStr is "smartphone:{id}" or
// "{id}"; an empty string picks the earliest registered active phone.
func (m *Manager) OpenDevice(deviceStr string) (nfc.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if deviceStr == "" {
		for _, id := range m.order {
			if d := m.devices[id]; d != nil && d.IsActive() {
				return d, nil
			}
		}
		return nil, fmt.Errorf("no smartphone connected")
	}

	deviceID := strings.TrimPrefix(deviceStr, ConnectionPrefix)
	device, exists := m.devices[deviceID]
	if !exists {
		return nil, fmt.Errorf("smartphone device not found: %s", deviceID)
	}
	if !device.IsActive() {
		return nil, fmt.Errorf("smartphone device is inactive: %s", deviceID)
	}
	return device, nil
}

// ListDevices returns the connection strings of active phones in
// registration order.
func (m *Manager) ListDevices() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devices := make([]string, 0, len(m.order))
	for _, id := range m.order {
		if d := m.devices[id]; d != nil && d.IsActive() {
			devices = append(devices, d.Connection())
		}
	}
	return devices, nil
}

// RegisterDevice creates and registers a new phone.
func (m *Manager) RegisterDevice(req DeviceRegistrationRequest) (*Device, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid registration: %w", err)
	}

	device := NewDevice(uuid.NewString(), req)
	device.writeTimeout = m.writeTimeout

	m.mu.Lock()
	m.devices[device.DeviceID()] = device
	m.order = append(m.order, device.DeviceID())
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"platform":   req.Platform,
		"appVersion": req.AppVersion,
	}).Infof("Device registered: %s", device.String())
	return device, nil
}

// UnregisterDevice removes and closes a phone.
func (m *Manager) UnregisterDevice(deviceID string) error {
	m.mu.Lock()
	device, exists := m.devices[deviceID]
	if exists {
		m.removeLocked(deviceID)
	}
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("device not found: %s", deviceID)
	}

	device.Close()
	m.log.Infof("Device unregistered: %s", device.String())
	return nil
}

func (m *Manager) removeLocked(deviceID string) {
	delete(m.devices, deviceID)
	for i, id := range m.order {
		if id == deviceID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// GetDevice retrieves a device by ID.
func (m *Manager) GetDevice(deviceID string) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, exists := m.devices[deviceID]
	return device, exists
}

func (m *Manager) device(deviceID string) (*Device, error) {
	device, exists := m.GetDevice(deviceID)
	if !exists {
		return nil, fmt.Errorf("device not found: %s", deviceID)
	}
	return device, nil
}

// SendTagData records a tag reported by a phone.
func (m *Manager) SendTagData(deviceID string, tagData TagData) (*Tag, error) {
	device, err := m.device(deviceID)
	if err != nil {
		return nil, err
	}

	tag, err := ConvertTagData(tagData, device)
	if err != nil {
		return nil, fmt.Errorf("failed to convert tag data: %w", err)
	}
	if err := device.PutTag(tag); err != nil {
		return nil, fmt.Errorf("failed to add tag to device: %w", err)
	}
	return tag, nil
}

// RemoveTag records a tag leaving a phone's field.
func (m *Manager) RemoveTag(deviceID, uid string) error {
	device, err := m.device(deviceID)
	if err != nil {
		return err
	}
	normalized, err := parseUID(uid)
	if err != nil {
		return fmt.Errorf("invalid UID format: %w", err)
	}
	if !device.RemoveTag(normalized) {
		m.log.Debugf("Tag %s was not present on %s", normalized, deviceID)
	}
	return nil
}

// CompleteWrite hands a phone's writeResponse to the waiting write.
func (m *Manager) CompleteWrite(deviceID string, resp DeviceWriteResponse) error {
	if err := validate.Struct(resp); err != nil {
		return fmt.Errorf("invalid write response: %w", err)
	}
	device, err := m.device(deviceID)
	if err != nil {
		return err
	}
	return device.ResolveWrite(resp)
}

// UpdateHeartbeat updates device last-seen timestamp.
func (m *Manager) UpdateHeartbeat(deviceID string) error {
	device, err := m.device(deviceID)
	if err != nil {
		return err
	}
	device.UpdateLastSeen()
	return nil
}

// Close stops the cleanup routine and closes all phones.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.cleanupTicker.Stop()
		close(m.stopCleanup)

		m.mu.Lock()
		for _, device := range m.devices {
			device.Close()
		}
		m.devices = make(map[string]*Device)
		m.order = nil
		m.mu.Unlock()

		m.log.Info("Manager closed")
	})
}

func (m *Manager) startCleanupRoutine() {
	m.cleanupTicker = time.NewTicker(CleanupInterval)

	go func() {
		for {
			select {
			case <-m.cleanupTicker.C:
				m.cleanupInactiveDevices()
			case <-m.stopCleanup:
				return
			}
		}
	}()
}

// cleanupInactiveDevices removes devices that exceeded inactivity timeout.
func (m *Manager) cleanupInactiveDevices() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for deviceID, device := range m.devices {
		idle := now.Sub(device.LastSeen())
		if idle > m.inactivityTimeout {
			m.log.Infof("Cleaning up inactive device: %s (last seen %v ago)", device.String(), idle)
			device.Close()
			m.removeLocked(deviceID)
		}
	}
}

// GetDeviceCount returns the number of registered devices.
func (m *Manager) GetDeviceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.devices)
}

// GetActiveDeviceCount returns the number of active devices.
func (m *Manager) GetActiveDeviceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, device := range m.devices {
		if device.IsActive() {
			count++
		}
	}
	return count
}

// Register implements server.ServerHandler.
func (m *Manager) Register(s server.HandlerServer) {
	NewHandler(m).Register(s)
}
