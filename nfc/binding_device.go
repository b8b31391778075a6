package nfc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nedpals/vxtag-agent/logging"
)

// DeviceBindingConfig configures a DeviceBinding.
type DeviceBindingConfig struct {
	// DevicePath is passed to Manager.OpenDevice; empty picks the first
	// reader.
	DevicePath string
	// PollInterval is how often GetTags is called while acquiring.
	PollInterval time.Duration
	// AcquireTimeout bounds RequestTechnology; zero waits for ctx.
	AcquireTimeout time.Duration
}

// DeviceBinding implements Binding over a Manager and its Device. The
// device is opened lazily on the first request and kept open across
// sessions.
type DeviceBinding struct {
	manager Manager
	cfg     DeviceBindingConfig
	log     *logrus.Entry

	mu       sync.Mutex
	device   Device
	tag      Tag
	acquired bool
}

var _ Binding = (*DeviceBinding)(nil)

// NewDeviceBinding creates a binding for the manager's device.
func NewDeviceBinding(manager Manager, cfg DeviceBindingConfig) *DeviceBinding {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &DeviceBinding{
		manager: manager,
		cfg:     cfg,
		log:     logging.For("nfc"),
	}
}

func (b *DeviceBinding) RequestTechnology(ctx context.Context, tech Technology) error {
	if tech != TechNdef {
		return NewNotSupportedError("RequestTechnology")
	}

	b.mu.Lock()
	if b.acquired {
		b.mu.Unlock()
		return NewBusyError("RequestTechnology")
	}
	b.acquired = true
	b.mu.Unlock()

	dev, err := b.openDevice()
	if err != nil {
		return err
	}
	b.log.Debugf("Waiting for a tag on %s", dev.String())

	if b.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.AcquireTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		tag, err := b.poll()
		if err != nil {
			b.log.WithError(err).Debug("Polling for tags failed")
		} else if tag != nil {
			b.mu.Lock()
			b.tag = tag
			b.mu.Unlock()
			b.log.Infof("Tag %s detected", tag.UID())
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return NewAcquireTimeoutError("RequestTechnology", ctx.Err())
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *DeviceBinding) openDevice() (Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.device != nil {
		return b.device, nil
	}
	dev, err := b.manager.OpenDevice(b.cfg.DevicePath)
	if err != nil {
		return nil, WrapError(ErrCodeNotSupported, "RequestTechnology", "failed to open NFC device", err)
	}
	if err := dev.InitiatorInit(); err != nil {
		dev.Close()
		return nil, WrapError(ErrCodeNotSupported, "RequestTechnology", "failed to initialize NFC device", err)
	}
	b.log.Infof("Opened NFC device %s (%s)", dev.String(), dev.Connection())
	b.device = dev
	return dev, nil
}

// poll returns the first tag in the field, or nil. A closed device is
// dropped so the next poll reopens it.
func (b *DeviceBinding) poll() (Tag, error) {
	dev, err := b.openDevice()
	if err != nil {
		return nil, err
	}
	tags, err := dev.GetTags()
	if errors.Is(err, ErrDeviceClosed) {
		b.dropDevice(dev)
	}
	if err != nil || len(tags) == 0 {
		return nil, err
	}
	return tags[0], nil
}

func (b *DeviceBinding) dropDevice(dev Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device == dev {
		b.log.Infof("NFC device %s closed", dev.String())
		b.device = nil
	}
}

// current returns the acquired tag after checking it is still in the field.
func (b *DeviceBinding) current(op string) (Tag, error) {
	b.mu.Lock()
	tag, dev, acquired := b.tag, b.device, b.acquired
	b.mu.Unlock()

	if !acquired || tag == nil || dev == nil {
		return nil, NewNoTagPresentError(op, nil)
	}

	tags, err := dev.GetTags()
	if err != nil {
		return nil, NewNoTagPresentError(op, err)
	}
	for _, t := range tags {
		if t.UID() == tag.UID() {
			return t, nil
		}
	}
	return nil, NewNoTagPresentError(op, nil)
}

func (b *DeviceBinding) GetTag(ctx context.Context) (*TagInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tag, err := b.current("GetTag")
	if err != nil {
		return nil, err
	}
	return InspectTag(tag, TechNdef)
}

func (b *DeviceBinding) WriteNdefMessage(ctx context.Context, msg []byte, opts WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	tag := b.tag
	b.mu.Unlock()
	if tag == nil {
		return NewNoTagPresentError("WriteNdefMessage", nil)
	}

	if err := tag.WriteData(msg); err != nil {
		var nfcErr *NFCError
		if errors.As(err, &nfcErr) {
			return err
		}
		return NewWriteError("WriteNdefMessage", err)
	}

	if opts.ReconnectAfterWrite {
		fresh, err := b.current("WriteNdefMessage")
		if err != nil {
			return err
		}
		b.mu.Lock()
		b.tag = fresh
		b.mu.Unlock()
	}
	return nil
}

func (b *DeviceBinding) CancelTechnologyRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.acquired = false
	b.tag = nil
	return nil
}

// Close releases the underlying device.
func (b *DeviceBinding) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.acquired = false
	b.tag = nil
	if b.device == nil {
		return nil
	}
	err := b.device.Close()
	b.device = nil
	return err
}
