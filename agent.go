package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nedpals/vxtag-agent/certs"
	"github.com/nedpals/vxtag-agent/config"
	"github.com/nedpals/vxtag-agent/editor"
	"github.com/nedpals/vxtag-agent/logging"
	"github.com/nedpals/vxtag-agent/nfc"
	"github.com/nedpals/vxtag-agent/nfc/phonenfc"
	"github.com/nedpals/vxtag-agent/notify"
	"github.com/nedpals/vxtag-agent/server"
)

// Agent wires the tag source, the tagger, the editor and the server.
type Agent struct {
	Logger  *logrus.Entry
	Config  *config.Config
	Manager nfc.Manager      // NFC device manager (hardware or smartphone)
	Phones  *phonenfc.Manager // set when phones are the tag source
	Binding *nfc.DeviceBinding
	Tagger  *nfc.Tagger
	Editor  *editor.Editor
	Server  *server.Server

	Certs     *certs.Manager          // set when the server speaks HTTPS
	Bootstrap *certs.BootstrapServer // serves the CA to phones

	mu        sync.RWMutex
	lastAlert *notify.Alert
	cancel    context.CancelFunc
	done      chan error
}

// NewAgent builds an agent from cfg. Nothing touches the reader or the
// network until Start.
func NewAgent(cfg *config.Config) (*Agent, error) {
	a := &Agent{
		Logger: logging.For("agent"),
		Config: cfg,
	}

	switch cfg.NFC.Manager {
	case config.ManagerSmartphone:
		a.Phones = phonenfc.NewManager(phonenfc.ManagerConfig{
			InactivityTimeout: cfg.Phone.InactivityTimeout,
			WriteTimeout:      cfg.Phone.WriteTimeout,
		})
		a.Manager = a.Phones
	default:
		a.Manager = nfc.NewManager()
	}

	retry, err := cfg.NFC.RetryPolicy()
	if err != nil {
		return nil, err
	}

	alerter := notify.Multi{
		&notify.LogAlerter{Logger: logging.For("alert")},
		notify.AlerterFunc(a.recordAlert),
	}

	a.Binding = nfc.NewDeviceBinding(a.Manager, nfc.DeviceBindingConfig{
		DevicePath:     cfg.NFC.Device,
		PollInterval:   cfg.NFC.PollInterval,
		AcquireTimeout: cfg.NFC.AcquireTimeout,
	})
	a.Tagger = nfc.NewTagger(a.Binding, nfc.TaggerConfig{
		Retry:        retry,
		Alerter:      alerter,
		Language:     cfg.NFC.Language,
		WriteOptions: nfc.WriteOptions{ReconnectAfterWrite: cfg.NFC.ReconnectAfterWrite},
		OnState:      a.onState,
	})

	library := &editor.DirLibrary{Dir: cfg.Editor.LibraryDir}
	a.Editor = editor.New(editor.Config{
		Picker:      &editor.StaticPicker{Path: cfg.Editor.Image},
		Capturer:    &editor.FileCapturer{Dir: cfg.Editor.CaptureDir},
		Library:     library,
		Permissions: library,
		Alerter:     alerter,
		Placeholder: cfg.Editor.Placeholder,
	})

	handlers := []server.ServerHandler{
		server.NewNFCHandler(a.Tagger),
		server.NewEditorHandler(a.Editor),
	}
	if a.Phones != nil {
		handlers = append(handlers, a.Phones)
	}
	srvCfg := server.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		APISecret:      cfg.Server.APISecret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SessionTimeout: cfg.Server.SessionTimeout,
		EnableMDNS:     cfg.Server.EnableMDNS,
		Handlers:       handlers,
	}
	if cfg.Server.TLS {
		if err := a.setupTLS(&srvCfg); err != nil {
			return nil, err
		}
	}
	a.Server = server.New(srvCfg)
	return a, nil
}

// setupTLS issues the server certificate, installing the CA on first use.
func (a *Agent) setupTLS(srvCfg *server.Config) error {
	a.Certs = certs.NewManager(a.Config.Server.CertDir)

	hosts, err := certs.Hosts()
	if err != nil {
		a.Logger.WithError(err).Warn("Failed to get LAN IPs, certificate will only cover localhost")
	}
	certFile, keyFile, err := a.Certs.Ensure(hosts)
	if err != nil {
		return fmt.Errorf("failed to set up TLS: %w", err)
	}
	srvCfg.CertFile, srvCfg.KeyFile = certFile, keyFile

	if a.Config.Server.BootstrapPort != 0 {
		a.Bootstrap = certs.NewBootstrapServer(a.Certs, a.Config.Server.BootstrapAddr())
	}
	return nil
}

func (a *Agent) recordAlert(alert notify.Alert) {
	a.mu.Lock()
	a.lastAlert = &alert
	a.mu.Unlock()

	if a.Server != nil {
		a.Server.Alert(alert)
	}
}

// LastAlert returns the most recent alert, if any.
func (a *Agent) LastAlert() (notify.Alert, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastAlert == nil {
		return notify.Alert{}, false
	}
	return *a.lastAlert, true
}

func (a *Agent) onState(t nfc.Transition) {
	a.Logger.Debugf("Tagger %s -> %s", t.From, t.To)
	if a.Server == nil {
		return
	}
	payload := map[string]any{"tagger": t.To}
	if t.Attempt > 0 {
		payload["attempt"] = t.Attempt
	}
	if t.Err != nil {
		payload["error"] = t.Err.Error()
	}
	a.Server.Broadcast(server.WSMessageTypeState, payload)
}

// Start runs the server in the background.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return errors.New("agent is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan error, 1)

	if a.Bootstrap != nil {
		if err := a.Bootstrap.Start(); err != nil {
			a.Logger.WithError(err).Warn("CA bootstrap server not available")
		}
	}

	go func() {
		err := a.Server.Start(ctx)
		if err != nil {
			a.Logger.WithError(err).Error("Server stopped")
		}
		a.done <- err
		close(a.done)
	}()
	return nil
}

// Wait blocks until the server exits.
func (a *Agent) Wait() error {
	a.mu.RLock()
	done := a.done
	a.mu.RUnlock()
	if done == nil {
		return nil
	}
	return <-done
}

// Stop shuts the server down and releases the reader.
func (a *Agent) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel = nil
	a.mu.Unlock()

	a.Logger.Info("Stopping agent...")
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			a.Logger.Warn("Server did not stop in time")
		}
	}

	if a.Bootstrap != nil {
		a.Bootstrap.Stop()
	}
	if err := a.Binding.Close(); err != nil {
		a.Logger.WithError(err).Warn("Failed to close NFC device")
	}
	a.Logger.Info("Agent stopped")
}

// Close stops the agent for good, disconnecting any phones.
func (a *Agent) Close() {
	a.Stop()
	if a.Phones != nil {
		a.Phones.Close()
	}
}

// Running reports whether Start has been called without a matching Stop.
func (a *Agent) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cancel != nil
}

// Scan reads the tag in the field and publishes it to clients.
func (a *Agent) Scan(ctx context.Context) (*nfc.TagInfo, error) {
	info, err := a.Tagger.Scan(ctx)
	if err != nil {
		return nil, err
	}
	a.Server.BroadcastTagData(info)
	return info, nil
}

// Write stores message on the tag in the field.
func (a *Agent) Write(ctx context.Context, message string) (*nfc.WriteReport, error) {
	report, err := a.Tagger.Write(ctx, message)
	if err != nil {
		return report, err
	}
	a.Server.BroadcastTagData(report.Tag)
	return report, nil
}

// Devices lists the connection strings of the available readers or phones.
func (a *Agent) Devices() []string {
	devices, err := a.Manager.ListDevices()
	if err != nil {
		a.Logger.WithError(err).Debug("Failed to list devices")
		return nil
	}
	return devices
}
