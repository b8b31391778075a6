package main

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"fyne.io/systray"
	"github.com/sirupsen/logrus"

	"github.com/nedpals/vxtag-agent/buildinfo"
	"github.com/nedpals/vxtag-agent/certs"
	"github.com/nedpals/vxtag-agent/logging"
	"github.com/nedpals/vxtag-agent/notify"
)

// Agent statuses shown in the tray.
const (
	statusStarting = "Starting..."
	statusRunning  = "Running"
	statusFailed   = "Failed to Start"
	statusStopped  = "Stopped"
)

// trayOpTimeout bounds a Scan or Write started from the menu.
const trayOpTimeout = 30 * time.Second

// SystrayApp manages the system tray interface for the agent.
type SystrayApp struct {
	agent *Agent
	log   *logrus.Entry

	mStatus    *systray.MenuItem
	mDevice    *systray.MenuItem
	mTagUID    *systray.MenuItem
	mTagType   *systray.MenuItem
	mAlert     *systray.MenuItem
	mURL       *systray.MenuItem
	mCopyURL   *systray.MenuItem
	mScan      *systray.MenuItem
	mWrite     *systray.MenuItem
	mStart     *systray.MenuItem
	mStop      *systray.MenuItem
	mQuit      *systray.MenuItem
	mDevices   *systray.MenuItem
	mRefresh   *systray.MenuItem
	deviceList []*systray.MenuItem
}

// NewSystrayApp creates a new systray application
func NewSystrayApp(agent *Agent) *SystrayApp {
	return &SystrayApp{agent: agent, log: logging.For("systray")}
}

// Run blocks until the tray quits.
func (s *SystrayApp) Run() {
	systray.Run(s.onReady, s.onExit)
}

func quitTray() {
	systray.Quit()
}

func (s *SystrayApp) onReady() {
	s.setupUI()
	s.startAgent()
	go s.watchTagAndAlerts()
	go s.handleMenuEvents()
}

func (s *SystrayApp) onExit() {
	s.agent.Close()
}

func (s *SystrayApp) setupUI() {
	systray.SetIcon(iconData)
	systray.SetTooltip(buildinfo.DisplayName)

	s.mStatus = systray.AddMenuItem(statusStarting, "Agent status")
	s.mStatus.Disable()
	s.mDevice = systray.AddMenuItem("Reader: "+s.agent.Config.NFC.Manager, "Tag source")
	s.mDevice.Disable()

	systray.AddSeparator()

	s.mTagUID = systray.AddMenuItem("Tag UID: None", "Last tag UID")
	s.mTagUID.Disable()
	s.mTagType = systray.AddMenuItem("Tag Type: None", "Last tag type")
	s.mTagType.Disable()
	s.mAlert = systray.AddMenuItem("No alerts", "Last alert")
	s.mAlert.Disable()

	systray.AddSeparator()

	s.mScan = systray.AddMenuItem("Scan Tag", "Read the tag on the reader")
	s.mWrite = systray.AddMenuItem("Write Tag", "Write the configured message")
	if s.agent.Config.NFC.Message == "" {
		s.mWrite.SetTooltip("Set VXTAG_NFC_MESSAGE or -message to enable")
		s.mWrite.Disable()
	}

	systray.AddSeparator()

	s.mDevices = systray.AddMenuItem("Devices", "Available readers")
	s.mRefresh = s.mDevices.AddSubMenuItem("Refresh Devices", "Refresh device list")

	s.mURL = systray.AddMenuItem("Server: Not running", "Server address")
	s.mURL.Disable()
	s.mCopyURL = systray.AddMenuItem("Copy Server URL", "Copy the server URL to the clipboard")

	systray.AddSeparator()

	s.mStart = systray.AddMenuItem("Start Agent", "Start the agent")
	s.mStop = systray.AddMenuItem("Stop Agent", "Stop the agent")
	s.mStart.Disable()
	s.mStop.Disable()

	systray.AddSeparator()
	s.mQuit = systray.AddMenuItem("Quit", "Quit the application")
}

func (s *SystrayApp) startAgent() {
	if err := s.agent.Start(context.Background()); err != nil {
		s.log.WithError(err).Error("Failed to start agent")
		s.updateStatus(statusFailed)
		s.mStart.Enable()
		return
	}
	s.updateStatus(statusRunning)
	s.mURL.SetTitle("Server: " + s.serverURL())
	s.mStart.Disable()
	s.mStop.Enable()
	s.updateDeviceList()
}

func (s *SystrayApp) stopAgent() {
	s.agent.Stop()
	s.updateStatus(statusStopped)
	s.mURL.SetTitle("Server: Not running")
	s.mStop.Disable()
	s.mStart.Enable()
}

// watchTagAndAlerts mirrors the last tag and alert into the menu.
func (s *SystrayApp) watchTagAndAlerts() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastUID, lastType string
	var lastAlert time.Time

	for range ticker.C {
		var uid, tagType string
		if info := s.agent.Server.LastTag(); info != nil {
			uid, tagType = info.ID, info.Type
		}
		if uid != lastUID {
			s.mTagUID.SetTitle("Tag UID: " + orNone(uid))
			lastUID = uid
		}
		if tagType != lastType {
			s.mTagType.SetTitle("Tag Type: " + orNone(tagType))
			lastType = tagType
		}

		if a, ok := s.agent.LastAlert(); ok && a.Time.After(lastAlert) {
			s.mAlert.SetTitle(alertTitle(a))
			lastAlert = a.Time
		}
	}
}

func orNone(v string) string {
	if v == "" {
		return "None"
	}
	return v
}

func alertTitle(a notify.Alert) string {
	if a.Message == "" {
		return a.Title
	}
	return a.Title + ": " + a.Message
}

func (s *SystrayApp) handleMenuEvents() {
	for {
		select {
		case <-s.mScan.ClickedCh:
			go s.runScan()
		case <-s.mWrite.ClickedCh:
			go s.runWrite()
		case <-s.mStart.ClickedCh:
			s.startAgent()
		case <-s.mStop.ClickedCh:
			s.stopAgent()
		case <-s.mRefresh.ClickedCh:
			s.updateDeviceList()
		case <-s.mCopyURL.ClickedCh:
			if err := copyToClipboard(s.serverURL()); err != nil {
				s.log.WithError(err).Warn("Failed to copy to clipboard")
			} else {
				s.log.Info("Copied server URL to clipboard")
			}
		case <-s.mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

// Failures reach the user through the tagger's alerts.
func (s *SystrayApp) runScan() {
	ctx, cancel := context.WithTimeout(context.Background(), trayOpTimeout)
	defer cancel()
	if _, err := s.agent.Scan(ctx); err != nil {
		s.log.WithError(err).Debug("Scan from tray failed")
	}
}

func (s *SystrayApp) runWrite() {
	ctx, cancel := context.WithTimeout(context.Background(), trayOpTimeout)
	defer cancel()
	if _, err := s.agent.Write(ctx, s.agent.Config.NFC.Message); err != nil {
		s.log.WithError(err).Debug("Write from tray failed")
	}
}

// updateDeviceList shows the readers or phones currently available.
func (s *SystrayApp) updateDeviceList() {
	for _, item := range s.deviceList {
		item.Hide()
	}
	s.deviceList = s.deviceList[:0]

	devices := s.agent.Devices()
	if len(devices) == 0 {
		item := s.mDevices.AddSubMenuItem("No devices found", "")
		item.Disable()
		s.deviceList = append(s.deviceList, item)
		return
	}
	for _, device := range devices {
		item := s.mDevices.AddSubMenuItemCheckbox(device, "Available device", device == s.agent.Config.NFC.Device)
		item.Disable()
		s.deviceList = append(s.deviceList, item)
	}
}

// updateStatus updates the status menu item and icon
func (s *SystrayApp) updateStatus(status string) {
	s.mStatus.SetTitle(status)

	switch status {
	case statusRunning:
		systray.SetIcon(iconDataConnected)
	case statusFailed:
		systray.SetIcon(iconDataError)
	case statusStopped:
		systray.SetIcon(iconDataStopped)
	default:
		systray.SetIcon(iconData)
	}
}

// serverURL is the address clients on the LAN use.
func (s *SystrayApp) serverURL() string {
	ip := "localhost"
	if ips, _ := certs.LANIPs(); len(ips) > 0 {
		ip = ips[0]
	}
	srv := s.agent.Config.Server
	return srv.Scheme() + "://" + net.JoinHostPort(ip, strconv.Itoa(srv.Port))
}

// copyToClipboard copies text to the system clipboard
func copyToClipboard(text string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		cmd = exec.Command("xclip", "-selection", "clipboard")
	case "windows":
		cmd = exec.Command("clip")
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	if _, err := stdin.Write([]byte(text)); err != nil {
		return err
	}
	stdin.Close()
	return cmd.Wait()
}
