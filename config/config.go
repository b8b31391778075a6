// Package config loads agent settings from VXTAG_* environment variables.
//
// Every field can also be overridden by a command line flag in package
// main; Validate runs after both have been applied.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/nedpals/vxtag-agent/nfc"
)

// Prefix is prepended to every environment variable name.
const Prefix = "VXTAG"

// Manager kinds.
const (
	ManagerHardware   = "hardware"
	ManagerSmartphone = "smartphone"
)

type Config struct {
	Log    LogConfig
	Server ServerConfig
	NFC    NFCConfig
	Phone  PhoneConfig
	Editor EditorConfig
}

type LogConfig struct {
	Level string `default:"info" validate:"oneof=trace debug info warn warning error"`
}

type ServerConfig struct {
	Host           string        `default:"0.0.0.0"`
	Port           int           `default:"18080" validate:"min=1,max=65535"`
	APISecret      string        `split_words:"true"`
	AllowedOrigins []string      `split_words:"true"`
	SessionTimeout time.Duration `split_words:"true" default:"10m" validate:"min=0"`
	EnableMDNS     bool          `split_words:"true" default:"true"`
	// TLS serves HTTPS with a certificate from a locally installed CA.
	TLS bool
	// CertDir holds the CA and server certificate.
	CertDir string `split_words:"true"`
	// BootstrapPort serves the CA over plain HTTP while TLS is on; 0
	// disables it.
	BootstrapPort int `split_words:"true" default:"18081" validate:"min=0,max=65535"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// BootstrapAddr returns host:bootstrap-port.
func (s ServerConfig) BootstrapAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.BootstrapPort))
}

// Scheme is "https" when TLS is on.
func (s ServerConfig) Scheme() string {
	if s.TLS {
		return "https"
	}
	return "http"
}

type NFCConfig struct {
	// Manager selects the tag source: a libnfc reader or a paired phone.
	Manager string `default:"hardware" validate:"oneof=hardware smartphone"`
	// Device is the libnfc connection string or phone ID; empty picks the
	// first one available.
	Device              string
	MaxAttempts         int           `split_words:"true" default:"3" validate:"min=1,max=10"`
	Backoff             string        `default:"none" validate:"oneof=none constant exponential"`
	RetryDelay          time.Duration `split_words:"true" default:"0s" validate:"min=0"`
	AcquireTimeout      time.Duration `split_words:"true" default:"0s" validate:"min=0"`
	PollInterval        time.Duration `split_words:"true" default:"250ms" validate:"gt=0"`
	ReconnectAfterWrite bool          `split_words:"true"`
	Language            string        `default:"en" validate:"required,max=8"`
	// Message is what the tray's Write item and -once write store.
	Message             string        `validate:"max=800"`
}

// RetryPolicy builds the write retry policy.
func (n NFCConfig) RetryPolicy() (nfc.RetryPolicy, error) {
	b, err := nfc.NewBackOff(n.Backoff, n.RetryDelay)
	if err != nil {
		return nfc.RetryPolicy{}, err
	}
	return nfc.RetryPolicy{MaxAttempts: n.MaxAttempts, Backoff: b}, nil
}

type PhoneConfig struct {
	InactivityTimeout time.Duration `split_words:"true" default:"30s" validate:"gt=0"`
	WriteTimeout      time.Duration `split_words:"true" default:"15s" validate:"gt=0"`
}

type EditorConfig struct {
	// Image is the file offered by the image picker; empty cancels picks.
	Image       string
	Placeholder string
	CaptureDir  string `split_words:"true"`
	LibraryDir  string `split_words:"true"`
}

// Load reads the environment. Directories left empty are filled in under
// the system temp dir, the user's Pictures folder and the user config dir.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Editor.CaptureDir == "" {
		cfg.Editor.CaptureDir = filepath.Join(os.TempDir(), "vxtag-captures")
	}
	if cfg.Editor.LibraryDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		cfg.Editor.LibraryDir = filepath.Join(home, "Pictures", "VxTag")
	}
	if cfg.Server.CertDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = os.TempDir()
		}
		cfg.Server.CertDir = filepath.Join(dir, "vxtag-agent")
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section and reports all invalid fields at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed '%s' (value %v)", strings.TrimPrefix(fe.Namespace(), "Config."), fe.ActualTag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Usage prints the recognised environment variables.
func Usage(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 1, 0, 4, ' ', 0)
	if err := envconfig.Usagef(Prefix, &Config{}, tw, envconfig.DefaultTableFormat); err != nil {
		return err
	}
	return tw.Flush()
}
