package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 18080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:18080", cfg.Server.Addr())
	assert.Equal(t, 10*time.Minute, cfg.Server.SessionTimeout)
	assert.True(t, cfg.Server.EnableMDNS)
	assert.False(t, cfg.Server.TLS)
	assert.Equal(t, "http", cfg.Server.Scheme())
	assert.Equal(t, 18081, cfg.Server.BootstrapPort)
	assert.Equal(t, "0.0.0.0:18081", cfg.Server.BootstrapAddr())
	assert.NotEmpty(t, cfg.Server.CertDir)
	assert.Equal(t, ManagerHardware, cfg.NFC.Manager)
	assert.Equal(t, 3, cfg.NFC.MaxAttempts)
	assert.Equal(t, "none", cfg.NFC.Backoff)
	assert.Equal(t, 250*time.Millisecond, cfg.NFC.PollInterval)
	assert.Equal(t, "en", cfg.NFC.Language)
	assert.Equal(t, 30*time.Second, cfg.Phone.InactivityTimeout)
	assert.Equal(t, 15*time.Second, cfg.Phone.WriteTimeout)
	assert.NotEmpty(t, cfg.Editor.CaptureDir)
	assert.NotEmpty(t, cfg.Editor.LibraryDir)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("VXTAG_LOG_LEVEL", "debug")
	t.Setenv("VXTAG_SERVER_PORT", "9000")
	t.Setenv("VXTAG_SERVER_API_SECRET", "s3cret")
	t.Setenv("VXTAG_SERVER_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("VXTAG_SERVER_ENABLE_MDNS", "false")
	t.Setenv("VXTAG_SERVER_TLS", "true")
	t.Setenv("VXTAG_SERVER_CERT_DIR", "/tmp/certs")
	t.Setenv("VXTAG_NFC_MANAGER", "smartphone")
	t.Setenv("VXTAG_NFC_MAX_ATTEMPTS", "5")
	t.Setenv("VXTAG_NFC_BACKOFF", "constant")
	t.Setenv("VXTAG_NFC_RETRY_DELAY", "100ms")
	t.Setenv("VXTAG_NFC_RECONNECT_AFTER_WRITE", "true")
	t.Setenv("VXTAG_PHONE_WRITE_TIMEOUT", "5s")
	t.Setenv("VXTAG_EDITOR_LIBRARY_DIR", "/tmp/lib")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Server.APISecret)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Server.EnableMDNS)
	assert.True(t, cfg.Server.TLS)
	assert.Equal(t, "https", cfg.Server.Scheme())
	assert.Equal(t, "/tmp/certs", cfg.Server.CertDir)
	assert.Equal(t, ManagerSmartphone, cfg.NFC.Manager)
	assert.Equal(t, 5, cfg.NFC.MaxAttempts)
	assert.True(t, cfg.NFC.ReconnectAfterWrite)
	assert.Equal(t, 5*time.Second, cfg.Phone.WriteTimeout)
	assert.Equal(t, "/tmp/lib", cfg.Editor.LibraryDir)

	policy, err := cfg.NFC.RetryPolicy()
	require.NoError(t, err)
	assert.Equal(t, 5, policy.MaxAttempts)
	require.NotNil(t, policy.Backoff)
	assert.Equal(t, 100*time.Millisecond, policy.Backoff.NextBackOff())
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("VXTAG_SERVER_PORT", "not-a-port")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "Server.Port"},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, "Log.Level"},
		{"unknown manager", func(c *Config) { c.NFC.Manager = "pcsc" }, "NFC.Manager"},
		{"zero attempts", func(c *Config) { c.NFC.MaxAttempts = 0 }, "NFC.MaxAttempts"},
		{"unknown backoff", func(c *Config) { c.NFC.Backoff = "random" }, "NFC.Backoff"},
		{"zero poll interval", func(c *Config) { c.NFC.PollInterval = 0 }, "NFC.PollInterval"},
		{"negative acquire timeout", func(c *Config) { c.NFC.AcquireTimeout = -time.Second }, "NFC.AcquireTimeout"},
		{"zero phone write timeout", func(c *Config) { c.Phone.WriteTimeout = 0 }, "Phone.WriteTimeout"},
		{"bootstrap port out of range", func(c *Config) { c.Server.BootstrapPort = -1 }, "Server.BootstrapPort"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestRetryPolicyDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	policy, err := cfg.NFC.RetryPolicy()
	require.NoError(t, err)
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Nil(t, policy.Backoff)
}

func TestUsageListsVariables(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Usage(&buf))

	out := buf.String()
	assert.Contains(t, out, "VXTAG_SERVER_PORT")
	assert.Contains(t, out, "VXTAG_NFC_MAX_ATTEMPTS")
	assert.Contains(t, out, "VXTAG_EDITOR_LIBRARY_DIR")
	assert.Contains(t, out, "VXTAG_SERVER_CERT_DIR")
}
