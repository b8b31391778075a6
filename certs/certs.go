// Package certs keeps a locally trusted certificate for the agent's HTTPS
// listener.
//
// The CA lives under the agent's config directory and is installed in the
// system trust store the first time a certificate is issued. Certificates
// cover localhost and every LAN address, and are reissued when the set of
// addresses changes.
package certs

import (
	"bufio"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jittering/truststore"
	"github.com/sirupsen/logrus"

	"github.com/nedpals/vxtag-agent/logging"
)

// Issuer creates a certificate for hosts inside dir and returns the paths it
// wrote.
type Issuer interface {
	Issue(hosts []string, dir string) (certFile, keyFile string, err error)
}

// truststoreIssuer issues certificates from a CA rooted at caDir and makes
// sure that CA is trusted by the system.
type truststoreIssuer struct {
	caDir string
	log   *logrus.Entry
}

func (t *truststoreIssuer) Issue(hosts []string, dir string) (string, string, error) {
	if err := os.MkdirAll(t.caDir, 0700); err != nil {
		return "", "", fmt.Errorf("failed to create CA directory: %w", err)
	}
	os.Setenv("CAROOT", t.caDir)

	ml, err := truststore.NewLib()
	if err != nil {
		return "", "", fmt.Errorf("failed to initialize truststore: %w", err)
	}

	t.log.Info("Ensuring CA is installed in system trust store (you may be prompted for your password)")
	if err := ml.Install(); err != nil {
		return "", "", fmt.Errorf("failed to install CA: %w", err)
	}

	cert, err := ml.MakeCert(hosts, dir)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate certificate: %w", err)
	}
	return cert.CertFile, cert.KeyFile, nil
}

// Manager owns the certificate files under one directory.
type Manager struct {
	tlsDir     string
	caCertFile string
	certFile   string
	keyFile    string
	hostsFile  string
	issuer     Issuer
	log        *logrus.Entry
}

// Option configures a Manager.
type Option func(*Manager)

// WithIssuer replaces the truststore-backed issuer.
func WithIssuer(issuer Issuer) Option {
	return func(m *Manager) { m.issuer = issuer }
}

// NewManager keeps its files in dir/tls and the CA in dir/ca.
func NewManager(dir string, opts ...Option) *Manager {
	tlsDir := filepath.Join(dir, "tls")
	caDir := filepath.Join(dir, "ca")
	m := &Manager{
		tlsDir:     tlsDir,
		caCertFile: filepath.Join(caDir, "rootCA.pem"),
		certFile:   filepath.Join(tlsDir, "server.crt"),
		keyFile:    filepath.Join(tlsDir, "server.key"),
		hostsFile:  filepath.Join(tlsDir, "hosts.txt"),
		log:        logging.For("certs"),
	}
	m.issuer = &truststoreIssuer{caDir: caDir, log: m.log}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ensure returns a certificate valid for hosts, issuing one if none exists
// or the cached one was made for different hosts.
func (m *Manager) Ensure(hosts []string) (certFile, keyFile string, err error) {
	if err := os.MkdirAll(m.tlsDir, 0700); err != nil {
		return "", "", fmt.Errorf("failed to create TLS directory: %w", err)
	}

	switch {
	case !m.certsExist():
		m.log.Info("Certificates not found, generating...")
	case m.hostsChanged(hosts):
		m.log.Info("Network configuration changed, regenerating certificates...")
	default:
		m.log.Debug("Using existing certificates")
		return m.certFile, m.keyFile, nil
	}

	if err := m.issue(hosts); err != nil {
		return "", "", err
	}
	return m.certFile, m.keyFile, nil
}

func (m *Manager) issue(hosts []string) error {
	m.log.WithField("hosts", hosts).Info("Generating certificate")

	cert, key, err := m.issuer.Issue(hosts, m.tlsDir)
	if err != nil {
		return err
	}
	if cert != m.certFile {
		if err := os.Rename(cert, m.certFile); err != nil {
			return fmt.Errorf("failed to rename cert file: %w", err)
		}
	}
	if key != m.keyFile {
		if err := os.Rename(key, m.keyFile); err != nil {
			return fmt.Errorf("failed to rename key file: %w", err)
		}
	}

	if err := m.writeCachedHosts(hosts); err != nil {
		m.log.WithError(err).Warn("Failed to cache certificate hosts")
	}
	if fp, err := m.Fingerprint(); err == nil {
		m.log.Infof("CA Fingerprint (SHA256): %s", fp)
	}
	return nil
}

func (m *Manager) certsExist() bool {
	_, certErr := os.Stat(m.certFile)
	_, keyErr := os.Stat(m.keyFile)
	return certErr == nil && keyErr == nil
}

func (m *Manager) hostsChanged(hosts []string) bool {
	cached, err := m.readCachedHosts()
	if err != nil {
		return true
	}
	a := slices.Clone(cached)
	b := slices.Clone(hosts)
	slices.Sort(a)
	slices.Sort(b)
	return !slices.Equal(a, b)
}

func (m *Manager) readCachedHosts() ([]string, error) {
	file, err := os.Open(m.hostsFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var hosts []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if host := strings.TrimSpace(scanner.Text()); host != "" {
			hosts = append(hosts, host)
		}
	}
	return hosts, scanner.Err()
}

func (m *Manager) writeCachedHosts(hosts []string) error {
	return os.WriteFile(m.hostsFile, []byte(strings.Join(hosts, "\n")+"\n"), 0600)
}

// CACertFile is where the CA certificate is kept.
func (m *Manager) CACertFile() string {
	return m.caCertFile
}

// ReadCACert returns the CA certificate in PEM form.
func (m *Manager) ReadCACert() ([]byte, error) {
	return os.ReadFile(m.caCertFile)
}

// Fingerprint returns the colon separated SHA-256 fingerprint of the CA.
func (m *Manager) Fingerprint() (string, error) {
	certPEM, err := m.ReadCACert()
	if err != nil {
		return "", fmt.Errorf("failed to read CA certificate: %w", err)
	}
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", fmt.Errorf("failed to decode PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}

	sum := sha256.Sum256(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":"), nil
}
