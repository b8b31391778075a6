package certs

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/nedpals/vxtag-agent/buildinfo"
	"github.com/nedpals/vxtag-agent/logging"
)

// BootstrapServer serves the CA certificate over plain HTTP so phones can
// trust the agent before connecting over wss.
type BootstrapServer struct {
	manager    *Manager
	addr       string
	router     *mux.Router
	httpServer *http.Server
	log        *logrus.Entry
}

// NewBootstrapServer serves manager's CA on addr.
func NewBootstrapServer(manager *Manager, addr string) *BootstrapServer {
	s := &BootstrapServer{
		manager: manager,
		addr:    addr,
		router:  mux.NewRouter(),
		log:     logging.For("bootstrap"),
	}
	s.router.HandleFunc("/ca.pem", s.handleCACert).Methods(http.MethodGet)
	s.router.HandleFunc("/ca.crt", s.handleCACert).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.handleInstructions).Methods(http.MethodGet)
	return s
}

// Handler returns the bootstrap routes.
func (s *BootstrapServer) Handler() http.Handler {
	return s.router
}

// Start listens in the background.
func (s *BootstrapServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Infof("CA bootstrap server running on http://%s", ln.Addr())
	if fp, err := s.manager.Fingerprint(); err == nil {
		s.log.Infof("CA Fingerprint (SHA256): %s", fp)
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Bootstrap server error")
		}
	}()
	return nil
}

// Stop shuts the server down.
func (s *BootstrapServer) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.httpServer.Shutdown(ctx)
	s.httpServer = nil
}

func (s *BootstrapServer) handleCACert(w http.ResponseWriter, r *http.Request) {
	caCert, err := s.manager.ReadCACert()
	if err != nil {
		http.Error(w, "CA certificate not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/x-pem-file")
	w.Header().Set("Content-Disposition", `attachment; filename="`+buildinfo.Name+`-ca.pem"`)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write(caCert)

	s.log.WithField("remote", r.RemoteAddr).Info("CA certificate downloaded")
}

var instructionsPage = template.Must(template.New("instructions").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.App}} - Install CA Certificate</title>
</head>
<body>
<h1>Install CA Certificate</h1>
<p>To connect securely to {{.App}}, install this certificate authority on your phone.</p>
<p><a href="/ca.pem">Download CA Certificate</a></p>
<p>Check that the fingerprint matches the one in the {{.App}} logs before trusting it.</p>
<pre>{{.Fingerprint}}</pre>
<h2>iOS</h2>
<ol>
<li>Download the certificate and open Settings, Profile Downloaded</li>
<li>Tap Install and enter your passcode</li>
<li>Enable full trust under General, About, Certificate Trust Settings</li>
</ol>
<h2>Android</h2>
<ol>
<li>Download the certificate</li>
<li>Open Settings, Security, Encryption &amp; credentials</li>
<li>Tap Install a certificate, CA certificate and select the file</li>
</ol>
{{if .Links}}<h2>Download URLs</h2>
<ul>{{range .Links}}<li>{{.}}</li>{{end}}</ul>{{end}}
</body>
</html>
`))

func (s *BootstrapServer) handleInstructions(w http.ResponseWriter, r *http.Request) {
	fingerprint, err := s.manager.Fingerprint()
	if err != nil {
		fingerprint = "unavailable"
	}

	data := struct {
		App         string
		Fingerprint string
		Links       []string
	}{
		App:         buildinfo.DisplayName,
		Fingerprint: fingerprint,
		Links:       caLinks(s.addr),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := instructionsPage.Execute(w, data); err != nil {
		s.log.WithError(err).Warn("Failed to render instructions")
	}
}

// caLinks lists the CA download URL for every LAN address.
func caLinks(addr string) []string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil
	}
	if _, err := strconv.Atoi(port); err != nil {
		return nil
	}
	ips, _ := LANIPs()
	links := make([]string, 0, len(ips))
	for _, ip := range ips {
		links = append(links, "http://"+net.JoinHostPort(ip, port)+"/ca.pem")
	}
	return links
}
