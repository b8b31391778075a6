package server

import (
	"time"

	"github.com/nedpals/vxtag-agent/buildinfo"
)

// mDNS service discovery
var (
	MDNSServiceType = "_vxtag-agent._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// WebSocket message types for client-server communication
const (
	WSMessageTypeSession       = "session"
	WSMessageTypeTagData       = "tagData"
	WSMessageTypeAlert         = "alert"
	WSMessageTypeState         = "state"
	WSMessageTypeScanRequest   = "scanTag"
	WSMessageTypeScanResponse  = "scanResponse"
	WSMessageTypeWriteRequest  = "writeTag"
	WSMessageTypeWriteResponse = "writeResponse"
	WSMessageTypeError         = "error"
)

// Error codes sent to WebSocket and HTTP clients besides NFC error codes.
const (
	ErrCodeParse          = "PARSE_ERROR"
	ErrCodeUnknownType    = "UNKNOWN_TYPE"
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
	ErrCodeInternal       = "INTERNAL"
)

// APIPrefix is where the HTTP API lives.
const APIPrefix = "/api/v1"

// CORS configuration
var (
	CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-API-Secret"}
)

const (
	// DefaultSessionTimeout releases an idle client session.
	DefaultSessionTimeout = 10 * time.Minute
	// WriteTimeout bounds a single WebSocket write.
	WriteTimeout = 10 * time.Second
)
