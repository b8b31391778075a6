package phonenfc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nedpals/vxtag-agent/buildinfo"
	"github.com/nedpals/vxtag-agent/server"
)

// Error codes sent to phones.
const (
	ErrCodeReadError          = "READ_ERROR"
	ErrCodeInvalidMessageType = "INVALID_MESSAGE_TYPE"
	ErrCodeRegistrationFailed = "REGISTRATION_FAILED"
	ErrCodeInvalidDevice      = "INVALID_DEVICE"
	ErrCodeTagSendFailed      = "TAG_SEND_FAILED"
)

type deviceIDContextKey struct{}

// GetDeviceIDFromContext retrieves the device ID from context.
func GetDeviceIDFromContext(ctx context.Context) (string, bool) {
	deviceID, ok := ctx.Value(deviceIDContextKey{}).(string)
	return deviceID, ok
}

// WithDeviceID adds a device ID to the context.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDContextKey{}, deviceID)
}

type deviceHandlerFunc func(ctx context.Context, client *server.Client, req server.WebsocketRequest) error

// Handler serves phone WebSocket connections. Phones skip the client
// session and API secret.
type Handler struct {
	manager  *Manager
	sessions map[string]*server.Client // deviceID -> connection
	mu       sync.RWMutex
	upgrader websocket.Upgrader
	routes   map[string]deviceHandlerFunc
	log      *logrus.Entry
}

// NewHandler creates a handler for manager's phones.
func NewHandler(manager *Manager) *Handler {
	h := &Handler{
		manager:  manager,
		sessions: make(map[string]*server.Client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: manager.log,
	}
	h.routes = map[string]deviceHandlerFunc{
		MessageTypeTagScanned:      h.handleTagScanned,
		MessageTypeTagRemoved:      h.handleTagRemoved,
		MessageTypeDeviceHeartbeat: h.handleDeviceHeartbeat,
		MessageTypeWriteResponse:   h.handleWriteResponse,
	}
	return h
}

// Register implements server.ServerHandler.
func (h *Handler) Register(s server.HandlerServer) {
	s.HandleWebSocket(IsDeviceConnection, func(w http.ResponseWriter, r *http.Request) bool {
		h.HandleWebSocket(w, r)
		return true
	})
}

// HandleWebSocket runs a phone connection: a registerDevice message first,
// then tag and write events until the socket closes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("WebSocket upgrade failed")
		return
	}
	client := server.NewClient(conn)
	h.log.Infof("WebSocket connected from %s", r.RemoteAddr)

	var deviceID string
	defer func() {
		client.Close()
		if deviceID != "" {
			h.handleDeviceDisconnect(deviceID)
		}
	}()

	req, err := h.readRequest(conn)
	if err != nil {
		h.log.WithError(err).Warn("Failed to read registration message")
		client.SendError("", MessageTypeError, ErrCodeReadError, "Failed to read message")
		return
	}
	if req.Type != MessageTypeRegisterDevice {
		client.SendError(req.ID, MessageTypeError, ErrCodeInvalidMessageType, fmt.Sprintf("Expected '%s' message", MessageTypeRegisterDevice))
		return
	}

	deviceID, err = h.handleRegisterDevice(client, req)
	if err != nil {
		h.log.WithError(err).Warn("Registration failed")
		return
	}

	ctx := WithDeviceID(r.Context(), deviceID)
	for {
		req, err := h.readRequest(conn)
		if err != nil {
			if errors.Is(err, errBadFrame) {
				client.SendError("", MessageTypeError, server.ErrCodeParse, "Invalid message format")
				continue
			}
			return
		}

		route, ok := h.routes[req.Type]
		if !ok {
			client.SendError(req.ID, MessageTypeError, server.ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", req.Type))
			continue
		}
		if err := route(ctx, client, req); err != nil {
			h.log.WithError(err).Warnf("Handler error for message type '%s'", req.Type)
		}
	}
}

var errBadFrame = errors.New("invalid message frame")

// readRequest reads one text frame. A frame that is not a JSON request
// yields errBadFrame so the caller can keep the connection.
func (h *Handler) readRequest(conn *websocket.Conn) (server.WebsocketRequest, error) {
	var req server.WebsocketRequest
	messageType, message, err := conn.ReadMessage()
	if err != nil {
		return req, err
	}
	if messageType != websocket.TextMessage {
		return req, errBadFrame
	}
	if err := json.Unmarshal(message, &req); err != nil {
		return req, fmt.Errorf("%w: %v", errBadFrame, err)
	}
	return req, nil
}

func (h *Handler) handleRegisterDevice(client *server.Client, req server.WebsocketRequest) (string, error) {
	var regReq DeviceRegistrationRequest
	if err := req.Decode(&regReq); err != nil {
		client.SendError(req.ID, MessageTypeError, server.ErrCodeInvalidPayload, "Invalid registration request format")
		return "", err
	}

	device, err := h.manager.RegisterDevice(regReq)
	if err != nil {
		client.SendError(req.ID, MessageTypeError, ErrCodeRegistrationFailed, err.Error())
		return "", err
	}
	deviceID := device.DeviceID()
	device.SetSender(client.WriteJSON)

	h.mu.Lock()
	h.sessions[deviceID] = client
	h.mu.Unlock()

	err = client.Respond(req.ID, MessageTypeRegisterDeviceResponse, DeviceRegistrationResponse{
		DeviceID: deviceID,
		ServerInfo: ServerInfo{
			Version:           buildinfo.Version,
			SupportedNFC:      []string{"ndef"},
			HeartbeatInterval: int(HeartbeatInterval.Seconds()),
		},
	})
	if err != nil {
		h.handleDeviceDisconnect(deviceID)
		return "", fmt.Errorf("failed to send registration response: %w", err)
	}
	return deviceID, nil
}

func (h *Handler) handleTagScanned(ctx context.Context, client *server.Client, req server.WebsocketRequest) error {
	var tagData TagData
	if err := req.Decode(&tagData); err != nil {
		client.SendError(req.ID, MessageTypeError, server.ErrCodeInvalidPayload, "Invalid tag data format")
		return err
	}
	if err := h.validateDevice(ctx, tagData.DeviceID); err != nil {
		client.SendError(req.ID, MessageTypeError, ErrCodeInvalidDevice, err.Error())
		return err
	}

	tag, err := h.manager.SendTagData(tagData.DeviceID, tagData)
	if err != nil {
		client.SendError(req.ID, MessageTypeError, ErrCodeTagSendFailed, err.Error())
		return err
	}

	h.log.Infof("Tag scanned: device=%s, UID=%s, Type=%s", tagData.DeviceID, tag.UID(), tag.Type())
	return nil
}

func (h *Handler) handleTagRemoved(ctx context.Context, client *server.Client, req server.WebsocketRequest) error {
	var removed TagRemovedData
	if err := req.Decode(&removed); err != nil {
		client.SendError(req.ID, MessageTypeError, server.ErrCodeInvalidPayload, "Invalid tag removal format")
		return err
	}
	if err := h.validateDevice(ctx, removed.DeviceID); err != nil {
		client.SendError(req.ID, MessageTypeError, ErrCodeInvalidDevice, err.Error())
		return err
	}
	if err := h.manager.RemoveTag(removed.DeviceID, removed.UID); err != nil {
		client.SendError(req.ID, MessageTypeError, server.ErrCodeInvalidPayload, err.Error())
		return err
	}

	h.log.Debugf("Tag removed: device=%s, UID=%s", removed.DeviceID, removed.UID)
	return nil
}

func (h *Handler) handleDeviceHeartbeat(ctx context.Context, client *server.Client, req server.WebsocketRequest) error {
	var heartbeat DeviceHeartbeat
	if err := req.Decode(&heartbeat); err != nil {
		return err
	}
	if err := h.validateDevice(ctx, heartbeat.DeviceID); err != nil {
		return err
	}
	return h.manager.UpdateHeartbeat(heartbeat.DeviceID)
}

func (h *Handler) handleWriteResponse(ctx context.Context, client *server.Client, req server.WebsocketRequest) error {
	var resp DeviceWriteResponse
	if err := req.Decode(&resp); err != nil {
		client.SendError(req.ID, MessageTypeError, server.ErrCodeInvalidPayload, "Invalid write response format")
		return err
	}
	if resp.RequestID == "" {
		resp.RequestID = req.ID
	}

	deviceID, _ := GetDeviceIDFromContext(ctx)
	return h.manager.CompleteWrite(deviceID, resp)
}

func (h *Handler) handleDeviceDisconnect(deviceID string) {
	h.mu.Lock()
	delete(h.sessions, deviceID)
	h.mu.Unlock()

	h.manager.UnregisterDevice(deviceID)
	h.log.Infof("Device disconnected: %s", deviceID)
}

// validateDevice checks a payload's deviceID against the connection's.
func (h *Handler) validateDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("deviceID is required")
	}
	if connID, ok := GetDeviceIDFromContext(ctx); ok && connID != deviceID {
		return fmt.Errorf("deviceID %s does not match this connection", deviceID)
	}
	if _, exists := h.manager.GetDevice(deviceID); !exists {
		return fmt.Errorf("device not registered: %s", deviceID)
	}
	return nil
}

// SendToDevice sends a message to a specific device.
func (h *Handler) SendToDevice(deviceID string, message any) error {
	h.mu.RLock()
	client, ok := h.sessions[deviceID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("device not connected: %s", deviceID)
	}
	return client.WriteJSON(message)
}

// IsDeviceConnection reports whether a request comes from a phone, either
// by the X-Device-Mode header or the mode=device query parameter.
func IsDeviceConnection(r *http.Request) bool {
	if r.Header.Get("X-Device-Mode") == "true" {
		return true
	}
	return r.URL.Query().Get("mode") == "device"
}
