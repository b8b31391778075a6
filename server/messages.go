package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketMessage represents a message pushed to WebSocket clients.
type WebsocketMessage struct {
	ID      string `json:"id,omitempty"` // Request ID for correlation
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebsocketRequest represents an incoming request from a WebSocket peer.
type WebsocketRequest struct {
	ID      string          `json:"id,omitempty"` // Client-generated request ID
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (r WebsocketRequest) Decode(v any) error {
	if len(r.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", r.Type, err)
	}
	return nil
}

// WebsocketResponse represents a response to a WebSocket request.
type WebsocketResponse struct {
	ID      string `json:"id,omitempty"` // Same as request ID
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client is a WebSocket connection that serialises its writes, so handlers
// and broadcasts can share it.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewClient wraps conn.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

// WriteJSON sends v as a text frame.
func (c *Client) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return c.conn.WriteJSON(v)
}

// Respond sends a successful response to request id.
func (c *Client) Respond(id, responseType string, payload any) error {
	return c.WriteJSON(WebsocketResponse{
		ID:      id,
		Type:    responseType,
		Success: true,
		Payload: payload,
	})
}

// SendError sends a structured error response.
func (c *Client) SendError(id, responseType, code, message string) error {
	if responseType == "" {
		responseType = WSMessageTypeError
	}
	return c.WriteJSON(WebsocketResponse{
		ID:      id,
		Type:    responseType,
		Success: false,
		Error:   message,
		Payload: map[string]any{"code": code},
	})
}

func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Client) Close() error {
	return c.conn.Close()
}
