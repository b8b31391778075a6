package phonenfc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedpals/vxtag-agent/nfc"
	"github.com/nedpals/vxtag-agent/notify"
	"github.com/nedpals/vxtag-agent/server"
)

type phoneConn struct {
	t        *testing.T
	conn     *websocket.Conn
	deviceID string
}

func startPhoneServer(t *testing.T, m *Manager) *httptest.Server {
	t.Helper()
	s := server.New(server.Config{
		Handlers: []server.ServerHandler{m},
		Logger:   quietLogger(),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dialPhone(t *testing.T, ts *httptest.Server) *phoneConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?mode=device"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &phoneConn{t: t, conn: conn}
}

func (p *phoneConn) send(id, msgType string, payload any) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(server.WebsocketMessage{ID: id, Type: msgType, Payload: payload}))
}

func (p *phoneConn) read(v any) {
	p.t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(p.t, p.conn.ReadJSON(v))
}

func (p *phoneConn) register() {
	p.t.Helper()
	p.send("reg-1", MessageTypeRegisterDevice, testRegistration())

	var resp struct {
		ID      string                     `json:"id"`
		Type    string                     `json:"type"`
		Success bool                       `json:"success"`
		Payload DeviceRegistrationResponse `json:"payload"`
	}
	p.read(&resp)
	require.True(p.t, resp.Success)
	require.Equal(p.t, "reg-1", resp.ID)
	require.Equal(p.t, MessageTypeRegisterDeviceResponse, resp.Type)
	require.NotEmpty(p.t, resp.Payload.DeviceID)
	require.Equal(p.t, int(HeartbeatInterval.Seconds()), resp.Payload.ServerInfo.HeartbeatInterval)
	p.deviceID = resp.Payload.DeviceID
}

func (p *phoneConn) scan(uid string, ndef []byte) {
	p.t.Helper()
	writable := true
	p.send("", MessageTypeTagScanned, TagData{
		DeviceID:   p.deviceID,
		UID:        uid,
		MaxSize:    504,
		IsWritable: &writable,
		RawData:    ndef,
	})
}

func waitForTags(t *testing.T, m *Manager, deviceID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		d, ok := m.GetDevice(deviceID)
		if !ok {
			return false
		}
		tags, err := d.GetTags()
		return err == nil && len(tags) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func newPhoneTagger(m *Manager) *nfc.Tagger {
	binding := nfc.NewDeviceBinding(m, nfc.DeviceBindingConfig{
		PollInterval:   10 * time.Millisecond,
		AcquireTimeout: 2 * time.Second,
	})
	return nfc.NewTagger(binding, nfc.TaggerConfig{Alerter: &notify.Recorder{}, Logger: quietLogger()})
}

func TestIsDeviceConnection(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		header string
		want   bool
	}{
		{"header", "/ws", "true", true},
		{"query", "/ws?mode=device", "", true},
		{"plain client", "/ws", "", false},
		{"other mode", "/ws?mode=client", "false", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				r.Header.Set("X-Device-Mode", tt.header)
			}
			assert.Equal(t, tt.want, IsDeviceConnection(r))
		})
	}
}

func TestDeviceIDContext(t *testing.T) {
	_, ok := GetDeviceIDFromContext(context.Background())
	assert.False(t, ok)

	id, ok := GetDeviceIDFromContext(WithDeviceID(context.Background(), "dev-1"))
	assert.True(t, ok)
	assert.Equal(t, "dev-1", id)
}

func TestHandlerRegisterAndDisconnect(t *testing.T) {
	m := newTestManager(t)
	ts := startPhoneServer(t, m)

	phone := dialPhone(t, ts)
	phone.register()
	assert.Equal(t, 1, m.GetDeviceCount())

	phone.conn.Close()
	require.Eventually(t, func() bool { return m.GetDeviceCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandlerRejectsUnregisteredFirstMessage(t *testing.T) {
	m := newTestManager(t)
	ts := startPhoneServer(t, m)

	phone := dialPhone(t, ts)
	phone.send("x", MessageTypeTagScanned, TagData{UID: "04"})

	var resp server.WebsocketResponse
	phone.read(&resp)
	assert.False(t, resp.Success)
	assert.Equal(t, MessageTypeError, resp.Type)
	assert.Equal(t, ErrCodeInvalidMessageType, resp.Payload.(map[string]any)["code"])
	assert.Zero(t, m.GetDeviceCount())
}

func TestHandlerRejectsInvalidRegistration(t *testing.T) {
	m := newTestManager(t)
	ts := startPhoneServer(t, m)

	phone := dialPhone(t, ts)
	phone.send("reg", MessageTypeRegisterDevice, DeviceRegistrationRequest{DeviceName: "Phone", Platform: "symbian"})

	var resp server.WebsocketResponse
	phone.read(&resp)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeRegistrationFailed, resp.Payload.(map[string]any)["code"])
}

func TestHandlerTagScannedAndRemoved(t *testing.T) {
	m := newTestManager(t)
	ts := startPhoneServer(t, m)

	phone := dialPhone(t, ts)
	phone.register()

	phone.scan("04abcdef", nil)
	waitForTags(t, m, phone.deviceID, 1)

	phone.send("", MessageTypeTagRemoved, TagRemovedData{DeviceID: phone.deviceID, UID: "04:AB:CD:EF"})
	waitForTags(t, m, phone.deviceID, 0)
}

func TestHandlerRejectsForeignDeviceID(t *testing.T) {
	m := newTestManager(t)
	ts := startPhoneServer(t, m)

	phone := dialPhone(t, ts)
	phone.register()

	phone.send("t1", MessageTypeTagScanned, TagData{DeviceID: "someone-else", UID: "04"})

	var resp server.WebsocketResponse
	phone.read(&resp)
	assert.Equal(t, "t1", resp.ID)
	assert.Equal(t, ErrCodeInvalidDevice, resp.Payload.(map[string]any)["code"])
}

func TestHandlerUnknownMessageType(t *testing.T) {
	m := newTestManager(t)
	ts := startPhoneServer(t, m)

	phone := dialPhone(t, ts)
	phone.register()
	phone.send("u1", "selfDestruct", nil)

	var resp server.WebsocketResponse
	phone.read(&resp)
	assert.Equal(t, "u1", resp.ID)
	assert.Equal(t, server.ErrCodeUnknownType, resp.Payload.(map[string]any)["code"])
}

func TestHandlerScanThroughTagger(t *testing.T) {
	m := newTestManager(t)
	ts := startPhoneServer(t, m)

	phone := dialPhone(t, ts)
	phone.register()

	existing, err := nfc.EncodePayload(nfc.NewPayload("before"), "en")
	require.NoError(t, err)
	phone.scan("04abcdef", existing)
	waitForTags(t, m, phone.deviceID, 1)

	info, err := newPhoneTagger(m).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "04:AB:CD:EF", info.ID)
	assert.True(t, info.IsWritable)
	require.Len(t, info.NdefMessage, 1)
	assert.Equal(t, "text", info.NdefMessage[0].Type)
	assert.Contains(t, info.NdefMessage[0].Content, `"message":"before"`)
}

func TestHandlerWriteRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ts := startPhoneServer(t, m)

	phone := dialPhone(t, ts)
	phone.register()
	phone.scan("04abcdef", nil)
	waitForTags(t, m, phone.deviceID, 1)

	tagger := newPhoneTagger(m)
	type result struct {
		report *nfc.WriteReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := tagger.Write(context.Background(), "hello phone")
		done <- result{report, err}
	}()

	var req struct {
		ID      string             `json:"id"`
		Type    string             `json:"type"`
		Payload DeviceWriteRequest `json:"payload"`
	}
	phone.read(&req)
	assert.Equal(t, MessageTypeWriteRequest, req.Type)
	assert.Equal(t, req.ID, req.Payload.RequestID)
	assert.Equal(t, phone.deviceID, req.Payload.DeviceID)
	assert.Equal(t, "04:AB:CD:EF", req.Payload.UID)

	payload, err := nfc.DecodePayload(req.Payload.RawNDEF)
	require.NoError(t, err)
	assert.Equal(t, nfc.NewPayload("hello phone"), payload)

	phone.send(req.ID, MessageTypeWriteResponse, DeviceWriteResponse{RequestID: req.Payload.RequestID, Success: true})

	var res result
	select {
	case res = <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("write did not complete")
	}
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.report.Attempts)

	d, _ := m.GetDevice(phone.deviceID)
	tags, err := d.GetTags()
	require.NoError(t, err)
	require.Len(t, tags, 1)
	data, err := tags[0].ReadData()
	require.NoError(t, err)
	assert.Equal(t, req.Payload.RawNDEF, data)
}

func TestHandlerWriteRetriesOnPhoneFailure(t *testing.T) {
	m := newTestManager(t)
	ts := startPhoneServer(t, m)

	phone := dialPhone(t, ts)
	phone.register()
	phone.scan("04abcdef", nil)
	waitForTags(t, m, phone.deviceID, 1)

	done := make(chan error, 1)
	go func() {
		_, err := newPhoneTagger(m).Write(context.Background(), "retry me")
		done <- err
	}()

	for i := 0; i < nfc.DefaultMaxAttempts; i++ {
		var req struct {
			ID string `json:"id"`
		}
		phone.read(&req)
		phone.send(req.ID, MessageTypeWriteResponse, DeviceWriteResponse{RequestID: req.ID, Error: "tag moved"})
	}

	select {
	case err := <-done:
		assert.Equal(t, nfc.ErrCodeWriteExhausted, nfc.GetErrorCode(err))
	case <-time.After(3 * time.Second):
		t.Fatal("write did not complete")
	}
}

func TestHandlerWriteResponseUsesMessageID(t *testing.T) {
	m := newTestManager(t)
	ts := startPhoneServer(t, m)

	phone := dialPhone(t, ts)
	phone.register()
	phone.scan("04abcdef", nil)
	waitForTags(t, m, phone.deviceID, 1)

	d, _ := m.GetDevice(phone.deviceID)
	tags, _ := d.GetTags()
	done := make(chan error, 1)
	go func() { done <- tags[0].WriteData(nfc.EncodeTextRecord("x", "en")) }()

	var req struct {
		ID string `json:"id"`
	}
	phone.read(&req)

	raw, err := json.Marshal(map[string]any{"success": true})
	require.NoError(t, err)
	phone.send(req.ID, MessageTypeWriteResponse, json.RawMessage(raw))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("write did not complete")
	}
}
