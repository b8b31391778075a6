package server

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/nedpals/vxtag-agent/logging"
	"github.com/nedpals/vxtag-agent/nfc"
)

// TagService runs NFC operations. *nfc.Tagger implements it.
type TagService interface {
	Scan(ctx context.Context) (*nfc.TagInfo, error)
	Write(ctx context.Context, message string) (*nfc.WriteReport, error)
	State() nfc.State
}

// WriteRequest is the body of a write request.
type WriteRequest struct {
	// Message becomes the payload's message field.
	Message string `json:"message" validate:"max=800"`
}

// NFCHandler exposes tag scan and write over HTTP and WebSocket.
type NFCHandler struct {
	tags TagService
	log  *logrus.Entry
}

// NewNFCHandler creates a new NFC handler.
func NewNFCHandler(tags TagService) *NFCHandler {
	return &NFCHandler{tags: tags, log: logging.For("server")}
}

// Register implements ServerHandler interface.
func (h *NFCHandler) Register(server HandlerServer) {
	server.Handle(WSMessageTypeScanRequest, func(ctx context.Context, client *Client, req WebsocketRequest) error {
		return h.handleScanWS(ctx, client, req, server)
	})
	server.Handle(WSMessageTypeWriteRequest, func(ctx context.Context, client *Client, req WebsocketRequest) error {
		return h.handleWriteWS(ctx, client, req, server)
	})

	server.HandleAPI(http.MethodGet, "/nfc/state", h.handleState)
	server.HandleAPI(http.MethodPost, "/nfc/scan", func(w http.ResponseWriter, r *http.Request) {
		h.handleScan(w, r, server)
	})
	server.HandleAPI(http.MethodPost, "/nfc/write", func(w http.ResponseWriter, r *http.Request) {
		h.handleWrite(w, r, server)
	})
}

func (h *NFCHandler) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"state": h.tags.State()})
}

func (h *NFCHandler) handleScan(w http.ResponseWriter, r *http.Request, server HandlerServer) {
	info, err := h.tags.Scan(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	server.BroadcastTagData(info)
	writeJSON(w, http.StatusOK, info)
}

func (h *NFCHandler) handleWrite(w http.ResponseWriter, r *http.Request, server HandlerServer) {
	var req WriteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}

	report, err := h.tags.Write(r.Context(), req.Message)
	if err != nil {
		writeError(w, err, report)
		return
	}
	server.BroadcastTagData(report.Tag)
	writeJSON(w, http.StatusOK, report)
}

// handleScanWS processes a scan request from a WebSocket client.
func (h *NFCHandler) handleScanWS(ctx context.Context, client *Client, req WebsocketRequest, server HandlerServer) error {
	info, err := h.tags.Scan(ctx)
	if err != nil {
		return h.sendError(client, req.ID, WSMessageTypeScanResponse, err)
	}
	server.BroadcastTagData(info)
	return client.Respond(req.ID, WSMessageTypeScanResponse, info)
}

// handleWriteWS processes a write request from a WebSocket client.
func (h *NFCHandler) handleWriteWS(ctx context.Context, client *Client, req WebsocketRequest, server HandlerServer) error {
	var writeReq WriteRequest
	if err := req.Decode(&writeReq); err != nil {
		h.log.WithError(err).Warn("Failed to parse write request")
		client.SendError(req.ID, WSMessageTypeWriteResponse, ErrCodeInvalidPayload, err.Error())
		return err
	}
	if err := validateStruct(&writeReq); err != nil {
		client.SendError(req.ID, WSMessageTypeWriteResponse, ErrCodeInvalidPayload, err.Error())
		return err
	}

	report, err := h.tags.Write(ctx, writeReq.Message)
	if err != nil {
		return h.sendError(client, req.ID, WSMessageTypeWriteResponse, err)
	}
	server.BroadcastTagData(report.Tag)
	return client.Respond(req.ID, WSMessageTypeWriteResponse, report)
}

// sendError reports err to the client and hands it back to the caller.
func (h *NFCHandler) sendError(client *Client, requestID, responseType string, err error) error {
	if sendErr := client.SendError(requestID, responseType, errorCode(err), err.Error()); sendErr != nil {
		h.log.WithError(sendErr).Warn("Failed to send error response")
	}
	return err
}
