package server

import (
	"context"
	"net/http"

	"github.com/nedpals/vxtag-agent/editor"
)

// EditorService is the photo and sticker flow. *editor.Editor implements it.
type EditorService interface {
	State() editor.State
	PickImage(ctx context.Context) (editor.State, error)
	UsePhoto() editor.State
	Reset() editor.State
	OpenStickerPicker() editor.State
	CloseStickerPicker() editor.State
	SelectSticker(sticker string) editor.State
	SaveImage(ctx context.Context) (string, error)
}

// StickerRequest selects a sticker.
type StickerRequest struct {
	Sticker string `json:"sticker" validate:"required,max=256"`
}

// EditorHandler exposes the editor over HTTP. Every state change is also
// broadcast to WebSocket clients.
type EditorHandler struct {
	editor EditorService
}

// NewEditorHandler creates a new editor handler.
func NewEditorHandler(e EditorService) *EditorHandler {
	return &EditorHandler{editor: e}
}

// Register implements ServerHandler interface.
func (h *EditorHandler) Register(server HandlerServer) {
	respond := func(w http.ResponseWriter, s editor.State) {
		server.Broadcast(WSMessageTypeState, map[string]any{"editor": s})
		writeJSON(w, http.StatusOK, s)
	}
	simple := func(op func() editor.State) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			respond(w, op())
		}
	}

	server.HandleAPI(http.MethodGet, "/editor", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.editor.State())
	})
	server.HandleAPI(http.MethodPost, "/editor/use-photo", simple(h.editor.UsePhoto))
	server.HandleAPI(http.MethodPost, "/editor/reset", simple(h.editor.Reset))
	server.HandleAPI(http.MethodPost, "/editor/sticker/open", simple(h.editor.OpenStickerPicker))
	server.HandleAPI(http.MethodPost, "/editor/sticker/close", simple(h.editor.CloseStickerPicker))

	server.HandleAPI(http.MethodPost, "/editor/pick", func(w http.ResponseWriter, r *http.Request) {
		s, err := h.editor.PickImage(r.Context())
		if err != nil {
			writeError(w, err, s)
			return
		}
		respond(w, s)
	})

	server.HandleAPI(http.MethodPost, "/editor/sticker", func(w http.ResponseWriter, r *http.Request) {
		var req StickerRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err, nil)
			return
		}
		respond(w, h.editor.SelectSticker(req.Sticker))
	})

	server.HandleAPI(http.MethodPost, "/editor/save", func(w http.ResponseWriter, r *http.Request) {
		uri, err := h.editor.SaveImage(r.Context())
		if err != nil {
			writeError(w, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"uri": uri})
	})
}
