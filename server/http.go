package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nedpals/vxtag-agent/editor"
	"github.com/nedpals/vxtag-agent/nfc"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrorBody is the JSON body of a failed HTTP request.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	// Details carries a partial result, such as a write report.
	Details any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error, details any) {
	writeJSON(w, statusForError(err), ErrorBody{
		Error:   err.Error(),
		Code:    errorCode(err),
		Details: details,
	})
}

// decodeBody reads a JSON body into v and validates it. An empty body is
// treated as an empty object.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &requestError{msg: fmt.Sprintf("invalid JSON body: %v", err)}
	}
	return validateStruct(v)
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
			}
			return &requestError{msg: strings.Join(msgs, "; ")}
		}
		return &requestError{msg: err.Error()}
	}
	return nil
}

// requestError marks a malformed request.
type requestError struct {
	msg string
}

func (e *requestError) Error() string {
	return e.msg
}

func errorCode(err error) string {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return ErrCodeInvalidPayload
	}
	if code := nfc.GetErrorCode(err); code != 0 {
		return code.String()
	}
	switch {
	case errors.Is(err, editor.ErrNoSelection):
		return "NoSelection"
	case errors.Is(err, editor.ErrPermissionDenied):
		return "PermissionDenied"
	}
	return ErrCodeInternal
}

func statusForError(err error) int {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest
	}
	switch nfc.GetErrorCode(err) {
	case nfc.ErrCodeBusy:
		return http.StatusConflict
	case nfc.ErrCodeNoTagPresent, nfc.ErrCodeTagRemoved:
		return http.StatusNotFound
	case nfc.ErrCodeAcquireTimeout:
		return http.StatusGatewayTimeout
	case nfc.ErrCodeTagNotWritable, nfc.ErrCodeReadOnly, nfc.ErrCodeInvalidData:
		return http.StatusUnprocessableEntity
	case nfc.ErrCodeNotSupported:
		return http.StatusServiceUnavailable
	case nfc.ErrCodeWriteExhausted, nfc.ErrCodeWriteFailed:
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, editor.ErrNoSelection):
		return http.StatusUnprocessableEntity
	case errors.Is(err, editor.ErrPermissionDenied):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
