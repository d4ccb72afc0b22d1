package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"
)

// Error kinds returned in the error envelope.
const (
	ErrorKindAPI            = "api_error"
	ErrorKindAuthentication = "authentication_error"
	ErrorKindPermission     = "permission_error"
	ErrorKindOverloaded     = "overloaded_error"
	ErrorKindInvalidRequest = "invalid_request_error"
	ErrorKindTooLarge       = "request_too_large"
)

// errorEnvelope builds {"type":"error","error":{"type":kind,"message":msg}}
// with exactly that key order.
func errorEnvelope(kind, message string) []byte {
	body := []byte(`{"type":"error"}`)
	body, _ = sjson.SetBytes(body, "error.type", kind)
	body, _ = sjson.SetBytes(body, "error.message", message)
	return body
}

// writeError writes the error envelope as a complete JSON response.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(errorEnvelope(kind, message)); err != nil {
		log.Debug().Err(err).Msg("failed to write error response")
	}
}
