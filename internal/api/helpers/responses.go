package helpers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("json_response_encode_failed", "status", status, "error", err)
	}
}

// RespondError writes {"error": message}. Messages reach clients as-is; callers pass
// generic text, never wrapped internal errors.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondText writes a plain-text body, for handshakes that must echo a value verbatim.
func RespondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		slog.Debug("text_response_write_failed", "error", err)
	}
}
