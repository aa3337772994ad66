package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const maxBodyBytes = 1 << 20

// DecodeJSON decodes a single JSON object from the request body. Unknown fields and
// trailing data are rejected.
//
// Usage:
//
//	var req LoginRequest
//	if err := helpers.DecodeJSON(r, &req); err != nil {
//	    helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
//	    return
//	}
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON: trailing data")
	}
	return nil
}
