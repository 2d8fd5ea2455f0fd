package middleware

import (
	"encoding/json"
	"net/http"
)

// errorEnvelope matches the handler package's error shape so middleware
// rejections look the same to clients as service-level ones.
type errorEnvelope struct {
	Error string `json:"error"`
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: msg})
}
