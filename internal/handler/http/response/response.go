package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type Message struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

type Error struct {
	Error string `json:"error"`
}
