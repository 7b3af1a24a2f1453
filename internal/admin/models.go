package admin

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// submitRequest carries dual-purpose lock-screen input: a redemption code
// or the admin PIN.
type submitRequest struct {
	Input string `json:"input"`
}

type redeemRequest struct {
	Code string `json:"code"`
}

// generateCodesRequest accepts either an explicit grant list or a count of
// identical codes.
type generateCodesRequest struct {
	Grants  []int `json:"grants,omitempty"`
	Count   int   `json:"count,omitempty"`
	Minutes int   `json:"minutes,omitempty"`
}

type setLimitRequest struct {
	Minutes int `json:"minutes"`
}

type setFlagRequest struct {
	Enabled bool `json:"enabled"`
}

type setPinRequest struct {
	Pin string `json:"pin"`
}

type foregroundEventRequest struct {
	Package string `json:"package"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}
