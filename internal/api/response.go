package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/AtividadeNgk/MaryCall/internal/models"
)

// writeJSONResponse writes a JSON response with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("API failed to encode JSON response", "error", err, "statusCode", statusCode)
	}
}

// writeAPIError writes an error envelope with the given status code.
func writeAPIError(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, models.Error(message))
}
