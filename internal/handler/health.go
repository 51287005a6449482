package handler

import (
	"net/http"
	"time"
)

// HandleHealth reports liveness for load balancers and uptime checks.
//
// HTTP: GET /health
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
