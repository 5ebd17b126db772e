package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ErrorDTO is the JSON body written for every non-2xx response.
type ErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response. Encoding failures at this point have
// nowhere left to go; the status line is already out.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = err
	}
}

// maxRequestBodySize bounds request bodies; anything larger is rejected
// before parsing.
const maxRequestBodySize = 1 << 20 // 1 MiB

// timeNowFunc is swappable so tests can pin ID generation.
var timeNowFunc = time.Now

// generateGoalID names goals submitted without an ID.
func generateGoalID() string {
	return fmt.Sprintf("goal-%d", timeNowFunc().UnixNano())
}
