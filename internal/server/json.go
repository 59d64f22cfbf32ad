// Copyright (c) 2025 Northbound System
package server

import (
	"encoding/json"
	"net/http"
	"time"
)

const timeFormat = time.RFC3339

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
