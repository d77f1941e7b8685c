package handlers

import (
	"net/http"
)

// RegisterSync mounts the standalone routes
func RegisterSync(mux *http.ServeMux, h *SyncHandler, metrics http.Handler) {
	mux.HandleFunc("GET /health", HandleHealth("standalone"))
	mux.HandleFunc("POST /v1/animate", h.HandleAnimate)
	mux.HandleFunc("POST /v1/concepts", h.HandleConcepts)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
}

// RegisterAsync mounts the worker routes
func RegisterAsync(mux *http.ServeMux, h *AsyncHandler, metrics http.Handler) {
	mux.HandleFunc("GET /health", HandleHealth("worker"))
	mux.HandleFunc("POST /v1/process", h.HandleProcessAsync)
	mux.HandleFunc("GET /v1/runs/{id}", h.HandleStatus)
	mux.HandleFunc("POST /v1/submissions/seen", h.HandleSeen)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
}
