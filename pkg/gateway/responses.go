package gateway

import (
	"net/http"
	"strconv"
)

const (
	notFoundBody   = "devbox not found"
	notRunningBody = "devbox not running"
)

// writeText writes a complete plain-text response with an exact length.
func writeText(w http.ResponseWriter, code int, body string, closeConn bool) {
	h := w.Header()
	h.Set("Content-Type", "text/plain")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	if closeConn {
		h.Set("Connection", "close")
	}
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

func writeNotFound(w http.ResponseWriter) {
	writeText(w, http.StatusNotFound, notFoundBody, false)
}

func writeNotRunning(w http.ResponseWriter) {
	writeText(w, http.StatusServiceUnavailable, notRunningBody, false)
}

// writeFailure answers a failed proxy attempt. The connection is not reused.
func writeFailure(w http.ResponseWriter, code int, tag string, err error) {
	writeText(w, code, tag+": "+err.Error(), true)
}
