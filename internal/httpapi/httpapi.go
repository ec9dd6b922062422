// Package httpapi holds the response writers shared by the server and the
// plugin handlers.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// problemBase prefixes the RFC 7807 type URI; the status code completes it.
const problemBase = "https://tunnelwatch.dev/problems/"

// Problem is an RFC 7807 Problem Details body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// NewProblem fills Type and Title from the status code.
func NewProblem(status int, detail, instance string) Problem {
	return Problem{
		Type:     problemBase + strconv.Itoa(status),
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// WriteProblem writes p as application/problem+json.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// Error writes a problem for r with the request path as the instance.
func Error(w http.ResponseWriter, r *http.Request, status int, detail string) {
	WriteProblem(w, NewProblem(status, detail, r.URL.Path))
}

// WriteJSON writes data as application/json.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
