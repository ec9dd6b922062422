package server

import (
	"net/http"

	"github.com/HerbHall/tunnelwatch/internal/httpapi"
)

// Problem is the RFC 7807 body written by the server and every plugin.
type Problem = httpapi.Problem

func InternalError(w http.ResponseWriter, detail, instance string) {
	httpapi.WriteProblem(w, httpapi.NewProblem(http.StatusInternalServerError, detail, instance))
}

func RateLimited(w http.ResponseWriter, detail, instance string) {
	httpapi.WriteProblem(w, httpapi.NewProblem(http.StatusTooManyRequests, detail, instance))
}

func MethodNotAllowed(w http.ResponseWriter, detail, instance string) {
	httpapi.WriteProblem(w, httpapi.NewProblem(http.StatusMethodNotAllowed, detail, instance))
}
