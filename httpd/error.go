package httpd

import (
	"fmt"
	"net/http"
)

// httpError is a routing or authorization failure surfaced to the
// client as a localized plain-text response.
type httpError struct {
	status    int
	key       string
	args      []interface{}
	challenge bool
}

func (e *httpError) Error() string {
	return fmt.Sprintf("%d %s", e.status, e.key)
}

func accessDenied() *httpError {
	return &httpError{status: http.StatusUnauthorized, key: "access-denied", challenge: true}
}

func fileNotFound(path string) *httpError {
	return &httpError{status: http.StatusNotFound, key: "file-not-found", args: []interface{}{path}}
}

func notAcceptable() *httpError {
	return &httpError{status: http.StatusNotAcceptable, key: "unacceptable-accept-type"}
}

func unknownPackage(id string) *httpError {
	return &httpError{status: http.StatusNotFound, key: "package-unknown", args: []interface{}{id}}
}

func unknownPackageVersion(id, version string) *httpError {
	return &httpError{status: http.StatusNotFound, key: "package-unknown-version", args: []interface{}{id, version}}
}

func packageReadFailed(name string) *httpError {
	return &httpError{status: http.StatusInternalServerError, key: "package-read-failed", args: []interface{}{name}}
}

func paymentRequired(id, version string) *httpError {
	return &httpError{status: http.StatusPaymentRequired, key: "package-payment-required", args: []interface{}{id, version}}
}

func packageListUnavailable() *httpError {
	return &httpError{status: http.StatusServiceUnavailable, key: "package-list-unavailable"}
}

// writeError renders the failure in the negotiated language. A 401
// additionally carries the Basic challenge so browsers prompt for
// credentials.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, e *httpError) {
	lang := s.language(r)
	h := w.Header()
	h.Set("Cache-Control", "no-cache, no-store, private")
	h.Set("Content-Type", "text/plain; charset=utf-8")
	if e.challenge {
		h.Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", message(lang, "password-prompt")))
	}
	w.WriteHeader(e.status)
	fmt.Fprintln(w, message(lang, e.key, e.args...))
}
