package httpd

import (
	"net/http"
	"strings"
	"time"
)

// opaqueTag strips the weakness marker and quotes from an entity tag,
// leaving the opaque value for weak comparison.
func opaqueTag(s string) string {
	s = strings.TrimPrefix(s, "W/")
	return strings.Trim(s, `"`)
}

// noneMatch reports whether tag matches none of the request's
// If-None-Match values. Comparison is weak: only the opaque values are
// compared.
func noneMatch(r *http.Request, tag string) bool {
	for _, header := range r.Header.Values("If-None-Match") {
		for _, item := range strings.Split(header, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			if item == "*" || opaqueTag(item) == tag {
				return false
			}
		}
	}
	return true
}

// notModified decides whether a 304 may be served for a resource with
// the given tag and modification time. If-Modified-Since is only
// consulted when the request has no If-None-Match header, and a zero
// modification time disables it.
func notModified(r *http.Request, tag string, modified time.Time) bool {
	if tag != "" && !noneMatch(r, tag) {
		return true
	}
	if len(r.Header.Values("If-None-Match")) > 0 {
		return false
	}
	if modified.IsZero() {
		return false
	}
	since, err := http.ParseTime(r.Header.Get("If-Modified-Since"))
	if err != nil {
		return false
	}
	return !modified.Truncate(time.Second).After(since)
}

// etagValue renders an entity tag for the ETag header.
func etagValue(tag string, weak bool) string {
	if weak {
		return `W/"` + tag + `"`
	}
	return `"` + tag + `"`
}
