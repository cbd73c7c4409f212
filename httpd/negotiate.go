package httpd

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
)

type mediaRange struct {
	typ, sub string
	q        float64
}

// parseAccept parses an Accept header into media ranges ordered by
// descending quality. Malformed items and items with q=0 are dropped.
func parseAccept(header string) []mediaRange {
	var out []mediaRange
	for _, item := range strings.Split(header, ",") {
		parts := strings.Split(item, ";")
		mt := strings.TrimSpace(parts[0])
		typ, sub, ok := strings.Cut(mt, "/")
		if !ok || typ == "" || sub == "" {
			continue
		}
		q := 1.0
		for _, p := range parts[1:] {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(k), "q") {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				continue
			}
			q = f
		}
		if q <= 0 {
			continue
		}
		out = append(out, mediaRange{typ: strings.ToLower(typ), sub: strings.ToLower(sub), q: q})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].q > out[j].q })
	return out
}

// acceptsXML reports whether the client accepts the update-list
// document. A missing or empty Accept header accepts everything.
func acceptsXML(r *http.Request) bool {
	header := strings.Join(r.Header.Values("Accept"), ",")
	if strings.TrimSpace(header) == "" {
		return true
	}
	ranked := parseAccept(header)
	if len(ranked) == 0 {
		return true
	}
	for _, m := range ranked {
		if (m.typ == "text" && m.sub == "xml") || m.typ == "*" {
			return true
		}
	}
	return false
}

// sourceFormat picks the rendering of the source index: "html" for
// text/html or a wildcard, "text" for text/plain. A missing header
// gets the text rendering; anything else is unacceptable.
func sourceFormat(r *http.Request) (string, bool) {
	header := strings.Join(r.Header.Values("Accept"), ",")
	if strings.TrimSpace(header) == "" {
		return "text", true
	}
	ranked := parseAccept(header)
	if len(ranked) == 0 {
		return "text", true
	}
	for _, m := range ranked {
		switch {
		case m.typ == "text" && m.sub == "html":
			return "html", true
		case m.typ == "text" && m.sub == "plain":
			return "text", true
		case m.typ == "*":
			return "html", true
		}
	}
	return "", false
}
