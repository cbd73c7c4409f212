package httpd

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"path"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/quay/zlog"

	"github.com/packserv/packserv/internal/srcfiles"
)

//go:embed templates
var templateFS embed.FS

var (
	aboutTmpl      = template.Must(template.ParseFS(templateFS, "templates/about.html"))
	sourceHTMLTmpl = template.Must(template.ParseFS(templateFS, "templates/source_index.html"))
	sourceTextTmpl = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/source_index.txt"))
)

// about renders the server information page.
func (s *Server) about(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/about/" {
		s.writeError(w, r, fileNotFound(r.URL.Path))
		return
	}
	lang := s.language(r)
	var uptime string
	if !s.opts.Deterministic {
		uptime = time.Since(s.start).Round(time.Second).String()
	}
	data := struct {
		Lang, Title, Heading  string
		VersionLabel, Version string
		UptimeLabel, Uptime   string
		SourceLabel, Host     string
	}{
		Lang:         lang.String(),
		Title:        s.title(),
		Heading:      message(lang, "about-heading"),
		VersionLabel: message(lang, "about-version"),
		Version:      s.opts.Version,
		UptimeLabel:  message(lang, "about-uptime"),
		Uptime:       uptime,
		SourceLabel:  message(lang, "about-source-link"),
		Host:         s.host(r),
	}
	var buf bytes.Buffer
	if err := aboutTmpl.Execute(&buf, &data); err != nil {
		zlog.Error(r.Context()).Err(err).Msg("failed to render about page")
		s.writeError(w, r, packageReadFailed("about"))
		return
	}
	h := w.Header()
	h.Set("Vary", "accept-language")
	h.Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// source serves the index of the server's own source tree and the
// individual files in it.
func (s *Server) source(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/source/")
	if name != "" {
		s.sourceFile(w, r, name)
		return
	}

	format, ok := sourceFormat(r)
	if !ok {
		s.writeError(w, r, notAcceptable())
		return
	}
	lang := s.language(r)
	kind := "html"
	if format == "text" {
		kind = "txt"
	}
	tag := kind + "-" + lang.String() + "-" + s.opts.Sources.CombinedDigest

	h := w.Header()
	h.Set("Cache-Control", "public")
	h.Set("ETag", etagValue(tag, false))
	h.Set("Vary", "accept, accept-language")
	if notModified(r, tag, time.Time{}) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	data := struct {
		Lang, Title, Heading, Host string
		Files                      []srcfiles.File
	}{
		Lang:    lang.String(),
		Title:   s.title(),
		Heading: message(lang, "source-heading"),
		Host:    s.host(r),
		Files:   s.opts.Sources.Files(),
	}
	var buf bytes.Buffer
	var err error
	if format == "html" {
		h.Set("Content-Type", "text/html; charset=utf-8")
		err = sourceHTMLTmpl.Execute(&buf, &data)
	} else {
		h.Set("Content-Type", "text/plain; charset=utf-8")
		err = sourceTextTmpl.Execute(&buf, &data)
	}
	if err != nil {
		zlog.Error(r.Context()).Err(err).Msg("failed to render source index")
		s.writeError(w, r, packageReadFailed("source index"))
		return
	}
	w.Write(buf.Bytes())
}

// Content types by extension. A fixed table keeps responses
// independent of the host's mime database.
var extTypes = map[string]string{
	".css":  "text/css; charset=utf-8",
	".html": "text/html; charset=utf-8",
	".ico":  "image/vnd.microsoft.icon",
	".js":   "text/javascript; charset=utf-8",
	".json": "application/json",
	".md":   "text/markdown; charset=utf-8",
	".png":  "image/png",
	".svg":  "image/svg+xml",
	".tar":  "application/x-tar",
	".txt":  "text/plain; charset=utf-8",
	".xml":  "text/xml; charset=utf-8",
	".xslt": "text/xsl; charset=utf-8",
}

// sourceFile serves one embedded source file as displayable text.
func (s *Server) sourceFile(w http.ResponseWriter, r *http.Request, name string) {
	f := s.opts.Sources.Get(name)
	if f == nil {
		s.writeError(w, r, fileNotFound(name))
		return
	}
	ct := extTypes[path.Ext(name)]
	// Let browsers display the file instead of downloading it.
	if ct == "" || strings.HasPrefix(ct, "text/") {
		ct = "text/plain; charset=utf-8"
	}
	h := w.Header()
	h.Set("ETag", etagValue(f.Digest, false))
	h.Set("Cache-Control", "public")
	if notModified(r, f.Digest, time.Time{}) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.Set("Content-Type", ct)
	w.Write(f.Contents)
}

// static serves the embedded assets.
func (s *Server) static(w http.ResponseWriter, r *http.Request) {
	s.serveAsset(w, r, strings.TrimPrefix(r.URL.Path, "/static/"))
}

func (s *Server) favicon(w http.ResponseWriter, r *http.Request) {
	s.serveAsset(w, r, "favicon.ico")
}

// stylesheet serves the XSL document the update list references for
// in-browser rendering.
func (s *Server) stylesheet(w http.ResponseWriter, r *http.Request) {
	f := s.opts.Sources.Get("assets/style/main.xslt")
	if f == nil {
		s.writeError(w, r, fileNotFound(r.URL.Path))
		return
	}
	h := w.Header()
	h.Set("ETag", etagValue(f.Digest, false))
	h.Set("Cache-Control", "public")
	h.Set("Content-Type", "text/xsl; charset=utf-8")
	w.Write(f.Contents)
}

func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request, name string) {
	file := "assets/static/" + name
	f := s.opts.Sources.Get(file)
	if f == nil {
		s.writeError(w, r, fileNotFound(file))
		return
	}
	h := w.Header()
	h.Set("ETag", etagValue(f.Digest, false))
	h.Set("Cache-Control", "public")
	if notModified(r, f.Digest, time.Time{}) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	var ct string
	switch {
	case strings.HasSuffix(name, ".js.map"):
		ct = "application/json"
	default:
		ct = extTypes[path.Ext(name)]
		if ct == "" {
			ct = "application/octet-stream"
		}
	}
	h.Set("Content-Type", ct)
	w.Write(f.Contents)
}
