// Package httpd implements the HTTP surface of the package update
// server: the update-list XML, package downloads, the login probe and
// the pages serving the server's own source and assets.
package httpd

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quay/zlog"

	"github.com/packserv/packserv/auth"
	"github.com/packserv/packserv/counter"
	"github.com/packserv/packserv/internal/srcfiles"
	"github.com/packserv/packserv/inventory"
)

var _ http.Handler = (*Server)(nil)

// Opts configures a Server.
type Opts struct {
	// State provides the published inventory snapshot and auth
	// configuration.
	State *inventory.State
	// Counter records download counts when EnableStatistics is set.
	Counter *counter.Store
	// PackageDir is the directory the tar files are read from.
	PackageDir string
	// Sources is the embedded source and asset tree.
	Sources *srcfiles.Set

	// SSL is reported verbatim in the wcf-update-server-ssl header.
	SSL bool
	// Deterministic suppresses timing information in rendered output
	// and makes the update-list entity tag strong.
	Deterministic bool
	// EnableStatistics gates the download counters.
	EnableStatistics bool

	// PageTitle overrides the default page title.
	PageTitle string
	// Host overrides the scheme and authority used in self-URLs.
	Host string
	// Version is the server version reported on rendered pages.
	Version string
}

// Server handles every route of the update server.
type Server struct {
	*http.ServeMux
	opts  Opts
	start time.Time
}

// New returns a ready Server.
func New(opts Opts) *Server {
	s := &Server{opts: opts, start: time.Now()}
	m := http.NewServeMux()
	m.HandleFunc("/health", s.health)
	m.HandleFunc("/about/", s.about)
	m.HandleFunc("/login/", s.login)
	m.HandleFunc("/list/", s.list)
	m.HandleFunc("/source/", s.source)
	m.HandleFunc("/static/", s.static)
	m.HandleFunc("/favicon.ico", s.favicon)
	m.HandleFunc("/style/main.xslt", s.stylesheet)
	m.HandleFunc("/", s.root)
	s.ServeMux = m
	return s
}

// ServeHTTP attaches the request id and the update-server headers
// every response must carry, then dispatches.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := zlog.ContextWithValues(r.Context(),
		"request_id", uuid.New().String(),
		"method", r.Method,
		"path", r.URL.Path)
	h := w.Header()
	h.Set("wcf-update-server-api", "2.0 2.1 3.1")
	h.Set("wcf-update-server-ssl", strconv.FormatBool(s.opts.SSL))
	s.ServeMux.ServeHTTP(w, r.WithContext(ctx))
}

var versionRe = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+(?:_(?:a|alpha|b|beta|d|dev|rc|pl)_[0-9]+)?$`)

// root serves the update-list XML on "/" and dispatches the package
// redirect and download routes. A missing trailing slash is tolerated.
func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	if p == "/" {
		s.updateXML(w, r, "")
		return
	}
	seg := strings.Split(strings.Trim(p, "/"), "/")
	switch {
	case len(seg) == 1 && inventory.ValidPackageID(seg[0]):
		s.latest(w, r, seg[0])
	case len(seg) == 2 && inventory.ValidPackageID(seg[0]) && seg[1] == "latest":
		s.latest(w, r, seg[0])
	case len(seg) == 2 && inventory.ValidPackageID(seg[0]) && versionRe.MatchString(seg[1]):
		s.download(w, r, seg[0], seg[1])
	default:
		s.writeError(w, r, fileNotFound(p))
	}
}

var listRe = regexp.MustCompile(`^/list/([a-zA-Z0-9_-]+)\.xml$`)

// list serves the update-list XML with the language forced by the
// path.
func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	ms := listRe.FindStringSubmatch(r.URL.Path)
	if ms == nil {
		s.writeError(w, r, fileNotFound(r.URL.Path))
		return
	}
	s.updateXML(w, r, ms[1])
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

// login answers the password probe: a resolvable identity redirects
// home, anything else gets the Basic challenge.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	_, user := s.identity(r)
	if user == "" {
		s.writeError(w, r, accessDenied())
		return
	}
	w.Header().Set("Location", "/")
	w.WriteHeader(http.StatusSeeOther)
}

// identity resolves the request's Basic credentials against the
// published auth configuration. The user is empty for anonymous or
// failed authentication.
func (s *Server) identity(r *http.Request) (*auth.Config, string) {
	cfg := s.opts.State.Auth()
	if cfg == nil {
		cfg = &auth.Config{}
	}
	var user string
	if name, passwd, ok := r.BasicAuth(); ok {
		user = cfg.Identify(name, passwd)
	}
	return cfg, user
}

// host returns the base URL self-references are built from.
func (s *Server) host(r *http.Request) string {
	if s.opts.Host != "" {
		return s.opts.Host
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// param reads a request parameter, with a form field overriding the
// query string.
func param(r *http.Request, key string) string {
	if v := r.PostFormValue(key); v != "" {
		return v
	}
	return r.URL.Query().Get(key)
}

func (s *Server) title() string {
	if s.opts.PageTitle != "" {
		return s.opts.PageTitle
	}
	return "Package Update Server"
}
