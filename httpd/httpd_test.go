package httpd

import (
	"archive/tar"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/quay/zlog"

	"github.com/packserv/packserv/auth"
	"github.com/packserv/packserv/counter"
	"github.com/packserv/packserv/internal/srcfiles"
	"github.com/packserv/packserv/inventory"
)

func packageXML(name, version string) string {
	return fmt.Sprintf(`<package name="%s">
	<packageinformation>
		<packagename>%s</packagename>
		<packagename language="de">%s (deutsch)</packagename>
		<version>%s</version>
		<date>2021-07-21</date>
		<license>MIT &lt;https://opensource.org/licenses/MIT&gt;</license>
	</packageinformation>
	<authorinformation>
		<author>Example Author</author>
	</authorinformation>
	<instructions type="install">
		<file>files.tar</file>
	</instructions>
	<instructions type="update" fromversion="0.9.0">
		<file>update.tar</file>
	</instructions>
</package>`, name, name, name, version)
}

func writeTar(t *testing.T, path, manifest string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	tw := tar.NewWriter(f)
	if err := tw.WriteHeader(&tar.Header{
		Name:     "package.xml",
		Mode:     0644,
		Size:     int64(len(manifest)),
		Typeflag: tar.TypeReg,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(manifest)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
}

const authJSON = `{
	"users": {
		"bar": {
			"passwd": "Bcrypt:$2y$10$0QxMnGyTrXnL7ngq2y/qFui3H2IaEuXfNwbLWR50m9Yarp0HZwEmq"
		}
	},
	"packages": {
		"com.example.foo": "1.0.0 <= $v < 2.0.0"
	}
}`

// newTestServer builds a server over a fixture directory holding
// com.example.foo in versions 0.9.0, 1.2.3 and 2.0.0, of which only
// 1.2.3 is open to everyone.
func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	ctx := zlog.Test(context.Background(), t)
	dir := t.TempDir()
	foo := filepath.Join(dir, "com.example.foo")
	if err := os.Mkdir(foo, 0755); err != nil {
		t.Fatal(err)
	}
	for _, v := range []string{"0.9.0", "1.2.3", "2.0.0"} {
		writeTar(t, filepath.Join(foo, v+".tar"), packageXML("com.example.foo", v))
	}

	cfg, err := auth.Parse([]byte(authJSON))
	if err != nil {
		t.Fatal(err)
	}
	snap, err := inventory.Scan(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	state := &inventory.State{}
	state.SetAuth(cfg)
	state.SetSnapshot(snap)

	sources, err := srcfiles.Load(fstest.MapFS{
		"go.mod":                    {Data: []byte("module example.test\n")},
		"assets/static/main.js":     {Data: []byte("console.log('hi')\n")},
		"assets/static/main.js.map": {Data: []byte("{}")},
		"assets/static/favicon.ico": {Data: []byte{0, 0, 1, 0}},
		"assets/style/main.xslt":    {Data: []byte("<xsl:stylesheet/>")},
	})
	if err != nil {
		t.Fatal(err)
	}

	s := New(Opts{
		State:            state,
		Counter:          counter.New(dir),
		PackageDir:       dir,
		Sources:          sources,
		Deterministic:    true,
		EnableStatistics: true,
		Version:          "test",
	})
	return s, dir
}

func do(t *testing.T, s *Server, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r = r.WithContext(zlog.Test(r.Context(), t))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	return w
}

func TestDefaultHeaders(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, httptest.NewRequest("GET", "http://updates.test/health", nil))
	if got := w.Header().Get("wcf-update-server-api"); got != "2.0 2.1 3.1" {
		t.Errorf("wcf-update-server-api: got %q", got)
	}
	if got := w.Header().Get("wcf-update-server-ssl"); got != "false" {
		t.Errorf("wcf-update-server-ssl: got %q", got)
	}
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("health: got %d %q", w.Code, w.Body.String())
	}
}

func TestDownloadAuthorized(t *testing.T) {
	s, dir := newTestServer(t)
	r := httptest.NewRequest("GET", "http://updates.test/com.example.foo/1.2.3/", nil)
	r.SetBasicAuth("bar", "bar")
	w := do(t, s, r)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}
	want, err := os.ReadFile(filepath.Join(dir, "com.example.foo", "1.2.3.tar"))
	if err != nil {
		t.Fatal(err)
	}
	if w.Body.String() != string(want) {
		t.Error("body does not match the file on disk")
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="com.example.foo_v1.2.3.tar"` {
		t.Errorf("Content-Disposition: got %q", got)
	}
	if got := w.Header().Get("Content-Type"); got != "application/x-tar" {
		t.Errorf("Content-Type: got %q", got)
	}
	if w.Header().Get("ETag") == "" || w.Header().Get("Last-Modified") == "" {
		t.Error("missing validators")
	}
	b, err := os.ReadFile(filepath.Join(dir, "com.example.foo", "1.2.3.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "1" {
		t.Errorf("counter file: got %q, want 1", b)
	}
}

func TestLatestRedirect(t *testing.T) {
	s, _ := newTestServer(t)
	for _, p := range []string{"/com.example.foo/", "/com.example.foo/latest/"} {
		w := do(t, s, httptest.NewRequest("GET", "http://updates.test"+p, nil))
		if w.Code != http.StatusSeeOther {
			t.Fatalf("%s: got %d, want 303", p, w.Code)
		}
		// 2.0.0 is on disk but outside the granted range.
		if got := w.Header().Get("Location"); got != "http://updates.test/com.example.foo/1.2.3/" {
			t.Errorf("%s: Location %q", p, got)
		}
	}
}

func TestDownloadDenied(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, httptest.NewRequest("GET", "http://updates.test/com.example.foo/0.9.0/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); !strings.HasPrefix(got, "Basic realm=") {
		t.Errorf("WWW-Authenticate: got %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache, no-store, private" {
		t.Errorf("Cache-Control: got %q", got)
	}

	w = do(t, s, httptest.NewRequest("GET", "http://updates.test/com.example.foo/0.9.0/?apiVersion=2.1", nil))
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("with apiVersion=2.1: got %d, want 402", w.Code)
	}

	// A version that is neither on disk nor accessible hides as an
	// unknown package.
	w = do(t, s, httptest.NewRequest("GET", "http://updates.test/com.example.foo/0.1.0/", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing denied version: got %d, want 404", w.Code)
	}
}

func TestDownloadUnknown(t *testing.T) {
	s, _ := newTestServer(t)
	// Accessible by the global rules but no file on disk.
	w := do(t, s, httptest.NewRequest("GET", "http://updates.test/com.example.foo/1.9.9/", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", w.Code)
	}
	w = do(t, s, httptest.NewRequest("GET", "http://updates.test/com.example.nope/", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown package: got %d, want 404", w.Code)
	}
}

func TestUpdateXML(t *testing.T) {
	s, _ := newTestServer(t)
	r := httptest.NewRequest("GET", "http://updates.test/", nil)
	r.Header.Set("Accept", "text/xml")
	w := do(t, s, r)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "text/xml; charset=utf-8" {
		t.Errorf("Content-Type: got %q", got)
	}
	if got := w.Header().Get("Vary"); got != "accept, accept-language" {
		t.Errorf("Vary: got %q", got)
	}
	body := w.Body.String()
	if !strings.Contains(body, `<package name="com.example.foo">`) {
		t.Error("body is missing the package element")
	}
	if !strings.Contains(body, `<version name="1.2.3" accessible="true"`) {
		t.Error("1.2.3 should be accessible")
	}
	if !strings.Contains(body, `<version name="2.0.0" accessible="false"`) {
		t.Error("2.0.0 should not be accessible")
	}
	if !strings.Contains(body, "<file>http://updates.test/com.example.foo/1.2.3/</file>") {
		t.Error("accessible version has no file URL")
	}
	if strings.Contains(body, "/com.example.foo/2.0.0/") {
		t.Error("inaccessible version leaks a file URL")
	}
	if !strings.Contains(body, "<fromversion>0.9.0</fromversion>") {
		t.Error("missing fromversion")
	}
	if !strings.Contains(body, `<license url="https://opensource.org/licenses/MIT">MIT</license>`) {
		t.Error("missing license")
	}
}

func TestUpdateXMLNotAcceptable(t *testing.T) {
	s, _ := newTestServer(t)
	r := httptest.NewRequest("GET", "http://updates.test/", nil)
	r.Header.Set("Accept", "application/json")
	w := do(t, s, r)
	if w.Code != http.StatusNotAcceptable {
		t.Errorf("got %d, want 406", w.Code)
	}
}

func TestUpdateXMLUnavailable(t *testing.T) {
	s, _ := newTestServer(t)
	s.opts.State = &inventory.State{}
	w := do(t, s, httptest.NewRequest("GET", "http://updates.test/", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("got %d, want 503", w.Code)
	}
}

func TestListNotModified(t *testing.T) {
	s, _ := newTestServer(t)
	first := do(t, s, httptest.NewRequest("GET", "http://updates.test/list/de.xml", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", first.Code)
	}
	etag := first.Header().Get("ETag")
	modified := first.Header().Get("Last-Modified")
	if etag == "" || modified == "" {
		t.Fatal("missing validators")
	}
	if strings.HasPrefix(etag, "W/") {
		t.Error("deterministic entity tag should be strong")
	}
	if !strings.Contains(first.Body.String(), "com.example.foo (deutsch)") {
		t.Error("forced language was not applied")
	}

	r := httptest.NewRequest("GET", "http://updates.test/list/de.xml", nil)
	r.Header.Set("If-None-Match", etag)
	second := do(t, s, r)
	if second.Code != http.StatusNotModified {
		t.Fatalf("got %d, want 304", second.Code)
	}
	if second.Header().Get("ETag") != etag || second.Header().Get("Last-Modified") != modified {
		t.Error("validators changed between identical requests")
	}
}

func TestRootRedirectParams(t *testing.T) {
	s, _ := newTestServer(t)
	form := url.Values{
		"packageName":    {"com.example.foo"},
		"packageVersion": {"1.2.3"},
	}
	r := httptest.NewRequest("POST", "http://updates.test/", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := do(t, s, r)
	if w.Code != http.StatusMovedPermanently {
		t.Fatalf("got %d, want 301", w.Code)
	}
	if got := w.Header().Get("Location"); got != "http://updates.test/com.example.foo/1.2.3/" {
		t.Errorf("Location: got %q", got)
	}

	// Without a version the redirect drops the trailing segment.
	r = httptest.NewRequest("POST", "http://updates.test/", strings.NewReader("packageName=com.example.foo"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = do(t, s, r)
	if got := w.Header().Get("Location"); got != "http://updates.test/com.example.foo/" {
		t.Errorf("Location: got %q", got)
	}
}

func TestLogin(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, httptest.NewRequest("GET", "http://updates.test/login/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: got %d, want 401", w.Code)
	}

	r := httptest.NewRequest("GET", "http://updates.test/login/", nil)
	r.SetBasicAuth("bar", "bar")
	w = do(t, s, r)
	if w.Code != http.StatusSeeOther {
		t.Errorf("authenticated: got %d, want 303", w.Code)
	}
	if got := w.Header().Get("Location"); got != "/" {
		t.Errorf("Location: got %q", got)
	}

	r = httptest.NewRequest("GET", "http://updates.test/login/", nil)
	r.SetBasicAuth("bar", "wrong")
	w = do(t, s, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: got %d, want 401", w.Code)
	}
}

func TestSourceIndex(t *testing.T) {
	s, _ := newTestServer(t)

	r := httptest.NewRequest("GET", "http://updates.test/source/", nil)
	r.Header.Set("Accept", "text/html")
	w := do(t, s, r)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Errorf("Content-Type: got %q", got)
	}
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `"html-en-`) {
		t.Errorf("ETag: got %q", etag)
	}
	if !strings.Contains(w.Body.String(), "go.mod") {
		t.Error("index is missing go.mod")
	}

	r = httptest.NewRequest("GET", "http://updates.test/source/", nil)
	r.Header.Set("Accept", "text/plain")
	w = do(t, s, r)
	if got := w.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("plain Content-Type: got %q", got)
	}

	r = httptest.NewRequest("GET", "http://updates.test/source/", nil)
	r.Header.Set("Accept", "application/json")
	if w = do(t, s, r); w.Code != http.StatusNotAcceptable {
		t.Errorf("got %d, want 406", w.Code)
	}

	r = httptest.NewRequest("GET", "http://updates.test/source/", nil)
	r.Header.Set("Accept", "text/html")
	r.Header.Set("If-None-Match", etag)
	if w = do(t, s, r); w.Code != http.StatusNotModified {
		t.Errorf("conditional: got %d, want 304", w.Code)
	}
}

func TestSourceFile(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, httptest.NewRequest("GET", "http://updates.test/source/go.mod", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}
	// Unknown and textual extensions are displayable plain text, no
	// matter what the host's mime database says.
	if got := w.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type: got %q", got)
	}
	etag := w.Header().Get("ETag")
	if !strings.Contains(etag, "sha384-") {
		t.Errorf("ETag: got %q", etag)
	}
	if got := w.Header().Get("Cache-Control"); got != "public" {
		t.Errorf("Cache-Control: got %q", got)
	}

	r := httptest.NewRequest("GET", "http://updates.test/source/go.mod", nil)
	r.Header.Set("If-None-Match", etag)
	if w = do(t, s, r); w.Code != http.StatusNotModified {
		t.Errorf("replayed validator: got %d, want 304", w.Code)
	}

	// Non-text types survive as themselves.
	w = do(t, s, httptest.NewRequest("GET", "http://updates.test/source/assets/static/favicon.ico", nil))
	if got := w.Header().Get("Content-Type"); got != "image/vnd.microsoft.icon" {
		t.Errorf("icon Content-Type: got %q", got)
	}

	w = do(t, s, httptest.NewRequest("GET", "http://updates.test/source/missing.go", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing file: got %d, want 404", w.Code)
	}
}

func TestStaticAssets(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, httptest.NewRequest("GET", "http://updates.test/static/main.js", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}
	if got := w.Header().Get("Cache-Control"); got != "public" {
		t.Errorf("Cache-Control: got %q", got)
	}
	if got := w.Header().Get("Content-Type"); got != "text/javascript; charset=utf-8" {
		t.Errorf("Content-Type: got %q", got)
	}

	w = do(t, s, httptest.NewRequest("GET", "http://updates.test/static/main.js.map", nil))
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("map Content-Type: got %q", got)
	}

	w = do(t, s, httptest.NewRequest("GET", "http://updates.test/favicon.ico", nil))
	if w.Code != http.StatusOK {
		t.Errorf("favicon: got %d, want 200", w.Code)
	}

	w = do(t, s, httptest.NewRequest("GET", "http://updates.test/static/missing.js", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing asset: got %d, want 404", w.Code)
	}
}

func TestAboutPage(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, httptest.NewRequest("GET", "http://updates.test/about/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Errorf("Content-Type: got %q", got)
	}
	if !strings.Contains(w.Body.String(), "Package Update Server") {
		t.Error("missing default title")
	}
}
