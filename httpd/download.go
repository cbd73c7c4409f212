package httpd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/quay/zlog"

	"github.com/packserv/packserv"
)

// latest redirects to the newest version of the package the requester
// may access.
func (s *Server) latest(w http.ResponseWriter, r *http.Request, id string) {
	cfg, user := s.identity(r)
	snapshot := s.opts.State.Snapshot()
	if snapshot == nil {
		s.writeError(w, r, packageListUnavailable())
		return
	}
	pkg := snapshot.Find(id)
	if pkg == nil {
		s.writeError(w, r, unknownPackage(id))
		return
	}
	for i := len(pkg) - 1; i >= 0; i-- {
		v := pkg[i].Manifest.Info.Version
		if cfg.Accessible(id, v, user) {
			w.Header().Set("Location", s.host(r)+"/"+id+"/"+v.URL()+"/")
			w.WriteHeader(http.StatusSeeOther)
			return
		}
	}
	// The package exists but no version is open to this requester.
	s.writeError(w, r, accessDenied())
}

// download serves one package tar. The version comes from the URL and
// is not required to be present in the current snapshot; access and
// the file on disk decide.
func (s *Server) download(w http.ResponseWriter, r *http.Request, id, verStr string) {
	ctx := r.Context()
	v, err := packserv.ParseURL(verStr)
	if err != nil {
		s.writeError(w, r, unknownPackageVersion(id, verStr))
		return
	}
	cfg, user := s.identity(r)

	downloadName := id + "_v" + verStr + ".tar"
	path := filepath.Join(s.opts.PackageDir, id, verStr+".tar")

	if !cfg.Accessible(id, v, user) {
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			who := user
			if who == "" {
				who = r.RemoteAddr
			}
			zlog.Debug(ctx).
				Str("who", who).
				Str("package", id).
				Str("version", verStr).
				Msg("denied package download")
			if param(r, "apiVersion") == "2.1" {
				s.writeError(w, r, paymentRequired(id, v.String()))
			} else {
				s.writeError(w, r, accessDenied())
			}
			return
		}
		s.writeError(w, r, unknownPackage(id))
		return
	}

	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.writeError(w, r, unknownPackageVersion(id, v.String()))
		return
	case err != nil:
		zlog.Error(ctx).
			Err(err).
			Str("package", id).
			Str("version", verStr).
			Msg("failed to open package file")
		s.writeError(w, r, packageReadFailed(downloadName))
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		zlog.Error(ctx).
			Err(err).
			Str("package", id).
			Str("version", verStr).
			Msg("failed to stat package file")
		s.writeError(w, r, packageReadFailed(downloadName))
		return
	}

	tag := fmt.Sprintf("%x-%x", fi.Size(), fi.ModTime().UnixNano())
	h := w.Header()
	h.Set("ETag", etagValue(tag, false))
	h.Set("Last-Modified", fi.ModTime().UTC().Format(http.TimeFormat))
	if notModified(r, tag, fi.ModTime()) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if s.opts.EnableStatistics {
		s.opts.Counter.Increment(ctx, id, verStr)
	}

	h.Set("Content-Type", "application/x-tar")
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	h.Set("Content-Length", fmt.Sprintf("%d", fi.Size()))
	if _, err := io.Copy(w, f); err != nil {
		zlog.Warn(ctx).Err(err).Msg("failed to stream package file")
	}
}
