package inventory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/quay/zlog"

	"github.com/packserv/packserv"
)

// AuthFile is the name of the auth configuration inside the package
// directory. It and its example are never treated as packages.
const AuthFile = "auth.json"

var packageIDRe = regexp.MustCompile(`(?i)^[a-z0-9_-]+\.[a-z0-9_-]+(?:\.[a-z0-9_-]+)+$`)

// ValidPackageID reports whether name is a well-formed package
// identifier.
func ValidPackageID(name string) bool { return packageIDRe.MatchString(name) }

// Scan walks the package directory and builds a fresh snapshot.
//
// Top-level entries must be directories named like a package
// identifier; dotfiles and the auth configuration are skipped. Inside
// a package directory every ".tar" whose stem parses as a version
// (underscores read as spaces) is opened and its package.xml
// extracted. Archives whose manifest name or version disagree with
// their location are rejected. Rejections never fail the scan, they
// only drop the entry.
func Scan(ctx context.Context, dir string) (*packserv.Snapshot, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "inventory/Scan")
	start := time.Now()
	defer func() {
		scanDuration.Observe(time.Since(start).Seconds())
		scanCounter.Inc()
	}()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var snap packserv.Snapshot
	for _, e := range entries {
		name := e.Name()
		p := filepath.Join(dir, name)
		switch {
		case strings.HasPrefix(name, "."):
			zlog.Info(ctx).Str("path", p).Msg("skipping dotfile")
			continue
		case name == AuthFile || name == AuthFile+".example":
			continue
		case !ValidPackageID(name):
			zlog.Info(ctx).Str("path", p).Msg("skipping, invalid package identifier")
			continue
		case !e.IsDir():
			zlog.Info(ctx).Str("path", p).Msg("skipping, not a directory")
			continue
		}
		versions, err := scanPackageDir(ctx, p, name, &snap.ScannedVersionCount)
		if err != nil {
			zlog.Error(ctx).Err(err).Str("path", p).Msg("failed to scan package directory")
			continue
		}
		if len(versions) == 0 {
			zlog.Warn(ctx).Str("package", name).Msg("no versions found")
			continue
		}
		snap.Packages = append(snap.Packages, versions)
	}
	sort.Slice(snap.Packages, func(i, j int) bool {
		return snap.Packages[i].ID() < snap.Packages[j].ID()
	})

	snap.UpdatedAt = time.Now()
	snap.ScanDuration = time.Since(start)
	scannedVersions.Set(float64(snap.ScannedVersionCount))
	zlog.Debug(ctx).
		Int("versions", snap.ScannedVersionCount).
		Dur("duration", snap.ScanDuration).
		Msg("scan done")
	return &snap, nil
}

func scanPackageDir(ctx context.Context, dir, pkg string, count *int) (packserv.PackageVersions, error) {
	zlog.Debug(ctx).Str("path", dir).Msg("scanning")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var versions packserv.PackageVersions
	for _, e := range entries {
		*count++
		name := e.Name()
		p := filepath.Join(dir, name)
		if strings.HasPrefix(name, ".") {
			zlog.Info(ctx).Str("path", p).Msg("skipping dotfile")
			continue
		}
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		v, _, err := packserv.ScanVersion(strings.ReplaceAll(stem, "_", " "))
		if err != nil {
			zlog.Error(ctx).Err(err).Str("path", p).Msg("skipping, failed to parse version")
			continue
		}
		switch {
		case !e.Type().IsRegular():
			zlog.Info(ctx).Str("path", p).Msg("skipping, not a file")
			continue
		case ext == ".txt":
			// Download counter files.
			continue
		case ext != ".tar":
			zlog.Info(ctx).Str("path", p).Msg("skipping, not a tar file")
			continue
		}
		entry, err := readPackageArchive(ctx, p, pkg, v)
		if err != nil {
			zlog.Error(ctx).Err(err).Str("path", p).Msg("failed to read archive")
			continue
		}
		versions = append(versions, entry)
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Manifest.Info.Version.Less(versions[j].Manifest.Info.Version)
	})
	return versions, nil
}

func readPackageArchive(ctx context.Context, p, pkg string, v packserv.Version) (*packserv.PackageEntry, error) {
	zlog.Debug(ctx).Str("path", p).Msg("reading archive")
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var mtime time.Time
	if fi, err := f.Stat(); err == nil {
		mtime = fi.ModTime()
	}

	m, err := manifestFromTar(ctx, f)
	if err != nil {
		return nil, err
	}
	if m.Name != pkg {
		return nil, fmt.Errorf("package name %q does not match directory name %q", m.Name, pkg)
	}
	if !m.Info.Version.Equal(v) {
		return nil, fmt.Errorf("package version %q does not match filename %q", m.Info.Version, v)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}

	return &packserv.PackageEntry{
		Manifest: m,
		SHA256:   hex.EncodeToString(h.Sum(nil)),
		ModTime:  mtime,
	}, nil
}
