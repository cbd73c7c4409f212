package packserv

import "time"

// PackageEntry is one version of one package as found on disk.
type PackageEntry struct {
	Manifest *Manifest
	// SHA256 is the hex digest of the tar file's bytes.
	SHA256 string
	// ModTime is the tar file's modification time; zero when the
	// filesystem did not report one.
	ModTime time.Time
}

// PackageVersions holds every discovered version of one package,
// sorted ascending by version.
type PackageVersions []*PackageEntry

// ID returns the package identifier, which is the manifest name of
// any entry.
func (p PackageVersions) ID() string {
	if len(p) == 0 {
		return ""
	}
	return p[0].Manifest.Name
}

// Snapshot is an immutable view of every package found by one scan of
// the package directory. It is published whole and never modified.
type Snapshot struct {
	// Packages is sorted by package name.
	Packages []PackageVersions
	// UpdatedAt is when the scan producing this snapshot started.
	UpdatedAt time.Time
	// ScanDuration is how long the scan took.
	ScanDuration time.Duration
	// ScannedVersionCount counts every version attempted, including
	// rejected ones.
	ScannedVersionCount int
}

// Find returns the versions of the named package, or nil.
func (s *Snapshot) Find(id string) PackageVersions {
	for _, p := range s.Packages {
		if p.ID() == id {
			return p
		}
	}
	return nil
}
