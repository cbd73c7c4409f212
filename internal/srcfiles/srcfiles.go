// Package srcfiles builds the table of embedded files the server
// publishes about itself: its own source tree and the static assets.
// Every file carries a subresource-integrity style digest used as its
// HTTP entity tag.
package srcfiles

import (
	"crypto/sha512"
	"encoding/base64"
	"io/fs"
	"sort"
)

// File is one embedded file.
type File struct {
	// Name is the slash-separated path inside the embedded tree.
	Name string
	// Contents are the raw bytes.
	Contents []byte
	// Digest is "sha384-" followed by the base64 digest of Contents.
	Digest string
}

// Set is an immutable collection of embedded files.
type Set struct {
	files  []File
	byName map[string]*File

	// CombinedDigest hashes every file's name and digest, in name
	// order. It changes whenever any embedded file changes and is
	// used as a cache key for index pages.
	CombinedDigest string
}

// Load walks fsys and digests every regular file.
func Load(fsys fs.FS) (*Set, error) {
	s := &Set{byName: make(map[string]*File)}
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		s.files = append(s.files, File{
			Name:     p,
			Contents: b,
			Digest:   digest(b),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(s.files, func(i, j int) bool { return s.files[i].Name < s.files[j].Name })
	h := sha512.New384()
	for i := range s.files {
		f := &s.files[i]
		s.byName[f.Name] = f
		h.Write([]byte(f.Name))
		h.Write([]byte{0})
		h.Write([]byte(f.Digest))
		h.Write([]byte{0})
	}
	s.CombinedDigest = base64.RawURLEncoding.EncodeToString(h.Sum(nil))
	return s, nil
}

// Get returns the named file, or nil.
func (s *Set) Get(name string) *File {
	return s.byName[name]
}

// Files returns every file in name order. The returned slice is shared
// and must not be modified.
func (s *Set) Files() []File {
	return s.files
}

func digest(b []byte) string {
	d := sha512.Sum384(b)
	return "sha384-" + base64.StdEncoding.EncodeToString(d[:])
}
