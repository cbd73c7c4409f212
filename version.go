// Package packserv holds the value types shared by the package update
// server: versions, package manifests and inventory snapshots.
package packserv

import (
	"fmt"
	"strconv"
	"strings"
)

// SuffixKind is the class of a pre-release or patch-level version suffix.
type SuffixKind int

// Suffix kinds, in no particular order. Ordering between kinds is
// defined solely by Weight.
const (
	Alpha SuffixKind = iota
	Beta
	Dev
	ReleaseCandidate
	PatchLevel
)

// Weight reports the kind's offset relative to a suffix-less release.
// Pre-release kinds are negative, a patch level sorts above the plain
// release.
func (k SuffixKind) Weight() int {
	switch k {
	case Dev:
		return -4
	case Alpha:
		return -3
	case Beta:
		return -2
	case ReleaseCandidate:
		return -1
	case PatchLevel:
		return 1
	}
	panic(fmt.Sprintf("packserv: unknown suffix kind %d", int(k)))
}

// String returns the display tag for the kind.
func (k SuffixKind) String() string {
	switch k {
	case Alpha:
		return "Alpha"
	case Beta:
		return "Beta"
	case Dev:
		return "Dev"
	case ReleaseCandidate:
		return "RC"
	case PatchLevel:
		return "pl"
	}
	panic(fmt.Sprintf("packserv: unknown suffix kind %d", int(k)))
}

// URLTag returns the lower-case tag used in the URL form of a version.
func (k SuffixKind) URLTag() string {
	switch k {
	case Alpha:
		return "alpha"
	case Beta:
		return "beta"
	case Dev:
		return "dev"
	case ReleaseCandidate:
		return "rc"
	case PatchLevel:
		return "pl"
	}
	panic(fmt.Sprintf("packserv: unknown suffix kind %d", int(k)))
}

// Suffix is an optional version suffix, e.g. "Beta 2" or "pl 4".
type Suffix struct {
	Kind   SuffixKind
	Number uint32
}

// String returns the display form, e.g. "Beta 2".
func (s Suffix) String() string {
	return s.Kind.String() + " " + strconv.FormatUint(uint64(s.Number), 10)
}

// URL returns the URL form, e.g. "beta_2".
func (s Suffix) URL() string {
	return s.Kind.URLTag() + "_" + strconv.FormatUint(uint64(s.Number), 10)
}

// Version is a three-component version number with an optional suffix.
//
// The ordering is lexicographic on (major, minor, patch, suffix weight,
// suffix number), where a missing suffix counts as weight 0 and number
// 0. That makes "1.0.0 Beta 1" sort below "1.0.0" and "1.0.0 pl 1"
// sort above it.
type Version struct {
	Major  uint32
	Minor  uint32
	Patch  uint32
	Suffix *Suffix
}

// String returns the display form, e.g. "1.0.0 Beta 2".
func (v Version) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(uint64(v.Major), 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(uint64(v.Minor), 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(uint64(v.Patch), 10))
	if v.Suffix != nil {
		b.WriteByte(' ')
		b.WriteString(v.Suffix.String())
	}
	return b.String()
}

// URL returns the form used in paths and file names, e.g.
// "1.0.0_beta_2".
func (v Version) URL() string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(uint64(v.Major), 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(uint64(v.Minor), 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(uint64(v.Patch), 10))
	if v.Suffix != nil {
		b.WriteByte('_')
		b.WriteString(v.Suffix.URL())
	}
	return b.String()
}

// Compare returns -1, 0 or +1 when v orders before, equal to or after
// o.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmpUint32(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpUint32(v.Minor, o.Minor)
	case v.Patch != o.Patch:
		return cmpUint32(v.Patch, o.Patch)
	}
	var w1, w2 int
	var n1, n2 uint32
	if v.Suffix != nil {
		w1, n1 = v.Suffix.Kind.Weight(), v.Suffix.Number
	}
	if o.Suffix != nil {
		w2, n2 = o.Suffix.Kind.Weight(), o.Suffix.Number
	}
	switch {
	case w1 != w2:
		if w1 < w2 {
			return -1
		}
		return 1
	case n1 != n2:
		return cmpUint32(n1, n2)
	}
	return 0
}

// Equal reports whether the versions compare equal. Two equal versions
// always render identically.
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// Less reports whether v orders strictly before o.
func (v Version) Less(o Version) bool { return v.Compare(o) == -1 }

func cmpUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Parse parses the display form of a version and rejects trailing
// input.
//
// Accepted input is "MAJOR.MINOR.PATCH" with optional surrounding
// whitespace, optionally followed by a suffix tag and number, e.g.
// "13.3.7 pl 42". Separators other than "." between the numeric
// components are rejected, as are incomplete triples.
func Parse(s string) (Version, error) {
	v, rest, err := ScanVersion(s)
	if err != nil {
		return Version{}, err
	}
	if rest != "" {
		return Version{}, fmt.Errorf("packserv: trailing input %q in version %q", rest, s)
	}
	return v, nil
}

// ParseURL parses the URL form of a version,
// "MAJOR.MINOR.PATCH[_KIND_NUMBER]".
//
// The URL form is the display form with "_" for the whitespace
// separators, so this is Parse after substitution.
func ParseURL(s string) (Version, error) {
	return Parse(strings.ReplaceAll(s, "_", " "))
}

// ScanVersion parses a version from the front of s, returning the
// unconsumed remainder.
//
// The suffix tags are matched as case-insensitive prefixes, longest
// first: "alpha", "a", "beta", "b", "dev", "d", "rc", "pl". A residue
// after the matched tag is left in the remainder, so "1.0.0 alberta 4"
// scans as "1.0.0" with remainder "alberta 4" (the suffix attempt
// backtracks when no number follows the tag) while "1.0.0 a 4" scans
// fully as an Alpha suffix. Callers doing whole-input parses reject a
// non-empty remainder.
func ScanVersion(s string) (Version, string, error) {
	rest := skipSpace(s)
	var v Version
	var err error
	if v.Major, rest, err = scanNumber(rest); err != nil {
		return Version{}, s, err
	}
	if !strings.HasPrefix(rest, ".") {
		return Version{}, s, fmt.Errorf("packserv: invalid version %q: expected %q", s, ".")
	}
	if v.Minor, rest, err = scanNumber(rest[1:]); err != nil {
		return Version{}, s, err
	}
	if !strings.HasPrefix(rest, ".") {
		return Version{}, s, fmt.Errorf("packserv: invalid version %q: expected %q", s, ".")
	}
	if v.Patch, rest, err = scanNumber(rest[1:]); err != nil {
		return Version{}, s, err
	}
	rest = skipSpace(rest)
	if sfx, r, err := scanSuffix(rest); err == nil {
		v.Suffix = &sfx
		rest = r
	}
	return v, rest, nil
}

// ScanSuffixKind matches a suffix tag at the front of s, returning the
// remainder. Matching is case-insensitive and by prefix; longer tags
// are tried before their one-letter short forms.
func ScanSuffixKind(s string) (SuffixKind, string, error) {
	for _, t := range []struct {
		tag  string
		kind SuffixKind
	}{
		{"alpha", Alpha},
		{"a", Alpha},
		{"beta", Beta},
		{"b", Beta},
		{"dev", Dev},
		{"d", Dev},
		{"rc", ReleaseCandidate},
		{"pl", PatchLevel},
	} {
		if len(s) >= len(t.tag) && strings.EqualFold(s[:len(t.tag)], t.tag) {
			return t.kind, s[len(t.tag):], nil
		}
	}
	return 0, s, fmt.Errorf("packserv: no suffix tag in %q", s)
}

// ScanSuffix parses "KIND NUMBER" with optional surrounding whitespace
// from the front of s.
func scanSuffix(s string) (Suffix, string, error) {
	rest := skipSpace(s)
	kind, rest, err := ScanSuffixKind(rest)
	if err != nil {
		return Suffix{}, s, err
	}
	rest = skipSpace(rest)
	n, rest, err := scanNumber(rest)
	if err != nil {
		return Suffix{}, s, err
	}
	return Suffix{Kind: kind, Number: n}, skipSpace(rest), nil
}

func scanNumber(s string) (uint32, string, error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, s, fmt.Errorf("packserv: expected a number at %q", s)
	}
	n, err := strconv.ParseUint(s[:i], 10, 32)
	if err != nil {
		return 0, s, err
	}
	return uint32(n), s[i:], nil
}

func skipSpace(s string) string {
	return strings.TrimLeft(s, " \t\r\n")
}
