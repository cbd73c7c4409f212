package packserv

import (
	"net/url"
	"regexp"

	"golang.org/x/text/language"
)

// LocalizedText is a text value with an optional BCP-47 language tag,
// as found on the manifest's packagename and packagedescription
// elements.
type LocalizedText struct {
	Text string
	Lang *language.Tag
}

// PickLocalized selects the best text for the wanted language: an
// exact tag match first, then a language-less entry, then the first
// entry. Returns "" when items is empty.
func PickLocalized(items []LocalizedText, want *language.Tag) string {
	if len(items) == 0 {
		return ""
	}
	if want != nil {
		for _, it := range items {
			if it.Lang != nil && *it.Lang == *want {
				return it.Text
			}
		}
	}
	for _, it := range items {
		if it.Lang == nil {
			return it.Text
		}
	}
	return items[0].Text
}

var licenseRe = regexp.MustCompile(`(?is)^(.*?)(?:\s<(https?://.*)>)?$`)

// License is the manifest's license declaration, a free-text value
// with an optional trailing "<https://...>" URL.
type License struct {
	Value string
	URL   *url.URL
}

// ParseLicense splits a license element's text into value and URL.
// When the text part is empty but a URL is present, the URL string
// becomes the value. Reports false when both parts are empty, in
// which case the element is dropped.
func ParseLicense(s string) (License, bool) {
	m := licenseRe.FindStringSubmatch(s)
	if m == nil {
		return License{Value: s}, s != ""
	}
	l := License{Value: m[1]}
	if m[2] != "" {
		if u, err := url.Parse(m[2]); err == nil {
			l.URL = u
		}
		if l.Value == "" {
			l.Value = m[2]
		}
	}
	return l, l.Value != ""
}

// PackageInfo is the manifest's packageinformation block.
type PackageInfo struct {
	Names         []LocalizedText
	Descriptions  []LocalizedText
	URL           *url.URL
	IsApplication bool
	Version       Version
	Date          string
	License       *License
}

// RequiredPackage is one requiredpackages entry.
type RequiredPackage struct {
	Identifier string
	MinVersion string
}

// OptionalPackage is one optionalpackages entry.
type OptionalPackage struct {
	Identifier string
}

// ExcludedPackage is one excludedpackages entry.
type ExcludedPackage struct {
	Identifier string
	Version    string
}

// UpdateInstruction records the fromversion of an instructions block
// with type="update".
type UpdateInstruction struct {
	FromVersion string
}

// Manifest is the parsed package.xml descriptor of one package
// version.
type Manifest struct {
	Name          string
	Info          PackageInfo
	Author        string
	AuthorURL     string
	Required      []RequiredPackage
	Optional      []OptionalPackage
	Excluded      []ExcludedPackage
	Instructions  []UpdateInstruction
	Compatibility []int
}

// Runs of whitespace that start with a line terminator, or any other
// whitespace run, collapse to one space.
var collapseRe = regexp.MustCompile(`(?:\r\n|\r|\n)\s*|\s+`)

// CollapseSpace normalizes multi-line or indented text to a single
// line.
func CollapseSpace(s string) string {
	return collapseRe.ReplaceAllString(s, " ")
}

// normalize collapses whitespace in the free-text fields after
// parsing.
func (m *Manifest) normalize() {
	for i := range m.Info.Names {
		m.Info.Names[i].Text = CollapseSpace(m.Info.Names[i].Text)
	}
	for i := range m.Info.Descriptions {
		m.Info.Descriptions[i].Text = CollapseSpace(m.Info.Descriptions[i].Text)
	}
	m.Author = CollapseSpace(m.Author)
	m.AuthorURL = CollapseSpace(m.AuthorURL)
}
