package packserv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/quay/zlog"
	"golang.org/x/text/language"
)

// xmlNode is a decoded element: tag name, attributes, the directly
// contained character data and the child elements, in document order.
type xmlNode struct {
	name     string
	attr     map[string]string
	text     string
	hasText  bool
	children []*xmlNode
}

// attribute returns the attribute's value, or an error naming the
// element when it is absent.
func (n *xmlNode) attribute(name string) (string, error) {
	if v, ok := n.attr[name]; ok {
		return v, nil
	}
	return "", fmt.Errorf(`missing attribute %q on element %q`, name, n.name)
}

// requireText returns the element's character data, or an error when
// the element contains none at all.
func (n *xmlNode) requireText() (string, error) {
	if !n.hasText {
		return "", fmt.Errorf("missing text in element <%s>", n.name)
	}
	return n.text, nil
}

func decodeNode(d *xml.Decoder, start xml.StartElement) (*xmlNode, error) {
	n := &xmlNode{
		name: start.Name.Local,
		attr: make(map[string]string, len(start.Attr)),
	}
	for _, a := range start.Attr {
		n.attr[a.Name.Local] = a.Value
	}
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			c, err := decodeNode(d, t)
			if err != nil {
				return nil, err
			}
			n.children = append(n.children, c)
		case xml.CharData:
			n.text += string(t)
			n.hasText = true
		case xml.EndElement:
			return n, nil
		}
	}
}

var compatRe = regexp.MustCompile(`^(?:201[7-9]|20[2-9][0-9])$`)

// ParseManifest reads a package.xml document.
//
// The root element must be <package> with a "name" attribute. Of the
// list-valued groups (requiredpackages, optionalpackages,
// excludedpackages, compatibility) only the last occurrence counts;
// earlier ones are discarded with a warning. Unknown elements are
// ignored.
func ParseManifest(ctx context.Context, r io.Reader) (*Manifest, error) {
	d := xml.NewDecoder(r)
	var root *xmlNode
	for root == nil {
		tok, err := d.Token()
		switch {
		case err == io.EOF:
			return nil, fmt.Errorf("missing root element")
		case err != nil:
			return nil, err
		}
		if t, ok := tok.(xml.StartElement); ok {
			n, err := decodeNode(d, t)
			if err != nil {
				return nil, err
			}
			root = n
		}
	}
	if root.name != "package" {
		return nil, fmt.Errorf("expected a <package> node but found <%s>", root.name)
	}

	var m Manifest
	var err error
	if m.Name, err = root.attribute("name"); err != nil {
		return nil, err
	}
	for _, c := range root.children {
		switch c.name {
		case "packageinformation":
			err = parsePackageInformation(c, &m.Info)
		case "authorinformation":
			err = parseAuthorInformation(c, &m)
		case "requiredpackages":
			warnReplaced(ctx, c.name, len(m.Required) != 0)
			m.Required = m.Required[:0]
			err = parseRequiredPackages(c, &m.Required)
		case "optionalpackages":
			warnReplaced(ctx, c.name, len(m.Optional) != 0)
			m.Optional = m.Optional[:0]
			err = parseOptionalPackages(c, &m.Optional)
		case "excludedpackages":
			warnReplaced(ctx, c.name, len(m.Excluded) != 0)
			m.Excluded = m.Excluded[:0]
			err = parseExcludedPackages(c, &m.Excluded)
		case "instructions":
			err = parseInstructions(c, &m.Instructions)
		case "compatibility":
			warnReplaced(ctx, c.name, len(m.Compatibility) != 0)
			m.Compatibility = m.Compatibility[:0]
			err = parseCompatibility(c, &m.Compatibility)
		}
		if err != nil {
			return nil, err
		}
	}
	m.normalize()
	return &m, nil
}

func warnReplaced(ctx context.Context, name string, seen bool) {
	if seen {
		zlog.Warn(ctx).
			Str("element", name).
			Msg("multiple definitions found, only the last one will be used")
	}
}

func parseLanguage(n *xmlNode) (*language.Tag, error) {
	v, ok := n.attr["language"]
	if !ok {
		return nil, nil
	}
	t, err := language.Parse(v)
	if err != nil {
		return nil, fmt.Errorf("invalid language: %w", err)
	}
	return &t, nil
}

func parsePackageInformation(n *xmlNode, info *PackageInfo) error {
	for _, c := range n.children {
		switch c.name {
		case "packagename":
			text, err := c.requireText()
			if err != nil {
				return err
			}
			lang, err := parseLanguage(c)
			if err != nil {
				return err
			}
			info.Names = append(info.Names, LocalizedText{Text: text, Lang: lang})
		case "packagedescription":
			lang, err := parseLanguage(c)
			if err != nil {
				return err
			}
			info.Descriptions = append(info.Descriptions, LocalizedText{Text: c.text, Lang: lang})
		case "url":
			info.URL = nil
			if u, err := url.Parse(strings.TrimSpace(c.text)); err == nil && u.IsAbs() {
				info.URL = u
			}
		case "isapplication":
			info.IsApplication = c.text == "1"
		case "version":
			text, err := c.requireText()
			if err != nil {
				return err
			}
			v, err := Parse(text)
			if err != nil {
				return err
			}
			info.Version = v
		case "date":
			text, err := c.requireText()
			if err != nil {
				return err
			}
			info.Date = text
		case "license":
			info.License = nil
			if l, ok := ParseLicense(c.text); ok {
				info.License = &l
			}
		}
	}
	return nil
}

func parseAuthorInformation(n *xmlNode, m *Manifest) error {
	for _, c := range n.children {
		switch c.name {
		case "author":
			text, err := c.requireText()
			if err != nil {
				return err
			}
			m.Author = text
		case "authorurl":
			m.AuthorURL = c.text
		}
	}
	return nil
}

func parseRequiredPackages(n *xmlNode, out *[]RequiredPackage) error {
	for _, c := range n.children {
		if c.name != "requiredpackage" {
			continue
		}
		id, err := c.requireText()
		if err != nil {
			return err
		}
		min, err := c.attribute("minversion")
		if err != nil {
			return err
		}
		*out = append(*out, RequiredPackage{Identifier: id, MinVersion: min})
	}
	return nil
}

func parseOptionalPackages(n *xmlNode, out *[]OptionalPackage) error {
	for _, c := range n.children {
		if c.name != "optionalpackage" {
			continue
		}
		id, err := c.requireText()
		if err != nil {
			return err
		}
		*out = append(*out, OptionalPackage{Identifier: id})
	}
	return nil
}

func parseExcludedPackages(n *xmlNode, out *[]ExcludedPackage) error {
	for _, c := range n.children {
		if c.name != "excludedpackage" {
			continue
		}
		id, err := c.requireText()
		if err != nil {
			return err
		}
		*out = append(*out, ExcludedPackage{Identifier: id, Version: c.attr["version"]})
	}
	return nil
}

func parseInstructions(n *xmlNode, out *[]UpdateInstruction) error {
	typ, err := n.attribute("type")
	if err != nil {
		return err
	}
	if typ != "update" {
		return nil
	}
	from, err := n.attribute("fromversion")
	if err != nil {
		return err
	}
	*out = append(*out, UpdateInstruction{FromVersion: from})
	return nil
}

func parseCompatibility(n *xmlNode, out *[]int) error {
	for _, c := range n.children {
		v, err := c.attribute("version")
		if err != nil {
			return err
		}
		if !compatRe.MatchString(v) {
			return fmt.Errorf("invalid API version: %s", v)
		}
		api, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*out = append(*out, api)
	}
	return nil
}
