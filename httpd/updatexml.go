package httpd

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/quay/zlog"
	"golang.org/x/text/language"

	"github.com/packserv/packserv"
	"github.com/packserv/packserv/auth"
)

// The update-list document, as installers consume it.
type xmlSection struct {
	XMLName  xml.Name     `xml:"section"`
	Name     string       `xml:"name,attr"`
	Xmlns    string       `xml:"xmlns,attr"`
	Packages []xmlPackage `xml:"package"`
}

type xmlPackage struct {
	Name     string         `xml:"name,attr"`
	Info     xmlPackageInfo `xml:"packageinformation"`
	Author   *xmlAuthorInfo `xml:"authorinformation"`
	Versions xmlVersions    `xml:"versions"`
}

type xmlPackageInfo struct {
	Name        string `xml:"packagename"`
	Description string `xml:"packagedescription,omitempty"`
}

type xmlAuthorInfo struct {
	Author string `xml:"author,omitempty"`
	URL    string `xml:"authorurl,omitempty"`
}

type xmlVersions struct {
	Versions []xmlVersion `xml:"version"`
}

type xmlVersion struct {
	Name          string            `xml:"name,attr"`
	Accessible    string            `xml:"accessible,attr"`
	Critical      string            `xml:"critical,attr"`
	FromVersions  *xmlFromVersions  `xml:"fromversions"`
	Timestamp     int64             `xml:"timestamp,omitempty"`
	File          string            `xml:"file,omitempty"`
	Required      *xmlRequired      `xml:"requiredpackages"`
	Optional      *xmlOptional      `xml:"optionalpackages"`
	Excluded      *xmlExcluded      `xml:"excludedpackages"`
	License       *xmlLicense       `xml:"license"`
	Compatibility *xmlCompatibility `xml:"compatibility"`
}

type xmlFromVersions struct {
	From []string `xml:"fromversion"`
}

type xmlRequired struct {
	Packages []xmlRequiredPackage `xml:"requiredpackage"`
}

type xmlRequiredPackage struct {
	MinVersion string `xml:"minversion,attr,omitempty"`
	ID         string `xml:",chardata"`
}

type xmlOptional struct {
	Packages []xmlOptionalPackage `xml:"optionalpackage"`
}

type xmlOptionalPackage struct {
	ID string `xml:",chardata"`
}

type xmlExcluded struct {
	Packages []xmlExcludedPackage `xml:"excludedpackage"`
}

type xmlExcludedPackage struct {
	Version string `xml:"version,attr,omitempty"`
	ID      string `xml:",chardata"`
}

type xmlLicense struct {
	URL   string `xml:"url,attr,omitempty"`
	Value string `xml:",chardata"`
}

type xmlCompatibility struct {
	APIs []xmlAPI `xml:"api"`
}

type xmlAPI struct {
	Version int `xml:"version,attr"`
}

// updateXML serves the main package-update document. A non-empty
// forced path language overrides the negotiated one when it parses.
func (s *Server) updateXML(w http.ResponseWriter, r *http.Request, forced string) {
	ctx := r.Context()
	if !acceptsXML(r) {
		s.writeError(w, r, notAcceptable())
		return
	}

	userLang := s.language(r)
	var xmlLang string
	if forced != "" {
		if t, err := language.Parse(forced); err == nil {
			userLang = matchTag(t)
			xmlLang = t.String()
		}
	}

	cfg, user := s.identity(r)
	snapshot := s.opts.State.Snapshot()
	if snapshot == nil {
		s.writeError(w, r, packageListUnavailable())
		return
	}

	host := s.host(r)
	if r.URL.Path == "/" {
		if name := param(r, "packageName"); name != "" {
			url := host + "/" + name + "/"
			if v := param(r, "packageVersion"); v != "" {
				url += v + "/"
			}
			w.Header().Set("Location", url)
			w.WriteHeader(http.StatusMovedPermanently)
			return
		}
	}

	ts := snapshot.UpdatedAt.Unix()
	var content string
	switch {
	case user != "" && xmlLang != "":
		content = fmt.Sprintf("%d,%s,%s,%s", ts, userLang, user, xmlLang)
	case user != "":
		content = fmt.Sprintf("%d,%s,%s,", ts, userLang, user)
	case xmlLang != "":
		content = fmt.Sprintf("%d,%s,,%s", ts, userLang, xmlLang)
	default:
		content = fmt.Sprintf("%d,%s", ts, userLang)
	}
	tag := base64.RawURLEncoding.EncodeToString([]byte(content))

	h := w.Header()
	h.Set("ETag", etagValue(tag, !s.opts.Deterministic))
	h.Set("Last-Modified", snapshot.UpdatedAt.UTC().Format(http.TimeFormat))
	h.Set("Vary", "accept, accept-language")
	if notModified(r, tag, snapshot.UpdatedAt) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	started := time.Now()
	body, err := s.renderUpdateList(host, userLang, snapshot, cfg, user)
	if err != nil {
		zlog.Error(ctx).Err(err).Msg("failed to render package list")
		s.writeError(w, r, packageReadFailed("package list"))
		return
	}
	if !s.opts.Deterministic {
		body = append(body, []byte(fmt.Sprintf("\n<!-- packserv %s, uptime %s, rendered in %s -->\n",
			s.opts.Version, time.Since(s.start).Round(time.Second), time.Since(started)))...)
	}
	h.Set("Content-Type", "text/xml; charset=utf-8")
	w.Write(body)
}

// renderUpdateList builds the XML body: every package and version on
// record, with per-version accessibility resolved against the auth
// configuration and localized texts picked for the given language.
func (s *Server) renderUpdateList(host string, lang language.Tag, snapshot *packserv.Snapshot, cfg *auth.Config, user string) ([]byte, error) {
	doc := xmlSection{
		Name:  "packages",
		Xmlns: "http://www.woltlab.com",
	}
	for _, pkg := range snapshot.Packages {
		id := pkg.ID()
		latest := pkg[len(pkg)-1].Manifest
		xp := xmlPackage{
			Name: id,
			Info: xmlPackageInfo{
				Name:        packserv.PickLocalized(latest.Info.Names, &lang),
				Description: packserv.PickLocalized(latest.Info.Descriptions, &lang),
			},
		}
		if xp.Info.Name == "" {
			xp.Info.Name = id
		}
		if latest.Author != "" || latest.AuthorURL != "" {
			xp.Author = &xmlAuthorInfo{Author: latest.Author, URL: latest.AuthorURL}
		}
		for _, e := range pkg {
			v := e.Manifest.Info.Version
			accessible := cfg.Accessible(id, v, user)
			critical := v.Suffix != nil && v.Suffix.Kind == packserv.PatchLevel
			xv := xmlVersion{
				Name:       v.String(),
				Accessible: strconv.FormatBool(accessible),
				Critical:   strconv.FormatBool(critical),
			}
			if len(e.Manifest.Instructions) > 0 {
				fv := &xmlFromVersions{}
				for _, in := range e.Manifest.Instructions {
					fv.From = append(fv.From, in.FromVersion)
				}
				xv.FromVersions = fv
			}
			if !e.ModTime.IsZero() {
				xv.Timestamp = e.ModTime.Unix()
			}
			if accessible {
				xv.File = host + "/" + id + "/" + v.URL() + "/"
			}
			if len(e.Manifest.Required) > 0 {
				rp := &xmlRequired{}
				for _, req := range e.Manifest.Required {
					rp.Packages = append(rp.Packages, xmlRequiredPackage{
						MinVersion: req.MinVersion,
						ID:         req.Identifier,
					})
				}
				xv.Required = rp
			}
			if len(e.Manifest.Optional) > 0 {
				op := &xmlOptional{}
				for _, opt := range e.Manifest.Optional {
					op.Packages = append(op.Packages, xmlOptionalPackage{ID: opt.Identifier})
				}
				xv.Optional = op
			}
			if len(e.Manifest.Excluded) > 0 {
				ep := &xmlExcluded{}
				for _, ex := range e.Manifest.Excluded {
					ep.Packages = append(ep.Packages, xmlExcludedPackage{
						Version: ex.Version,
						ID:      ex.Identifier,
					})
				}
				xv.Excluded = ep
			}
			if l := e.Manifest.Info.License; l != nil {
				xl := &xmlLicense{Value: l.Value}
				if l.URL != nil {
					xl.URL = l.URL.String()
				}
				xv.License = xl
			}
			if len(e.Manifest.Compatibility) > 0 {
				cp := &xmlCompatibility{}
				for _, api := range e.Manifest.Compatibility {
					cp.APIs = append(cp.APIs, xmlAPI{Version: api})
				}
				xv.Compatibility = cp
			}
			xp.Versions.Versions = append(xp.Versions.Versions, xv)
		}
		doc.Packages = append(doc.Packages, xp)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, "<?xml-stylesheet type=\"text/xsl\" href=\"%s/style/main.xslt\"?>\n", host)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "\t")
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
