package packserv

import (
	"context"
	"strings"
	"testing"

	"github.com/quay/zlog"
	"golang.org/x/text/language"
)

func mustTag(t *testing.T, s string) language.Tag {
	t.Helper()
	tag, err := language.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return tag
}

const exampleManifest = `<package name="com.example.package">
	<packageinformation>
		<packagename>Example Package</packagename>
		<packagename language="de">Beispielpaket</packagename>
		<packagedescription>An example package used
			in tests.</packagedescription>
		<packagedescription language="de">Ein Beispielpaket.</packagedescription>
		<url>https://www.example.com/package</url>
		<isapplication>1</isapplication>
		<version>1.0.0 Beta 2</version>
		<date>2021-07-21</date>
		<license>MIT &lt;https://opensource.org/licenses/MIT&gt;</license>
	</packageinformation>
	<authorinformation>
		<author>Example
			Author</author>
		<authorurl>https://www.example.com/</authorurl>
	</authorinformation>
	<requiredpackages>
		<requiredpackage minversion="5.4.0">com.woltlab.wcf</requiredpackage>
	</requiredpackages>
	<optionalpackages>
		<optionalpackage>com.example.addon</optionalpackage>
	</optionalpackages>
	<excludedpackages>
		<excludedpackage version="6.0.0 Alpha 1">com.woltlab.wcf</excludedpackage>
	</excludedpackages>
	<instructions type="install">
		<file>files.tar</file>
	</instructions>
	<instructions type="update" fromversion="1.0.0 Beta 1">
		<file>update.tar</file>
	</instructions>
	<compatibility>
		<api version="2018"/>
	</compatibility>
</package>`

func TestParseManifest(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	m, err := ParseManifest(ctx, strings.NewReader(exampleManifest))
	if err != nil {
		t.Fatal(err)
	}

	if m.Name != "com.example.package" {
		t.Errorf("Name: got %q", m.Name)
	}
	if got := len(m.Info.Names); got != 2 {
		t.Fatalf("got %d names", got)
	}
	if m.Info.Names[0].Lang != nil {
		t.Error("first packagename should have no language")
	}
	if m.Info.Names[1].Lang == nil || m.Info.Names[1].Lang.String() != "de" {
		t.Errorf("second packagename language: got %v", m.Info.Names[1].Lang)
	}
	if got := m.Info.Descriptions[0].Text; got != "An example package used in tests." {
		t.Errorf("description not normalized: %q", got)
	}
	if m.Info.URL == nil || m.Info.URL.Host != "www.example.com" {
		t.Errorf("URL: got %v", m.Info.URL)
	}
	if !m.Info.IsApplication {
		t.Error("IsApplication: got false")
	}
	if got := m.Info.Version.String(); got != "1.0.0 Beta 2" {
		t.Errorf("Version: got %q", got)
	}
	if m.Info.Date != "2021-07-21" {
		t.Errorf("Date: got %q", m.Info.Date)
	}
	if m.Info.License == nil || m.Info.License.Value != "MIT" || m.Info.License.URL == nil {
		t.Errorf("License: got %+v", m.Info.License)
	}
	if m.Author != "Example Author" {
		t.Errorf("Author not normalized: %q", m.Author)
	}
	if m.AuthorURL != "https://www.example.com/" {
		t.Errorf("AuthorURL: got %q", m.AuthorURL)
	}
	if len(m.Required) != 1 || m.Required[0].Identifier != "com.woltlab.wcf" || m.Required[0].MinVersion != "5.4.0" {
		t.Errorf("Required: got %+v", m.Required)
	}
	if len(m.Optional) != 1 || m.Optional[0].Identifier != "com.example.addon" {
		t.Errorf("Optional: got %+v", m.Optional)
	}
	if len(m.Excluded) != 1 || m.Excluded[0].Version != "6.0.0 Alpha 1" {
		t.Errorf("Excluded: got %+v", m.Excluded)
	}
	// Only type="update" contributes.
	if len(m.Instructions) != 1 || m.Instructions[0].FromVersion != "1.0.0 Beta 1" {
		t.Errorf("Instructions: got %+v", m.Instructions)
	}
	if len(m.Compatibility) != 1 || m.Compatibility[0] != 2018 {
		t.Errorf("Compatibility: got %+v", m.Compatibility)
	}
}

func TestParseManifestLastWins(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	doc := `<package name="com.example.package">
		<requiredpackages>
			<requiredpackage minversion="1.0.0">com.example.first</requiredpackage>
		</requiredpackages>
		<requiredpackages>
			<requiredpackage minversion="2.0.0">com.example.second</requiredpackage>
		</requiredpackages>
	</package>`
	m, err := ParseManifest(ctx, strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Required) != 1 || m.Required[0].Identifier != "com.example.second" {
		t.Errorf("Required: got %+v", m.Required)
	}
}

func TestParseManifestErrors(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	bad := []struct {
		Name string
		Doc  string
	}{
		{"wrong root", `<bundle name="x"/>`},
		{"missing name", `<package/>`},
		{"bad version", `<package name="a.b.c"><packageinformation><version>1.0</version></packageinformation></package>`},
		{"bad language", `<package name="a.b.c"><packageinformation><packagename language="no tag">X</packagename></packageinformation></package>`},
		{"empty packagename", `<package name="a.b.c"><packageinformation><packagename/></packageinformation></package>`},
		{"instructions without type", `<package name="a.b.c"><instructions/></package>`},
		{"update without fromversion", `<package name="a.b.c"><instructions type="update"/></package>`},
		{"compatibility out of range", `<package name="a.b.c"><compatibility><api version="2016"/></compatibility></package>`},
		{"compatibility missing version", `<package name="a.b.c"><compatibility><api/></compatibility></package>`},
		{"requiredpackage without minversion", `<package name="a.b.c"><requiredpackages><requiredpackage>x.y.z</requiredpackage></requiredpackages></package>`},
	}
	for _, tc := range bad {
		if _, err := ParseManifest(ctx, strings.NewReader(tc.Doc)); err == nil {
			t.Errorf("%s: expected an error", tc.Name)
		}
	}
}

func TestParseLicense(t *testing.T) {
	tt := []struct {
		In    string
		Value string
		URL   string
		OK    bool
	}{
		{"MIT <https://opensource.org/licenses/MIT>", "MIT", "https://opensource.org/licenses/MIT", true},
		{"MIT", "MIT", "", true},
		// Without the leading whitespace the URL form is not
		// recognized and the whole text is the value.
		{"<https://opensource.org/licenses/MIT>", "<https://opensource.org/licenses/MIT>", "", true},
		{" <https://opensource.org/licenses/MIT>", "https://opensource.org/licenses/MIT", "https://opensource.org/licenses/MIT", true},
		{"", "", "", false},
	}
	for _, tc := range tt {
		l, ok := ParseLicense(tc.In)
		if ok != tc.OK {
			t.Errorf("ParseLicense(%q): ok = %v, want %v", tc.In, ok, tc.OK)
			continue
		}
		if !ok {
			continue
		}
		if l.Value != tc.Value {
			t.Errorf("ParseLicense(%q): value %q, want %q", tc.In, l.Value, tc.Value)
		}
		got := ""
		if l.URL != nil {
			got = l.URL.String()
		}
		if got != tc.URL {
			t.Errorf("ParseLicense(%q): url %q, want %q", tc.In, got, tc.URL)
		}
	}
}

func TestPickLocalized(t *testing.T) {
	de := mustTag(t, "de")
	en := mustTag(t, "en")
	items := []LocalizedText{
		{Text: "english", Lang: &en},
		{Text: "plain"},
		{Text: "deutsch", Lang: &de},
	}
	if got := PickLocalized(items, &de); got != "deutsch" {
		t.Errorf("de: got %q", got)
	}
	fr := mustTag(t, "fr")
	if got := PickLocalized(items, &fr); got != "plain" {
		t.Errorf("fr: got %q", got)
	}
	if got := PickLocalized(items, nil); got != "plain" {
		t.Errorf("nil: got %q", got)
	}
	if got := PickLocalized(items[:1], &fr); got != "english" {
		t.Errorf("fallback to first: got %q", got)
	}
	if got := PickLocalized(nil, &fr); got != "" {
		t.Errorf("empty: got %q", got)
	}
}
