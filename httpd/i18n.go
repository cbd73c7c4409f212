package httpd

import (
	"fmt"
	"net/http"

	"golang.org/x/text/language"
)

// supported lists the languages pages and error bodies are available
// in. The first entry is the fallback.
var supported = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(supported)

var messages = map[language.Tag]map[string]string{
	language.English: {
		"password-prompt":          "Package update server",
		"access-denied":            "You are not authorized to access this resource.",
		"file-not-found":           "The file %s could not be found.",
		"unacceptable-accept-type": "None of the acceptable content types can be served.",
		"package-unknown":          "The package %s is unknown.",
		"package-unknown-version":  "The package %s has no version %s.",
		"package-read-failed":      "The package file %s could not be read.",
		"package-payment-required": "A payment is required to access the package %s in version %s.",
		"package-list-unavailable": "The package list is not available yet, please retry later.",
		"source-heading":           "Source files",
		"about-heading":            "About this server",
		"about-version":            "Server version",
		"about-uptime":             "Uptime",
		"about-source-link":        "Browse the server source",
	},
	language.German: {
		"password-prompt":          "Paket-Update-Server",
		"access-denied":            "Sie sind nicht berechtigt, auf diese Ressource zuzugreifen.",
		"file-not-found":           "Die Datei %s wurde nicht gefunden.",
		"unacceptable-accept-type": "Keiner der akzeptierten Inhaltstypen kann ausgeliefert werden.",
		"package-unknown":          "Das Paket %s ist unbekannt.",
		"package-unknown-version":  "Das Paket %s hat keine Version %s.",
		"package-read-failed":      "Die Paketdatei %s konnte nicht gelesen werden.",
		"package-payment-required": "Der Zugriff auf das Paket %s in Version %s erfordert eine Zahlung.",
		"package-list-unavailable": "Die Paketliste ist noch nicht verfügbar, bitte später erneut versuchen.",
		"source-heading":           "Quelldateien",
		"about-heading":            "Über diesen Server",
		"about-version":            "Serverversion",
		"about-uptime":             "Laufzeit",
		"about-source-link":        "Quellcode des Servers ansehen",
	},
}

// language negotiates the response language from the Accept-Language
// header. Unparsable headers fall back to the default.
func (s *Server) language(r *http.Request) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	_, i, _ := matcher.Match(tags...)
	return supported[i]
}

// matchTag maps an arbitrary tag onto a supported language.
func matchTag(t language.Tag) language.Tag {
	_, i, _ := matcher.Match(t)
	return supported[i]
}

// message formats the named message in the given language.
func message(t language.Tag, key string, args ...interface{}) string {
	m, ok := messages[t]
	if !ok {
		m = messages[supported[0]]
	}
	f, ok := m[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return f
	}
	return fmt.Sprintf(f, args...)
}
