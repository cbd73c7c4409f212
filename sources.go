package packserv

import "embed"

// Sources holds the server's own source tree and its static assets.
// The HTTP layer publishes these under /source/ and /static/.
//
//go:embed go.mod *.go assets auth cmd counter httpd internal inventory ruleset
var Sources embed.FS
