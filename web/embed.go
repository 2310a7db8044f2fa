package web

import "embed"

// DistFS holds the dashboard page served at the root of agnvar serve.
//
//go:embed dist
var DistFS embed.FS
