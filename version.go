package redline

import _ "embed"

// Version is the release version of the module, trimmed by callers.
//
//go:embed VERSION
var Version string
