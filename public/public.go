// Package public holds static assets embedded into the binary.
package public

import _ "embed"

// TrackingSnippet is the storefront attribution script served at
// /tracking-snippet.js.
//
//go:embed tracking-snippet.js
var TrackingSnippet []byte
