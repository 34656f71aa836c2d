// Package configs provides the embedded configuration template.
//
// The template is embedded at build time so `docpull init` can write a
// fully commented starting config regardless of how the binary was
// installed. It must stay in sync with the defaults in
// internal/config: every value in the template equals the built-in
// default.
package configs

import _ "embed"

// DefaultConfigTemplate is the commented configuration written by
// `docpull init` to .docpull/config.yaml.
//
//go:embed default-config.yaml
var DefaultConfigTemplate string
