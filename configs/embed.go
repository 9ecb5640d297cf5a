// Package configs provides the embedded configuration template for Academe.
//
// The template is embedded at build time with //go:embed so it is available
// in all distributions. `academe config init` writes it to
// ~/.academe/config.yaml for the user to edit.
package configs

import _ "embed"

// ConfigTemplate is the annotated default configuration file.
//
//go:embed academe.yaml
var ConfigTemplate string
