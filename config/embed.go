// Package config provides the embedded default configuration for adkinspect.
package config

import (
	_ "embed"
)

// DefaultConfigYAML contains the embedded default configuration in YAML format.
// It is written by "adkinspect config create" and documents every setting.
//
//go:embed config.default.yaml
var DefaultConfigYAML []byte
