// Package config loads the Skylift client configuration from a YAML file,
// applies defaults, validates it with struct tags, and optionally watches
// the file for live reload.
package config
