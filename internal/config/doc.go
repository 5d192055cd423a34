// Package config defines the settings of a publishing run and provides
// helpers to load, validate and save them in YAML format.
//
// Load layers, from lowest to highest priority: built-in defaults, the YAML
// file and PYBI_* environment variables. The release token also honours
// GH_TOKEN and GITHUB_TOKEN and is never written back to disk.
package config
