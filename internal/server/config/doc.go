// Package config defines the chatmesh-server configuration.
//
//   - config.go: ServerConfig struct definition
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: masking of secrets for logging
//   - convert.go: mapping onto component configurations
//
// Configuration is loaded through internal/infra/confloader.
package config
