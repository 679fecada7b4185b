// Package config provides configuration loading and validation for strongbox.
//
// The package handles YAML configuration files, environment variables, and CLI flags
// with automatic merging and validation using go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s), merged left-to-right
//  3. Environment variables (STRONGBOX_ prefix)
//  4. CLI flags
//
// # Usage
//
//	cfg, err := config.Load([]string{"config.yaml"}, cmd.Flags())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx = config.WithContext(ctx, cfg)
//
// # Environment Variables
//
// All config keys map to environment variables with the STRONGBOX_ prefix:
//   - server.port → STRONGBOX_SERVER_PORT
//   - server.public_url → STRONGBOX_SERVER_PUBLIC_URL
//   - keys.signing → STRONGBOX_KEYS_SIGNING
//   - auth.jwt_secret → STRONGBOX_AUTH_JWT_SECRET
package config
