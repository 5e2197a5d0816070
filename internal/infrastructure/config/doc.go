// Package config handles loading and validating Smart Pot Core configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Populating the environment from .env files
//   - Overriding with SMARTPOT_* environment variables
//   - Validation of required fields and signing-secret strength
//
// Security Considerations:
//   - The JWT secret has no default. Set SMARTPOT_JWT_SECRET.
//   - dev_mode substitutes InsecureDevSecret and reports it via Warnings()
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	if err := config.LoadDotEnv(); err != nil {
//	    return err
//	}
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	for _, w := range cfg.Warnings() {
//	    log.Warn(w)
//	}
package config
