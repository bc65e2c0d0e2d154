// Package config handles loading and validating yysbot configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with YYSBOT_* environment variables
//   - Validation of required fields and timing windows
//   - Default value handling
//
// Durations are written in Go syntax ("5s", "90m") in YAML and environment
// variables alike.
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The control panel binds to 127.0.0.1 by default and is disabled unless enabled
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Catalog.Module)
package config
