// Package config handles loading and validating indihub configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with INDIHUB_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Command-line flags are applied by cmd/indihub on top of the loaded
// configuration and are not handled here.
//
// Security Considerations:
//   - MQTT passwords and InfluxDB tokens should be set via environment variables
//   - The protocol port and the HTTP API are unauthenticated; bind the API to
//     loopback unless the network is trusted
//
// Usage:
//
//	cfg, err := config.Load("/etc/indihub/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.ListenAddr())
package config
