// Package config handles loading and validating Bumper configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with BUMPER_* environment variables
//   - Validation of listeners, auth mode and timings
//   - Default values matching the ports real devices dial
//
// Security Considerations:
//   - MQTT and InfluxDB credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Permissive auth mode accepts any device id; use strict mode when the
//     listeners are reachable from untrusted networks
//
// Usage:
//
//	cfg, err := config.Load("configs/bumper.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, l := range cfg.Listeners {
//	    fmt.Println(l.Name, l.Address())
//	}
package config
