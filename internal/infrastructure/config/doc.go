// Package config handles loading and validating tswrite configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (TSWRITE_SECTION_KEY)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - InfluxDB credentials and MQTT passwords should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.GetFlushInterval())
package config
