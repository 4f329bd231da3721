// Package config handles loading and validating Nexus Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Signing secrets should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Access and refresh secrets must be independent; sharing one secret
//     between the two credential kinds collapses the isolation between them
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Auth.AccessTTL())
package config
