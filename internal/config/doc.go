// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// An optional .env file is loaded into the environment before the YAML is read.
// See configs/channeld.example.yaml for the full schema.
package config
