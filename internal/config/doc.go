// Package config loads the authcore demo server configuration.
//
// Values come from defaults, then an optional YAML file, then AUTHCORE_* environment
// variables. [Config.Validate] reports every problem in one error and [Config.Engine]
// maps the result onto authcore.Config.
//
// Example YAML:
//
//	server:
//	  addr: ":8080"
//	auth:
//	  access_ttl: 15m
//	  refresh_ttl: 168h
//	store:
//	  backend: sqlite
//	  sqlite_path: ./data/authcore.db
//	demo_seed: true
package config
