// Package config provides centralized configuration management for the
// warehouse. It loads configuration from multiple sources, validates it and
// resolves the on-disk layout and vendor credentials.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables, including those filled from .env (highest priority)
//	2. The YAML configuration file (config.yaml or configs/config.yaml)
//	3. Default values from struct tags (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern MDW_<SECTION>_<FIELD>:
//
//	MDW_STORAGE_ROOT=/srv/warehouse
//	MDW_LOGGING_LEVEL=debug
//	MDW_FETCH_LAUNCH_INTERVAL=100ms
//	MDW_CACHE_BACKEND=redis
//
// # Credentials
//
// Vendor keys are never part of the configuration. Each provider names an
// environment variable and a key name inside "<token_dir>/<source>.txt", a
// file of "name:key" lines. ResolveCredentials runs once at startup and the
// result is passed to the provider clients.
//
// # Layout
//
// Layout is the single source of truth for the tier root directories. The
// item paths below them are owned by the registry package.
package config
