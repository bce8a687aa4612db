// ABOUTME: Package documentation for configuration loading
// ABOUTME: Explains the file format and environment variable expansion

// Package config handles configuration loading for ember-chat.
//
// Configuration is loaded from a YAML file with environment variable
// expansion and sensible defaults. Values can reference environment
// variables with ${VAR_NAME} syntax:
//
//	anthropic:
//	  api_key: "${ANTHROPIC_API_KEY}"
//	auth:
//	  jwt_secret: "${EMBER_JWT_SECRET}"
//
// The storage backend is selected at startup via database.backend:
// "sqlite" (durable, default) or "memory" (for development).
package config
