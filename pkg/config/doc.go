// Package config loads typed configuration structs from environment
// variables (with optional .env support for local development) and caches
// one parsed instance per type for the process lifetime.
//
// Every component in the billing service declares its own config struct
// with `env` tags and calls Load (or MustLoad at startup); components
// loading the same type are guaranteed to see identical values.
package config
