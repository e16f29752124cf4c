// Package config loads typed configuration from environment variables.
//
// Load parses a struct with github.com/caarlos0/env/v11 tags once per type
// and caches the result, so every component can call it for the slice of
// configuration it owns without reparsing:
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// Before the first parse, env files are loaded with github.com/joho/godotenv.
// When STOREFLEET_ENV names an environment (for example "production"), the
// file .env.<name> is loaded first, then .env. Variables already present in
// the process environment always win, and an earlier file wins over a later
// one. Missing files are ignored. LoadEnv loads explicit files instead.
//
// ResetCache drops cached values and the env-file state; it exists for tests.
package config
