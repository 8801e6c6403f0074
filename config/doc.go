// Package config loads tool configuration with viper and godotenv.
//
// A tool's config.yml is read first, then an optional .env file, then the
// process environment. Environment keys are the dotted config keys in upper
// case with dots replaced by underscores, behind an optional prefix:
//
//	var cfg devserver.AppConfig
//	err := config.LoadConfig("devserver", &cfg, config.WithEnvPrefix("DEVSERVER"))
//	// DEVSERVER_SERVER_ADDR overrides server.addr
package config
