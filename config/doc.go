// Package config loads configuration structs with viper.
//
// Values are layered: a YAML file (explicit or found next to the process),
// an optional .env file loaded through godotenv, and environment variables
// prefixed with the upper-cased component name.
//
//	var cfg struct {
//	    Client httpclient.Config `mapstructure:"client"`
//	}
//	err := config.Load("httpkit", &cfg, config.WithConfigFile("httpkit.yml"))
//
// With the call above HTTPKIT_CLIENT_IDLE_TIMEOUT=5s overrides client.idle_timeout.
package config
