package config

import "log"

// MustValid stops the process when the configuration cannot serve requests.
func MustValid(c Config) Config {
	if err := c.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return c
}
