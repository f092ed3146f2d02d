package config

import (
	"github.com/ilyakaznacheev/cleanenv"
)

// readEnv fills the env-tagged fields (tokens, keys) from the process
// environment on top of whatever the json file set.
func readEnv(c *Config) error {
	return cleanenv.ReadEnv(c)
}
