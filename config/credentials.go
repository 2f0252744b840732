package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LoadCredentials binds provider secrets from the environment, reading a
// .env file first when one exists.
func LoadCredentials() (Credentials, error) {
	_ = godotenv.Load()

	var creds Credentials
	if err := envconfig.Process("", &creds); err != nil {
		return Credentials{}, fmt.Errorf("loading credentials: %w", err)
	}
	return creds, nil
}
