package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config is everything the server reads from the environment.
type Config struct {
	Port        string
	DatabaseURL string
	Env         string
}

// Load reads .env if present, then the environment. A missing .env is
// not an error; deployments set real env vars.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Env:         getEnv("ENV", "development"),
	}
	return cfg
}

func (c Config) Production() bool { return c.Env == "production" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
