// Package env reads configuration from the process environment, optionally
// seeded from a .env file.
package env

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv reads a .env file if one exists.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, assuming environment variables are set directly.")
	}
}

// MustGetEnv returns the value of key and exits when it is unset.
func MustGetEnv(key string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		log.Fatalf("Environment variable %s not set", key)
	}
	return val
}

// GetEnvOrDefault returns def when key is unset or empty.
func GetEnvOrDefault(key, def string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return def
}

// GetDuration parses key with time.ParseDuration. Unset or invalid values
// yield def; invalid ones are logged.
func GetDuration(key string, def time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		log.Printf("Invalid duration %q for %s, using %s", val, key, def)
		return def
	}
	return d
}

// GetBool parses key as a boolean, falling back to def.
func GetBool(key string, def bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		log.Printf("Invalid boolean %q for %s, using %t", val, key, def)
		return def
	}
	return b
}
