package env

import (
	"os"

	"github.com/joho/godotenv"
)

var Env map[string]string

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok && val != "" {
		return val
	}
	// Fallback to OS environment variables (for Docker/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// FirstEnv returns the first non-empty value among keys, or def.
func FirstEnv(def string, keys ...string) string {
	for _, k := range keys {
		if v := GetEnv(k, ""); v != "" {
			return v
		}
	}
	return def
}

// SetupEnvFile loads the first .env file it finds. Containers usually inject
// the environment directly, so a missing file is not an error.
func SetupEnvFile() bool {
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From cmd/vodscribe to project root
		"../../../.env", // Fallback for deeper nesting
	}

	for _, envFile := range envFiles {
		vals, err := godotenv.Read(envFile)
		if err == nil {
			Env = vals
			return true
		}
	}
	return false
}
