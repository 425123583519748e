package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// envFileVar names an extra env file read ahead of .env.
const envFileVar = "ENV_FILE"

// dotEnvFiles lists the env files to read, highest priority first.
func dotEnvFiles() []string {
	files := []string{".env"}
	if f := os.Getenv(envFileVar); f != "" {
		files = append([]string{f}, files...)
	}
	return files
}

// loadDotEnv loads the files that exist and skips the rest. godotenv never
// overrides a variable that is already set, so the process environment wins,
// then earlier files over later ones.
func loadDotEnv(files ...string) error {
	present := make([]string, 0, len(files))
	for _, f := range files {
		_, err := os.Stat(f)
		switch {
		case err == nil:
			present = append(present, f)
		case errors.Is(err, os.ErrNotExist):
		default:
			return fmt.Errorf("stat %s: %w", f, err)
		}
	}

	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}
