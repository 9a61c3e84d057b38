package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// DotEnvFiles are read by LoadDotEnv when no paths are given.
var DotEnvFiles = []string{".env.local", ".env"}

// LoadDotEnv copies variables from the given dotenv files into the process
// environment. Missing files are skipped and variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = DotEnvFiles
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}
