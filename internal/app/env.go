package app

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// so BRUTE_* settings can live next to a workspace. Variables already set
// win. A missing file is only an error when required is true.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return Invalid("env-file", "failed to load %s: %v", path, err)
	}
	return nil
}
