package util

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv loads .env into the process environment. A missing file is not an error;
// APP_ENV=docker skips the file entirely.
func LoadEnv() error {
	if os.Getenv("APP_ENV") == "docker" {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}
