package vault

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file into the process environment if present,
// ignoring a missing file. Call this once at process start, before any
// Resolver.Resolve falls through to its env-var step.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
