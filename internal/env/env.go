// Package env loads provider credentials from the process environment and
// the nearest .env file.
package env

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"ragchat/internal/domain"
)

// Find walks up from dir looking for a .env file. It returns "" when none exists.
func Find(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(abs, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return ""
		}
		abs = parent
	}
}

// Load reads the nearest .env above dir into the environment. Variables that
// are already set win. A missing file is not an error.
func Load(dir string) (string, error) {
	path := Find(dir)
	if path == "" {
		return "", nil
	}
	if err := godotenv.Load(path); err != nil {
		return path, fmt.Errorf("load %s: %w", path, err)
	}
	return path, nil
}

// Require checks that every named variable is set and non-empty.
func Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if strings.TrimSpace(os.Getenv(name)) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrMissingCredential, strings.Join(missing, ", "))
}

// Lookup returns the value of name or ErrMissingCredential.
func Lookup(name string) (string, error) {
	if name == "" {
		return "", errors.New("no credential variable configured")
	}
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrMissingCredential, name)
	}
	return v, nil
}
