// Package secrets defines the boundary through which tools and the LLM
// client resolve API keys and tokens, so a host embedding this module
// can swap in a vault-backed implementation without touching callers.
package secrets

import (
	"fmt"
	"os"
)

// Store resolves a named secret.
type Store interface {
	Get(name string) (string, error)
}

// EnvStore resolves secrets from environment variables. This is the
// default implementation; hosts needing a real secrets manager provide
// their own Store.
type EnvStore struct{}

// Get returns the value of the environment variable named name, or an
// error if it is unset or empty.
func (EnvStore) Get(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("secrets: %s is not set", name)
	}
	return v, nil
}
