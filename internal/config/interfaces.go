package config

import "context"

// SecretProvider resolves secret references to plaintext. The loader uses it
// for variables that point at a secret instead of carrying the value.
type SecretProvider interface {
	// Resolve returns the value for each reference it could resolve.
	Resolve(ctx context.Context, refs []string) (map[string]string, error)
}
