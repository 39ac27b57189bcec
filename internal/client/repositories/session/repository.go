// Package session persists the CLI's login state (the token pair and the
// signed-in email) between invocations.
package session

import "context"

// Repository stores session values by key.
type Repository interface {
	// Load returns every stored value; an empty map when signed out.
	Load(ctx context.Context) (map[string]string, error)
	// Save replaces the stored values with values in one transaction.
	Save(ctx context.Context, values map[string]string) error
	// Clear removes every stored value.
	Clear(ctx context.Context) error
}
