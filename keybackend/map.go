// Package keybackend provides strongbox.SecretStore implementations that
// resolve capability access keys to their secrets.
package keybackend

import (
	"fmt"

	"github.com/sagarc03/strongbox"
)

// MapSecretStore retrieves keys from an in-memory map. It is read-only after
// construction and safe for concurrent use.
type MapSecretStore struct {
	keys map[string]string
}

var _ strongbox.SecretStore = (*MapSecretStore)(nil)

// NewMapSecretStore creates a new map-based secret store with the given access key to secret key mapping.
func NewMapSecretStore(keys map[string]string) *MapSecretStore {
	copied := make(map[string]string, len(keys))
	for k, v := range keys {
		copied[k] = v
	}
	return &MapSecretStore{keys: copied}
}

// Lookup retrieves the secret key for the given access key from the map.
func (s *MapSecretStore) Lookup(accessKey string) (string, error) {
	secretKey, found := s.keys[accessKey]
	if !found {
		return "", ErrKeyNotFound
	}
	return secretKey, nil
}

// Pair returns the full key pair for accessKey, used to pick the minting key.
func (s *MapSecretStore) Pair(accessKey string) (strongbox.KeyPair, error) {
	secretKey, err := s.Lookup(accessKey)
	if err != nil {
		return strongbox.KeyPair{}, fmt.Errorf("signing key %q: %w", accessKey, err)
	}
	return strongbox.KeyPair{AccessKey: accessKey, SecretKey: secretKey}, nil
}

func (s *MapSecretStore) Len() int {
	return len(s.keys)
}
