package keybackend

import "fmt"

// KeysConfig holds configuration for loading access keys.
type KeysConfig struct {
	Inline []KeyPair `mapstructure:"inline"` // Inline key pairs from config
	File   string    `mapstructure:"file"`   // Path to JSON or YAML file containing key pairs
	// Signing is the access key used to mint new capabilities. Every other key
	// is accepted for verification only, which is how keys are rotated.
	Signing string `mapstructure:"signing"`
}

// NewSecretStore creates a SecretStore from the given configuration.
// It loads keys from both inline config and file (if specified),
// merging them into a single store. File keys take precedence over inline keys
// if there are duplicates.
func NewSecretStore(cfg KeysConfig) (*MapSecretStore, error) {
	keys := make(map[string]string)

	for _, p := range cfg.Inline {
		if p.AccessKey != "" && p.SecretKey != "" {
			keys[p.AccessKey] = p.SecretKey
		}
	}

	if cfg.File != "" {
		fileKeys, err := LoadKeysFromFile(cfg.File)
		if err != nil {
			return nil, err
		}
		for k, v := range fileKeys {
			keys[k] = v
		}
	}

	return NewMapSecretStore(keys), nil
}

// SigningPair loads the store and returns it together with the configured
// minting key pair.
func SigningPair(cfg KeysConfig) (*MapSecretStore, KeyPair, error) {
	store, err := NewSecretStore(cfg)
	if err != nil {
		return nil, KeyPair{}, fmt.Errorf("load keys: %w", err)
	}

	if cfg.Signing == "" {
		return nil, KeyPair{}, fmt.Errorf("load keys: no signing key configured")
	}

	pair, err := store.Pair(cfg.Signing)
	if err != nil {
		return nil, KeyPair{}, fmt.Errorf("load keys: %w", err)
	}

	return store, pair, nil
}
