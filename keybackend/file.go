package keybackend

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sagarc03/strongbox"
	"gopkg.in/yaml.v3"
)

// KeyPair represents an access key and secret key pair.
type KeyPair = strongbox.KeyPair

// LoadKeysFromFile loads access keys from a JSON or YAML file, chosen by the
// file extension (.yaml and .yml are YAML, anything else JSON).
// The file should contain a list of key pairs:
//
//	[
//	  {"access_key": "AK_PRIMARY", "secret_key": "c2VjcmV0..."},
//	  {"access_key": "AK_ROTATED", "secret_key": "another_secret"}
//	]
//
// or in YAML:
//
//   - access_key: AK_PRIMARY
//     secret_key: c2VjcmV0...
//
// Returns a map of access key to secret key. Entries with an empty access key
// or secret are skipped; for duplicates the last entry wins.
func LoadKeysFromFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path is from trusted config file
	if err != nil {
		return nil, fmt.Errorf("read keys file: %w", err)
	}

	var pairs []KeyPair
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &pairs); err != nil {
			return nil, fmt.Errorf("parse keys file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &pairs); err != nil {
			return nil, fmt.Errorf("parse keys file: %w", err)
		}
	}

	keys := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if p.AccessKey != "" && p.SecretKey != "" {
			keys[p.AccessKey] = p.SecretKey
		}
	}

	return keys, nil
}
