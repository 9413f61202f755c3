package tokenstore

import "fmt"

// Backend kinds accepted by OpenBackend.
const (
	KindFile      = "file"
	KindEncrypted = "encrypted"
	KindVault     = "vault"
	KindMemory    = "memory"
)

// BackendConfig selects and configures a Backend.
type BackendConfig struct {
	Kind string

	// Path is the credentials file for the file and encrypted kinds.
	// Empty means DefaultPath("credentials.json") or DefaultPath("credentials.enc").
	Path string

	// Passphrase unlocks the encrypted kind.
	Passphrase []byte

	Vault VaultConfig
}

// OpenBackend builds the Backend described by cfg. An empty kind means file.
func OpenBackend(cfg BackendConfig) (Backend, error) {
	switch cfg.Kind {
	case "", KindFile:
		path, err := pathOrDefault(cfg.Path, "credentials.json")
		if err != nil {
			return nil, err
		}
		return NewFileBackend(path), nil
	case KindEncrypted:
		path, err := pathOrDefault(cfg.Path, "credentials.enc")
		if err != nil {
			return nil, err
		}
		return NewEncryptedFileBackend(path, cfg.Passphrase)
	case KindVault:
		return NewVaultBackend(cfg.Vault)
	case KindMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown token store backend %q (want file, encrypted, vault or memory)", cfg.Kind)
	}
}

func pathOrDefault(path, name string) (string, error) {
	if path != "" {
		return path, nil
	}
	return DefaultPath(name)
}
