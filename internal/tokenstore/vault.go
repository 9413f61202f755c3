package tokenstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// VaultConfig holds Vault KV v2 backend configuration.
type VaultConfig struct {
	// Address is the Vault server address (required)
	// Example: "https://vault.example.com:8200"
	Address string

	// Token is the Vault token. Falls back to VAULT_TOKEN.
	Token string

	// MountPath is the KV v2 mount path (default: "secret")
	MountPath string

	// SecretPath is the secret holding the session entries (default: "tirecode/session")
	SecretPath string

	// Namespace is the Vault namespace (optional, Enterprise feature)
	Namespace string

	// Timeout bounds every Vault call (default: 5s)
	Timeout time.Duration

	// HTTPClient overrides the transport (tests)
	HTTPClient *http.Client
}

// VaultBackend keeps the session entries in one Vault KV v2 secret.
//
// Every write is a read-modify-write of that secret, serialized per process.
type VaultBackend struct {
	address    string
	token      string
	mountPath  string
	secretPath string
	namespace  string
	timeout    time.Duration
	httpClient *http.Client

	mu sync.Mutex
}

// NewVaultBackend validates cfg and creates a VaultBackend.
func NewVaultBackend(cfg VaultConfig) (*VaultBackend, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("vault address is required")
	}

	token := cfg.Token
	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("vault token is required (set via config or VAULT_TOKEN env var)")
	}

	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if cfg.SecretPath == "" {
		cfg.SecretPath = "tirecode/session"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &VaultBackend{
		address:    strings.TrimRight(cfg.Address, "/"),
		token:      token,
		mountPath:  strings.Trim(cfg.MountPath, "/"),
		secretPath: strings.Trim(cfg.SecretPath, "/"),
		namespace:  cfg.Namespace,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
	}, nil
}

// Get implements Backend.
func (v *VaultBackend) Get(key string) (string, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc, err := v.read()
	if err != nil {
		return "", false, err
	}
	value, ok := doc[key]
	return value, ok, nil
}

// Set implements Backend.
func (v *VaultBackend) Set(key, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc, err := v.read()
	if err != nil {
		return err
	}
	doc[key] = value
	return v.write(doc)
}

// Delete implements Backend.
func (v *VaultBackend) Delete(key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc, err := v.read()
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return v.write(doc)
}

func (v *VaultBackend) dataURL() string {
	// KV v2 API path format: /v1/{mount}/data/{path}
	return fmt.Sprintf("%s/v1/%s/data/%s", v.address, v.mountPath, v.secretPath)
}

// addHeaders adds required headers to Vault API requests.
func (v *VaultBackend) addHeaders(req *http.Request) {
	req.Header.Set("X-Vault-Token", v.token)
	req.Header.Set("Content-Type", "application/json")

	if v.namespace != "" {
		req.Header.Set("X-Vault-Namespace", v.namespace)
	}
}

func (v *VaultBackend) read() (map[string]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.dataURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	v.addHeaders(req)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return make(map[string]string), nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("failed to read secret (status %d): %s", resp.StatusCode, string(body))
	}

	// KV v2 nests the secret under data.data
	var payload struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode secret: %w", err)
	}

	doc := make(map[string]string, len(payload.Data.Data))
	for k, val := range payload.Data.Data {
		if s, ok := val.(string); ok {
			doc[k] = s
		}
	}
	return doc, nil
}

func (v *VaultBackend) write(doc map[string]string) error {
	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{"data": doc})
	if err != nil {
		return fmt.Errorf("failed to marshal secret data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.dataURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	v.addHeaders(req)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to write secret: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("failed to write secret (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
