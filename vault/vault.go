package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/hashicorp/vault-client-go/schema"
)

// Scheme prefixes private key references that live in Vault.
const Scheme = "vault://"

var (
	// ErrInvalidReference indicates a vault:// reference that cannot be parsed.
	ErrInvalidReference = errors.New("invalid vault reference")

	// ErrSecretField indicates the secret exists but the requested field is missing or not a string.
	ErrSecretField = errors.New("vault secret field missing")
)

// VaultConfig holds the connection and AppRole settings.
type VaultConfig struct {
	Address  string
	Token    string
	RoleID   string
	SecretID string
	Timeout  time.Duration
}

// VaultValidateConfig validates the connection settings.
func VaultValidateConfig(config *VaultConfig) error {
	if config.Address == "" {
		return fmt.Errorf("vault address is required (VAULT_ADDR)")
	}
	if config.Token == "" && (config.RoleID == "" || config.SecretID == "") {
		return fmt.Errorf("vault authentication is required (VAULT_TOKEN or VAULT_ROLE_ID and VAULT_SECRET_ID)")
	}
	return nil
}

// VaultClient returns an authenticated client. A static token wins over AppRole.
func VaultClient(ctx context.Context, config *VaultConfig) (*vault.Client, error) {
	if err := VaultValidateConfig(config); err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client, err := vault.New(
		vault.WithAddress(config.Address),
		vault.WithRequestTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("error configuring vault: %w", err)
	}

	if config.Token != "" {
		if err := client.SetToken(config.Token); err != nil {
			return nil, fmt.Errorf("error setting vault token: %w", err)
		}
		return client, nil
	}

	resp, err := client.Auth.AppRoleLogin(ctx, schema.AppRoleLoginRequest{
		RoleId:   config.RoleID,
		SecretId: config.SecretID,
	})
	if err != nil {
		return nil, fmt.Errorf("error authenticating with vault: %w", err)
	}
	if resp.Auth == nil || resp.Auth.ClientToken == "" {
		return nil, fmt.Errorf("vault approle login returned no client token")
	}
	if err := client.SetToken(resp.Auth.ClientToken); err != nil {
		return nil, fmt.Errorf("error setting vault token: %w", err)
	}
	return client, nil
}

// Reference points at a single field of a KV v2 secret: vault://<mount>/<path>#<field>.
type Reference struct {
	Mount string
	Path  string
	Field string
}

func (r Reference) String() string {
	return Scheme + r.Mount + "/" + r.Path + "#" + r.Field
}

// IsReference reports whether s uses the vault:// scheme.
func IsReference(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), Scheme)
}

// ParseReference parses vault://mount/path#field. The field defaults to "private_key".
func ParseReference(s string) (Reference, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, Scheme) {
		return Reference{}, fmt.Errorf("%w: %q does not start with %s", ErrInvalidReference, s, Scheme)
	}
	rest := strings.TrimPrefix(s, Scheme)

	field := "private_key"
	if i := strings.LastIndex(rest, "#"); i >= 0 {
		field = rest[i+1:]
		rest = rest[:i]
	}

	mount, path, ok := strings.Cut(strings.Trim(rest, "/"), "/")
	if !ok || mount == "" || path == "" || field == "" {
		return Reference{}, fmt.Errorf("%w: %q, want vault://<mount>/<path>#<field>", ErrInvalidReference, s)
	}
	return Reference{Mount: mount, Path: path, Field: field}, nil
}

// KeySource reads a GitHub App private key from Vault. The client is created on first use.
type KeySource struct {
	ref    Reference
	config VaultConfig

	once   sync.Once
	client *vault.Client
	err    error
}

// NewKeySource prepares a key source without contacting Vault.
func NewKeySource(reference string, config VaultConfig) (*KeySource, error) {
	ref, err := ParseReference(reference)
	if err != nil {
		return nil, err
	}
	return &KeySource{ref: ref, config: config}, nil
}

// PrivateKey fetches the PEM from Vault.
func (k *KeySource) PrivateKey(ctx context.Context) ([]byte, error) {
	k.once.Do(func() {
		k.client, k.err = VaultClient(ctx, &k.config)
	})
	if k.err != nil {
		return nil, k.err
	}

	data, err := getKVSecret(ctx, k.client, k.ref.Path, k.ref.Mount)
	if err != nil {
		return nil, err
	}
	value, ok := data[k.ref.Field].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("%w: %s", ErrSecretField, k.ref)
	}
	return []byte(value), nil
}

func (k *KeySource) String() string {
	return k.ref.String()
}

func getKVSecret(ctx context.Context, client *vault.Client, path string, mount string) (map[string]interface{}, error) {
	secret, err := client.Secrets.KvV2Read(
		ctx,
		path,
		vault.WithMountPath(mount),
	)
	if err != nil {
		return nil, fmt.Errorf("error reading secret %s/%s: %w", mount, path, err)
	}
	return secret.Data.Data, nil
}
