package auth

import (
	"context"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// KeySource loads the PEM-encoded App private key.
type KeySource interface {
	PrivateKey(ctx context.Context) ([]byte, error)
	// String names the source for logs and errors. It must not include key material.
	String() string
}

// FileKeySource reads the key from a file; a leading ~ is expanded.
type FileKeySource struct {
	Path string
}

func (f FileKeySource) PrivateKey(ctx context.Context) ([]byte, error) {
	path, err := homedir.Expand(f.Path)
	if err != nil {
		return nil, &ConfigError{Field: "GITHUB_PRIVATE_KEY_PATH", Reason: "cannot expand path", Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "GITHUB_PRIVATE_KEY_PATH", Reason: "cannot read private key file", Err: err}
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, &ConfigError{Field: "GITHUB_PRIVATE_KEY_PATH", Reason: "private key file is empty"}
	}
	return data, nil
}

func (f FileKeySource) String() string { return "file:" + f.Path }

// InlineKeySource holds PEM content taken directly from configuration.
type InlineKeySource struct {
	PEM []byte
}

func (i InlineKeySource) PrivateKey(ctx context.Context) ([]byte, error) {
	return i.PEM, nil
}

func (i InlineKeySource) String() string { return "inline" }
