package github_handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/MyCarrier-DevOps/ghaccess/auth"
	"github.com/MyCarrier-DevOps/ghaccess/config"
	"github.com/MyCarrier-DevOps/ghaccess/logger"
	"github.com/MyCarrier-DevOps/ghaccess/vault"
)

// AuthSettings maps configuration onto strategy selection inputs. A vault:// private key path
// becomes a Vault key source; nothing is fetched until the resolver is built.
func AuthSettings(cfg *config.Config) (auth.Settings, error) {
	settings := auth.Settings{
		PAT:            cfg.PAT,
		PATFile:        cfg.PATFile,
		AppID:          cfg.AppID,
		InstallationID: cfg.InstallationID,
		PrivateKeyPath: cfg.PrivateKeyPath,
		PrivateKey:     cfg.PrivateKey,
	}

	if vault.IsReference(cfg.PrivateKeyPath) {
		ks, err := vault.NewKeySource(cfg.PrivateKeyPath, vault.VaultConfig{
			Address:  cfg.Vault.Address,
			Token:    cfg.Vault.Token,
			RoleID:   cfg.Vault.RoleID,
			SecretID: cfg.Vault.SecretID,
		})
		if err != nil {
			return auth.Settings{}, &auth.ConfigError{Field: "GITHUB_PRIVATE_KEY_PATH", Reason: "invalid vault reference", Err: err}
		}
		settings.KeySource = ks
	}
	return settings, nil
}

// NewResolverFromConfig selects the strategy and prepares its resolver. Token exchanges are
// bounded by cfg.RequestTimeout.
func NewResolverFromConfig(ctx context.Context, cfg *config.Config, log logger.Logger) (*auth.CredentialResolver, error) {
	settings, err := AuthSettings(cfg)
	if err != nil {
		return nil, err
	}
	strategy, err := auth.SelectStrategy(settings, cfg.Precedence())
	if err != nil {
		return nil, err
	}
	return auth.NewResolver(ctx, strategy,
		auth.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		auth.WithAPIBaseURL(cfg.APIURL),
		auth.WithExpiryMargin(cfg.TokenExpiryMargin),
		auth.WithLogger(log),
	)
}

// NewClientFromConfig builds the full access layer: credential resolver, repository context and
// executor. Repository detection runs once, against the working copy in the current directory;
// failing to detect is not fatal and surfaces from CurrentRepository instead.
func NewClientFromConfig(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*Client, error) {
	log = logger.OrNop(log)

	resolver, err := NewResolverFromConfig(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to configure GitHub credentials: %w", err)
	}

	repo, err := ResolveRepository(ctx, cfg.Owner, cfg.Repo, cfg.APIURL, NewGitRemoteDetector(".", cfg.APIURL))
	if err != nil {
		log.Warn(ctx, "No default repository", map[string]interface{}{"error": err.Error()})
		repo = RepositoryContext{APIBaseURL: cfg.APIURL}
	} else {
		log.Info(ctx, "Resolved repository context", map[string]interface{}{
			"owner": repo.Owner,
			"repo":  repo.Repo,
		})
	}

	policy := DefaultRetryPolicy()
	policy.MaxAttempts = cfg.MaxAttempts
	policy.MaxRateLimitWait = cfg.RateLimitMaxWait

	base := []Option{
		WithAPIBaseURL(cfg.APIURL),
		WithRepository(repo),
		WithRetryPolicy(policy),
		WithRequestTimeout(cfg.RequestTimeout),
		WithLogger(log),
	}
	return NewClient(resolver, append(base, opts...)...)
}
