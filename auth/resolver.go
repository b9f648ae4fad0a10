package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/oauth2"

	"github.com/MyCarrier-DevOps/ghaccess/logger"
)

// Resolver yields the credential to attach to the next request.
type Resolver interface {
	// Resolve returns a usable credential. It is safe to call before every request.
	Resolve(ctx context.Context) (Credential, error)
	// Invalidate drops a cached credential that GitHub rejected.
	Invalidate(token string)
}

// CredentialResolver resolves credentials for one selected Strategy.
type CredentialResolver struct {
	strategy  Strategy
	cache     *TokenCache
	exchanger Exchanger
	signer    *Signer
	now       func() time.Time
	margin    time.Duration
	log       logger.Logger

	apiBaseURL string
	httpClient *http.Client
}

var _ Resolver = (*CredentialResolver)(nil)

// Option configures a CredentialResolver.
type Option func(*CredentialResolver)

// WithTokenCache injects the installation token cache.
func WithTokenCache(cache *TokenCache) Option {
	return func(r *CredentialResolver) { r.cache = cache }
}

// WithExchanger replaces the go-github installation token exchanger.
func WithExchanger(e Exchanger) Option {
	return func(r *CredentialResolver) { r.exchanger = e }
}

// WithClock sets the time source used for JWT signing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(r *CredentialResolver) { r.now = now }
}

// WithExpiryMargin sets how early a cached installation token is refreshed.
func WithExpiryMargin(margin time.Duration) Option {
	return func(r *CredentialResolver) { r.margin = margin }
}

func WithLogger(log logger.Logger) Option {
	return func(r *CredentialResolver) { r.log = log }
}

// WithAPIBaseURL sets the REST base URL used for installation token exchange.
func WithAPIBaseURL(baseURL string) Option {
	return func(r *CredentialResolver) { r.apiBaseURL = baseURL }
}

// WithHTTPClient sets the HTTP client used for installation token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(r *CredentialResolver) { r.httpClient = c }
}

// NewResolver prepares a resolver for strategy. For a GitHubApp the private key is loaded and
// parsed here, so key problems surface at startup rather than on the first request.
func NewResolver(ctx context.Context, strategy Strategy, opts ...Option) (*CredentialResolver, error) {
	if strategy == nil {
		return nil, &ConfigError{Reason: "no strategy selected"}
	}

	r := &CredentialResolver{
		strategy: strategy,
		now:      time.Now,
		margin:   DefaultExpiryMargin,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logger.OrNop(r.log).WithFields(map[string]interface{}{"strategy": strategy.Kind()})

	switch s := strategy.(type) {
	case StaticToken:
		if strings.TrimSpace(s.Token) == "" {
			return nil, &ConfigError{Field: "GITHUB_PAT", Reason: "token is empty"}
		}
	case TokenFile:
		if strings.TrimSpace(s.Path) == "" {
			return nil, &ConfigError{Field: "GITHUB_PAT_FILE", Reason: "path is empty"}
		}
	case GitHubApp:
		if err := r.prepareApp(ctx, s); err != nil {
			return nil, err
		}
	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unsupported strategy %T", strategy)}
	}

	r.log.Debug(ctx, "Credential resolver ready", nil)
	return r, nil
}

func (r *CredentialResolver) prepareApp(ctx context.Context, app GitHubApp) error {
	if app.Key == nil {
		return &ConfigError{Field: "GITHUB_PRIVATE_KEY_PATH", Reason: "no private key source"}
	}

	pem, err := app.Key.PrivateKey(ctx)
	if err != nil {
		return err
	}
	signer, err := NewSigner(app.AppID, pem)
	if err != nil {
		return err
	}
	r.signer = signer

	if r.cache == nil {
		r.cache = NewTokenCache(r.margin, r.now)
	}
	if r.exchanger == nil {
		exchanger, err := NewInstallationTokenExchanger(r.httpClient, r.apiBaseURL, r.now)
		if err != nil {
			return err
		}
		r.exchanger = exchanger
	}

	r.log.Info(ctx, "GitHub App credentials loaded", map[string]interface{}{
		"app_id":          app.AppID,
		"installation_id": app.InstallationID,
		"key_source":      app.Key.String(),
	})
	return nil
}

// Strategy returns the strategy this resolver serves.
func (r *CredentialResolver) Strategy() Strategy {
	return r.strategy
}

// Resolve returns the credential for the next request.
func (r *CredentialResolver) Resolve(ctx context.Context) (Credential, error) {
	switch s := r.strategy.(type) {
	case StaticToken:
		return Credential{Token: s.Token}, nil
	case TokenFile:
		return readTokenFile(s.Path)
	case GitHubApp:
		return r.cache.GetOrRefresh(ctx, func(ctx context.Context) (Credential, error) {
			return r.refreshInstallationToken(ctx, s)
		})
	default:
		return Credential{}, &ConfigError{Reason: fmt.Sprintf("unsupported strategy %T", r.strategy)}
	}
}

func (r *CredentialResolver) refreshInstallationToken(ctx context.Context, app GitHubApp) (Credential, error) {
	appJWT, err := r.signer.Sign(r.now())
	if err != nil {
		return Credential{}, err
	}

	cred, err := r.exchanger.Exchange(ctx, appJWT, app.InstallationID)
	if err != nil {
		r.log.Error(ctx, "Installation token exchange failed", err, map[string]interface{}{
			"installation_id": app.InstallationID,
		})
		return Credential{}, err
	}

	r.log.Info(ctx, "Installation token refreshed", map[string]interface{}{
		"installation_id": app.InstallationID,
		"expires_at":      cred.ExpiresAt.UTC().Format(time.RFC3339),
	})
	return cred, nil
}

// Invalidate clears a cached installation token. It is a no-op for token strategies.
func (r *CredentialResolver) Invalidate(token string) {
	if r.cache == nil {
		return
	}
	r.cache.Invalidate(token)
	r.log.Info(context.Background(), "Cached installation token invalidated", nil)
}

// TokenSource adapts the resolver to oauth2.TokenSource. Every Token call resolves, so cache
// invalidation and PAT file rotation are observed.
func (r *CredentialResolver) TokenSource(ctx context.Context) oauth2.TokenSource {
	return NewTokenSource(ctx, r)
}

// NewTokenSource adapts any Resolver to oauth2.TokenSource.
func NewTokenSource(ctx context.Context, r Resolver) oauth2.TokenSource {
	return &resolverTokenSource{ctx: ctx, resolver: r}
}

type resolverTokenSource struct {
	ctx      context.Context
	resolver Resolver
}

func (s *resolverTokenSource) Token() (*oauth2.Token, error) {
	cred, err := s.resolver.Resolve(s.ctx)
	if err != nil {
		return nil, err
	}
	return cred.OAuth2Token(), nil
}

func readTokenFile(path string) (Credential, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return Credential{}, &ConfigError{Field: "GITHUB_PAT_FILE", Reason: "cannot expand path", Err: err}
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return Credential{}, &ConfigError{Field: "GITHUB_PAT_FILE", Reason: "cannot read token file", Err: err}
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return Credential{}, &ConfigError{Field: "GITHUB_PAT_FILE", Reason: "token file is empty"}
	}
	return Credential{Token: token}, nil
}
