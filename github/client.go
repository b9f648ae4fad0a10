package github_handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v73/github"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/MyCarrier-DevOps/ghaccess"
	"github.com/MyCarrier-DevOps/ghaccess/auth"
	"github.com/MyCarrier-DevOps/ghaccess/logger"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com"

const tracerName = "github.com/MyCarrier-DevOps/ghaccess/github"

// Client executes GitHub REST calls for one repository context.
// It is safe for concurrent use.
type Client struct {
	gh         *github.Client
	httpClient *http.Client
	resolver   auth.Resolver
	repo       RepositoryContext
	apiBaseURL string

	policy  RetryPolicy
	timeout time.Duration
	rate    *RateLimitState

	log    logger.Logger
	tracer trace.Tracer
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithAPIBaseURL sets the REST base, for example https://ghe.example.com/api/v3.
func WithAPIBaseURL(baseURL string) Option {
	return func(c *Client) { c.apiBaseURL = baseURL }
}

// WithHTTPClient sets the HTTP client used for REST and GraphQL calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRepository sets the default repository context.
func WithRepository(repo RepositoryContext) Option {
	return func(c *Client) { c.repo = repo }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithRequestTimeout bounds each HTTP attempt. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithTracerProvider sets the provider for request spans. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// WithClock sets the time source for rate limit bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithSleep replaces the wait between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient creates a Client that authenticates every request through resolver.
func NewClient(resolver auth.Resolver, opts ...Option) (*Client, error) {
	if resolver == nil {
		return nil, fmt.Errorf("github client requires a credential resolver")
	}

	c := &Client{
		resolver:   resolver,
		apiBaseURL: DefaultAPIURL,
		policy:     DefaultRetryPolicy(),
		rate:       &RateLimitState{},
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.policy = c.policy.withDefaults()
	c.log = logger.OrNop(c.log)
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}

	c.apiBaseURL = strings.TrimRight(c.apiBaseURL, "/")
	base, err := url.Parse(c.apiBaseURL + "/")
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid GitHub API URL %q", c.apiBaseURL)
	}

	c.gh = github.NewClient(c.httpClient)
	c.gh.BaseURL = base
	c.gh.UserAgent = ghaccess.UserAgent()

	if c.repo.APIBaseURL == "" {
		c.repo.APIBaseURL = c.apiBaseURL
	}
	return c, nil
}

// APIBaseURL returns the REST base URL without a trailing slash.
func (c *Client) APIBaseURL() string {
	return c.apiBaseURL
}

// CurrentRepository returns the repository context resolved at startup.
func (c *Client) CurrentRepository() (RepositoryContext, error) {
	if err := c.repo.Validate(); err != nil {
		return RepositoryContext{}, err
	}
	return c.repo, nil
}

// RateLimit returns the rate limit reported by the latest response.
func (c *Client) RateLimit() (RateLimit, bool) {
	return c.rate.Snapshot()
}

// Resolver returns the credential resolver shared by REST, GraphQL and clone operations.
func (c *Client) Resolver() auth.Resolver {
	return c.resolver
}
