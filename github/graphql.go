package github_handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/MyCarrier-DevOps/ghaccess/auth"
)

// GraphQLURL returns the GraphQL endpoint for a REST base URL.
// https://api.github.com maps to https://api.github.com/graphql and an Enterprise
// https://ghe.example.com/api/v3 maps to https://ghe.example.com/api/graphql.
func GraphQLURL(apiBaseURL string) string {
	base := strings.TrimRight(apiBaseURL, "/")
	if strings.HasSuffix(base, "/api/v3") {
		return strings.TrimSuffix(base, "/v3") + "/graphql"
	}
	return base + "/graphql"
}

// GraphQL returns a githubv4 client that authenticates through the same resolver as REST calls.
// A 401 from the GraphQL endpoint invalidates the cached credential for the next call.
func (c *Client) GraphQL(ctx context.Context) *githubv4.Client {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	httpClient := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: auth.NewTokenSource(ctx, c.resolver),
			Base:   &invalidatingTransport{base: base, resolver: c.resolver},
		},
	}

	if c.apiBaseURL == DefaultAPIURL {
		return githubv4.NewClient(httpClient)
	}
	return githubv4.NewEnterpriseClient(GraphQLURL(c.apiBaseURL), httpClient)
}

type invalidatingTransport struct {
	base     http.RoundTripper
	resolver auth.Resolver
}

func (t *invalidatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		t.resolver.Invalidate(strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer "))
	}
	return resp, err
}

// GraphQLRateLimit is the GraphQL API's point budget.
type GraphQLRateLimit struct {
	Limit     int
	Remaining int
	Used      int
	Cost      int
	ResetAt   time.Time
}

// GraphQLRateLimit queries the GraphQL rate limit. It costs no points.
func (c *Client) GraphQLRateLimit(ctx context.Context) (GraphQLRateLimit, error) {
	var query struct {
		RateLimit struct {
			Limit     int
			Remaining int
			Used      int
			Cost      int
			ResetAt   githubv4.DateTime
		}
	}

	if err := c.GraphQL(ctx).Query(ctx, &query, nil); err != nil {
		return GraphQLRateLimit{}, NewGraphQLError("rateLimit", err)
	}

	c.log.Debug(ctx, "Retrieved GraphQL rate limit", map[string]interface{}{
		"remaining": query.RateLimit.Remaining,
		"limit":     query.RateLimit.Limit,
	})
	return GraphQLRateLimit{
		Limit:     query.RateLimit.Limit,
		Remaining: query.RateLimit.Remaining,
		Used:      query.RateLimit.Used,
		Cost:      query.RateLimit.Cost,
		ResetAt:   query.RateLimit.ResetAt.Time,
	}, nil
}
