package github_handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v73/github"
	"github.com/tomnomnom/linkheader"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MyCarrier-DevOps/ghaccess/auth"
	"github.com/MyCarrier-DevOps/ghaccess/logger"
)

// Execute performs req with authentication, retries and error classification.
//
// Rate limits, 5xx and network failures are retried up to the policy's MaxAttempts. A 401 or
// non-rate-limit 403 invalidates the credential and retries once. Any other failure is returned
// as an *APIError, or as the resolver's configuration error when no credential can be produced.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	ctx, span := c.tracer.Start(ctx, "github.execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
		),
	)
	defer span.End()

	resp, calls, err := c.execute(ctx, req)

	span.SetAttributes(attribute.Int("github.attempts", calls))
	if resp != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	}
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			span.SetAttributes(attribute.String("github.error.kind", string(apiErr.Kind)))
			if apiErr.StatusCode != 0 {
				span.SetAttributes(attribute.Int("http.response.status_code", apiErr.StatusCode))
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

func (c *Client) execute(ctx context.Context, req Request) (*Response, int, error) {
	log := c.log.WithFields(map[string]interface{}{
		"method": req.Method,
		"path":   req.Path,
	})

	calls := 0
	authRetried := false
	for attempt := 1; ; attempt++ {
		callCtx, cancel := c.attemptContext(ctx)
		cred, err := c.resolver.Resolve(callCtx)
		if err != nil {
			cancel()
			credErr := c.credentialError(ctx, req, err)
			var apiErr *APIError
			if !errors.As(credErr, &apiErr) {
				return nil, calls, credErr
			}
			apiErr.Attempts = calls
			if !c.shouldRetry(ctx, apiErr, attempt) {
				return nil, calls, apiErr
			}
			if err := c.wait(ctx, log, req, apiErr, attempt); err != nil {
				return nil, calls, err
			}
			continue
		}

		calls++
		resp, apiErr := c.do(callCtx, req, cred)
		cancel()
		if apiErr == nil {
			log.Debug(ctx, "GitHub request succeeded", map[string]interface{}{
				"status":   resp.StatusCode,
				"attempts": calls,
			})
			return resp, calls, nil
		}
		apiErr.Attempts = calls

		if ctx.Err() != nil {
			return nil, calls, c.canceled(req, ctx.Err(), calls)
		}

		if apiErr.Kind == KindAuth && !authRetried {
			authRetried = true
			attempt--
			c.resolver.Invalidate(cred.Token)
			log.Info(ctx, "GitHub rejected credential, refreshing once", map[string]interface{}{
				"status": apiErr.StatusCode,
			})
			continue
		}

		if !c.shouldRetry(ctx, apiErr, attempt) {
			log.Debug(ctx, "GitHub request failed", map[string]interface{}{
				"kind":     string(apiErr.Kind),
				"status":   apiErr.StatusCode,
				"attempts": calls,
			})
			return nil, calls, apiErr
		}
		if err := c.wait(ctx, log, req, apiErr, attempt); err != nil {
			return nil, calls, err
		}
	}
}

func (c *Client) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

func (c *Client) shouldRetry(ctx context.Context, apiErr *APIError, attempt int) bool {
	return ctx.Err() == nil && apiErr.Retryable() && attempt < c.policy.MaxAttempts
}

// wait sleeps before the next attempt. A server-requested wait beyond the policy returns apiErr.
func (c *Client) wait(ctx context.Context, log logger.Logger, req Request, apiErr *APIError, attempt int) error {
	delay, ok := c.policy.delay(apiErr, attempt, c.now())
	if !ok {
		log.Warn(ctx, "GitHub requested a wait longer than allowed, not retrying", map[string]interface{}{
			"kind":  string(apiErr.Kind),
			"delay": delay.String(),
		})
		return apiErr
	}

	log.Warn(ctx, "Retrying GitHub request", map[string]interface{}{
		"kind":    string(apiErr.Kind),
		"status":  apiErr.StatusCode,
		"attempt": attempt,
		"delay":   delay.String(),
	})
	if err := c.sleep(ctx, delay); err != nil {
		return c.canceled(req, err, apiErr.Attempts)
	}
	return nil
}

func (c *Client) canceled(req Request, err error, calls int) *APIError {
	return &APIError{
		Kind:     KindNetwork,
		Method:   req.Method,
		Path:     req.Path,
		Attempts: calls,
		Err:      err,
	}
}

// credentialError maps resolver failures. Exchange failures become APIErrors so that transient
// ones are retried; configuration and key errors pass through unchanged.
func (c *Client) credentialError(ctx context.Context, req Request, err error) error {
	if ctx.Err() != nil {
		return c.canceled(req, ctx.Err(), 0)
	}

	var authErr *auth.AuthError
	if !errors.As(err, &authErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return &APIError{Kind: KindNetwork, Method: req.Method, Path: req.Path, Err: err}
		}
		return err
	}

	kind := KindAuth
	switch authErr.Reason {
	case auth.ReasonUpstream:
		kind = KindUpstream
	case auth.ReasonNetwork:
		kind = KindNetwork
	}
	return &APIError{
		Kind:       kind,
		Method:     req.Method,
		Path:       req.Path,
		StatusCode: authErr.StatusCode,
		Err:        err,
	}
}

// do performs a single HTTP call.
func (c *Client) do(ctx context.Context, req Request, cred auth.Credential) (*Response, *APIError) {
	httpReq, err := c.newHTTPRequest(req)
	if err != nil {
		return nil, &APIError{Kind: KindValidation, Method: req.Method, Path: req.Path, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+cred.Token)

	ctx = context.WithValue(ctx, github.BypassRateLimitCheck, true)
	ghResp, err := c.gh.BareDo(ctx, httpReq)
	c.rate.Update(ghResp, c.now())

	var body []byte
	if ghResp != nil && ghResp.Response != nil && ghResp.Body != nil {
		body, _ = io.ReadAll(ghResp.Body)
		_ = ghResp.Body.Close()
	}

	if err != nil {
		var accepted *github.AcceptedError
		if errors.As(err, &accepted) {
			return newResponse(ghResp, accepted.Raw), nil
		}
		return nil, classify(req, ghResp, err)
	}
	return newResponse(ghResp, body), nil
}

func (c *Client) newHTTPRequest(req Request) (*http.Request, error) {
	path := strings.TrimPrefix(req.Path, "/")
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		path += sep + req.Query.Encode()
	}

	var body interface{}
	if req.Body != nil {
		body = req.Body
	}
	httpReq, err := c.gh.NewRequest(req.Method, path, body)
	if err != nil {
		return nil, err
	}

	accept := req.Accept
	if accept == "" {
		accept = DefaultAccept
	}
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("X-GitHub-Api-Version", APIVersion)
	return httpReq, nil
}

func newResponse(ghResp *github.Response, body []byte) *Response {
	return &Response{
		StatusCode:    ghResp.StatusCode,
		Header:        ghResp.Header,
		Body:          body,
		NextURL:       nextLink(ghResp.Header),
		NextPage:      ghResp.NextPage,
		After:         ghResp.After,
		Cursor:        ghResp.Cursor,
		NextPageToken: ghResp.NextPageToken,
	}
}

func nextLink(header http.Header) string {
	links := linkheader.ParseMultiple(header.Values("Link")).FilterByRel("next")
	if len(links) == 0 {
		return ""
	}
	return links[0].URL
}

// nextRequest turns the next link of resp into the request for the following page. Links that
// leave the API base are refused so the credential is never sent elsewhere.
func (c *Client) nextRequest(current Request, resp *Response) (Request, bool, error) {
	if resp.NextURL == "" {
		return Request{}, false, nil
	}
	base := c.gh.BaseURL
	u, err := base.Parse(resp.NextURL)
	if err != nil {
		return Request{}, false, fmt.Errorf("invalid next link %q: %w", resp.NextURL, err)
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return Request{}, false, fmt.Errorf("next link %q is outside %s", resp.NextURL, c.apiBaseURL)
	}
	path, ok := strings.CutPrefix(u.EscapedPath(), base.EscapedPath())
	if !ok {
		return Request{}, false, fmt.Errorf("next link %q is outside %s", resp.NextURL, c.apiBaseURL)
	}

	next := current.clone()
	next.Path = "/" + path
	next.Query = u.Query()
	return next, true, nil
}

// classify turns a failed call into an APIError. Status codes decide the kind; go-github's
// typed errors only contribute details.
func classify(req Request, ghResp *github.Response, err error) *APIError {
	apiErr := &APIError{Method: req.Method, Path: req.Path, Err: err}

	if ghResp == nil || ghResp.Response == nil {
		apiErr.Kind = KindNetwork
		return apiErr
	}
	apiErr.StatusCode = ghResp.StatusCode
	apiErr.RetryAfter = retryAfter(ghResp.Response)

	var (
		errResp   *github.ErrorResponse
		rateErr   *github.RateLimitError
		secondary *github.AbuseRateLimitError
	)
	rateLimited := false
	switch {
	case errors.As(err, &rateErr):
		rateLimited = true
		apiErr.Message = rateErr.Message
		apiErr.ResetAt = rateErr.Rate.Reset.Time
	case errors.As(err, &secondary):
		rateLimited = true
		apiErr.Message = secondary.Message
		if secondary.RetryAfter != nil && apiErr.RetryAfter == 0 {
			apiErr.RetryAfter = *secondary.RetryAfter
		}
	case errors.As(err, &errResp):
		apiErr.Message = errResp.Message
		apiErr.DocumentationURL = errResp.DocumentationURL
		apiErr.Errors = errResp.Errors
	}

	status := ghResp.StatusCode
	if status == http.StatusForbidden && !rateLimited {
		rateLimited = apiErr.RetryAfter > 0 || (ghResp.Rate.Limit > 0 && ghResp.Rate.Remaining == 0)
	}

	switch {
	case status == http.StatusTooManyRequests || (status == http.StatusForbidden && rateLimited):
		apiErr.Kind = KindRateLimit
		if apiErr.ResetAt.IsZero() && ghResp.Rate.Limit > 0 && ghResp.Rate.Remaining == 0 {
			apiErr.ResetAt = ghResp.Rate.Reset.Time
		}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		apiErr.Kind = KindAuth
	case status == http.StatusNotFound || status == http.StatusGone:
		apiErr.Kind = KindNotFound
	case status >= 500:
		apiErr.Kind = KindUpstream
	default:
		apiErr.Kind = KindValidation
	}
	return apiErr
}
