// Package githubtest provides test fixtures for code that uses the github package.
// This follows the Go standard library pattern (e.g., net/http/httptest).
//
// Example usage:
//
//	func TestListIssues(t *testing.T) {
//	    srv := githubtest.NewServer(t)
//	    srv.Script("GET", "/repos/octo/hello/issues",
//	        githubtest.Reply{Status: 429, Header: map[string]string{"Retry-After": "1"}},
//	        githubtest.JSON(200, []map[string]any{{"number": 1}}),
//	    )
//
//	    client, _ := github_handler.NewClient(githubtest.NewMockResolver("ghp_test"),
//	        github_handler.WithAPIBaseURL(srv.URL))
//	    ...
//	    if srv.Calls("GET", "/repos/octo/hello/issues") != 2 {
//	        t.Error("expected one retry")
//	    }
//	}
package githubtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// Reply is one scripted response.
type Reply struct {
	Status int
	// Body is written as-is when it is a string or []byte, JSON-encoded otherwise.
	Body   any
	Header map[string]string
}

// JSON is a Reply with a JSON body.
func JSON(status int, body any) Reply {
	return Reply{Status: status, Body: body}
}

// Error is a Reply carrying GitHub's error body shape.
func Error(status int, message string) Reply {
	return Reply{Status: status, Body: map[string]string{
		"message":           message,
		"documentation_url": "https://docs.github.com/rest",
	}}
}

// RecordedRequest is a request the server received.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// Token returns the bearer token of the request.
func (r RecordedRequest) Token() string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

type script struct {
	replies []Reply
	next    int
}

// Server is a fake GitHub REST API backed by gin.
// Unscripted paths answer 404 with GitHub's error body.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	scripts  map[string]*script
	handlers map[string]gin.HandlerFunc
	counts   map[string]int
	requests []RecordedRequest

	// Bearer tokens accepted on non-App endpoints. Empty accepts everything.
	accepted map[string]bool
	issued   int
	expiry   func() time.Time
}

// NewServer starts a Server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		scripts:  make(map[string]*script),
		handlers: make(map[string]gin.HandlerFunc),
		counts:   make(map[string]int),
		expiry:   func() time.Time { return time.Now().Add(time.Hour) },
	}

	engine := gin.New()
	engine.Use(s.record(), s.authenticate())
	engine.POST("/app/installations/:id/access_tokens", s.installationToken)
	engine.NoRoute(s.dispatch)

	s.Server = httptest.NewServer(engine)
	t.Cleanup(s.Close)
	return s
}

func key(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// Script queues replies for method and path. Calls beyond the queue repeat the last reply.
func (s *Server) Script(method, path string, replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[key(method, path)] = &script{replies: replies}
}

// Handle serves method and path with h, for replies that depend on the query.
func (s *Server) Handle(method, path string, h gin.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[key(method, path)] = h
}

// AcceptTokens restricts non-App endpoints to the given bearer tokens plus any issued
// installation token. Other tokens get 401 Bad credentials.
func (s *Server) AcceptTokens(tokens ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accepted == nil {
		s.accepted = make(map[string]bool)
	}
	for _, tok := range tokens {
		s.accepted[tok] = true
	}
}

// RevokeTokens makes the server answer 401 for tokens from now on.
func (s *Server) RevokeTokens(tokens ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accepted == nil {
		s.accepted = make(map[string]bool)
	}
	for _, tok := range tokens {
		s.accepted[tok] = false
	}
}

// SetTokenExpiry sets the expires_at reported for issued installation tokens.
func (s *Server) SetTokenExpiry(expiry func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiry = expiry
}

// IssuedTokens returns how many installation tokens were issued.
func (s *Server) IssuedTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issued
}

// Calls returns how many requests reached method and path.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key(method, path)]
}

// Requests returns a copy of every request received.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// LastRequest returns the most recent request.
func (s *Server) LastRequest() (RecordedRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return RecordedRequest{}, false
	}
	return s.requests[len(s.requests)-1], true
}

// NextLink returns a Link header value pointing at page of path.
func (s *Server) NextLink(path string, page int) string {
	return fmt.Sprintf(`<%s%s?page=%d>; rel="next"`, s.URL, path, page)
}

func (s *Server) record() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		s.mu.Lock()
		s.counts[key(c.Request.Method, c.Request.URL.Path)]++
		s.requests = append(s.requests, RecordedRequest{
			Method: c.Request.Method,
			Path:   c.Request.URL.Path,
			Query:  c.Request.URL.RawQuery,
			Header: c.Request.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()

		c.Next()
	}
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/app/") {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Requires authentication"})
			return
		}

		s.mu.Lock()
		restricted := s.accepted != nil
		ok := s.accepted[strings.TrimPrefix(authHeader, "Bearer ")]
		s.mu.Unlock()

		if restricted && !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Bad credentials"})
			return
		}
		c.Next()
	}
}

func (s *Server) installationToken(c *gin.Context) {
	if s.serveScripted(c) {
		return
	}
	if !strings.HasPrefix(c.GetHeader("Authorization"), "Bearer ") {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "A JSON web token could not be decoded"})
		return
	}

	s.mu.Lock()
	s.issued++
	token := fmt.Sprintf("ghs_installation_%d", s.issued)
	expires := s.expiry()
	if s.accepted != nil {
		s.accepted[token] = true
	}
	s.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{
		"token":      token,
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
}

func (s *Server) dispatch(c *gin.Context) {
	if s.serveScripted(c) {
		return
	}
	c.JSON(http.StatusNotFound, gin.H{
		"message":           "Not Found",
		"documentation_url": "https://docs.github.com/rest",
	})
}

func (s *Server) serveScripted(c *gin.Context) bool {
	k := key(c.Request.Method, c.Request.URL.Path)

	s.mu.Lock()
	h, hasHandler := s.handlers[k]
	sc, hasScript := s.scripts[k]
	var reply Reply
	if hasScript && len(sc.replies) > 0 {
		idx := sc.next
		if idx >= len(sc.replies) {
			idx = len(sc.replies) - 1
		} else {
			sc.next++
		}
		reply = sc.replies[idx]
	}
	s.mu.Unlock()

	switch {
	case hasHandler:
		h(c)
	case hasScript && len(sc.replies) > 0:
		writeReply(c, reply)
	default:
		return false
	}
	return true
}

func writeReply(c *gin.Context, r Reply) {
	for k, v := range r.Header {
		c.Header(k, v)
	}
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}

	switch body := r.Body.(type) {
	case nil:
		c.Status(status)
	case string:
		c.Data(status, "application/json; charset=utf-8", []byte(body))
	case []byte:
		c.Data(status, "application/json; charset=utf-8", body)
	default:
		data, err := json.Marshal(body)
		if err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		c.Data(status, "application/json; charset=utf-8", data)
	}
}
