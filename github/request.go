package github_handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Default media type and API version sent with every request.
const (
	DefaultAccept = "application/vnd.github+json"
	APIVersion    = "2022-11-28"
)

// Request describes one REST call relative to the API base URL.
type Request struct {
	Method string
	// Path is relative to the API base, for example /repos/octo/hello/issues.
	Path  string
	Query url.Values
	// Body is JSON-encoded when non-nil.
	Body any
	// Accept overrides DefaultAccept, for example for preview media types.
	Accept string
	// ItemsField names the array field of a wrapped list body during pagination.
	// Bodies with an "items" field are handled without it.
	ItemsField string
}

// Get is shorthand for a GET Request.
func Get(path string, query url.Values) Request {
	return Request{Method: http.MethodGet, Path: path, Query: query}
}

func (r Request) clone() Request {
	out := r
	out.Query = url.Values{}
	for k, v := range r.Query {
		out.Query[k] = append([]string(nil), v...)
	}
	return out
}

// Response is a successful REST response with its body already read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// NextURL is the rel="next" target of the Link header. Pagination requests it as-is.
	NextURL string

	// Next page hints parsed from the Link header.
	NextPage      int
	After         string
	Cursor        string
	NextPageToken string
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode GitHub response: %w", err)
	}
	return nil
}

// HasNextPage reports whether the Link header advertised another page.
func (r *Response) HasNextPage() bool {
	return r.NextURL != "" || r.NextPage != 0 || r.After != "" || r.Cursor != "" || r.NextPageToken != ""
}
