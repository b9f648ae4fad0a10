package github_handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
)

// MaxPerPage is the largest page size GitHub accepts.
const MaxPerPage = 100

// Paginate returns the items of req across pages, requesting each rel="next" link exactly as
// GitHub sent it. That covers page, since and cursor style pagination alike.
//
// The sequence is lazy: a page is fetched only when the previous one is consumed. It stops after
// maxItems items (no bound when maxItems <= 0) or on the last page. A failed page yields its
// error once and ends the sequence. Ranging over it again starts from the first page.
func (c *Client) Paginate(ctx context.Context, req Request, maxItems int) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		pageReq := req.clone()
		if maxItems > 0 && pageReq.Query.Get("per_page") == "" {
			pageReq.Query.Set("per_page", strconv.Itoa(min(maxItems, MaxPerPage)))
		}

		seen := 0
		for {
			resp, err := c.Execute(ctx, pageReq)
			if err != nil {
				yield(nil, err)
				return
			}

			items, err := extractItems(resp.Body, req.ItemsField)
			if err != nil {
				yield(nil, &APIError{
					Kind:       KindValidation,
					Method:     pageReq.Method,
					Path:       pageReq.Path,
					StatusCode: resp.StatusCode,
					Err:        err,
				})
				return
			}

			for _, item := range items {
				if !yield(item, nil) {
					return
				}
				seen++
				if maxItems > 0 && seen >= maxItems {
					return
				}
			}

			next, ok, err := c.nextRequest(pageReq, resp)
			if err != nil {
				yield(nil, &APIError{
					Kind:       KindValidation,
					Method:     pageReq.Method,
					Path:       pageReq.Path,
					StatusCode: resp.StatusCode,
					Err:        err,
				})
				return
			}
			if !ok {
				return
			}
			pageReq = next
		}
	}
}

// Collect decodes up to maxItems paginated items into a slice.
func Collect[T any](ctx context.Context, c *Client, req Request, maxItems int) ([]T, error) {
	var out []T
	for raw, err := range c.Paginate(ctx, req, maxItems) {
		if err != nil {
			return nil, err
		}
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("failed to decode %s item: %w", req.Path, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// extractItems returns the list carried by a page body: a top-level array, the "items" field of
// search results, or the named field.
func extractItems(body []byte, field string) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	var items []json.RawMessage
	if body[0] == '[' {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("failed to decode page: %w", err)
		}
		return items, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to decode page: %w", err)
	}
	if field == "" {
		field = "items"
	}
	raw, ok := wrapper[field]
	if !ok {
		return nil, fmt.Errorf("page is not a list and has no %q field", field)
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("field %q is not a list: %w", field, err)
	}
	return items, nil
}
