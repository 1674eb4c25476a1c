package github

// LINK-HEADER PAGINATION:
// GitHub list endpoints return at most per_page items and advertise the
// following page in the Link response header:
//
//	Link: <https://api.github.com/user/repos?page=2&per_page=100>; rel="next",
//	      <https://api.github.com/user/repos?page=4&per_page=100>; rel="last"
//
// FetchAllPages requests per_page=100 and follows rel="next" until it is
// absent. A misbehaving upstream could advertise "next" forever, so the loop
// stops with ErrTooManyPages after Config.MaxPages pages.
//
// PAGE SHAPES:
// Each page body is decoded as one of three shapes:
//
//	[ {...}, {...} ]                                   → bare array
//	{"total_count": 2, "repositories": [ {...} ]}      → wrapped array
//	<empty body> / 204 No Content                      → zero items
//
// For the wrapped shape, known pagination metadata keys are skipped and the
// first remaining key (in document order) that holds an array wins.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/tomnomnom/linkheader"
)

const perPage = "100"

// paginationMeta lists top-level keys that never hold the item array.
var paginationMeta = map[string]bool{
	"total_count":          true,
	"total_commits":        true,
	"incomplete_results":   true,
	"repository_selection": true,
	"page":                 true,
	"per_page":             true,
	"links":                true,
	"url":                  true,
}

// FetchAllPages returns every item of a paginated collection, in order.
func (c *Client) FetchAllPages(ctx context.Context, rawURL, token string) ([]json.RawMessage, error) {
	next, err := withPerPage(rawURL)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	for page := 1; next != ""; page++ {
		if page > c.cfg.MaxPages {
			return nil, fmt.Errorf("%w: stopped after %d pages", ErrTooManyPages, c.cfg.MaxPages)
		}

		body, header, err := c.get(ctx, next, token)
		if err != nil {
			return nil, err
		}

		pageItems, err := decodePage(body)
		if err != nil {
			return nil, fmt.Errorf("github: page %d: %w", page, err)
		}
		items = append(items, pageItems...)

		next, err = nextLink(next, header.Get("Link"))
		if err != nil {
			return nil, err
		}
	}

	return items, nil
}

// withPerPage sets per_page=100 on the first request. Later pages use the
// URLs GitHub hands back verbatim.
func withPerPage(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("github: parsing %q: %w", rawURL, err)
	}
	q := u.Query()
	q.Set("per_page", perPage)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// nextLink returns the rel="next" target of a Link header, resolved against
// the current URL, or "" on the last page.
func nextLink(current, header string) (string, error) {
	if header == "" {
		return "", nil
	}
	links := linkheader.Parse(header).FilterByRel("next")
	if len(links) == 0 {
		return "", nil
	}

	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("github: parsing %q: %w", current, err)
	}
	ref, err := url.Parse(links[0].URL)
	if err != nil {
		return "", fmt.Errorf("github: parsing next link %q: %w", links[0].URL, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// decodePage decodes one page body into its items.
func decodePage(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decoding array page: %w", err)
		}
		return items, nil
	case '{':
		return decodeWrapped(trimmed)
	default:
		return nil, fmt.Errorf("unexpected page body starting with %q", trimmed[0])
	}
}

// decodeWrapped walks the object's keys in document order and returns the
// first non-metadata key holding an array. Other non-array keys are skipped.
// encoding/json maps are unordered, so the token stream is used instead of a
// map.
func decodeWrapped(body []byte) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	if _, err := dec.Token(); err != nil { // opening '{'
		return nil, fmt.Errorf("decoding object page: %w", err)
	}

	var nonArray []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decoding object page key: %w", err)
		}
		key, _ := tok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("decoding object page value %q: %w", key, err)
		}
		if paginationMeta[key] {
			continue
		}

		var items []json.RawMessage
		if err := json.Unmarshal(value, &items); err != nil {
			nonArray = append(nonArray, key)
			continue
		}
		return items, nil
	}

	if len(nonArray) > 0 {
		return nil, fmt.Errorf("no key holds an array (saw %q)", nonArray)
	}
	// Only metadata, e.g. {"total_count": 0}.
	return nil, nil
}
