// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

// Package websearch implements the web_search tool against the DuckDuckGo
// HTML endpoint, which needs no API key.
package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/net/html"

	"github.com/toolhost/toolhost/pkg/manifest"
	"github.com/toolhost/toolhost/pkg/wire"
)

const (
	defaultEndpoint = "https://html.duckduckgo.com/html/"
	searchTimeout   = 15 * time.Second
	maxPageBytes    = 1024 * 1024
	defaultResults  = 5
	maxResults      = 20
	userAgent       = "toolhost/0.1"
	retryBase       = 500 * time.Millisecond
	maxRetries      = 2
)

// Tool is the web_search handler.
type Tool struct {
	client   *http.Client
	endpoint string
}

// Option configures the tool.
type Option func(*Tool)

// WithClient overrides the HTTP client.
func WithClient(c *http.Client) Option {
	return func(t *Tool) { t.client = c }
}

// WithEndpoint overrides the search endpoint. Tests point this at a local
// server.
func WithEndpoint(u string) Option {
	return func(t *Tool) { t.endpoint = u }
}

// New creates the web_search handler.
func New(opts ...Option) *Tool {
	t := &Tool{
		client:   &http.Client{Timeout: searchTimeout},
		endpoint: defaultEndpoint,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Descriptor() manifest.Tool {
	return manifest.Tool{
		ID:          "web_search",
		Description: "Search the web and return result titles, URLs, and snippets.",
		Parameters: manifest.ParameterSchema{
			Type: "object",
			Properties: map[string]manifest.Property{
				"query": {Type: "string", Description: "Search query."},
				"limit": {Type: "integer", Description: "Maximum results to return.", Default: defaultResults},
			},
			Required: []string{"query"},
		},
		Requirements: []string{"network"},
		Permission:   manifest.PermissionAllow,
	}
}

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

func (t *Tool) Execute(ctx context.Context, args wire.Args) (any, error) {
	if err := args.Require("query"); err != nil {
		return nil, err
	}
	query := strings.TrimSpace(args.StringOr("query", ""))
	if query == "" {
		return nil, fmt.Errorf("Invalid arguments. Required: query")
	}
	limit := args.IntOr("limit", defaultResults)
	if limit < 1 || limit > maxResults {
		return nil, fmt.Errorf("Invalid limit %d: must be between 1 and %d", limit, maxResults)
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	var page []byte
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		form := url.Values{"q": {query}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", userAgent)

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("Search timed out after %s", searchTimeout)
			}
			return retry.RetryableError(fmt.Errorf("Search request failed: %v", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return retry.RetryableError(fmt.Errorf("Search backend returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("Search backend returned %d", resp.StatusCode)
		}

		page, err = io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("Reading search results failed: %v", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	results, err := parseResults(strings.NewReader(string(page)), limit)
	if err != nil {
		return nil, fmt.Errorf("Parsing search results failed: %v", err)
	}
	return map[string]any{"query": query, "results": results}, nil
}

// parseResults walks the result page. Hits are anchors classed
// "result__a"; snippets are the sibling nodes classed "result__snippet".
func parseResults(r io.Reader, limit int) ([]Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	results := []Result{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= limit {
			return
		}
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				href := resolveHref(attr(n, "href"))
				title := strings.TrimSpace(text(n))
				if href != "" && title != "" {
					results = append(results, Result{Title: title, URL: href})
				}
				return
			case hasClass(n, "result__snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = strings.TrimSpace(text(n))
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

// resolveHref unwraps the DuckDuckGo redirect wrapper when present.
func resolveHref(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func text(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(text(c))
	}
	return b.String()
}
