// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

// Package fetch implements the http_fetch tool: bounded HTTP requests with
// exponential-backoff retry on transient failures.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/toolhost/toolhost/pkg/manifest"
	"github.com/toolhost/toolhost/pkg/wire"
)

const (
	requestTimeout = 30 * time.Second
	maxBodyBytes   = 512 * 1024
	retryBase      = 500 * time.Millisecond
	maxRetries     = 2
)

// Tool is the http_fetch handler.
type Tool struct {
	client *http.Client
}

// New creates the http_fetch handler. A nil client uses a default with the
// standard request timeout.
func New(client *http.Client) *Tool {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return &Tool{client: client}
}

func (t *Tool) Descriptor() manifest.Tool {
	return manifest.Tool{
		ID:          "http_fetch",
		Description: "Fetch a URL over HTTP or HTTPS and return status, headers, and body.",
		Parameters: manifest.ParameterSchema{
			Type: "object",
			Properties: map[string]manifest.Property{
				"url":    {Type: "string", Description: "Absolute http or https URL."},
				"method": {Type: "string", Description: "Request method.", Enum: []string{"GET", "POST", "HEAD"}, Default: "GET"},
				"body":   {Type: "string", Description: "Request body, sent for POST."},
			},
			Required: []string{"url"},
		},
		Requirements: []string{"network"},
		Permission:   manifest.PermissionAsk,
		Secrets: []manifest.Secret{
			{ID: "api_key", Label: "API Key", Required: false,
				Description: "Sent as a bearer token when configured."},
		},
	}
}

type result struct {
	Status      int               `json:"status"`
	ContentType string            `json:"content_type,omitempty"`
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body"`
	Truncated   bool              `json:"truncated"`
}

func (t *Tool) Execute(ctx context.Context, args wire.Args) (any, error) {
	if err := args.Require("url"); err != nil {
		return nil, err
	}

	rawURL := args.StringOr("url", "")
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return nil, fmt.Errorf("Invalid URL: %s", rawURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("Unsupported URL scheme %q: only http and https are allowed", parsed.Scheme)
	}

	method := args.StringOr("method", http.MethodGet)
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var res result
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, rawURL, strings.NewReader(args.StringOr("body", "")))
		if err != nil {
			return fmt.Errorf("Invalid URL: %s", rawURL)
		}
		if key, ok := args.Secret("api_key"); ok && key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("Request timed out after %s: %s", requestTimeout, rawURL)
			}
			// Network failures are worth another attempt.
			return retry.RetryableError(fmt.Errorf("Request failed: %v", err))
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
		if readErr != nil {
			return retry.RetryableError(fmt.Errorf("Reading response failed: %v", readErr))
		}
		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("Server error %d from %s", resp.StatusCode, rawURL))
		}

		truncated := false
		if len(body) > maxBodyBytes {
			body = body[:maxBodyBytes]
			truncated = true
		}

		headers := make(map[string]string, len(resp.Header))
		for name := range resp.Header {
			headers[name] = resp.Header.Get(name)
		}

		res = result{
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Headers:     headers,
			Body:        string(body),
			Truncated:   truncated,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
