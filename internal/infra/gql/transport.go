// Package gql sends GraphQL operations over HTTP POST.
//
// The transport performs exactly one attempt per call. It does not retry or
// classify; it reports what happened as a *domain.Response and/or a
// *domain.TransportError for the layers above.
package gql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/portalgate/internal/core/domain"
	"github.com/vietddude/portalgate/internal/infra/auth"
)

// maxErrorBody bounds how much of a non-2xx body is kept in errors.
const maxErrorBody = 512

// Transport is the single-attempt "send operation, get response-or-error"
// primitive.
type Transport interface {
	Do(ctx context.Context, op domain.Operation) (*domain.Response, error)
}

// HTTPTransport implements Transport for GraphQL over HTTP.
type HTTPTransport struct {
	endpoint   string
	httpClient *http.Client
	creds      auth.Provider
	log        *slog.Logger
}

// NewHTTPTransport creates a transport for endpoint. creds may be nil.
func NewHTTPTransport(endpoint string, timeout time.Duration, creds auth.Provider) *HTTPTransport {
	return &HTTPTransport{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		creds: creds,
		log:   slog.Default(),
	}
}

// Endpoint returns the GraphQL endpoint URL.
func (t *HTTPTransport) Endpoint() string {
	return t.endpoint
}

type requestBody struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Do sends one attempt. The credential is read from the provider on every
// call so a token replaced between attempts is picked up.
func (t *HTTPTransport) Do(ctx context.Context, op domain.Operation) (*domain.Response, error) {
	jsonData, err := json.Marshal(requestBody{
		Query:         op.Query,
		Variables:     op.Variables,
		OperationName: op.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", domain.ErrInvalidRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if token := t.credential(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Servers often include a GraphQL errors array with 4xx; keep it so
		// the classifier can see schema messages.
		out := &domain.Response{StatusCode: resp.StatusCode}
		var parsed domain.Response
		if json.Unmarshal(body, &parsed) == nil {
			out.Errors = parsed.Errors
		}
		return out, &domain.TransportError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), maxErrorBody),
		}
	}

	var out domain.Response
	if err := json.Unmarshal(body, &out); err != nil {
		return &domain.Response{StatusCode: resp.StatusCode}, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if out.Data == nil && len(out.Errors) == 0 {
		return &domain.Response{StatusCode: resp.StatusCode}, fmt.Errorf("%w: neither data nor errors present", domain.ErrMalformedResponse)
	}
	out.StatusCode = resp.StatusCode
	return &out, nil
}

func (t *HTTPTransport) credential(ctx context.Context) string {
	if t.creds == nil {
		return ""
	}
	token, err := t.creds.Credential(ctx)
	if err != nil {
		// A missing credential is not an error here; the server's 401 is.
		t.log.Warn("Credential provider failed, sending without credential", "error", err)
		return ""
	}
	return token
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
