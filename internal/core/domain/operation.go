package domain

import "encoding/json"

// FetchPolicy controls how a query interacts with the result cache.
type FetchPolicy string

const (
	FetchCacheFirst  FetchPolicy = "cache-first"
	FetchNetworkOnly FetchPolicy = "network-only"
	FetchNoCache     FetchPolicy = "no-cache"
)

// Operation is a single named GraphQL query or mutation invocation.
type Operation struct {
	Name      string         `json:"operationName,omitempty"`
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`

	// Mutation operations bypass the result cache entirely.
	Mutation bool        `json:"-"`
	Policy   FetchPolicy `json:"-"`
}

// Cacheable reports whether the operation may be read from or written to the result cache.
func (o Operation) Cacheable() bool {
	return !o.Mutation && o.Policy != FetchNoCache
}

// ReadsCache reports whether a cached result may satisfy the operation.
func (o Operation) ReadsCache() bool {
	return o.Cacheable() && o.Policy != FetchNetworkOnly
}

// Response is a decoded GraphQL-over-HTTP response body.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []GraphQLError  `json:"errors,omitempty"`

	StatusCode int  `json:"-"`
	FromCache  bool `json:"-"`
}

// HasErrors reports whether the server returned an errors array.
func (r *Response) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}

// GraphQLError is one entry of a response's errors array.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Code returns extensions.code, or "" when absent.
func (e GraphQLError) Code() string {
	if e.Extensions == nil {
		return ""
	}
	code, _ := e.Extensions["code"].(string)
	return code
}
