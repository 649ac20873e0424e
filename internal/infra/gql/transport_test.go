package gql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/portalgate/internal/core/domain"
	"github.com/vietddude/portalgate/internal/infra/auth"
)

var studentQuery = domain.Operation{
	Name:      "Student",
	Query:     "query Student($id: ID!) { student(id: $id) { id name } }",
	Variables: map[string]any{"id": "42"},
}

func TestHTTPTransport_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode body: %v", err)
			return
		}
		if req["query"] != studentQuery.Query {
			t.Errorf("unexpected query %v", req["query"])
		}
		if req["operationName"] != "Student" {
			t.Errorf("unexpected operationName %v", req["operationName"])
		}
		vars, _ := req["variables"].(map[string]any)
		if vars["id"] != "42" {
			t.Errorf("unexpected variables %v", req["variables"])
		}

		w.Write([]byte(`{"data":{"student":{"id":"42","name":"Ada"}}}`))
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.URL, 5*time.Second, nil)
	resp, err := tr.Do(context.Background(), studentQuery)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 || string(resp.Data) != `{"student":{"id":"42","name":"Ada"}}` {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHTTPTransport_AttachesLatestCredential(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	creds := auth.NewMutable("")
	tr := NewHTTPTransport(server.URL, 5*time.Second, creds)
	ctx := context.Background()

	_, _ = tr.Do(ctx, studentQuery)
	creds.Set("tok-1")
	_, _ = tr.Do(ctx, studentQuery)
	creds.Set("tok-2")
	_, _ = tr.Do(ctx, studentQuery)

	want := []string{"", "Bearer tok-1", "Bearer tok-2"}
	if len(seen) != len(want) {
		t.Fatalf("expected %d requests, got %d", len(want), len(seen))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("request %d: expected %q, got %q", i, want[i], seen[i])
		}
	}
}

func TestHTTPTransport_CredentialErrorStillSends(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if h := r.Header.Get("Authorization"); h != "" {
			t.Errorf("expected no auth header, got %q", h)
		}
		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	failing := auth.ProviderFunc(func(context.Context) (string, error) {
		return "", errors.New("keychain locked")
	})
	if _, err := NewHTTPTransport(server.URL, 5*time.Second, failing).Do(context.Background(), studentQuery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("request was not sent")
	}
}

func TestHTTPTransport_GraphQLErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"Cannot query field \"grade\" on type \"Student\".","extensions":{"code":"GRAPHQL_VALIDATION_FAILED"}}]}`))
	}))
	defer server.Close()

	resp, err := NewHTTPTransport(server.URL, 5*time.Second, nil).Do(context.Background(), studentQuery)
	if err != nil {
		t.Fatalf("graphql errors with 200 are not transport errors: %v", err)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Code() != "GRAPHQL_VALIDATION_FAILED" {
		t.Errorf("unexpected errors %+v", resp.Errors)
	}
}

func TestHTTPTransport_StatusErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErrors int
	}{
		{"500 plain", 500, "internal error", 0},
		{"401", 401, `{"errors":[{"message":"unauthorized"}]}`, 1},
		{"400 with graphql errors", 400, `{"errors":[{"message":"Unknown argument \"x\""}]}`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			resp, err := NewHTTPTransport(server.URL, 5*time.Second, nil).Do(context.Background(), studentQuery)
			var te *domain.TransportError
			if !errors.As(err, &te) {
				t.Fatalf("expected TransportError, got %v", err)
			}
			if te.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, te.StatusCode)
			}
			if resp == nil || len(resp.Errors) != tt.wantErrors {
				t.Errorf("expected %d graphql errors, got %+v", tt.wantErrors, resp)
			}
		})
	}
}

func TestHTTPTransport_MalformedBody(t *testing.T) {
	for _, body := range []string{"<html>", `{}`} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))

		_, err := NewHTTPTransport(server.URL, 5*time.Second, nil).Do(context.Background(), studentQuery)
		if !errors.Is(err, domain.ErrMalformedResponse) {
			t.Errorf("body %q: expected ErrMalformedResponse, got %v", body, err)
		}
		server.Close()
	}
}

func TestHTTPTransport_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewHTTPTransport(url, time.Second, nil).Do(context.Background(), studentQuery)
	var te *domain.TransportError
	if !errors.As(err, &te) || te.StatusCode != 0 {
		t.Fatalf("expected status-less TransportError, got %v", err)
	}
}

func TestHTTPTransport_InvalidRequest(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer server.Close()

	tests := []struct {
		name     string
		endpoint string
		op       domain.Operation
	}{
		{
			name:     "unserializable variables",
			endpoint: server.URL,
			op:       domain.Operation{Name: "Q", Query: "query Q { q }", Variables: map[string]any{"ch": make(chan int)}},
		},
		{
			name:     "bad endpoint",
			endpoint: "http://[::1",
			op:       studentQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPTransport(tt.endpoint, time.Second, nil).Do(context.Background(), tt.op)
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
			var te *domain.TransportError
			if errors.As(err, &te) {
				t.Errorf("unsent request must not look like a transport failure: %v", err)
			}
		})
	}
	if hits != 0 {
		t.Errorf("expected nothing sent, got %d requests", hits)
	}
}
