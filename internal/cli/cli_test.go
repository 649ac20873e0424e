package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/portalgate/internal/core/domain"
	"github.com/vietddude/portalgate/internal/health"
	"github.com/vietddude/portalgate/internal/resilience/retry"
)

func TestBuildOperation(t *testing.T) {
	op, err := buildOperation("Student", "query Student { student { id } }", `{"id":"7"}`, false, "network-only")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Name != "Student" || op.Policy != domain.FetchNetworkOnly || op.Variables["id"] != "7" {
		t.Errorf("unexpected operation %+v", op)
	}

	path := filepath.Join(t.TempDir(), "enroll.graphql")
	os.WriteFile(path, []byte("mutation Enroll { enroll }"), 0o644)
	op, err = buildOperation("Enroll", "@"+path, "", true, "no-cache")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !op.Mutation || op.Query != "mutation Enroll { enroll }" {
		t.Errorf("unexpected operation %+v", op)
	}

	bad := []struct {
		query, vars, policy string
	}{
		{"", "", "cache-first"},
		{"query { a }", "[1,2]", "cache-first"},
		{"query { a }", "", "cache-only"},
		{"@/does/not/exist", "", "cache-first"},
	}
	for _, b := range bad {
		if _, err := buildOperation("", b.query, b.vars, false, b.policy); err == nil {
			t.Errorf("expected error for %+v", b)
		}
	}
}

func TestFetchAndPrintStatus(t *testing.T) {
	updated := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("/health/detailed", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(health.Report{
			Status:        health.StatusDegraded,
			CacheBackend:  "redis",
			CacheError:    "connection refused",
			Invalidations: 3,
			Lifecycle:     "active",
		})
	})
	mux.HandleFunc("/debug/retries", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(health.RetriesResponse{
			Count: 1,
			Entries: map[string]retry.Entry{
				"Student:abc": {Attempts: 2, Scheduled: 1, UpdatedAt: updated},
			},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	report, retries, err := fetchStatus(context.Background(), server.Client(), server.URL+"/")
	if err != nil {
		t.Fatalf("fetchStatus failed: %v", err)
	}

	var out bytes.Buffer
	printStatus(&out, report, retries)

	for _, want := range []string{"degraded", "redis", "connection refused", "Student:abc", "2024-01-01T12:00:00Z"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestFetchStatus_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	if _, _, err := fetchStatus(context.Background(), server.Client(), server.URL); err == nil {
		t.Error("expected an error for a 404 response")
	}
}
