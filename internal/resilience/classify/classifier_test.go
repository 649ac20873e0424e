package classify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/vietddude/portalgate/internal/core/domain"
)

func gqlResp(msgs ...string) *domain.Response {
	resp := &domain.Response{StatusCode: 200}
	for _, m := range msgs {
		resp.Errors = append(resp.Errors, domain.GraphQLError{Message: m})
	}
	return resp
}

func withCode(code string) *domain.Response {
	return &domain.Response{
		StatusCode: 200,
		Errors: []domain.GraphQLError{{
			Message:    "request failed",
			Extensions: map[string]any{"code": code},
		}},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		resp   *domain.Response
		err    error
		expect domain.ErrorClass
	}{
		{"success", &domain.Response{StatusCode: 200}, nil, domain.ClassNone},
		{"nil response no error", nil, nil, domain.ClassNone},
		{"unknown field", gqlResp(`Cannot query field "grade" on type "Student".`), nil, domain.ClassSchemaMismatch},
		{"unknown argument", gqlResp(`Unknown argument "term" on field "Query.report".`), nil, domain.ClassSchemaMismatch},
		{"validation code", withCode("GRAPHQL_VALIDATION_FAILED"), nil, domain.ClassSchemaMismatch},
		{"malformed body", nil, fmt.Errorf("decode: %w", domain.ErrMalformedResponse), domain.ClassTypeMismatch},
		{"type message", gqlResp(`Int cannot represent non-integer value: "x"`), nil, domain.ClassTypeMismatch},
		{"non-null violation", gqlResp("Cannot return null for non-nullable field Student.id."), nil, domain.ClassTypeMismatch},
		{"401", nil, &domain.TransportError{StatusCode: 401}, domain.ClassUnauthorized},
		{"403", nil, &domain.TransportError{StatusCode: 403}, domain.ClassUnauthorized},
		{"auth code", withCode("UNAUTHENTICATED"), nil, domain.ClassUnauthorized},
		{"auth message", gqlResp("jwt expired"), nil, domain.ClassUnauthorized},
		{"500", nil, &domain.TransportError{StatusCode: 500}, domain.ClassServerError},
		{"503", nil, &domain.TransportError{StatusCode: 503, Body: "unavailable"}, domain.ClassServerError},
		{"404", nil, &domain.TransportError{StatusCode: 404}, domain.ClassClientError},
		{"429", nil, &domain.TransportError{StatusCode: 429}, domain.ClassClientError},
		{"connection refused", nil, &domain.TransportError{Err: errors.New("dial tcp: connection refused")}, domain.ClassUnreachable},
		{"deadline", nil, context.DeadlineExceeded, domain.ClassUnreachable},
		{"unmatched graphql error", gqlResp("something broke"), nil, domain.ClassServerError},
		{"bad user input", withCode("BAD_USER_INPUT"), nil, domain.ClassClientError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.resp, tt.err); got != tt.expect {
				t.Errorf("Classify() = %v, want %v", got, tt.expect)
			}
		})
	}
}

func TestClassify_Precedence(t *testing.T) {
	tests := []struct {
		name   string
		resp   *domain.Response
		err    error
		expect domain.ErrorClass
	}{
		{
			name:   "400 with schema message is schema mismatch",
			resp:   &domain.Response{StatusCode: 400, Errors: gqlResp(`Cannot query field "x"`).Errors},
			err:    &domain.TransportError{StatusCode: 400},
			expect: domain.ClassSchemaMismatch,
		},
		{
			name:   "401 with schema message is unauthorized",
			resp:   &domain.Response{StatusCode: 401, Errors: gqlResp(`Cannot query field "x"`).Errors},
			err:    &domain.TransportError{StatusCode: 401},
			expect: domain.ClassUnauthorized,
		},
		{
			name:   "auth error among others wins",
			resp:   gqlResp("Int cannot represent value", "Forbidden"),
			expect: domain.ClassUnauthorized,
		},
		{
			name:   "schema before type",
			resp:   gqlResp("Expected type Int", "Unknown type \"Grade\""),
			expect: domain.ClassSchemaMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.resp, tt.err); got != tt.expect {
				t.Errorf("Classify() = %v, want %v", got, tt.expect)
			}
		})
	}
}

func TestPolicyFor(t *testing.T) {
	tests := []struct {
		class      domain.ErrorClass
		retry      bool
		invalidate bool
	}{
		{domain.ClassSchemaMismatch, true, true},
		{domain.ClassTypeMismatch, true, true},
		{domain.ClassUnauthorized, false, false},
		{domain.ClassServerError, true, true},
		{domain.ClassClientError, true, true},
		{domain.ClassUnreachable, true, true},
		{domain.ClassNone, false, false},
		{domain.ErrorClass("bogus"), false, false},
	}

	for _, tt := range tests {
		p := PolicyFor(tt.class)
		if p.Retryable != tt.retry || p.InvalidateCache != tt.invalidate {
			t.Errorf("PolicyFor(%s) = %+v, want retry=%v invalidate=%v", tt.class, p, tt.retry, tt.invalidate)
		}
	}
}

func TestEvaluate(t *testing.T) {
	v := Evaluate(nil, &domain.TransportError{StatusCode: 502})
	if !v.Failed() || v.Class != domain.ClassServerError || !v.Retryable || !v.InvalidateCache {
		t.Errorf("unexpected verdict %+v", v)
	}

	v = Evaluate(&domain.Response{StatusCode: 200}, nil)
	if v.Failed() {
		t.Errorf("expected success verdict, got %+v", v)
	}

	v = Evaluate(nil, fmt.Errorf("%w: marshal request: bad value", domain.ErrInvalidRequest))
	if v.Class != domain.ClassClientError || v.Retryable || v.InvalidateCache {
		t.Errorf("unsent request must be a terminal client error, got %+v", v)
	}
}

func TestEpisode_ClaimInvalidationOnce(t *testing.T) {
	ep := NewEpisode()
	if ep.ID == "" {
		t.Fatal("expected episode id")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	claims := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ep.ClaimInvalidation() {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if claims != 1 {
		t.Errorf("expected exactly one claim, got %d", claims)
	}
	if !ep.Invalidated() {
		t.Error("episode should report invalidated")
	}
}
