// Package classify maps a failed GraphQL attempt to an error class and the
// fixed retry/invalidation policy attached to that class.
//
// Classification is pure: Classify looks only at the response and error it is
// given. Acting on the result (retrying, resetting the cache) belongs to the
// caller.
package classify

import (
	"errors"
	"net/http"
	"strings"

	"github.com/vietddude/portalgate/internal/core/domain"
)

// Policy is what the layer does about a class of failure.
type Policy struct {
	Retryable       bool
	InvalidateCache bool
}

// Verdict pairs a class with its policy.
type Verdict struct {
	Class domain.ErrorClass
	Policy
}

// Failed reports whether the attempt did not succeed.
func (v Verdict) Failed() bool { return v.Class != domain.ClassNone }

var policies = map[domain.ErrorClass]Policy{
	domain.ClassNone:           {},
	domain.ClassSchemaMismatch: {Retryable: true, InvalidateCache: true},
	domain.ClassTypeMismatch:   {Retryable: true, InvalidateCache: true},
	domain.ClassUnauthorized:   {},
	domain.ClassServerError:    {Retryable: true, InvalidateCache: true},
	domain.ClassClientError:    {Retryable: true, InvalidateCache: true},
	domain.ClassUnreachable:    {Retryable: true, InvalidateCache: true},
}

// PolicyFor returns the policy of a class. Unknown classes are neither retried
// nor invalidate the cache.
func PolicyFor(class domain.ErrorClass) Policy {
	return policies[class]
}

// Evaluate classifies an attempt and attaches its policy. A request that was
// never sent is a client error that is neither retried nor invalidates.
func Evaluate(resp *domain.Response, err error) Verdict {
	class := Classify(resp, err)
	if errors.Is(err, domain.ErrInvalidRequest) {
		return Verdict{Class: class}
	}
	return Verdict{Class: class, Policy: PolicyFor(class)}
}

var (
	authCodes = []string{"UNAUTHENTICATED", "UNAUTHORIZED", "FORBIDDEN"}
	authTerms = []string{
		"unauthorized", "unauthenticated", "not authenticated", "forbidden",
		"access denied", "jwt expired", "invalid token", "token expired",
	}

	schemaCodes = []string{"GRAPHQL_VALIDATION_FAILED", "GRAPHQL_PARSE_FAILED"}
	schemaTerms = []string{
		"cannot query field", "unknown argument", "unknown type", "unknown field",
		"unknown fragment", "unknown directive", "doesn't exist on type",
	}

	typeTerms = []string{
		"expected type", "expected value of type", "cannot represent",
		"got invalid value", "cannot return null for non-nullable",
	}

	clientCodes = []string{"BAD_USER_INPUT", "BAD_REQUEST"}
)

// Classify returns the class of an attempt. A nil error with no GraphQL errors
// is ClassNone. When several heuristics match, precedence is
// Unauthorized > SchemaMismatch > TypeMismatch > HTTP status > Unreachable.
func Classify(resp *domain.Response, err error) domain.ErrorClass {
	if err == nil && !resp.HasErrors() {
		return domain.ClassNone
	}

	var gqlErrs []domain.GraphQLError
	if resp != nil {
		gqlErrs = resp.Errors
	}

	var te *domain.TransportError
	status := 0
	if errors.As(err, &te) {
		status = te.StatusCode
	} else if resp != nil {
		status = resp.StatusCode
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden ||
		matchAny(gqlErrs, authCodes, authTerms) {
		return domain.ClassUnauthorized
	}

	if matchAny(gqlErrs, schemaCodes, schemaTerms) {
		return domain.ClassSchemaMismatch
	}

	if errors.Is(err, domain.ErrMalformedResponse) || matchAny(gqlErrs, nil, typeTerms) {
		return domain.ClassTypeMismatch
	}

	switch {
	case status >= 500:
		return domain.ClassServerError
	case status >= 400:
		return domain.ClassClientError
	}

	if errors.Is(err, domain.ErrInvalidRequest) {
		return domain.ClassClientError
	}
	if err != nil {
		// No status at all: connection refused, timeout, DNS.
		return domain.ClassUnreachable
	}

	if matchAny(gqlErrs, clientCodes, nil) {
		return domain.ClassClientError
	}
	return domain.ClassServerError
}

func matchAny(errs []domain.GraphQLError, codes, terms []string) bool {
	for _, e := range errs {
		code := strings.ToUpper(e.Code())
		for _, c := range codes {
			if code == c {
				return true
			}
		}
		msg := strings.ToLower(e.Message)
		for _, t := range terms {
			if strings.Contains(msg, t) {
				return true
			}
		}
	}
	return false
}
