// Package pipeline is the single entry point for GraphQL operations. Send
// dispatches an operation through the credentialed transport, classifies
// failures, invalidates the result cache once per failure episode and lets
// the retry coordinator re-issue the operation until it settles.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/portalgate/internal/core/domain"
	"github.com/vietddude/portalgate/internal/core/opkey"
	"github.com/vietddude/portalgate/internal/infra/cache"
	"github.com/vietddude/portalgate/internal/infra/gql"
	"github.com/vietddude/portalgate/internal/metrics"
	"github.com/vietddude/portalgate/internal/resilience/classify"
	"github.com/vietddude/portalgate/internal/resilience/retry"
)

// Invalidator discards every cached result.
type Invalidator interface {
	InvalidateAll(ctx context.Context, reason string)
}

// AttemptRecorder observes every attempt's latency and outcome.
type AttemptRecorder interface {
	Record(latency time.Duration, class domain.ErrorClass)
}

// Config wires a Client.
type Config struct {
	Transport   gql.Transport
	Coordinator *retry.Coordinator
	// Results enables the read-through result cache. Nil disables caching.
	Results *cache.Results
	// Invalidator is called on cache-suspect failures. Nil disables it.
	Invalidator Invalidator
	// Recorder, when set, sees every attempt including retries.
	Recorder AttemptRecorder
	Logger   *slog.Logger
}

// Client sends operations and settles them.
type Client struct {
	transport   gql.Transport
	coord       *retry.Coordinator
	results     *cache.Results
	invalidator Invalidator
	recorder    AttemptRecorder
	log         *slog.Logger
}

// New creates a Client. A nil Coordinator gets a private one with the
// default retry settings.
func New(cfg Config) *Client {
	c := &Client{
		transport:   cfg.Transport,
		coord:       cfg.Coordinator,
		results:     cfg.Results,
		invalidator: cfg.Invalidator,
		recorder:    cfg.Recorder,
		log:         cfg.Logger,
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.coord == nil {
		c.coord = retry.NewCoordinator(retry.DefaultConfig, retry.WithLogger(c.log))
	}
	return c
}

// Coordinator returns the retry coordinator owning this client's retry state.
func (c *Client) Coordinator() *retry.Coordinator {
	return c.coord
}

type outcome struct {
	resp *domain.Response
	err  error
}

// Send issues op and waits for it to settle: a success, or a
// *domain.TerminalError once the operation will not be retried again.
// Retryable failures are absorbed and never returned.
//
// If ctx ends first Send returns ctx.Err(), but already scheduled retries
// still run to completion and their result is discarded.
func (c *Client) Send(ctx context.Context, op domain.Operation) (*domain.Response, error) {
	key := opkey.Derive(op.Name, op.Variables)

	if c.results != nil && op.ReadsCache() {
		if resp, ok := c.results.Lookup(ctx, key); ok {
			c.log.Debug("Served from result cache", "operation", op.Name, "key", key)
			return resp, nil
		}
	}

	r := &request{
		client:  c,
		ctx:     context.WithoutCancel(ctx),
		op:      op,
		key:     key,
		episode: classify.NewEpisode(),
		done:    make(chan outcome, 1),
	}
	go r.attempt()

	select {
	case out := <-r.done:
		return out.resp, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// request is one Send call: the original attempt and its retries. Attempts
// of a request never overlap.
type request struct {
	client   *Client
	ctx      context.Context
	op       domain.Operation
	key      string
	episode  *classify.Episode
	attempts int
	done     chan outcome
}

func (r *request) attempt() {
	c := r.client
	r.attempts++
	n := r.attempts

	var gen uint64
	if c.results != nil && r.op.Cacheable() {
		gen = c.results.Generation(r.ctx)
	}

	start := time.Now()
	resp, err := c.transport.Do(r.ctx, r.op)
	latency := time.Since(start)
	metrics.AttemptLatency.WithLabelValues(r.op.Name).Observe(latency.Seconds())

	verdict := classify.Evaluate(resp, err)
	metrics.AttemptsTotal.WithLabelValues(r.op.Name, string(verdict.Class)).Inc()
	if c.recorder != nil {
		c.recorder.Record(latency, verdict.Class)
	}

	if !verdict.Failed() {
		c.coord.Succeeded(r.key)
		if c.results != nil && r.op.Cacheable() {
			if err := c.results.Save(r.ctx, r.key, gen, resp); err != nil {
				c.log.Warn("Failed to cache result", "operation", r.op.Name, "key", r.key, "error", err)
			}
		}
		if n > 1 {
			c.log.Info("Operation recovered", "operation", r.op.Name, "episode", r.episode.ID, "attempts", n)
		}
		r.done <- outcome{resp: resp}
		return
	}

	log := c.log.With(
		"operation", r.op.Name,
		"key", r.key,
		"episode", r.episode.ID,
		"attempt", n,
		"class", verdict.Class,
	)

	if verdict.InvalidateCache && c.invalidator != nil && r.episode.ClaimInvalidation() {
		c.invalidator.InvalidateAll(r.ctx, "error")
	}

	decision := c.coord.Attempt(r.key, verdict.Retryable, r.attempt)
	if decision.Action == retry.ActionRetry {
		metrics.RetriesScheduled.WithLabelValues(r.op.Name, string(verdict.Class)).Inc()
		log.Warn("Attempt failed, retrying", "retry", decision.Retry, "delay", decision.Delay, "error", failureCause(resp, err))
		return
	}

	terminal := &domain.TerminalError{
		Operation: r.op.Name,
		Class:     verdict.Class,
		Attempts:  n,
		Err:       err,
	}
	if resp != nil {
		terminal.Errors = resp.Errors
	}
	metrics.TerminalFailures.WithLabelValues(r.op.Name, string(verdict.Class)).Inc()
	log.Error("Operation failed", "error", terminal)
	r.done <- outcome{err: terminal}
}

func failureCause(resp *domain.Response, err error) any {
	if err != nil {
		return err
	}
	if resp.HasErrors() {
		return resp.Errors[0].Message
	}
	return nil
}
