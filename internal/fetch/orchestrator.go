package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/docpipe/internal/model"
	"github.com/sells-group/docpipe/internal/resilience"
)

// Options tunes the orchestrator.
type Options struct {
	// Timeout bounds each target's fetch, retries included. Default 30s.
	Timeout time.Duration
	// Retry controls per-target retry on transient failures.
	Retry resilience.RetryConfig
}

// Orchestrator fans out one fetch per target concurrently and fans in via a
// join that waits for every outcome. It never races to a first result and
// never lets one target's failure cancel another's in-flight fetch; failures
// are captured into that target's FetchResult.
type Orchestrator struct {
	registry *Registry
	opts     Options
}

// NewOrchestrator creates an orchestrator over the given registry.
func NewOrchestrator(registry *Registry, opts Options) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Orchestrator{registry: registry, opts: opts}
}

// Run fetches from every named target and aggregates the outcome. The only
// error returns are caller cancellation and unknown target names; per-target
// failures come back inside the outcome.
func (o *Orchestrator) Run(ctx context.Context, doc *model.Document, snapshot model.Snapshot, targets []string) (*model.FetchOutcome, error) {
	conns := make([]Connector, len(targets))
	for i, name := range targets {
		c, err := o.registry.Get(name)
		if err != nil {
			return nil, err
		}
		conns[i] = c
	}

	results := make([]model.FetchResult, len(conns))
	g, gCtx := errgroup.WithContext(ctx)
	for i, conn := range conns {
		g.Go(func() error {
			results[i] = o.fetchOne(gCtx, conn, doc, snapshot)
			return nil // failures live in the result, not the group
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "fetch: canceled")
	}

	outcome := &model.FetchOutcome{
		Results:   results,
		Aggregate: model.AggregateOf(results),
		FetchedAt: time.Now().UTC(),
	}
	zap.L().Info("fetch: all targets resolved",
		zap.String("document_id", doc.ID),
		zap.Int("targets", len(results)),
		zap.String("aggregate", string(outcome.Aggregate)),
	)
	return outcome, nil
}

func (o *Orchestrator) fetchOne(ctx context.Context, conn Connector, doc *model.Document, snapshot model.Snapshot) model.FetchResult {
	start := time.Now()

	tctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	retryCfg := o.opts.Retry
	retryCfg.OnRetry = resilience.RetryLogger(conn.Name(), "fetch")

	payload, err := resilience.DoVal(tctx, retryCfg, func(ctx context.Context) (map[string]model.Value, error) {
		return conn.Fetch(ctx, doc, snapshot)
	})
	latency := time.Since(start)

	res := model.FetchResult{Target: conn.Name(), LatencyMS: latency.Milliseconds()}
	switch {
	case err == nil:
		res.Status = model.FetchSuccess
		res.Payload = payload
	case isDeadline(err) || (tctx.Err() == context.DeadlineExceeded && ctx.Err() == nil):
		res.Status = model.FetchTimeout
		res.Error = "deadline exceeded after " + latency.Round(time.Millisecond).String()
	default:
		res.Status = model.FetchError
		res.Error = err.Error()
	}

	zap.L().Debug("fetch: target resolved",
		zap.String("document_id", doc.ID),
		zap.String("target", conn.Name()),
		zap.String("status", string(res.Status)),
		zap.Duration("latency", latency),
	)
	return res
}

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
