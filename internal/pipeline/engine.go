// Package pipeline runs verification requests end to end: extraction,
// retrieval, validation, quality analysis and aggregation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/sourcecheck/internal/backend"
	"github.com/ppiankov/sourcecheck/internal/cache"
	"github.com/ppiankov/sourcecheck/internal/config"
	"github.com/ppiankov/sourcecheck/internal/extract"
	"github.com/ppiankov/sourcecheck/internal/logger"
	"github.com/ppiankov/sourcecheck/internal/metrics"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/quality"
	"github.com/ppiankov/sourcecheck/internal/retrieve"
	"github.com/ppiankov/sourcecheck/internal/score"
	"github.com/ppiankov/sourcecheck/internal/validate"
	"github.com/ppiankov/sourcecheck/internal/worker"
)

var tracer = otel.Tracer("sourcecheck.pipeline")

// Request is one verification job. Schema and Policies accept a decoded
// mapping, encoded bytes (JSON, YAML or TOML), or the model types. Claims
// accepts a mapping, a nested structure, a plain string, or JSON bytes.
type Request struct {
	SourceText string
	Claims     any
	Schema     any
	Policies   any
}

// Options configures an Engine
type Options struct {
	// Backend provides similarity and entailment; nil uses the lexical backend
	Backend backend.Backend

	// Cache stores remote backend results across runs; nil disables caching
	Cache cache.Cache

	// Scope separates cache entries of differently configured backends
	Scope string

	// Workers is the per-claim pool size when the policy does not set one
	Workers int
}

// Engine runs verification requests. It is safe for concurrent use; the
// rate limiter and cache are shared by every run.
type Engine struct {
	backend backend.Backend
	cache   cache.Cache
	scope   string
	limiter *worker.Limiter
	workers int
}

// NewEngine creates an engine
func NewEngine(opts Options) *Engine {
	b := opts.Backend
	if b == nil {
		b = backend.NewLexical()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		backend: b,
		cache:   opts.Cache,
		scope:   opts.Scope,
		limiter: worker.NewLimiter(0, 0),
		workers: workers,
	}
}

// NewEngineFromConfig creates an engine with the backend and cache the
// application config selects
func NewEngineFromConfig(cfg *model.Config) (*Engine, error) {
	b, err := backend.New(backend.ConfigFromModel(cfg.Backend, cfg.HTTP))
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	return NewEngine(Options{
		Backend: b,
		Cache:   cache.New(cfg.Cache),
		Scope:   cfg.Backend.Provider + ":" + cfg.Backend.Model + ":" + cfg.Backend.EmbeddingModel,
		Workers: cfg.Concurrency.Workers,
	}), nil
}

// Backend returns the unguarded verification backend
func (e *Engine) Backend() backend.Backend {
	return e.backend
}

// Run verifies every claim of the request and aggregates the report. Schema
// and policy problems fail before any claim is processed.
func (e *Engine) Run(ctx context.Context, req Request) (report *model.Report, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(attribute.String("backend", e.backend.Name())),
	)
	defer span.End()

	defer func() {
		status := "ok"
		switch {
		case err != nil:
			status = string(model.KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		case report.Partial:
			status = "partial"
			span.SetStatus(codes.Ok, "partial")
		default:
			span.SetStatus(codes.Ok, "")
		}
		metrics.ObserveRun(status, time.Since(start))
	}()

	r, err := e.prepare(req)
	if err != nil {
		logger.Debug("run rejected: %v", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("claims", len(r.claims)))

	return e.execute(ctx, r)
}

// run is the immutable state shared by the claim jobs of one request
type run struct {
	policy     *model.Policy
	fields     map[string]model.FieldSpec
	claims     []model.Claim
	source     *retrieve.Source
	facts      *quality.Source
	retriever  *retrieve.Retriever
	validators *validate.Set
	analyzer   *quality.Analyzer
}

func (e *Engine) prepare(req Request) (*run, error) {
	schema, err := config.SchemaFromValue(req.Schema)
	if err != nil {
		return nil, err
	}
	policy, err := config.PolicyFromValue(req.Policies)
	if err != nil {
		return nil, err
	}
	if err := config.CheckAssignments(schema, policy); err != nil {
		return nil, err
	}

	claims, err := extract.Extract(req.Claims, schema)
	if err != nil {
		return nil, err
	}

	source, err := retrieve.Prepare(req.SourceText, policy.Retrieval)
	if err != nil {
		return nil, err
	}

	guarded := backend.Wrap(e.backend, backend.GuardOptions{
		Policy:  policy.Backend,
		Cache:   e.cache,
		Scope:   e.scope,
		Limiter: e.limiter,
	})

	validators, err := validate.NewSet(guarded, policy)
	if err != nil {
		return nil, model.Wrap(model.KindPolicy, "validators", "cannot build validators", err)
	}

	fields := make(map[string]model.FieldSpec, len(schema.Fields))
	for _, f := range schema.Fields {
		fields[f.Name] = f
	}

	return &run{
		policy:     policy,
		fields:     fields,
		claims:     claims,
		source:     source,
		facts:      quality.NewSource(source.Text),
		retriever:  retrieve.New(guarded, policy.Retrieval),
		validators: validators,
		analyzer:   quality.NewAnalyzer(policy.Quality),
	}, nil
}

// execute processes the claims on a bounded pool and applies the timeout policy
func (e *Engine) execute(ctx context.Context, r *run) (*model.Report, error) {
	runCtx := ctx
	if r.policy.Run.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(ctx, r.policy.Run.Timeout)
		defer cancelTimeout()
	}
	runCtx, abort := context.WithCancelCause(runCtx)
	defer abort(nil)

	workers := r.policy.Run.Workers
	if workers <= 0 {
		workers = e.workers
	}

	jobs := make([]worker.Job, len(r.claims))
	for i, claim := range r.claims {
		jobs[i] = &claimJob{run: r, claim: claim, abort: abort}
	}
	results := worker.NewPoolWithContext(runCtx, workers).Process(jobs)

	// A fatal claim error fails the run; the first by claim order is reported
	for _, res := range results {
		if res == nil {
			continue
		}
		if err := res.GetError(); err != nil {
			return nil, err
		}
	}

	dispositions := make([]model.ClaimDisposition, len(r.claims))
	var unfinished []int
	for i, res := range results {
		cr, _ := res.(*claimResult)
		if cr == nil || cr.disposition == nil {
			unfinished = append(unfinished, i)
			continue
		}
		dispositions[i] = *cr.disposition
	}

	partial := false
	if len(unfinished) > 0 {
		cause := context.Cause(runCtx)
		if cause == nil {
			cause = context.Canceled
		}
		if r.policy.Run.OnTimeout == model.OnTimeoutFail {
			return nil, model.Wrap(model.KindTimeout, "run", "run did not finish before its deadline", cause)
		}

		reason := "cancelled"
		if errors.Is(cause, context.DeadlineExceeded) {
			reason = "deadline exceeded"
		}
		logger.Warn("run cut short (%s): %d of %d claims not verified", reason, len(unfinished), len(r.claims))
		for _, i := range unfinished {
			dispositions[i] = r.notVerified(r.claims[i], reason)
		}
		partial = true
	}

	for _, d := range dispositions {
		metrics.ObserveClaim(string(d.Verdict))
	}

	report := score.Aggregate(dispositions)
	report.Partial = partial
	return &report, nil
}

// notVerified is the disposition of a claim the run had no time for
func (r *run) notVerified(claim model.Claim, reason string) model.ClaimDisposition {
	q, issues := r.analyzer.Analyze(claim, r.facts)
	return model.ClaimDisposition{
		Field:         claim.Field,
		ClaimText:     claim.Text,
		Verdict:       model.VerdictInsufficient,
		EvidenceCount: 0,
		Validator:     validate.NoneName,
		Explanation:   fmt.Sprintf("not verified: run cancelled (%s)", reason),
		QualityScore:  model.Float(q),
		QualityIssues: issues,
		Evidence:      []model.EvidenceSpan{},
	}
}

// claimJob verifies one claim
type claimJob struct {
	run   *run
	claim model.Claim
	abort context.CancelCauseFunc
}

// claimResult carries a finished disposition, a fatal error, or neither
// when the claim was cancelled
type claimResult struct {
	disposition *model.ClaimDisposition
	err         error
}

// GetError returns the fatal error of the claim, if any
func (r *claimResult) GetError() error {
	return r.err
}

// Execute runs retrieval, validation and quality analysis for the claim
func (j *claimJob) Execute(ctx context.Context) worker.Result {
	ctx, span := tracer.Start(ctx, "pipeline.Claim",
		trace.WithAttributes(attribute.String("field", j.claim.Field)),
	)
	defer span.End()

	d, err := j.run.verify(ctx, j.claim)
	if err != nil {
		if ctx.Err() != nil && !isFatal(err) {
			span.SetStatus(codes.Error, "cancelled")
			return &claimResult{}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(model.KindOf(err)))
		logger.Error("claim %s failed: %v", j.claim.Field, err)
		j.abort(err)
		return &claimResult{err: model.AsError(err)}
	}

	span.SetAttributes(attribute.String("verdict", string(d.Verdict)))
	return &claimResult{disposition: d}
}

// isFatal reports whether err is a classified failure rather than the
// claim noticing that the run ended
func isFatal(err error) bool {
	var e *model.Error
	if !errors.As(err, &e) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (r *run) verify(ctx context.Context, claim model.Claim) (*model.ClaimDisposition, error) {
	kinds := r.policy.ValidatorsFor(r.fields[claim.BaseField()])

	var failures []error
	evidence, err := r.retriever.Retrieve(ctx, claim, r.source)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if r.policy.Backend.Required {
			return nil, err
		}
		logger.Warn("claim %s: %v", claim.Field, err)
		failures = append(failures, err)
		evidence = []model.EvidenceSpan{}
	}

	votes, vfailures, err := r.validators.Run(ctx, claim, kinds, evidence)
	if err != nil {
		return nil, err
	}
	for _, f := range vfailures {
		logger.Warn("claim %s: %v", claim.Field, f)
	}
	failures = append(failures, vfailures...)

	decision := validate.Combine(votes, len(evidence), failures, r.policy)
	q, issues := r.analyzer.Analyze(claim, r.facts)

	return &model.ClaimDisposition{
		Field:         claim.Field,
		ClaimText:     claim.Text,
		Verdict:       decision.Verdict,
		EvidenceCount: len(evidence),
		Validator:     decision.Validator,
		Explanation:   decision.Explanation,
		Confidence:    decision.Confidence,
		QualityScore:  model.Float(q),
		QualityIssues: issues,
		Evidence:      evidence,
	}, nil
}
