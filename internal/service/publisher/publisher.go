package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/oshokin/pybi-publisher/internal/capability"
	"github.com/oshokin/pybi-publisher/internal/catalog"
	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
	"github.com/oshokin/pybi-publisher/internal/logger"
	"github.com/oshokin/pybi-publisher/internal/repository/history"
	"github.com/oshokin/pybi-publisher/internal/repository/ledger"
	"github.com/oshokin/pybi-publisher/internal/service/builder"
	"github.com/oshokin/pybi-publisher/internal/tracing"
)

// Builder runs the per-artifact pipeline.
type Builder interface {
	Build(ctx context.Context, link catalog.Link, identity pybi.Identity) error
}

// Publisher holds the collaborators of a run.
type Publisher struct {
	// runID identifies the run.
	runID string
	// indexURL is the page listing base artifacts.
	indexURL string
	// platforms restricts the run to these tags when not empty.
	platforms []string
	// dryRun stops after the novelty decision.
	dryRun bool
	// httpClient fetches the index.
	httpClient *http.Client
	// engine decides platform coverage.
	engine *capability.Engine
	// ledger provides the snapshot of published identities.
	ledger ledger.Ledger
	// builder runs the pipeline for new identities.
	builder Builder
	// history records every attempt.
	history history.Repository
	// tracer records the run span.
	tracer trace.Tracer
	// extension names history entries.
	extension string
}

// Config wires a Publisher.
type Config struct {
	RunID      string
	IndexURL   string
	Platforms  []string
	DryRun     bool
	Extension  string
	HTTPClient *http.Client
	Engine     *capability.Engine
	Ledger     ledger.Ledger
	Builder    Builder
	History    history.Repository
	Tracer     trace.Tracer
}

// New returns a Publisher for cfg.
func New(cfg Config) *Publisher {
	p := &Publisher{
		runID:      cfg.RunID,
		indexURL:   cfg.IndexURL,
		platforms:  cfg.Platforms,
		dryRun:     cfg.DryRun,
		httpClient: cfg.HTTPClient,
		engine:     cfg.Engine,
		ledger:     cfg.Ledger,
		builder:    cfg.Builder,
		history:    cfg.History,
		tracer:     cfg.Tracer,
		extension:  cfg.Extension,
	}

	if p.history == nil {
		p.history = history.NopRepository{}
	}

	if p.tracer == nil {
		p.tracer = noop.NewTracerProvider().Tracer("publisher")
	}

	if p.extension == "" {
		p.extension = pybi.DefaultExtension
	}

	return p
}

// target is a discovered link selected for this run.
type target struct {
	link     catalog.Link
	identity pybi.Identity
}

// Publish runs discovery, the novelty decision and the builds.
// The summary is returned even when artifacts failed; the error is then ErrArtifactsFailed.
func (p *Publisher) Publish(ctx context.Context) (*Summary, error) {
	ctx = logger.WithKV(ctx, "run_id", p.runID)

	ctx, span := p.tracer.Start(ctx, tracing.SpanRun, trace.WithAttributes(
		attribute.String(tracing.AttrRunID, p.runID),
		attribute.String(tracing.AttrSink, p.ledger.String()),
	))
	defer span.End()

	summary, err := p.publish(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return summary, err
}

func (p *Publisher) publish(ctx context.Context) (*Summary, error) {
	summary := &Summary{RunID: p.runID}

	if err := p.checkPlatforms(); err != nil {
		return summary, err
	}

	links, err := catalog.Fetch(ctx, p.httpClient, p.indexURL)
	if err != nil {
		return summary, fmt.Errorf("discover: %w", err)
	}

	summary.Discovered = len(links)

	targets, err := p.selectTargets(links)
	if err != nil {
		return summary, err
	}

	summary.Targeted = len(targets)
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int(tracing.AttrLinks, len(links)))

	published, err := p.ledger.Snapshot(ctx)
	if err != nil {
		return summary, fmt.Errorf("snapshot %s: %w", p.ledger, err)
	}

	logger.InfoKV(ctx, "Ledger snapshot taken", "sink", p.ledger.String(), "published", published.Len(),
		"targets", len(targets))

	attempted := ledger.NewSet()

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		p.process(ctx, summary, published, &attempted, t)
	}

	p.report(ctx, summary)

	if len(summary.Failed) > 0 {
		return summary, fmt.Errorf("%d of %d: %w", len(summary.Failed), summary.Targeted, ErrArtifactsFailed)
	}

	return summary, nil
}

// checkPlatforms rejects configured targets the capability table does not cover.
func (p *Publisher) checkPlatforms() error {
	for _, platform := range p.platforms {
		if _, err := p.engine.PlatformFamily(platform); err != nil {
			return fmt.Errorf("configured platform: %w", err)
		}
	}

	return nil
}

// selectTargets parses every link and keeps the targeted ones.
// Every kept identity must have a capability list before anything is downloaded.
func (p *Publisher) selectTargets(links []catalog.Link) ([]target, error) {
	targets := make([]target, 0, len(links))

	for _, link := range links {
		identity, err := link.Identity()
		if err != nil {
			return nil, fmt.Errorf("link %s: %w", link.URL, err)
		}

		if len(p.platforms) > 0 && !slices.Contains(p.platforms, identity.Platform) {
			continue
		}

		if _, err := p.engine.ApplicableCapabilities(identity); err != nil {
			return nil, fmt.Errorf("%s: %w", identity, err)
		}

		targets = append(targets, target{link: link, identity: identity})
	}

	return targets, nil
}

func (p *Publisher) process(ctx context.Context, summary *Summary, published ledger.Set, attempted *ledger.Set, t target) {
	started := time.Now()
	attempt := history.Attempt{
		RunID:     p.runID,
		Artifact:  t.identity.Filename(p.extension),
		Phase:     string(builder.PhaseDiscovered),
		StartedAt: started,
	}

	switch {
	case published.Contains(t.identity):
		logger.InfoKV(ctx, "Skipped, already published", "identity", t.identity.String())

		attempt.Outcome = history.OutcomeSkipped
		summary.Skipped = append(summary.Skipped, t.identity)
	case attempted.Contains(t.identity):
		logger.WarnKV(ctx, "Skipped, repeated in index", "identity", t.identity.String(), "url", t.link.URL)

		attempt.Outcome = history.OutcomeSkipped
		summary.Skipped = append(summary.Skipped, t.identity)
	case p.dryRun:
		attempted.Add(t.identity)
		logger.InfoKV(ctx, "Would build", "identity", t.identity.String(), "url", t.link.URL)

		attempt.Outcome = history.OutcomeDryRun
		summary.Pending = append(summary.Pending, t.identity)
	default:
		attempted.Add(t.identity)
		logger.InfoKV(ctx, "Building", "identity", t.identity.String())

		if err := p.builder.Build(ctx, t.link, t.identity); err != nil {
			phase := builder.PhaseDiscovered

			var phaseErr *builder.PhaseError
			if errors.As(err, &phaseErr) {
				phase = phaseErr.Phase
			}

			attempt.Outcome = history.OutcomeFailed
			attempt.Phase = string(phase)
			attempt.Error = err.Error()
			summary.Failed = append(summary.Failed, Failure{Identity: t.identity, Phase: phase, Err: err})
		} else {
			attempt.Outcome = history.OutcomePublished
			attempt.Phase = string(builder.PhasePublished)
			summary.Published = append(summary.Published, t.identity)
		}
	}

	attempt.Duration = time.Since(started)

	if err := p.history.Record(ctx, attempt); err != nil {
		logger.WarnKV(ctx, "Failed to record attempt", "identity", t.identity.String(), "error", err)
	}
}

func (p *Publisher) report(ctx context.Context, summary *Summary) {
	logger.InfoKV(ctx, "Run finished",
		"discovered", summary.Discovered,
		"targeted", summary.Targeted,
		"published", len(summary.Published),
		"skipped", len(summary.Skipped),
		"pending", len(summary.Pending),
		"failed", len(summary.Failed),
	)

	for _, failure := range summary.Failed {
		logger.ErrorKV(ctx, "Failed artifact", "identity", failure.Identity.String(), "phase", failure.Phase,
			"error", failure.Err)
	}
}
