package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/oshokin/pybi-publisher/internal/catalog"
	"github.com/oshokin/pybi-publisher/internal/checksum"
	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
	"github.com/oshokin/pybi-publisher/internal/logger"
	"github.com/oshokin/pybi-publisher/internal/tracing"
	"github.com/oshokin/pybi-publisher/internal/version"
)

var (
	// ErrDownload is returned when the artifact cannot be fetched.
	ErrDownload = errors.New("download failed")

	errNameRoundTrip = errors.New("published name does not parse back to the built identity")
)

// Augmenter installs the package installer into an artifact.
type Augmenter interface {
	Augment(ctx context.Context, src, dst string, identity pybi.Identity) error
}

// Validator runs the capability checks against an artifact.
type Validator interface {
	Validate(ctx context.Context, archivePath string, identity pybi.Identity) error
}

// Sink receives finished artifacts.
type Sink interface {
	Publish(ctx context.Context, identity pybi.Identity, stagedPath string) error
}

// Config wires a Builder.
type Config struct {
	// HTTPClient downloads artifacts, http.DefaultClient when nil.
	HTTPClient *http.Client
	// WorkDir is the parent of per-artifact work directories.
	WorkDir string
	// Extension is appended to published file names.
	Extension string
	// Tracer records a span per artifact and per phase.
	Tracer trace.Tracer
	// Augmenter runs the augmenting phase.
	Augmenter Augmenter
	// Validator runs the validating phase.
	Validator Validator
	// Sink runs the publishing phase.
	Sink Sink
}

// Builder runs the pipeline for one artifact at a time.
type Builder struct {
	httpClient *http.Client
	workDir    string
	extension  string
	tracer     trace.Tracer
	augmenter  Augmenter
	validator  Validator
	sink       Sink
}

// New returns a Builder for cfg.
func New(cfg Config) *Builder {
	b := &Builder{
		httpClient: cfg.HTTPClient,
		workDir:    cfg.WorkDir,
		extension:  cfg.Extension,
		tracer:     cfg.Tracer,
		augmenter:  cfg.Augmenter,
		validator:  cfg.Validator,
		sink:       cfg.Sink,
	}

	if b.httpClient == nil {
		b.httpClient = http.DefaultClient
	}

	if b.extension == "" {
		b.extension = pybi.DefaultExtension
	}

	if b.tracer == nil {
		b.tracer = noop.NewTracerProvider().Tracer("builder")
	}

	return b
}

// workspace holds the scoped paths of one build.
type workspace struct {
	downloaded string
	staged     string
}

type step struct {
	phase Phase
	run   func(ctx context.Context) error
}

// Build takes link from download to publication.
// Failures are returned as *PhaseError; nothing reaches the sink unless every earlier phase passed.
func (b *Builder) Build(ctx context.Context, link catalog.Link, identity pybi.Identity) error {
	ctx = logger.WithKV(ctx, "identity", identity.String())

	ctx, span := b.tracer.Start(ctx, tracing.SpanArtifact, trace.WithAttributes(
		attribute.String(tracing.AttrIdentity, identity.String()),
		attribute.String(tracing.AttrImplementation, identity.Implementation),
		attribute.String(tracing.AttrVersion, identity.VersionString()),
		attribute.String(tracing.AttrPlatform, identity.Platform),
	))
	defer span.End()

	tmp, err := os.MkdirTemp(b.workDir, "build-*")
	if err != nil {
		return b.fail(ctx, span, &PhaseError{Identity: identity, Phase: PhaseDiscovered, Err: err})
	}

	defer func() {
		if removeErr := os.RemoveAll(tmp); removeErr != nil {
			logger.WarnKV(ctx, "Failed to remove work dir", "dir", tmp, "error", removeErr)
		}
	}()

	ws := workspace{
		downloaded: filepath.Join(tmp, "download", link.Filename()),
		staged:     filepath.Join(tmp, "staged", identity.Filename(b.extension)),
	}

	steps := []step{
		{PhaseDownloading, func(ctx context.Context) error { return b.download(ctx, link.URL, ws.downloaded) }},
		{PhaseHashVerifying, func(context.Context) error {
			return checksum.VerifyFile(ws.downloaded, link.HashAlgorithm, link.HashValue)
		}},
		{PhaseAugmenting, func(ctx context.Context) error {
			if err := os.MkdirAll(filepath.Dir(ws.staged), 0o755); err != nil {
				return err
			}

			return b.augmenter.Augment(ctx, ws.downloaded, ws.staged, identity)
		}},
		{PhaseValidating, func(ctx context.Context) error { return b.validator.Validate(ctx, ws.staged, identity) }},
		{PhasePublishing, func(ctx context.Context) error { return b.publish(ctx, identity, ws.staged) }},
	}

	for _, s := range steps {
		if err := b.runPhase(ctx, identity, s); err != nil {
			return b.fail(ctx, span, err)
		}
	}

	span.SetAttributes(attribute.String(tracing.AttrPhase, string(PhasePublished)))
	logger.InfoKV(ctx, "Artifact published", "phase", PhasePublished)

	return nil
}

func (b *Builder) runPhase(ctx context.Context, identity pybi.Identity, s step) error {
	ctx, span := b.tracer.Start(ctx, tracing.SpanPhase, trace.WithAttributes(
		attribute.String(tracing.AttrPhase, string(s.phase)),
	))
	defer span.End()

	started := time.Now()

	logger.InfoKV(ctx, "Entering phase", "phase", s.phase)

	if err := s.run(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return &PhaseError{Identity: identity, Phase: s.phase, Err: err}
	}

	logger.DebugKV(ctx, "Phase complete", "phase", s.phase, "elapsed", time.Since(started))

	return nil
}

func (b *Builder) fail(ctx context.Context, span trace.Span, err error) error {
	var phaseErr *PhaseError
	if errors.As(err, &phaseErr) {
		span.SetAttributes(attribute.String(tracing.AttrPhase, string(phaseErr.Phase)))
		logger.ErrorKV(ctx, "Artifact failed", "phase", phaseErr.Phase, "error", phaseErr.Err)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return err
}

// download streams url into path.
func (b *Builder) download(ctx context.Context, url, path string) error {
	if err := b.fetch(ctx, url, path); err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}

	return nil
}

func (b *Builder) fetch(ctx context.Context, url, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}

	request.Header.Set("User-Agent", version.UserAgent())

	response, err := b.httpClient.Do(request)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", url, response.Status)
	}

	output, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}

	written, err := io.Copy(output, response.Body)
	if err != nil {
		_ = output.Close()
		return err
	}

	logger.DebugKV(ctx, "Downloaded artifact", "url", url, "bytes", written)

	return output.Close()
}

// publish checks the staged name against identity before handing it to the sink.
func (b *Builder) publish(ctx context.Context, identity pybi.Identity, staged string) error {
	parsed, err := pybi.Parse(filepath.Base(staged))
	if err != nil {
		return err
	}

	if !parsed.Equal(identity) {
		return fmt.Errorf("%s: %w", filepath.Base(staged), errNameRoundTrip)
	}

	return b.sink.Publish(ctx, identity, staged)
}
