package releaser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"relmake/pkg/metrics"
	"relmake/pkg/proc"
	"relmake/pkg/render"
	gos3 "relmake/pkg/s3"
	"relmake/pkg/telemetry"
)

// PublishedSubject is the NATS subject announcing a completed upload.
const PublishedSubject = "relmake.release.published"

// Publisher announces finished releases.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

// ReleaseEvent is the payload sent on PublishedSubject.
type ReleaseEvent struct {
	RunID   string   `json:"run_id"`
	Version string   `json:"version"`
	Commit  string   `json:"commit,omitempty"`
	Channel string   `json:"channel"`
	Apps    []string `json:"apps"`
	Files   []string `json:"files"`
}

// Releaser runs the build, package and upload pipeline. Only Config, Targets and
// Runner are required; Uploader is required when Config.CI is set.
type Releaser struct {
	Config    Config
	Targets   []BuildTarget
	Runner    proc.Runner
	Uploader  Uploader
	Signer    *Signer
	Publisher Publisher
	Logger    *log.Logger
	Now       func() time.Time
}

type runState struct {
	*Releaser
	id      string
	version VersionInfo
	channel Channel
	host    Platform
	uploads UploadSet
	summary *Summary
	metrics *metrics.Recorder
	tracer  trace.Tracer
}

// Run builds app ("all" or a target name) and, under CI, uploads the results.
// The first failing step stops the run.
func (r *Releaser) Run(ctx context.Context, app string) (*Summary, error) {
	if r.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if r.Config.CI && r.Uploader == nil {
		return nil, errors.New("uploader is required in CI")
	}
	if r.Logger == nil {
		r.Logger = log.New(io.Discard, "", 0)
	}
	if r.Now == nil {
		r.Now = time.Now
	}

	targets, err := SelectTargets(r.Targets, app)
	if err != nil {
		return nil, err
	}

	tracer := otel.Tracer("relmake/services/releaser")
	ctx, span := tracer.Start(ctx, "release", trace.WithAttributes(attribute.String("app", app)))
	defer span.End()

	summary, err := r.run(ctx, tracer, targets)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return summary, nil
}

func (r *Releaser) run(ctx context.Context, tracer trace.Tracer, targets []BuildTarget) (*Summary, error) {
	if err := checkBuildDir(r.Config.WorkDir, r.Config.BuildDir); err != nil {
		return nil, fmt.Errorf("refusing to clean build directory: %w", err)
	}
	if err := clean(r.Config.BuildDir); err != nil {
		return nil, err
	}

	v := ResolveVersion(r.Config, r.Now())
	v.Commit = ResolveCommit(ctx, r.Config, r.Runner)

	host, err := hostPlatform(ctx, r.Runner, r.Config.WorkDir)
	if err != nil {
		return nil, err
	}

	rn := &runState{
		Releaser: r,
		id:       uuid.NewString(),
		version:  v,
		channel:  r.Config.Channel(v.Release),
		host:     host,
		metrics:  metrics.New(v.Version, v.Channel()),
		tracer:   tracer,
	}
	rn.summary = &Summary{
		RunID:     rn.id,
		CreatedAt: r.Now().UTC().Truncate(time.Second),
		Version:   v.Version,
		Commit:    v.Commit,
		Release:   v.Release,
		Channel:   rn.channel.Name,
		CI:        r.Config.CI,
		Host:      host,
	}
	if r.Signer != nil {
		rn.summary.SigningKey = r.Signer.PublicKeyBase64()
		rn.summary.SigningRecipient = r.Signer.Recipient()
	}

	telemetry.Logf(ctx, r.Logger, "INFO building version %s (channel %s, run %s)", v.Version, rn.channel.Name, rn.id)
	telemetry.Logf(ctx, r.Logger, "INFO host GOOS=%s GOARCH=%s ci=%t", host.OS, host.Arch, r.Config.CI)

	err = rn.execute(ctx, targets)
	if flushErr := rn.flushMetrics(ctx); flushErr != nil {
		telemetry.Logf(ctx, r.Logger, "WARN %v", flushErr)
	}
	if err != nil {
		return nil, err
	}
	return rn.summary, nil
}

func (rn *runState) execute(ctx context.Context, targets []BuildTarget) error {
	for _, t := range targets {
		if err := rn.buildTarget(ctx, t); err != nil {
			return err
		}
	}

	for _, e := range rn.uploads.Entries() {
		rn.summary.Uploads = append(rn.summary.Uploads, UploadRecord{
			Local:  e.Local,
			Remote: rn.channel.Destination(e.Key).URL(),
		})
	}

	if rn.Config.CI {
		if err := rn.upload(ctx); err != nil {
			return err
		}
	}

	if err := writeSummary(filepath.Join(rn.Config.BuildDir, summaryFileName), rn.summary); err != nil {
		return err
	}
	rn.logSummary(ctx)

	if rn.summary.Uploaded && rn.Publisher != nil {
		event := ReleaseEvent{
			RunID:   rn.id,
			Version: rn.version.Version,
			Commit:  rn.version.Commit,
			Channel: rn.channel.Name,
			Apps:    rn.summary.Apps(),
		}
		for _, u := range rn.summary.Uploads {
			event.Files = append(event.Files, u.Remote)
		}
		if err := rn.Publisher.Publish(ctx, PublishedSubject, event); err != nil {
			return fmt.Errorf("publish release event: %w", err)
		}
	}
	return nil
}

func (rn *runState) buildTarget(ctx context.Context, t BuildTarget) error {
	jobs := t.Jobs(rn.host, rn.Config.CI)
	if len(jobs) == 0 {
		telemetry.Logf(ctx, rn.Logger, "INFO skipping %s on %s", t.Name, rn.host)
		return nil
	}

	telemetry.Logf(ctx, rn.Logger, "INFO building %s", t.Name)
	for _, job := range jobs {
		if err := rn.buildJob(ctx, job); err != nil {
			return err
		}
	}
	return rn.writeUpdateManifest(t.Name)
}

func (rn *runState) buildJob(ctx context.Context, job Job) error {
	ctx, span := rn.tracer.Start(ctx, "build", trace.WithAttributes(
		attribute.String("app", job.Target.Name),
		attribute.String("platform", job.Platform.String()),
	))
	defer span.End()

	start := time.Now()
	binary, err := compile(ctx, rn.Runner, rn.Config, rn.version, job)
	rn.metrics.ObserveStage("build", job.Target.Name, time.Since(start))
	if err != nil {
		rn.metrics.Failed("build")
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	start = time.Now()
	artifact, err := rn.pack(job, binary)
	rn.metrics.ObserveStage("package", job.Target.Name, time.Since(start))
	if err != nil {
		rn.metrics.Failed("package")
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("package %s for %s: %w", job.Target.Name, job.Platform, err)
	}

	rn.summary.Artifacts = append(rn.summary.Artifacts, artifact)
	return nil
}

// pack archives the binary and writes its artifact manifest.
func (rn *runState) pack(job Job, binary string) (ArtifactSummary, error) {
	name, p := job.Target.Name, job.Platform

	digest, size, err := gos3.FileSHA256(binary)
	if err != nil {
		return ArtifactSummary{}, err
	}
	rn.metrics.SetArtifactSize(name, p.OS, p.Arch, "binary", size)

	archive := archiveName(name, p)
	archiveSize, err := writeArchive(binary, filepath.Join(rn.Config.BuildDir, archive))
	if err != nil {
		return ArtifactSummary{}, err
	}
	rn.metrics.SetArtifactSize(name, p.OS, p.Arch, "archive", archiveSize)

	manifest := ArtifactManifest{
		Name:    name,
		Version: rn.version.Version,
		SHA256:  digest,
		Commit:  rn.version.Commit,
	}
	if rn.Signer != nil {
		if err := rn.Signer.SignManifest(&manifest); err != nil {
			return ArtifactSummary{}, err
		}
	}
	manifestFile := artifactManifestName(name, p)
	if err := writeJSON(filepath.Join(rn.Config.BuildDir, manifestFile), manifest); err != nil {
		return ArtifactSummary{}, err
	}

	rn.uploads.Add(filepath.Join(rn.Config.BuildDir, archive), rn.version.Version+"/"+archive)
	rn.uploads.Add(filepath.Join(rn.Config.BuildDir, manifestFile), rn.version.Version+"/"+manifestFile)

	return ArtifactSummary{
		Name:     name,
		OS:       p.OS,
		Arch:     p.Arch,
		SHA256:   digest,
		Size:     size,
		Archive:  archive,
		Manifest: manifestFile,
		Signed:   manifest.Signature != "",
	}, nil
}

// writeUpdateManifest writes the per-application update manifest. It is only queued for
// upload when the ref publishes to a channel.
func (rn *runState) writeUpdateManifest(name string) error {
	prefix, err := rn.channel.RemotePrefix(rn.Config.Repository, rn.version.Version)
	if err != nil {
		return fmt.Errorf("render remote prefix: %w", err)
	}

	file := updateManifestName(name)
	local := filepath.Join(rn.Config.BuildDir, file)
	if err := writeJSON(local, UpdateManifest{
		Name:         name,
		Version:      rn.version.Version,
		RemotePrefix: prefix,
	}); err != nil {
		return err
	}

	if rn.Config.Publishes(rn.version) {
		rn.uploads.Add(local, file)
		rn.summary.UpdateManifests = append(rn.summary.UpdateManifests, file)
	}
	return nil
}

func (rn *runState) upload(ctx context.Context) error {
	ctx, span := rn.tracer.Start(ctx, "upload", trace.WithAttributes(
		attribute.String("channel", rn.channel.Name),
		attribute.Int("files", rn.uploads.Len()),
	))
	defer span.End()

	telemetry.Logf(ctx, rn.Logger, "INFO uploading %d file(s) to %s", rn.uploads.Len(), rn.channel.Destination("").URL())
	for _, e := range rn.uploads.Entries() {
		dst := rn.channel.Destination(e.Key)
		start := time.Now()
		err := rn.Uploader.Upload(ctx, e.Local, dst)
		rn.metrics.ObserveStage("upload", filepath.Base(e.Local), time.Since(start))
		if err != nil {
			rn.metrics.Failed("upload")
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		telemetry.Logf(ctx, rn.Logger, "INFO uploaded %s", dst.URL())
	}
	rn.summary.Uploaded = true
	return nil
}

func (rn *runState) logSummary(ctx context.Context) {
	engine, err := render.New()
	if err != nil {
		telemetry.Logf(ctx, rn.Logger, "WARN %v", err)
		return
	}
	out, err := engine.Render("summary.tmpl", rn.summary)
	if err != nil {
		telemetry.Logf(ctx, rn.Logger, "WARN render summary: %v", err)
		return
	}
	telemetry.Logf(ctx, rn.Logger, "INFO %s", out)
}

func (rn *runState) flushMetrics(ctx context.Context) error {
	return rn.metrics.Flush(ctx, rn.Config.MetricsFile, rn.Config.PushgatewayURL)
}

func clean(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clean %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
