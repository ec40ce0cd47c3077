package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/arpublish/codec"
	"github.com/BaSui01/arpublish/exporter"
	"github.com/BaSui01/arpublish/identity"
	"github.com/BaSui01/arpublish/internal/metrics"
	"github.com/BaSui01/arpublish/internal/telemetry"
	"github.com/BaSui01/arpublish/preview"
	"github.com/BaSui01/arpublish/publish"
	"github.com/BaSui01/arpublish/types"
)

// ============================================================
// 依赖
// ============================================================

// ArtifactExporter 导出阶段
type ArtifactExporter interface {
	ExportAll(ctx context.Context, req exporter.Request) (map[types.Format]*exporter.Artifact, error)
}

// ArtifactEncoder 编码阶段
type ArtifactEncoder interface {
	EncodeAll(ctx context.Context, arts map[types.Format]*exporter.Artifact, name func(types.Format) string, strategy codec.Strategy) (map[types.Format]*codec.Encoded, error)
}

// IdentityResolver 标识解析
type IdentityResolver interface {
	Resolve(subjects []types.Subject) identity.Identity
}

// SubjectSource 提供当前加载的主体元数据
type SubjectSource interface {
	Subjects(ctx context.Context) ([]types.Subject, error)
}

// SubjectsFunc adapts a function to SubjectSource.
type SubjectsFunc func(ctx context.Context) ([]types.Subject, error)

// Subjects calls f.
func (f SubjectsFunc) Subjects(ctx context.Context) ([]types.Subject, error) { return f(ctx) }

// StaticSubjects always returns the given subjects.
func StaticSubjects(subjects ...types.Subject) SubjectSource {
	return SubjectsFunc(func(context.Context) ([]types.Subject, error) { return subjects, nil })
}

// Deps 控制器依赖。Exporter、Publisher、Subjects 必填，其余有默认值
type Deps struct {
	Exporter  ArtifactExporter
	Encoder   ArtifactEncoder
	Publisher publish.Publisher
	Resolver  IdentityResolver
	Subjects  SubjectSource
	Presenter Presenter
	Prober    preview.Prober
	Metrics   *metrics.Collector
}

// Config 控制器配置
type Config struct {
	Formats []types.Format
	Params  map[types.Format]map[string]string
}

// ============================================================
// Controller
// ============================================================

// Controller 导出发布状态机
type Controller struct {
	cfg  Config
	deps Deps

	busy atomic.Bool
	wg   sync.WaitGroup

	capOnce    sync.Once
	capability preview.Capability

	tracer trace.Tracer
	logger *zap.Logger
}

// NewController validates deps and fills defaults.
func NewController(cfg Config, deps Deps, logger *zap.Logger) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case deps.Exporter == nil:
		return nil, errors.New("workflow: exporter is required")
	case deps.Publisher == nil:
		return nil, errors.New("workflow: publisher is required")
	case deps.Subjects == nil:
		return nil, errors.New("workflow: subject source is required")
	case len(cfg.Formats) == 0:
		return nil, errors.New("workflow: at least one format is required")
	}
	if deps.Encoder == nil {
		deps.Encoder = codec.NewEncoder(logger)
	}
	if deps.Resolver == nil {
		deps.Resolver = identity.NewResolver()
	}
	if deps.Presenter == nil {
		deps.Presenter = NewLogPresenter(logger)
	}
	if deps.Prober == nil {
		deps.Prober = preview.Static(preview.Capability{Platform: "server"})
	}

	return &Controller{
		cfg:    cfg,
		deps:   deps,
		tracer: telemetry.Tracer(),
		logger: logger.With(zap.String("component", "workflow"), zap.String("strategy", deps.Publisher.Name())),
	}, nil
}

// State returns the current state.
func (c *Controller) State() State {
	if c.busy.Load() {
		return StateBusy
	}
	return StateIdle
}

// Strategy returns the configured publish strategy name.
func (c *Controller) Strategy() string {
	return c.deps.Publisher.Name()
}

// Capability returns the memoized local AR capability.
func (c *Controller) Capability() preview.Capability {
	c.capOnce.Do(func() {
		c.capability = c.deps.Prober.Probe()
		c.logger.Info("AR capability probed",
			zap.Bool("quick_look", c.capability.QuickLook),
			zap.String("platform", c.capability.Platform),
		)
	})
	return c.capability
}

// Run executes one cycle synchronously. While another cycle is in flight it
// returns immediately with ErrBusy and nothing is started.
func (c *Controller) Run(ctx context.Context) Outcome {
	if !c.acquire() {
		return Outcome{State: StateBusy, Err: ErrBusy}
	}
	return c.cycle(ctx)
}

// Start begins a cycle in the background. The returned channel receives the
// outcome once the cycle completes.
func (c *Controller) Start(ctx context.Context) (<-chan Outcome, error) {
	if !c.acquire() {
		return nil, ErrBusy
	}
	done := make(chan Outcome, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		done <- c.cycle(ctx)
		close(done)
	}()
	return done, nil
}

// Wait blocks until background cycles started with Start finish.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) acquire() bool {
	if c.busy.CompareAndSwap(false, true) {
		return true
	}
	c.logger.Debug("trigger rejected while busy")
	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordBusyRejection()
	}
	return false
}

// cycle runs with the gate held and always releases it. The gate opens before
// the presenter hears idle, so an idle callback may trigger the next cycle.
func (c *Controller) cycle(parent context.Context) (out Outcome) {
	shown := false
	defer func() {
		c.busy.Store(false)
		if shown {
			c.setBusy(false)
		}
	}()

	ctx := context.WithoutCancel(parent)
	ctx, span := c.tracer.Start(ctx, "publish.cycle",
		trace.WithAttributes(attribute.String("publish.strategy", c.Strategy())))
	defer span.End()
	start := time.Now()

	subjects, err := c.deps.Subjects.Subjects(ctx)
	if err == nil && len(subjects) == 0 {
		err = types.NewError(types.ErrNoSubjectLoaded, "no structure loaded")
	} else if err != nil {
		err = types.NewError(types.ErrNoSubjectLoaded, "load subject metadata").WithCause(err)
	}
	if err != nil {
		c.finish(span, start, err)
		c.deps.Presenter.PresentFailure(FailureMessage(err))
		return Outcome{State: StateIdle, Err: err}
	}

	c.setBusy(true)
	shown = true

	out = c.stages(ctx, subjects)
	c.finish(span, start, out.Err)
	if out.Err != nil {
		c.deps.Presenter.PresentFailure(FailureMessage(out.Err))
	} else {
		c.deps.Presenter.PresentResult(out.Result)
	}
	out.State = StateIdle
	return out
}

// stages runs export (with identity) → encode → publish.
func (c *Controller) stages(ctx context.Context, subjects []types.Subject) Outcome {
	var (
		id   identity.Identity
		arts map[types.Format]*exporter.Artifact
	)

	stageStart := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		id = c.deps.Resolver.Resolve(subjects)
		return nil
	})
	g.Go(func() error {
		var err error
		arts, err = c.deps.Exporter.ExportAll(gctx, c.request())
		return err
	})
	if err := g.Wait(); err != nil {
		return Outcome{Err: asCode(err, types.ErrExportFailure, "export")}
	}
	c.recordStage("export", stageStart)

	out := Outcome{Identity: id}
	for _, f := range sortedKeys(arts) {
		a := arts[f]
		if a.Placeholder {
			out.Placeholders = append(out.Placeholders, f)
		}
		if c.deps.Metrics != nil {
			c.deps.Metrics.RecordArtifact(string(f), a.Placeholder, a.Size)
		}
	}

	stageStart = time.Now()
	encoded, err := c.deps.Encoder.EncodeAll(ctx, arts, id.Filename, c.deps.Publisher.Encoding())
	if err != nil {
		out.Err = asCode(err, types.ErrEncodingFailure, "encode")
		return out
	}
	c.recordStage("encode", stageStart)

	stageStart = time.Now()
	res, err := c.deps.Publisher.Publish(ctx, id, encoded)
	if err != nil {
		out.Err = asCode(err, types.ErrPublishFailure, "publish")
		return out
	}
	if res == nil || res.ARLink == "" {
		out.Err = types.NewError(types.ErrPublishFailure, "publisher returned no link")
		return out
	}
	c.recordStage("publish", stageStart)

	out.Result = res
	c.logger.Info("publish cycle completed",
		zap.String("key", id.Key()),
		zap.String("ar_link", res.ARLink),
		zap.Any("placeholders", out.Placeholders),
	)
	return out
}

func (c *Controller) request() exporter.Request {
	req := exporter.NewRequest(c.cfg.Formats...)
	for f, p := range c.cfg.Params {
		req = req.WithParams(f, p)
	}
	return req
}

func (c *Controller) setBusy(busy bool) {
	c.deps.Presenter.SetBusy(busy)
	if c.deps.Metrics != nil {
		c.deps.Metrics.SetBusy(busy)
	}
}

func (c *Controller) recordStage(stage string, start time.Time) {
	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordStage(stage, time.Since(start))
	}
}

// finish logs the cycle result and closes out the span and metrics.
func (c *Controller) finish(span trace.Span, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = string(types.GetErrorCode(err))
		fields := []zap.Field{zap.Error(err), zap.String("code", status)}
		if cause := types.PublishCause(err); cause != "" {
			fields = append(fields, zap.String("cause", string(cause)))
		}
		c.logger.Error("publish cycle failed", fields...)
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	}
	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordCycle(c.Strategy(), status, time.Since(start))
	}
}

// asCode keeps typed errors and wraps foreign ones with code.
func asCode(err error, code types.ErrorCode, stage string) error {
	var te *types.Error
	if errors.As(err, &te) {
		return err
	}
	return types.NewError(code, fmt.Sprintf("%s stage failed", stage)).WithCause(err)
}

func sortedKeys(arts map[types.Format]*exporter.Artifact) []types.Format {
	out := make([]types.Format, 0, len(arts))
	for f := range arts {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
