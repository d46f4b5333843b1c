// Package playground composes validation, workspaces, the compiler, the
// sandbox and the artifact guard into the two request pipelines.
package playground

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"

	"tonyukuk-playground/internal/artifact"
	"tonyukuk-playground/internal/compile"
	"tonyukuk-playground/internal/config"
	"tonyukuk-playground/internal/monitor"
	"tonyukuk-playground/internal/response"
	"tonyukuk-playground/internal/sandbox"
	"tonyukuk-playground/internal/storage"
	"tonyukuk-playground/internal/workspace"
)

// Auditor receives one record per handled request. *storage.AuditWriter
// satisfies it.
type Auditor interface {
	Log(rec *storage.AuditRecord)
}

// Input is a request body as it arrived, before validation.
type Input struct {
	RequestID  string // correlation id; generated when empty
	Declared   int64 // Content-Length as announced by the client
	Body       io.Reader
	RemoteAddr string
}

// Service runs the /run and /compile-wasm pipelines. It holds no per-request
// state and is safe for concurrent use.
type Service struct {
	validator  *compile.Validator
	workspaces *workspace.Manager
	compiler   *compile.Orchestrator
	sandbox    *sandbox.Sandbox
	guard      *artifact.Guard
	encoder    *response.Encoder

	metrics  *monitor.Metrics
	tracer   *monitor.Tracer
	detector *monitor.EscapeDetector
	audit    Auditor
}

// New wires a Service from cfg. audit may be nil.
func New(cfg *config.Config, isolator sandbox.Isolator, runner sandbox.CommandRunner, metrics *monitor.Metrics, audit Auditor) *Service {
	return &Service{
		validator:  compile.NewValidator(cfg.Limits.MaxCodeBytes),
		workspaces: workspace.NewManager(cfg.Workspace.Root),
		compiler:   compile.NewOrchestrator(cfg.Compiler.Path, cfg.Compiler.Timeout, runner),
		sandbox:    sandbox.New(isolator, cfg.Sandbox.RunTimeout, cfg.Sandbox.Grace),
		guard:      artifact.NewGuard(cfg.Limits.MaxWasmBytes, cfg.Wasm.ValidateModule),
		encoder:    response.NewEncoder(cfg.Limits.MaxOutputBytes, cfg.CORS.AllowedOrigin),
		metrics:    metrics,
		tracer:     monitor.NewTracer(cfg.Tracing.Enabled, cfg.Tracing.ServiceName),
		detector:   monitor.NewEscapeDetector(),
		audit:      audit,
	}
}

// Encoder returns the encoder used for every payload, so transport code can
// write fallbacks with the same headers.
func (s *Service) Encoder() *response.Encoder {
	return s.encoder
}

// Run compiles the submitted program and either returns its IR or runs it
// and returns its output. The workspace is removed on every path.
func (s *Service) Run(ctx context.Context, in Input) response.Payload {
	rec := s.newRecord(in, EndpointRun)
	start := time.Now()

	ctx, span := s.tracer.StartSpan(ctx, "run",
		monitor.AttrRequestID.String(rec.RequestID),
		monitor.AttrAuditID.String(rec.ID),
		monitor.AttrEndpoint.String(EndpointRun),
	)
	defer span.End()

	req, err := s.validator.Parse(in.Declared, in.Body)
	if err != nil {
		return s.reject(rec, start, err)
	}
	s.observeRequest(ctx, rec, req)

	ws, err := s.acquire(workspace.Native)
	if err != nil {
		log.Error().Err(err).Str("request_id", rec.RequestID).Msg("workspace acquire failed")
		return s.finish(rec, start, ResultError, s.internal())
	}
	defer s.release(ws)

	logger := s.logger(rec, ws, req)

	out, err := s.runCompiler(ctx, ws, req)
	switch {
	case errors.Is(err, compile.ErrCompileTimeout):
		s.metrics.RecordTimeout("compile")
		rec.TimedOut = true
		logger.Info().Msg("compile timed out")
		return s.finish(rec, start, ResultTimeout, s.encoder.Text(http.StatusOK, sandbox.TimeoutMarker))
	case errors.Is(err, compile.ErrIRMissing):
		logger.Warn().Msg("compiler reported success without IR")
		return s.finish(rec, start, ResultError, s.encoder.Text(http.StatusOK, MsgIRMissing))
	case err != nil:
		logger.Error().Err(err).Msg("compiler invocation failed")
		return s.finish(rec, start, ResultError, s.internal())
	}

	rec.ExitCode = out.ExitCode
	if !out.Succeeded() {
		return s.finish(rec, start, ResultCompileError, s.encoder.Text(http.StatusOK, out.Diagnostic(MsgCompileError)))
	}

	if req.WantsIR() {
		return s.finish(rec, start, ResultOK, s.encoder.Text(http.StatusOK, string(out.IR)))
	}

	outcome, err := s.execute(ctx, rec.ID, ws)
	if err != nil {
		if sandbox.IsTimeout(err) {
			s.metrics.RecordTimeout("harness")
			rec.TimedOut = true
			logger.Warn().Msg("program overran the harness deadline")
			return s.finish(rec, start, ResultTimeout, s.encoder.Text(http.StatusOK, outcome.CombinedOutput))
		}
		logger.Error().Err(err).Msg("execution failed")
		return s.finish(rec, start, ResultError, s.internal())
	}

	rec.ExitCode = outcome.ExitCode
	s.inspect(rec, "output", s.detector.AnalyzeOutput(outcome.CombinedOutput))

	result := ResultOK
	if outcome.TimedOut {
		s.metrics.RecordTimeout("run")
		rec.TimedOut = true
		result = ResultTimeout
	}

	logger.Debug().
		Int("exit_code", outcome.ExitCode).
		Bool("timed_out", outcome.TimedOut).
		Msg("program finished")

	return s.finish(rec, start, result, s.encoder.Text(http.StatusOK, outcome.CombinedOutput))
}

// CompileWasm compiles the submitted program to a WASM module and returns
// its bytes. Nothing is executed.
func (s *Service) CompileWasm(ctx context.Context, in Input) response.Payload {
	rec := s.newRecord(in, EndpointWasm)
	start := time.Now()

	ctx, span := s.tracer.StartSpan(ctx, "compile_wasm",
		monitor.AttrRequestID.String(rec.RequestID),
		monitor.AttrAuditID.String(rec.ID),
		monitor.AttrEndpoint.String(EndpointWasm),
	)
	defer span.End()

	req, err := s.validator.ParseWasm(in.Declared, in.Body)
	if err != nil {
		return s.reject(rec, start, err)
	}
	s.observeRequest(ctx, rec, req)

	ws, err := s.acquire(workspace.Wasm)
	if err != nil {
		log.Error().Err(err).Str("request_id", rec.RequestID).Msg("workspace acquire failed")
		return s.finish(rec, start, ResultError, s.internal())
	}
	defer s.release(ws)

	logger := s.logger(rec, ws, req)

	out, err := s.runCompiler(ctx, ws, req)
	switch {
	case errors.Is(err, compile.ErrCompileTimeout):
		s.metrics.RecordTimeout("compile")
		rec.TimedOut = true
		return s.finish(rec, start, ResultTimeout, s.encoder.Text(http.StatusRequestTimeout, MsgCompileTimeout))
	case err != nil:
		logger.Error().Err(err).Msg("compiler invocation failed")
		return s.finish(rec, start, ResultError, s.internal())
	}

	rec.ExitCode = out.ExitCode
	if !out.Succeeded() {
		return s.finish(rec, start, ResultCompileError, s.encoder.Text(http.StatusBadRequest, out.Diagnostic(MsgWasmCompileError)))
	}

	data, err := s.loadArtifact(ctx, ws)
	switch {
	case errors.Is(err, artifact.ErrArtifactMissing):
		logger.Error().Msg("compiler reported success without a wasm file")
		return s.finish(rec, start, ResultError, s.encoder.Text(http.StatusInternalServerError, MsgWasmMissing))
	case errors.Is(err, artifact.ErrArtifactTooLarge):
		logger.Info().Int64("size", out.ArtifactSize).Msg("wasm module over the size limit")
		return s.finish(rec, start, ResultTooLarge, s.encoder.Text(http.StatusBadRequest, MsgWasmTooLarge))
	case errors.Is(err, artifact.ErrInvalidModule):
		logger.Error().Err(err).Msg("compiler produced an invalid wasm module")
		return s.finish(rec, start, ResultError, s.encoder.Text(http.StatusInternalServerError, MsgWasmInvalid))
	case err != nil:
		logger.Error().Err(err).Msg("loading wasm module failed")
		return s.finish(rec, start, ResultError, s.internal())
	}

	s.metrics.WasmSizeBytes.Observe(float64(len(data)))
	return s.finish(rec, start, ResultOK, s.encoder.Wasm(data))
}

// Internal is the generic fault payload. Callers recovering from a panic use
// it so the response never carries internal details.
func (s *Service) Internal() response.Payload {
	return s.internal()
}

func (s *Service) internal() response.Payload {
	return s.encoder.Text(http.StatusInternalServerError, MsgInternal)
}

// reject answers a validation failure with its fixed message.
func (s *Service) reject(rec *storage.AuditRecord, start time.Time, err error) response.Payload {
	msg := MsgMalformed
	switch {
	case errors.Is(err, compile.ErrCodeTooLarge):
		msg = MsgCodeTooLarge
	case errors.Is(err, compile.ErrEmptyBody):
		msg = MsgEmptyBody
	case errors.Is(err, compile.ErrEmptyCode):
		msg = MsgEmptyCode
	}
	return s.finish(rec, start, ResultRejected, s.encoder.Text(http.StatusBadRequest, msg))
}

func (s *Service) acquire(layout workspace.Layout) (*workspace.Workspace, error) {
	ws, err := s.workspaces.Acquire(layout)
	if err != nil {
		return nil, err
	}
	s.metrics.ActiveWorkspaces.Inc()
	return ws, nil
}

func (s *Service) release(ws *workspace.Workspace) {
	s.workspaces.Release(ws)
	s.metrics.ActiveWorkspaces.Dec()
}

func (s *Service) runCompiler(ctx context.Context, ws *workspace.Workspace, req compile.Request) (*compile.Outcome, error) {
	ctx, span := s.tracer.StartSpan(ctx, "compile",
		monitor.AttrBackend.String(req.Backend.String()),
		monitor.AttrTarget.String(req.Target.String()),
	)
	defer span.End()

	start := time.Now()
	out, err := s.compiler.Compile(ctx, ws, req)
	s.metrics.RecordCompile(req.Backend.String(), req.Target.String(), time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}
	span.SetAttributes(monitor.AttrExitCode.Int(out.ExitCode))
	return out, nil
}

func (s *Service) execute(ctx context.Context, execID string, ws *workspace.Workspace) (*sandbox.Outcome, error) {
	ctx, span := s.tracer.StartSpan(ctx, "execute",
		monitor.AttrAuditID.String(execID),
	)
	defer span.End()

	start := time.Now()
	outcome, err := s.sandbox.Execute(ctx, execID, ws.ArtifactPath, ws.Dir)
	s.metrics.RunDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcome, err
	}
	span.SetAttributes(
		monitor.AttrExitCode.Int(outcome.ExitCode),
		monitor.AttrTimedOut.Bool(outcome.TimedOut),
	)
	return outcome, nil
}

func (s *Service) loadArtifact(ctx context.Context, ws *workspace.Workspace) ([]byte, error) {
	ctx, span := s.tracer.StartSpan(ctx, "artifact")
	defer span.End()

	data, err := s.guard.Load(ctx, ws.ArtifactPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(monitor.AttrSizeBytes.Int(len(data)))
	return data, nil
}

func (s *Service) logger(rec *storage.AuditRecord, ws *workspace.Workspace, req compile.Request) zerolog.Logger {
	return log.With().
		Str("request_id", rec.RequestID).
		Str("audit_id", rec.ID).
		Str("workspace", ws.Name()).
		Str("backend", req.Backend.String()).
		Str("target", req.Target.String()).
		Logger()
}

// newRecord starts the audit record. Its ID keys the audit row and names the
// execution, so it never comes from the client.
func (s *Service) newRecord(in Input, endpoint string) *storage.AuditRecord {
	id := uuid.New().String()
	requestID := in.RequestID
	if requestID == "" {
		requestID = id
	}
	return &storage.AuditRecord{
		ID:         id,
		RequestID:  requestID,
		Endpoint:   endpoint,
		RemoteAddr: in.RemoteAddr,
		CreatedAt:  time.Now(),
	}
}

func (s *Service) observeRequest(ctx context.Context, rec *storage.AuditRecord, req compile.Request) {
	rec.Backend = req.Backend.String()
	rec.CodeHash = fmt.Sprintf("%x", sha256.Sum256([]byte(req.Code)))
	monitor.SpanFromContext(ctx).SetAttributes(monitor.AttrCodeHash.String(rec.CodeHash))
	s.metrics.CodeSizeBytes.Observe(float64(len(req.Code)))
	s.inspect(rec, "code", s.detector.AnalyzeCode(req.Code))
}

func (s *Service) inspect(rec *storage.AuditRecord, source string, detections []monitor.Detection) {
	for _, d := range detections {
		s.metrics.RecordSecurityEvent(d.Pattern)
		rec.SecurityEvents = append(rec.SecurityEvents, storage.SecurityEventRecord{
			AuditID:  rec.ID,
			Pattern:  d.Pattern,
			Severity: d.Severity,
			Source:   source,
			Line:     d.Line,
		})
	}
}

func (s *Service) finish(rec *storage.AuditRecord, start time.Time, result string, p response.Payload) response.Payload {
	rec.Result = result
	rec.DurationMS = time.Since(start).Milliseconds()
	rec.OutputBytes = len(p.Body)

	s.metrics.RecordResult(rec.Endpoint, result)
	if p.ContentType == response.ContentTypeText {
		s.metrics.OutputSizeBytes.Observe(float64(len(p.Body)))
	}
	if s.audit != nil {
		s.audit.Log(rec)
	}
	return p
}
