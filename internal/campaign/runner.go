// Package campaign runs a template against the pending targets of one
// channel: it renders each message, paces sends through the channel's
// scheduler and folds every outcome into a CampaignResult.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"outreach-engine/internal/audit"
	"outreach-engine/internal/channel"
	apperrors "outreach-engine/internal/common/errors"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/common/metrics"
	"outreach-engine/internal/models"
	"outreach-engine/internal/scheduler"
	"outreach-engine/internal/store"
	"outreach-engine/internal/template"
	"outreach-engine/pkg/registry"
)

const instrumentationName = "outreach-engine/campaign"

type Option func(*Runner)

// WithClock replaces time.Now for status timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithSchedulerOptions is applied to every lane scheduler.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(r *Runner) { r.schedOpts = append(r.schedOpts, opts...) }
}

type RunOption func(*runOptions)

type runOptions struct {
	runID     string
	constants map[string]string
}

// WithConstants adds per-run variables on top of the configured constants.
func WithConstants(c map[string]string) RunOption {
	return func(o *runOptions) {
		if o.constants == nil {
			o.constants = make(map[string]string, len(c))
		}
		for k, v := range c {
			o.constants[k] = v
		}
	}
}

func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}

type lane struct {
	channel models.Channel
	adapter channel.Adapter
	sched   *scheduler.Scheduler[models.SendOutcome]
	busy    atomic.Bool
}

type Runner struct {
	deps      Dependencies
	lanes     map[models.Channel]*lane
	logger    logger.Logger
	now       func() time.Time
	schedOpts []scheduler.Option

	tracer   trace.Tracer
	runs     otelmetric.Int64Counter
	duration otelmetric.Float64Histogram
}

// NewRunner starts one scheduler per lane. Close stops them.
func NewRunner(deps Dependencies, lanes map[models.Channel]LaneConfig, opts ...Option) (*Runner, error) {
	if deps.Templates == nil || deps.Targets == nil || deps.Status == nil {
		return nil, fmt.Errorf("campaign: templates, targets and status dependencies are required")
	}
	if deps.Audit == nil {
		deps.Audit = audit.SinkFunc(func(context.Context, models.AuditEntry) error { return nil })
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}

	r := &Runner{
		deps:   deps,
		lanes:  make(map[models.Channel]*lane, len(lanes)),
		logger: deps.Logger.WithFields(map[string]interface{}{"component": "campaign"}),
		now:    time.Now,
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}

	meter := otel.Meter(instrumentationName)
	var err error
	r.runs, err = meter.Int64Counter("campaign.runs",
		otelmetric.WithDescription("Campaign runs by channel and status"))
	if err != nil {
		return nil, err
	}
	r.duration, err = meter.Float64Histogram("campaign.duration",
		otelmetric.WithDescription("Campaign run duration"),
		otelmetric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	for ch, cfg := range lanes {
		if !ch.Valid() {
			r.Close()
			return nil, fmt.Errorf("campaign: unknown channel %q", ch)
		}
		if cfg.Adapter == nil {
			r.Close()
			return nil, apperrors.NewChannelNotConfiguredError(string(ch))
		}
		schedOpts := append([]scheduler.Option{scheduler.WithName("lane-" + string(ch))}, r.schedOpts...)
		sched, err := scheduler.New[models.SendOutcome](cfg.Scheduler, schedOpts...)
		if err != nil {
			r.Close()
			return nil, apperrors.NewSchedulerMisconfiguredError(string(ch), err)
		}
		r.lanes[ch] = &lane{channel: ch, adapter: cfg.Adapter, sched: sched}
	}
	return r, nil
}

// Channels lists the configured lanes in name order.
func (r *Runner) Channels() []models.Channel {
	out := make([]models.Channel, 0, len(r.lanes))
	for ch := range r.lanes {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close cancels queued sends on every lane. Sends already running finish.
func (r *Runner) Close() {
	for _, l := range r.lanes {
		l.sched.Close()
	}
}

// run is the state of one campaign on one lane.
type run struct {
	id        string
	tpl       *models.Template
	lane      *lane
	acc       *accumulator
	subject   *template.Compiled
	body      *template.Compiled
	constants map[string]string
	log       logger.Logger
}

type submission struct {
	target models.Target
	future *scheduler.Future[models.SendOutcome]
}

// Run executes templateID against up to limit pending targets of ch and
// blocks until every submitted send has finished. A run-level failure
// returns a *errors.StandardError and attempts nothing. Cancelling ctx
// stops sends that have not started; they are reported as Cancelled and
// stay pending.
func (r *Runner) Run(ctx context.Context, templateID string, ch models.Channel, limit int, opts ...RunOption) (*models.CampaignResult, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	l, ok := r.lanes[ch]
	if !ok {
		return nil, apperrors.NewChannelNotConfiguredError(string(ch))
	}
	if !l.busy.CompareAndSwap(false, true) {
		return nil, apperrors.NewCampaignInProgressError(string(ch))
	}
	defer l.busy.Store(false)

	runID := ro.runID
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx, span := r.tracer.Start(ctx, "campaign.run", trace.WithAttributes(
		attribute.String("campaign.run_id", runID),
		attribute.String("campaign.channel", string(ch)),
		attribute.String("campaign.template_id", templateID),
		attribute.Int("campaign.limit", limit),
	))
	defer span.End()

	log := r.logger.WithFields(map[string]interface{}{
		"runId":      runID,
		"channel":    string(ch),
		"templateId": templateID,
	})
	started := r.now()

	result, err := r.execute(ctx, l, runID, templateID, limit, ro.constants, log, started)

	status := "completed"
	switch {
	case err != nil:
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case result.Cancelled > 0:
		status = "cancelled"
	}
	r.recordRun(ctx, ch, status, r.now().Sub(started))

	if err != nil {
		log.Error("campaign run failed", map[string]interface{}{
			"errorCode": string(apperrors.CodeOf(err)),
			"error":     err.Error(),
		})
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("campaign.total", result.Total),
		attribute.Int("campaign.sent", result.Sent),
		attribute.Int("campaign.failed", result.Failed),
		attribute.Int("campaign.skipped", result.Skipped),
		attribute.Int("campaign.cancelled", result.Cancelled),
	)
	log.Info("campaign run finished", map[string]interface{}{
		"total":      result.Total,
		"sent":       result.Sent,
		"failed":     result.Failed,
		"skipped":    result.Skipped,
		"cancelled":  result.Cancelled,
		"durationMs": result.Duration().Milliseconds(),
	})
	return result, nil
}

func (r *Runner) execute(ctx context.Context, l *lane, runID, templateID string, limit int, constants map[string]string, log logger.Logger, started time.Time) (*models.CampaignResult, error) {
	tpl, err := r.loadTemplate(ctx, templateID, l.channel)
	if err != nil {
		return nil, err
	}

	targets, err := r.deps.Targets.GetPendingTargets(ctx, l.channel, limit)
	if err != nil {
		return nil, apperrors.NewTargetsUnavailableError(string(l.channel), err)
	}
	targets, dropped := pendingOnce(targets)
	if dropped > 0 {
		log.Warn("target source returned repeated or non-pending targets", map[string]interface{}{"dropped": dropped})
	}
	if len(targets) == 0 {
		return nil, apperrors.NewNoPendingTargetsError(string(l.channel))
	}

	rs := &run{
		id:   runID,
		tpl:  tpl,
		lane: l,
		acc: newAccumulator(models.CampaignResult{
			RunID:      runID,
			TemplateID: tpl.ID,
			Channel:    l.channel,
			Total:      len(targets),
			StartedAt:  started,
		}),
		body:      template.Compile(tpl.BodyPattern),
		constants: constants,
		log:       log,
	}
	if tpl.SubjectPattern != nil {
		rs.subject = template.Compile(*tpl.SubjectPattern)
	}

	log.Info("campaign run started", map[string]interface{}{"targets": len(targets)})

	// Completion work runs on a context that outlives caller cancellation so
	// that in-flight sends are always recorded.
	detached := context.WithoutCancel(ctx)

	subs := make([]submission, 0, len(targets))
	for i, target := range targets {
		if ctx.Err() != nil {
			for _, rest := range targets[i:] {
				rs.acc.cancel(rest.ID)
			}
			break
		}
		if fut := r.prepare(ctx, detached, rs, target); fut != nil {
			subs = append(subs, submission{target: target, future: fut})
		}
	}

	r.await(ctx, detached, rs, subs)

	result := rs.acc.snapshot()
	result.FinishedAt = r.now()
	return &result, nil
}

func (r *Runner) loadTemplate(ctx context.Context, id string, ch models.Channel) (*models.Template, error) {
	tpl, err := r.deps.Templates.GetTemplate(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, registry.ErrTemplateNotFound), err == nil && tpl == nil:
		return nil, apperrors.NewTemplateNotFoundError(id)
	case apperrors.CodeOf(err) == apperrors.ErrCodeQueryTimeout:
		return nil, err
	case err != nil:
		return nil, apperrors.NewQueryExecutionFailedError("get_template", err)
	}

	if err := tpl.Validate(); err != nil {
		return nil, apperrors.NewTemplateValidationFailedError(err)
	}
	if tpl.Channel != ch {
		return nil, apperrors.NewTemplateChannelMismatchError(tpl.ID, string(tpl.Channel), string(ch))
	}

	snapshot := *tpl
	if tpl.SubjectPattern != nil {
		s := *tpl.SubjectPattern
		snapshot.SubjectPattern = &s
	}
	return &snapshot, nil
}

// prepare applies cooldown and lease checks, renders the message and
// submits the send. It returns nil when the target was settled without a
// send.
func (r *Runner) prepare(ctx, detached context.Context, rs *run, target models.Target) *scheduler.Future[models.SendOutcome] {
	if r.deps.Cooldown != nil {
		ok, reason, err := r.deps.Cooldown.Eligible(ctx, target)
		switch {
		case err != nil:
			rs.log.Warn("cooldown check failed, contacting target", map[string]interface{}{
				"targetId": target.ID,
				"error":    err.Error(),
			})
		case !ok:
			r.skip(detached, rs, target, reason, true)
			return nil
		}
	}

	if r.deps.Lease != nil {
		ok, err := r.deps.Lease.Acquire(ctx, target, rs.id)
		switch {
		case err != nil:
			rs.log.Warn("lease acquire failed, contacting target", map[string]interface{}{
				"targetId": target.ID,
				"error":    err.Error(),
			})
		case !ok:
			// Another run owns the target and will transition it.
			r.skip(detached, rs, target, models.SkipReasonLeaseHeld, false)
			return nil
		}
	}

	if strings.TrimSpace(target.Handle) == "" {
		r.complete(detached, rs, target, models.Failed(models.ErrorKindUnknown, "target has no handle"), nil, 0)
		return nil
	}

	vars := Variables(target, r.deps.Constants, rs.constants)
	var (
		subject    *string
		unresolved []string
	)
	if rs.subject != nil {
		s := rs.subject.Render(vars)
		subject = &s
		unresolved = rs.subject.Unresolved(vars)
	}
	body := rs.body.Render(vars)
	unresolved = appendUnique(unresolved, rs.body.Unresolved(vars))

	if len(unresolved) > 0 {
		metrics.UnresolvedTokens.WithLabelValues(string(rs.lane.channel)).Inc()
		rs.log.Warn("message has unresolved placeholders", map[string]interface{}{
			"targetId": target.ID,
			"tokens":   unresolved,
		})
	}

	fut, err := rs.lane.sched.Submit(func() models.SendOutcome {
		return r.deliver(detached, rs, target, subject, body, unresolved)
	})
	if err != nil {
		r.complete(detached, rs, target, models.Failed(models.ErrorKindUnknown, fmt.Sprintf("submit: %v", err)), unresolved, 0)
		return nil
	}
	return fut
}

func (r *Runner) deliver(ctx context.Context, rs *run, target models.Target, subject *string, body string, unresolved []string) models.SendOutcome {
	ctx, span := r.tracer.Start(ctx, "campaign.send", trace.WithAttributes(
		attribute.String("campaign.target_id", target.ID),
		attribute.String("campaign.channel", string(rs.lane.channel)),
	))
	defer span.End()

	start := r.now()
	out := send(ctx, rs.lane.adapter, target, subject, body)
	if !out.Succeeded {
		span.SetStatus(codes.Error, string(out.ErrorKind))
	}
	r.complete(ctx, rs, target, out, unresolved, r.now().Sub(start))
	return out
}

func send(ctx context.Context, a channel.Adapter, target models.Target, subject *string, body string) (out models.SendOutcome) {
	defer func() {
		if p := recover(); p != nil {
			out = models.Failed(models.ErrorKindUnknown, fmt.Sprintf("adapter panic: %v", p))
		}
	}()
	return a.Send(ctx, target, subject, body)
}

// complete records a settled send: status, cooldown, audit, result and
// lease, in that order.
func (r *Runner) complete(ctx context.Context, rs *run, target models.Target, out models.SendOutcome, unresolved []string, took time.Duration) {
	ch := string(rs.lane.channel)
	now := r.now()

	status := models.TargetFailed
	var contacted *time.Time
	if out.Succeeded {
		status = models.TargetSent
		contacted = &now
	}
	r.updateStatus(ctx, rs, target, status, contacted)

	if out.Succeeded && r.deps.Cooldown != nil {
		if err := r.deps.Cooldown.MarkContacted(ctx, target, now); err != nil {
			rs.log.Warn("cooldown mark failed", map[string]interface{}{"targetId": target.ID, "error": err.Error()})
		}
	}

	r.audit(ctx, rs, target, models.ActionFor(rs.tpl.Kind), out.Succeeded, models.AuditMetadata{
		TemplateID:       rs.tpl.ID,
		Kind:             rs.tpl.Kind,
		ExternalID:       out.ExternalID,
		ErrorKind:        out.ErrorKind,
		UnresolvedTokens: unresolved,
		DurationMs:       took.Milliseconds(),
	}, out.ErrorMessage)

	rs.acc.record(target, out)
	r.release(ctx, rs, target)

	if out.Succeeded {
		metrics.Sends.WithLabelValues(ch, "sent").Inc()
	} else {
		metrics.Sends.WithLabelValues(ch, "failed").Inc()
		metrics.SendErrors.WithLabelValues(ch, string(out.ErrorKind)).Inc()
		rs.log.Warn("send failed", map[string]interface{}{
			"targetId":  target.ID,
			"errorKind": string(out.ErrorKind),
			"error":     out.ErrorMessage,
		})
	}
	if took > 0 {
		metrics.SendDuration.WithLabelValues(ch).Observe(took.Seconds())
	}
}

func (r *Runner) skip(ctx context.Context, rs *run, target models.Target, reason string, transition bool) {
	if transition {
		r.updateStatus(ctx, rs, target, models.TargetSkipped, nil)
	}
	r.audit(ctx, rs, target, models.ActionTargetSkip, true, models.AuditMetadata{
		TemplateID: rs.tpl.ID,
		Kind:       rs.tpl.Kind,
		SkipReason: reason,
	}, "")
	rs.acc.skip(target.ID)
	metrics.Skips.WithLabelValues(string(rs.lane.channel), reason).Inc()
	rs.log.Debug("target skipped", map[string]interface{}{"targetId": target.ID, "reason": reason})
}

// await waits for the lane to drain. On caller cancellation it discards
// queued sends and then waits for the running ones.
func (r *Runner) await(ctx, detached context.Context, rs *run, subs []submission) {
	if err := rs.lane.sched.Drain(ctx); err != nil {
		n := rs.lane.sched.CancelPending()
		rs.log.Warn("campaign cancelled, discarding queued sends", map[string]interface{}{"discarded": n})
		if err := rs.lane.sched.Drain(detached); err != nil {
			rs.log.Error("drain after cancel failed", map[string]interface{}{"error": err.Error()})
		}
	}

	for _, s := range subs {
		if rs.acc.isRecorded(s.target.ID) {
			continue
		}
		out, err := s.future.Wait(detached)
		switch {
		case errors.Is(err, scheduler.ErrCancelled):
			rs.acc.cancel(s.target.ID)
		case err != nil:
			rs.log.Error("send task ended without a recorded outcome", map[string]interface{}{
				"targetId": s.target.ID,
				"error":    err.Error(),
			})
			rs.acc.record(s.target, models.Failed(models.ErrorKindUnknown, err.Error()))
		default:
			rs.acc.record(s.target, out)
		}
		r.release(detached, rs, s.target)
	}
}

func (r *Runner) updateStatus(ctx context.Context, rs *run, target models.Target, status models.TargetStatus, contacted *time.Time) {
	err := r.deps.Status.UpdateTargetStatus(ctx, target.ID, status, contacted)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrStatusConflict):
		rs.log.Warn("target was transitioned by another run", map[string]interface{}{
			"targetId": target.ID,
			"status":   string(status),
		})
	default:
		rs.log.Error("target status update failed", map[string]interface{}{
			"targetId": target.ID,
			"status":   string(status),
			"error":    err.Error(),
		})
	}
}

func (r *Runner) audit(ctx context.Context, rs *run, target models.Target, action models.AuditAction, succeeded bool, meta models.AuditMetadata, errMsg string) {
	ref := target.ID
	entry := models.AuditEntry{
		ID:        uuid.NewString(),
		RunID:     rs.id,
		Channel:   rs.lane.channel,
		Action:    action,
		Succeeded: succeeded,
		TargetRef: &ref,
		Metadata:  meta,
		Timestamp: r.now().UTC(),
	}
	if errMsg != "" {
		entry.ErrorMessage = &errMsg
	}
	if err := r.deps.Audit.LogAction(ctx, entry); err != nil {
		rs.log.Warn("audit write failed", map[string]interface{}{"targetId": target.ID, "error": err.Error()})
	}
}

func (r *Runner) release(ctx context.Context, rs *run, target models.Target) {
	if r.deps.Lease == nil {
		return
	}
	if err := r.deps.Lease.Release(ctx, target, rs.id); err != nil {
		rs.log.Warn("lease release failed", map[string]interface{}{"targetId": target.ID, "error": err.Error()})
	}
}

func (r *Runner) recordRun(ctx context.Context, ch models.Channel, status string, d time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("channel", string(ch)),
		attribute.String("status", status),
	)
	r.runs.Add(ctx, 1, attrs)
	r.duration.Record(ctx, float64(d.Milliseconds()), attrs)
	metrics.CampaignRuns.WithLabelValues(string(ch), status).Inc()
}

// pendingOnce keeps the first occurrence of each pending target.
func pendingOnce(targets []models.Target) ([]models.Target, int) {
	seen := make(map[string]struct{}, len(targets))
	out := make([]models.Target, 0, len(targets))
	for _, t := range targets {
		if t.Status != models.TargetPending {
			continue
		}
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out, len(targets) - len(out)
}

func appendUnique(dst, src []string) []string {
	for _, s := range src {
		dup := false
		for _, d := range dst {
			if d == s {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, s)
		}
	}
	return dst
}
