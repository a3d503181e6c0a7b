package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ratewriter/ratewriter/pkg/log"
	"github.com/ratewriter/ratewriter/pkg/metrics"
	"github.com/ratewriter/ratewriter/pkg/notify"
	"github.com/ratewriter/ratewriter/pkg/tariff"
	"github.com/ratewriter/ratewriter/pkg/types"
)

// Exchange is the full vendor surface a push needs: one send plus the
// readback used for verification.
type Exchange interface {
	Sender
	Reader
}

// OutcomeSink receives the result record of every push, successful or not.
type OutcomeSink interface {
	Emit(ctx context.Context, res types.PushResult)
}

// SinkFunc adapts a function to the OutcomeSink interface.
type SinkFunc func(ctx context.Context, res types.PushResult)

// Emit implements the OutcomeSink interface.
func (f SinkFunc) Emit(ctx context.Context, res types.PushResult) {
	f(ctx, res)
}

// settleDelay is how long a successful push waits before reading the stored
// tariff back, giving the vendor time to apply it.
const settleDelay = 2 * time.Second

// Orchestrator runs complete pushes: it builds the tariff document, sends it
// with retries, verifies the stored copy, and maintains the failure
// notification for the site.
type Orchestrator struct {
	notifier notify.Notifier
	sink     OutcomeSink
	metrics  *metrics.Collector

	sleep func(ctx context.Context, d time.Duration)
	now   func() time.Time
}

// NewOrchestrator returns an Orchestrator emitting outcomes to sink. A nil
// collector disables instrumentation.
func NewOrchestrator(notifier notify.Notifier, sink OutcomeSink, mc *metrics.Collector) *Orchestrator {
	return &Orchestrator{
		notifier: notifier,
		sink:     sink,
		metrics:  mc,
		sleep:    sleepContext,
		now:      time.Now,
	}
}

// WithSleep replaces the backoff and settle sleeps, for tests.
func (o *Orchestrator) WithSleep(fn func(ctx context.Context, d time.Duration)) *Orchestrator {
	o.sleep = fn
	return o
}

// Push builds a tariff document from the given rate periods and publishes it
// to the site over x. An empty planName falls back to the site's configured
// plan name, then to the default. The returned result is also emitted to the
// outcome sink; verification failure alone never marks the push failed.
func (o *Orchestrator) Push(ctx context.Context, x Exchange, site types.SiteConfig, periods []types.RatePeriod, planName string) types.PushResult {
	if planName == "" {
		planName = site.PlanName
	}
	if planName == "" {
		planName = tariff.DefaultPlanName
	}

	masked := types.MaskSiteID(site.SiteID)
	res := types.PushResult{
		ID:          uuid.NewString(),
		SiteID:      masked,
		PlanName:    planName,
		VerifyState: types.VerifyUnknown,
	}
	ctx = log.With(ctx, log.Ctx(ctx).With(
		slog.String("pushID", res.ID),
		slog.String("siteID", masked),
		slog.String("planName", planName),
	))
	started := o.now()
	log.Ctx(ctx).InfoContext(ctx, "starting push", slog.Int("periods", len(periods)))

	doc, diags, err := tariff.Build(periods, planName)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to build tariff document",
			slog.Any("error", err))
		res.Error = err.Error()
		return o.finish(ctx, res, started)
	}
	for _, d := range diags {
		log.Ctx(ctx).WarnContext(ctx, d.Message, slog.String("slot", d.Slot))
	}

	pub := NewPublisher(x, o.metrics)
	pub.sleep = o.sleep
	ok, attempts := pub.SendWithRetry(ctx, site.SiteID, doc)
	res.AttemptCount = attempts

	if !ok {
		res.Error = fmt.Sprintf("Failed after %d attempts", attempts)
		o.notifier.Warn(site.SiteID, fmt.Sprintf(
			"Failed to push rate schedule to site %s after %d attempt(s).", masked, attempts))
		log.Ctx(ctx).ErrorContext(ctx, "push failed",
			slog.Int("attempts", attempts))
		return o.finish(ctx, res, started)
	}

	o.sleep(ctx, settleDelay)
	if NewVerifier(x).Verify(ctx, site.SiteID, doc) {
		res.VerifyState = types.VerifyPassed
	} else {
		res.VerifyState = types.VerifyFailed
		log.Ctx(ctx).WarnContext(ctx, "push succeeded but readback verification failed")
	}
	o.metrics.ObserveVerify(res.VerifyState == types.VerifyPassed)

	res.Success = true
	o.notifier.Dismiss(site.SiteID)
	log.Ctx(ctx).InfoContext(ctx, "push complete",
		slog.Int("attempts", attempts),
		slog.String("verifyState", string(res.VerifyState)),
	)
	return o.finish(ctx, res, started)
}

// finish stamps the result, records it, and hands it to the outcome sink.
func (o *Orchestrator) finish(ctx context.Context, res types.PushResult, started time.Time) types.PushResult {
	res.FinishedAt = o.now()
	o.metrics.ObservePush(res.Success, res.AttemptCount, res.FinishedAt.Sub(started))
	if o.sink != nil {
		o.sink.Emit(ctx, res)
	}
	return res
}
