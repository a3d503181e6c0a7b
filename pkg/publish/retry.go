// Package publish drives one tariff push end to end: bounded retried
// delivery, a settle delay, advisory readback verification, and the outcome
// record everything downstream consumes.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ratewriter/ratewriter/pkg/log"
	"github.com/ratewriter/ratewriter/pkg/metrics"
	"github.com/ratewriter/ratewriter/pkg/types"
)

// Sender performs exactly one publish exchange. The bool reports success;
// the int is the HTTP status, with 0 reserved for "no response received".
type Sender interface {
	Publish(ctx context.Context, siteID string, doc types.TariffDocument) (bool, int)
}

const maxAttempts = 3

// retryDelays is indexed by the attempt that just failed. The final attempt
// never sleeps, so the last entry is never waited.
var retryDelays = [maxAttempts]time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// sendClass classifies a publish status for the retry loop.
type sendClass int

const (
	classOK sendClass = iota
	// classPermanent statuses mean retrying cannot help (bad request or
	// bad credentials).
	classPermanent
	// classRateLimited is 429. Retried on the fixed schedule; the
	// Retry-After header is not consulted.
	classRateLimited
	// classRetriable covers server errors and network-level faults.
	classRetriable
	// classUnknown is any other status; treated as permanent.
	classUnknown
)

func classifyStatus(status int) sendClass {
	switch status {
	case http.StatusOK:
		return classOK
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return classPermanent
	case http.StatusTooManyRequests:
		return classRateLimited
	case 0,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return classRetriable
	default:
		return classUnknown
	}
}

func statusError(status int) string {
	if status == 0 {
		return "Network error"
	}
	return fmt.Sprintf("HTTP %d", status)
}

// Publisher retries a Sender on transient failures, up to 3 attempts with
// fixed 2s/4s backoff between them.
type Publisher struct {
	sender  Sender
	metrics *metrics.Collector

	// sleep is swapped out by tests to observe delays without real time.
	sleep func(ctx context.Context, d time.Duration)
}

// NewPublisher returns a Publisher over the given sender. A nil collector
// disables instrumentation.
func NewPublisher(sender Sender, mc *metrics.Collector) *Publisher {
	return &Publisher{
		sender:  sender,
		metrics: mc,
		sleep:   sleepContext,
	}
}

// SendWithRetry publishes the document, retrying transient failures. It
// returns whether the publish eventually succeeded and how many attempts
// were made (always between 1 and 3). Permanent failures and unrecognized
// statuses stop the sequence immediately with no delay; so does context
// cancellation during a backoff wait. The error detail is logged here and
// deliberately not returned.
func (p *Publisher) SendWithRetry(ctx context.Context, siteID string, doc types.TariffDocument) (bool, int) {
	var lastError string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ok, status := p.sender.Publish(ctx, siteID, doc)
		p.metrics.ObservePublishAttempt(status)

		if ok {
			return true, attempt
		}

		class := classifyStatus(status)
		if class == classPermanent {
			log.Ctx(ctx).ErrorContext(ctx, "permanent failure, not retrying",
				slog.Int("status", status))
			return false, attempt
		}

		lastError = statusError(status)

		// The final attempt never sleeps, even when the status would
		// otherwise be treated as permanent below.
		if attempt == maxAttempts {
			break
		}

		delay := retryDelays[attempt-1]
		switch class {
		case classRateLimited:
			log.Ctx(ctx).WarnContext(ctx, "rate limited, retrying",
				slog.Duration("delay", delay),
				slog.Int("attempt", attempt),
				slog.Int("maxAttempts", maxAttempts),
			)
		case classRetriable:
			log.Ctx(ctx).WarnContext(ctx, "transient failure, retrying",
				slog.String("error", lastError),
				slog.Duration("delay", delay),
				slog.Int("attempt", attempt),
				slog.Int("maxAttempts", maxAttempts),
			)
		default:
			log.Ctx(ctx).ErrorContext(ctx, "unexpected status, not retrying",
				slog.Int("status", status))
			return false, attempt
		}

		p.sleep(ctx, delay)
		if ctx.Err() != nil {
			log.Ctx(ctx).WarnContext(ctx, "publish abandoned during backoff",
				slog.Any("error", ctx.Err()),
				slog.Int("attempt", attempt),
			)
			return false, attempt
		}
	}

	log.Ctx(ctx).ErrorContext(ctx, "all retry attempts exhausted",
		slog.Int("attempts", maxAttempts),
		slog.String("lastError", lastError),
	)
	return false, maxAttempts
}

// sleepContext waits for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
