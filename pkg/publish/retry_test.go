package publish

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratewriter/ratewriter/pkg/types"
)

// scriptedSender returns one status per call, in order.
type scriptedSender struct {
	statuses  []int
	calls     int
	readCalls int
	lastDoc   types.TariffDocument
	stored    types.StoredTariff
	readErr   error
}

func (s *scriptedSender) Publish(_ context.Context, _ string, doc types.TariffDocument) (bool, int) {
	s.lastDoc = doc
	status := s.statuses[s.calls]
	s.calls++
	return status == http.StatusOK, status
}

func (s *scriptedSender) Readback(context.Context, string) (types.StoredTariff, error) {
	s.readCalls++
	if s.readErr != nil {
		return types.StoredTariff{}, s.readErr
	}
	return s.stored, nil
}

// sleepRecorder captures requested delays instead of waiting them out.
type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) {
	r.delays = append(r.delays, d)
}

func newTestPublisher(statuses ...int) (*Publisher, *scriptedSender, *sleepRecorder) {
	sender := &scriptedSender{statuses: statuses}
	rec := &sleepRecorder{}
	pub := NewPublisher(sender, nil)
	pub.sleep = rec.sleep
	return pub, sender, rec
}

func TestSendWithRetryFirstAttempt(t *testing.T) {
	pub, sender, rec := newTestPublisher(200)
	ok, attempts := pub.SendWithRetry(context.Background(), "123456", types.TariffDocument{})
	assert.True(t, ok, "should succeed on first attempt")
	assert.Equal(t, 1, attempts, "should report one attempt")
	assert.Equal(t, 1, sender.calls, "should call the sender once")
	assert.Empty(t, rec.delays, "should never sleep on immediate success")
}

func TestSendWithRetryTransientThenSuccess(t *testing.T) {
	pub, sender, rec := newTestPublisher(500, 500, 200)
	ok, attempts := pub.SendWithRetry(context.Background(), "123456", types.TariffDocument{})
	assert.True(t, ok, "should succeed on the third attempt")
	assert.Equal(t, 3, attempts, "should report three attempts")
	assert.Equal(t, 3, sender.calls, "should call the sender three times")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.delays,
		"should sleep only between attempts")
}

func TestSendWithRetryPermanent(t *testing.T) {
	for _, status := range []int{400, 401, 403} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			pub, sender, rec := newTestPublisher(status)
			ok, attempts := pub.SendWithRetry(context.Background(), "123456", types.TariffDocument{})
			assert.False(t, ok, "should fail on permanent status")
			assert.Equal(t, 1, attempts, "should stop after the first attempt")
			assert.Equal(t, 1, sender.calls, "should not retry a permanent failure")
			assert.Empty(t, rec.delays, "should not sleep before giving up")
		})
	}
}

func TestSendWithRetryRateLimitedExhausted(t *testing.T) {
	pub, sender, rec := newTestPublisher(429, 429, 429)
	ok, attempts := pub.SendWithRetry(context.Background(), "123456", types.TariffDocument{})
	assert.False(t, ok, "should fail once attempts are exhausted")
	assert.Equal(t, maxAttempts, attempts, "should report the attempt cap")
	assert.Equal(t, 3, sender.calls, "should use every attempt")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.delays,
		"should not sleep after the final attempt")
}

func TestSendWithRetryNetworkErrorExhausted(t *testing.T) {
	pub, sender, rec := newTestPublisher(0, 0, 0)
	ok, attempts := pub.SendWithRetry(context.Background(), "123456", types.TariffDocument{})
	assert.False(t, ok, "should fail once attempts are exhausted")
	assert.Equal(t, maxAttempts, attempts, "should report the attempt cap")
	assert.Equal(t, 3, sender.calls, "should treat status 0 as retriable")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.delays,
		"should back off between network errors")
}

func TestSendWithRetryUnknownStatus(t *testing.T) {
	pub, sender, rec := newTestPublisher(302)
	ok, attempts := pub.SendWithRetry(context.Background(), "123456", types.TariffDocument{})
	assert.False(t, ok, "should fail on an unrecognized status")
	assert.Equal(t, 1, attempts, "should stop after the first attempt")
	assert.Equal(t, 1, sender.calls, "should not retry an unrecognized status")
	assert.Empty(t, rec.delays, "should not sleep before giving up")
}

func TestSendWithRetryUnknownStatusOnFinalAttempt(t *testing.T) {
	// An unrecognized status on the last attempt falls into the exhaustion
	// path rather than the immediate-stop path.
	pub, sender, rec := newTestPublisher(500, 500, 302)
	ok, attempts := pub.SendWithRetry(context.Background(), "123456", types.TariffDocument{})
	assert.False(t, ok, "should fail once attempts are exhausted")
	assert.Equal(t, maxAttempts, attempts, "should report the attempt cap")
	assert.Equal(t, 3, sender.calls, "should use every attempt")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.delays,
		"should not sleep after the final attempt")
}

func TestSendWithRetryCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sender := &scriptedSender{statuses: []int{500, 200}}
	rec := &sleepRecorder{}
	pub := NewPublisher(sender, nil)
	pub.sleep = func(ctx context.Context, d time.Duration) {
		rec.sleep(ctx, d)
		cancel()
	}

	ok, attempts := pub.SendWithRetry(ctx, "123456", types.TariffDocument{})
	assert.False(t, ok, "should abandon the push when cancelled mid-backoff")
	assert.Equal(t, 1, attempts, "should report only the attempts actually sent")
	assert.Equal(t, 1, sender.calls, "should not send again after cancellation")
	require.Len(t, rec.delays, 1, "should have entered exactly one backoff")
	assert.Equal(t, 2*time.Second, rec.delays[0], "should use the first backoff delay")
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		expect sendClass
	}{
		{200, classOK},
		{400, classPermanent},
		{401, classPermanent},
		{403, classPermanent},
		{429, classRateLimited},
		{0, classRetriable},
		{500, classRetriable},
		{502, classRetriable},
		{503, classRetriable},
		{504, classRetriable},
		{201, classUnknown},
		{302, classUnknown},
		{404, classUnknown},
		{418, classUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.expect, classifyStatus(c.status), "status %d", c.status)
	}
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	sleepContext(ctx, time.Minute)
	assert.Less(t, time.Since(start), 5*time.Second,
		"should return promptly when the context is already cancelled")
}
