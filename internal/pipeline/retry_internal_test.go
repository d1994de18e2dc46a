package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/climate-series-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 400*time.Millisecond, nextBackoff(200*time.Millisecond, 5*time.Second))
	assert.Equal(t, 5*time.Second, nextBackoff(4*time.Second, 5*time.Second))
}

func TestSleepWithContext(t *testing.T) {
	clock := clockwork.NewFakeClock()

	done := make(chan bool)
	go func() { done <- sleepWithContext(context.Background(), clock, time.Second) }()
	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(time.Second)
	assert.True(t, <-done)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepWithContext(ctx, clock, time.Second))
}

func TestRetrier_BacksOffOnFakeClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var waits int
	r := &retrier{
		policy: RetryPolicy{MaxAttempts: 3, BaseBackoff: 200 * time.Millisecond, MaxBackoff: 300 * time.Millisecond},
		clock:  clock,
		onWait: func(string) { waits++ },
	}

	calls := 0
	errc := make(chan error)
	go func() {
		errc <- r.do(context.Background(), "read", domain.VarET, func(context.Context) error {
			calls++
			return errors.New("timeout")
		})
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(200 * time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(300 * time.Millisecond)

	err := <-errc
	var bue *domain.BackendUnavailableError
	require.ErrorAs(t, err, &bue)
	assert.Equal(t, 3, bue.Attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, waits)
}

func TestRetryable(t *testing.T) {
	ctx := context.Background()
	assert.True(t, retryable(ctx, errors.New("503")))
	assert.False(t, retryable(ctx, domain.ErrRejected))
	assert.False(t, retryable(ctx, domain.ErrUnknownBand))
	assert.False(t, retryable(ctx, context.DeadlineExceeded))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, retryable(cancelled, errors.New("503")))
}
