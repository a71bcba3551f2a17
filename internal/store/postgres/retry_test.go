package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_SucceedsAfterTransientErrors(t *testing.T) {
	p := newRetryPolicy(3, 1)
	attempts := 0

	err := p.withRetry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("dial tcp: connection reset by peer")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicy_GivesUpOnNonTransientError(t *testing.T) {
	p := newRetryPolicy(5, 1)
	attempts := 0
	sentinel := errors.New("unique_violation")

	err := p.withRetry(context.Background(), func() error {
		attempts++
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	p := newRetryPolicy(2, 1)
	attempts := 0

	err := p.withRetry(context.Background(), func() error {
		attempts++
		return errors.New("ETIMEDOUT")
	})

	assert.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryPolicy_ContextCancelledDuringBackoff(t *testing.T) {
	p := retryPolicy{attempts: 3, delay: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.withRetry(ctx, func() error {
		attempts++
		return errors.New("connection lost")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestIsTransientDBError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("pq: duplicate key value violates unique constraint"), false},
		{errors.New("dial tcp: i/o timeout"), false}, // plain text, not net.Error
		{errors.New("ECONNREFUSED"), true},
		{errors.New("driver: bad connection"), true},
		{errors.New("pool timeout: no available connections"), true},
		{nil, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, isTransientDBError(c.err), "%v", c.err)
	}
}
