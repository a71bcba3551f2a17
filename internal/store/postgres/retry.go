package postgres

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// retryPolicy classifies transient store errors and retries with linear
// backoff, the same shape this codebase's transaction manager used
// elsewhere: attempt N waits Delay*(N+1) before the next try. It replaces
// a hand-rolled per-call retry loop with one helper every store method
// routes network-facing calls through.
type retryPolicy struct {
	attempts int
	delay    time.Duration
}

func newRetryPolicy(count int, delayMs int) retryPolicy {
	if count < 1 {
		count = 1
	}
	return retryPolicy{attempts: count, delay: time.Duration(delayMs) * time.Millisecond}
}

// withRetry runs fn, retrying while isTransientDBError(err) holds and
// attempts remain. The final error (transient or not) is returned as-is.
func (p retryPolicy) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < p.attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isTransientDBError(err) || attempt == p.attempts-1 {
			return err
		}
		wait := p.delay * time.Duration(attempt+1)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// transientSubstrings matches the driver-level error text for conditions
// spec.md §5 calls out as retryable: pool/acquire timeout, socket timeout,
// connection loss and the POSIX errno spellings lib/pq surfaces them as.
var transientSubstrings = []string{
	"pool timeout",
	"acquire timeout",
	"connection reset",
	"connection lost",
	"connection refused",
	"broken pipe",
	"econnreset",
	"etimedout",
	"ehostunreach",
	"econnrefused",
	"driver: bad connection",
}

// isTransientDBError reports whether err looks like a transient
// connectivity failure worth retrying, as opposed to a query/constraint
// error that will fail identically on every attempt.
func isTransientDBError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
